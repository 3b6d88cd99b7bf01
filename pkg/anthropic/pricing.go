package anthropic

import "go.uber.org/zap"

// pricing is per-million-token list price in USD.
type pricing struct {
	input  float64
	output float64
}

// Models missing from this table estimate to zero rather than guessing.
var modelPricing = map[string]pricing{
	"claude-haiku-4-5-20251001":  {input: 0.80, output: 4.00},
	"claude-sonnet-4-5-20250929": {input: 3.00, output: 15.00},
	"claude-opus-4-6":            {input: 15.00, output: 75.00},
}

// Prompt-cache writes bill at a premium over plain input; reads at a tenth.
const (
	cacheWriteMultiplier = 1.25
	cacheReadMultiplier  = 0.10
)

// TokenUsage is the token accounting returned with each response, named for
// how each bucket is billed.
type TokenUsage struct {
	Input      int64
	Output     int64
	CacheWrite int64
	CacheRead  int64
}

// EstimateCost prices the usage against the model's published rates.
func (u TokenUsage) EstimateCost(model string) float64 {
	p, ok := modelPricing[model]
	if !ok {
		return 0
	}
	perMTok := func(tokens int64, rate float64) float64 {
		return float64(tokens) / 1e6 * rate
	}
	return perMTok(u.Input, p.input) +
		perMTok(u.Output, p.output) +
		perMTok(u.CacheWrite, p.input*cacheWriteMultiplier) +
		perMTok(u.CacheRead, p.input*cacheReadMultiplier)
}

// LogCost emits one structured line attributing spend to a pipeline phase.
func (u TokenUsage) LogCost(model, phase string) {
	zap.L().Info("cost attribution",
		zap.String("model", model),
		zap.String("phase", phase),
		zap.Int64("input_tokens", u.Input),
		zap.Int64("output_tokens", u.Output),
		zap.Int64("cache_write_tokens", u.CacheWrite),
		zap.Int64("cache_read_tokens", u.CacheRead),
		zap.Float64("estimated_cost_usd", u.EstimateCost(model)),
	)
}
