// Package verify asks an oracle whether an article supports, refutes, or is
// unrelated to a claim, and normalizes whatever comes back into a Verdict.
// Like fetching, verification is total: every call yields a Verdict whose
// Status records how it went.
package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/claimsift/claimsift/internal/model"
	"github.com/claimsift/claimsift/internal/resilience"
)

const (
	defaultMaxExcerptChars = 6000
	defaultTimeout         = 45 * time.Second
)

// Options configures a Verifier. Zero values fall back to defaults.
type Options struct {
	MaxExcerptChars int
	Timeout         time.Duration
	Breaker         *resilience.CircuitBreaker
}

// Verifier runs claim-versus-article checks through a single oracle, guarded
// by a circuit breaker so a dead oracle stops costing a full timeout per
// article.
type Verifier struct {
	oracle          Oracle
	breaker         *resilience.CircuitBreaker
	maxExcerptChars int
	timeout         time.Duration
}

// New creates a Verifier. A nil oracle is allowed: every Verify call then
// reports oracle_unavailable, which lets a run proceed without credentials.
func New(oracle Oracle, opts Options) *Verifier {
	if opts.MaxExcerptChars <= 0 {
		opts.MaxExcerptChars = defaultMaxExcerptChars
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Breaker == nil {
		opts.Breaker = resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig())
	}
	return &Verifier{
		oracle:          oracle,
		breaker:         opts.Breaker,
		maxExcerptChars: opts.MaxExcerptChars,
		timeout:         opts.Timeout,
	}
}

// Verify classifies articleText's stance toward claim. It never returns an
// error; failures land in Verdict.Status with a short rationale note.
func (v *Verifier) Verify(ctx context.Context, claim, articleText string) model.Verdict {
	if v.oracle == nil {
		return model.UnavailableVerdict("no oracle configured")
	}

	excerpt := BuildExcerpt(claim, articleText, v.maxExcerptChars)
	prompt := fmt.Sprintf(userPromptFormat, claim, excerpt)

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	raw, err := resilience.ExecuteVal(ctx, v.breaker, func(ctx context.Context) (string, error) {
		return v.oracle.Complete(ctx, prompt)
	})
	if err != nil {
		verdict := classifyFailure(err)
		zap.L().Warn("verification call failed",
			zap.String("oracle", v.oracle.Name()),
			zap.String("status", string(verdict.Status)),
			zap.Error(err),
		)
		return verdict
	}

	stance, confidence, rationale := ParseReply(raw)
	zap.L().Debug("verdict",
		zap.String("oracle", v.oracle.Name()),
		zap.String("stance", string(stance)),
		zap.Float64("confidence", confidence),
	)
	return model.Verdict{
		Stance:     stance,
		Confidence: confidence,
		Rationale:  rationale,
		Status:     model.VerifierOK,
	}
}

// classifyFailure separates "worth retrying on a later run" (oracle_error)
// from "this oracle cannot serve this run" (oracle_unavailable).
func classifyFailure(err error) model.Verdict {
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return model.UnavailableVerdict("oracle circuit open")
	case errors.Is(err, context.Canceled):
		return model.ErrorVerdict("canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return model.ErrorVerdict("timeout")
	case resilience.IsTransient(err):
		return model.ErrorVerdict(rootMessage(err))
	default:
		return model.UnavailableVerdict(rootMessage(err))
	}
}

func rootMessage(err error) string {
	root := err
	for {
		next := errors.Unwrap(root)
		if next == nil {
			break
		}
		root = next
	}
	return root.Error()
}
