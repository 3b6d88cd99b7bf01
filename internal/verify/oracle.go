package verify

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/claimsift/claimsift/internal/config"
	"github.com/claimsift/claimsift/internal/resilience"
	"github.com/claimsift/claimsift/pkg/anthropic"
	"github.com/claimsift/claimsift/pkg/perplexity"
)

// Oracle is one model endpoint that can answer a verification prompt.
// Adapters mark retryable failures (429, 5xx, network) as transient so the
// verifier can map them to oracle_error instead of oracle_unavailable.
type Oracle interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
}

// NewOracleFromConfig selects the verification oracle. A known oracle whose
// credential is missing returns (nil, nil): the verifier then reports
// oracle_unavailable per article instead of failing the whole run.
func NewOracleFromConfig(cfg *config.Config) (Oracle, error) {
	name := cfg.Verify.Oracle
	if name == "" {
		name = "anthropic"
	}

	switch name {
	case "anthropic":
		if cfg.Anthropic.Key == "" {
			zap.L().Warn("no anthropic key configured, verification unavailable")
			return nil, nil
		}
		client := anthropic.NewClient(cfg.Anthropic.Key)
		return NewAnthropicOracle(client, cfg.Anthropic.Model, int64(cfg.Verify.MaxTokens)), nil

	case "perplexity":
		if cfg.Perplexity.Key == "" {
			zap.L().Warn("no perplexity key configured, verification unavailable")
			return nil, nil
		}
		opts := []perplexity.Option{perplexity.WithModel(cfg.Perplexity.Model)}
		if cfg.Perplexity.BaseURL != "" {
			opts = append(opts, perplexity.WithBaseURL(cfg.Perplexity.BaseURL))
		}
		client := perplexity.NewClient(cfg.Perplexity.Key, opts...)
		return NewPerplexityOracle(client, cfg.Perplexity.Model, cfg.Verify.MaxTokens), nil

	case "openai":
		if cfg.OpenAI.Key == "" {
			zap.L().Warn("no openai key configured, verification unavailable")
			return nil, nil
		}
		return NewOpenAIOracle(cfg.OpenAI.Key, cfg.OpenAI.BaseURL, cfg.OpenAI.Model, cfg.Verify.MaxTokens), nil

	default:
		return nil, eris.Errorf("verify: unknown oracle %q", cfg.Verify.Oracle)
	}
}

type anthropicOracle struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	system    []anthropic.SystemBlock
}

// NewAnthropicOracle wraps the Anthropic message API. The system prompt is
// sent as a cached block: it repeats for every article in a run.
func NewAnthropicOracle(client anthropic.Client, model string, maxTokens int64) Oracle {
	return &anthropicOracle{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
		system:    anthropic.BuildCachedSystemBlocks(systemPrompt),
	}
}

func (o *anthropicOracle) Name() string { return "anthropic" }

func (o *anthropicOracle) Complete(ctx context.Context, prompt string) (string, error) {
	temp := 0.0
	resp, err := o.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       o.model,
		MaxTokens:   o.maxTokens,
		System:      o.system,
		Prompt:      prompt,
		Temperature: &temp,
	})
	if err != nil {
		if code := anthropic.StatusCode(err); code > 0 && resilience.IsTransientHTTPStatus(code) {
			return "", resilience.NewTransientError(err, code)
		}
		return "", err
	}
	resp.Usage.LogCost(o.model, "verify")
	return resp.Text(), nil
}

type perplexityOracle struct {
	client    perplexity.Client
	model     string
	maxTokens int
}

// NewPerplexityOracle wraps the Perplexity chat API.
func NewPerplexityOracle(client perplexity.Client, model string, maxTokens int) Oracle {
	return &perplexityOracle{client: client, model: model, maxTokens: maxTokens}
}

func (o *perplexityOracle) Name() string { return "perplexity" }

func (o *perplexityOracle) Complete(ctx context.Context, prompt string) (string, error) {
	temp := 0.0
	resp, err := o.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Model: o.model,
		Messages: []perplexity.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: &temp,
		MaxTokens:   &o.maxTokens,
	})
	if err != nil {
		var se *perplexity.StatusError
		if errors.As(err, &se) && resilience.IsTransientHTTPStatus(se.Code) {
			return "", resilience.NewTransientError(err, se.Code)
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", eris.New("perplexity: empty response")
	}
	if len(resp.Citations) > 0 {
		zap.L().Debug("perplexity citations",
			zap.Strings("urls", resp.Citations),
		)
	}
	return resp.Choices[0].Message.Content, nil
}

type openaiOracle struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAIOracle builds a chat-completions oracle. baseURL overrides the
// endpoint for OpenAI-compatible gateways; empty uses api.openai.com.
func NewOpenAIOracle(apiKey, baseURL, model string, maxTokens int) Oracle {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &openaiOracle{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     model,
		maxTokens: maxTokens,
	}
}

func (o *openaiOracle) Name() string { return "openai" }

func (o *openaiOracle) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   o.maxTokens,
		Temperature: 0.1,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.HTTPStatusCode) {
			return "", resilience.NewTransientError(err, apiErr.HTTPStatusCode)
		}
		return "", eris.Wrap(err, "openai: chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", eris.New("openai: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
