// Package anthropic exposes the narrow slice of the Anthropic message API
// that claim verification needs: single-turn completions with a cacheable
// system prompt, plus token accounting for the cost log.
package anthropic

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
)

// Client sends message-completion requests. The production implementation
// wraps the official SDK; tests substitute a double.
type Client interface {
	CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error)
}

// MessageRequest describes one completion in package-local terms, so callers
// never touch SDK union types. A verdict call is a system prompt followed by
// exactly one user prompt; the package does not model longer conversations.
type MessageRequest struct {
	Model       string
	MaxTokens   int64
	System      []SystemBlock
	Prompt      string   // the single user turn
	Temperature *float64 // nil keeps the API default
}

// SystemBlock is one block of the system prompt.
type SystemBlock struct {
	Text         string
	CacheControl *CacheControl // nil for an uncached block
}

// CacheControl marks a block as a prompt-cache breakpoint. TTL is the
// cache lifetime the API accepts, "5m" or "1h".
type CacheControl struct {
	TTL string
}

// MessageResponse carries the response fields the pipeline reads.
type MessageResponse struct {
	ID         string
	Model      string
	Content    []ContentBlock
	StopReason string
	Usage      TokenUsage
}

// ContentBlock is one piece of response content. Verdict JSON arrives in
// "text" blocks; any other block type is kept but ignored by Text.
type ContentBlock struct {
	Type string
	Text string
}

// Text joins the response's text blocks into a single string.
func (r *MessageResponse) Text() string {
	var sb strings.Builder
	for _, block := range r.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

type apiClient struct {
	api sdk.Client
}

// NewClient returns a Client backed by anthropic-sdk-go.
func NewClient(apiKey string) Client {
	return &apiClient{api: sdk.NewClient(option.WithAPIKey(apiKey))}
}

// StatusCode returns the HTTP status of the API error in err's chain, or 0
// when err carries no API status. Callers use it to tell retryable overload
// (429, 5xx) apart from auth and request failures.
func StatusCode(err error) int {
	var apierr *sdk.Error
	if errors.As(err, &apierr) {
		return apierr.StatusCode
	}
	return 0
}

func (c *apiClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	msg, err := c.api.Messages.New(ctx, req.params())
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: create message")
	}
	return convertMessage(msg), nil
}

// params translates the request into SDK form.
func (r MessageRequest) params() sdk.MessageNewParams {
	p := sdk.MessageNewParams{
		Model:     sdk.Model(r.Model),
		MaxTokens: r.MaxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(r.Prompt)),
		},
	}
	for _, b := range r.System {
		p.System = append(p.System, b.param())
	}
	if r.Temperature != nil {
		p.Temperature = sdk.Float(*r.Temperature)
	}
	return p
}

func (b SystemBlock) param() sdk.TextBlockParam {
	out := sdk.TextBlockParam{Text: b.Text}
	if b.CacheControl == nil {
		return out
	}
	cc := sdk.NewCacheControlEphemeralParam()
	if ttl := b.CacheControl.TTL; ttl != "" {
		cc.TTL = sdk.CacheControlEphemeralTTL(ttl)
	}
	out.CacheControl = cc
	return out
}

func convertMessage(msg *sdk.Message) *MessageResponse {
	resp := &MessageResponse{
		ID:         msg.ID,
		Model:      string(msg.Model),
		StopReason: string(msg.StopReason),
		Content:    make([]ContentBlock, len(msg.Content)),
		Usage:      convertUsage(msg.Usage),
	}
	for i, block := range msg.Content {
		resp.Content[i] = ContentBlock{Type: block.Type, Text: block.Text}
	}
	return resp
}

func convertUsage(u sdk.Usage) TokenUsage {
	return TokenUsage{
		Input:      u.InputTokens,
		Output:     u.OutputTokens,
		CacheWrite: u.CacheCreationInputTokens,
		CacheRead:  u.CacheReadInputTokens,
	}
}
