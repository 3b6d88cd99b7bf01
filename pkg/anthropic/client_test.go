package anthropic

import (
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageResponseText_JoinsTextBlocks(t *testing.T) {
	resp := &MessageResponse{
		Content: []ContentBlock{
			{Type: "text", Text: `{"stance":"refutes",`},
			{Type: "thinking", Text: "weighing the excerpt"},
			{Type: "text", Text: `"confidence":0.8}`},
		},
	}
	assert.Equal(t, `{"stance":"refutes","confidence":0.8}`, resp.Text())
}

func TestMessageResponseText_NoContent(t *testing.T) {
	assert.Equal(t, "", (&MessageResponse{}).Text())
}

func TestParams_SingleUserTurn(t *testing.T) {
	req := MessageRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 256,
		Prompt:    "claim and excerpt",
	}

	p := req.params()

	require.Len(t, p.Messages, 1)
	assert.Equal(t, sdk.MessageParamRoleUser, p.Messages[0].Role)
	assert.Empty(t, p.System)
}

func TestSystemBlockParam_CacheControl(t *testing.T) {
	plain := SystemBlock{Text: "no cache"}.param()
	assert.Equal(t, "no cache", plain.Text)

	cached := SystemBlock{Text: "judge the claim", CacheControl: &CacheControl{TTL: "5m"}}.param()
	assert.Equal(t, sdk.CacheControlEphemeralTTL("5m"), cached.CacheControl.TTL)
}

func TestStatusCode_NonAPIError(t *testing.T) {
	assert.Equal(t, 0, StatusCode(errors.New("dial tcp: connection refused")))
}
