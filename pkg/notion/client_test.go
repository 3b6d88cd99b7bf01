package notion

import (
	"context"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClient implements Client for testing.
type MockClient struct {
	mock.Mock
}

var _ Client = (*MockClient)(nil)

func (m *MockClient) Query(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func (m *MockClient) Create(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func (m *MockClient) Update(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, pageID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func TestNewClient_ThrottledByDefault(t *testing.T) {
	t.Parallel()

	nc, ok := NewClient("secret-token").(*client)
	require.True(t, ok)
	require.NotNil(t, nc.limiter)
	assert.InDelta(t, float64(notionRPS), float64(nc.limiter.Limit()), 0.001)
}

func TestWithRateLimit_Disable(t *testing.T) {
	t.Parallel()

	nc := NewClient("secret-token", WithRateLimit(0)).(*client)
	assert.Nil(t, nc.limiter)
	assert.NoError(t, nc.throttle(context.Background()))
}

func TestWithRateLimit_Custom(t *testing.T) {
	t.Parallel()

	nc := NewClient("secret-token", WithRateLimit(10)).(*client)
	require.NotNil(t, nc.limiter)
	assert.InDelta(t, 10.0, float64(nc.limiter.Limit()), 0.001)
}

func TestThrottle_CanceledContext(t *testing.T) {
	t.Parallel()

	nc := NewClient("secret-token").(*client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Burn the initial burst so the next wait would have to block.
	require.NoError(t, nc.throttle(context.Background()))

	err := nc.throttle(ctx)
	require.Error(t, err)
	assert.ErrorContains(t, err, "rate limit")
}
