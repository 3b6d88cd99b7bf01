package verify

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/claimsift/claimsift/internal/model"
	"github.com/claimsift/claimsift/internal/resilience"
)

type mockOracle struct {
	mock.Mock
}

var _ Oracle = (*mockOracle)(nil)

func (m *mockOracle) Complete(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func (m *mockOracle) Name() string { return "mock" }

// funcOracle lets a test control Complete directly (sleeps, captures).
type funcOracle struct {
	fn func(ctx context.Context, prompt string) (string, error)
}

func (f *funcOracle) Complete(ctx context.Context, prompt string) (string, error) {
	return f.fn(ctx, prompt)
}

func (f *funcOracle) Name() string { return "func" }

func TestVerify_HappyPath(t *testing.T) {
	oracle := &mockOracle{}
	oracle.On("Complete", mock.Anything, mock.MatchedBy(func(prompt string) bool {
		return strings.Contains(prompt, "water boils at 100") &&
			strings.Contains(prompt, "At sea level, water boils")
	})).Return(`{"verdict":"supports","confidence":0.95,"rationale":"States the boiling point directly."}`, nil).Once()

	v := New(oracle, Options{})
	verdict := v.Verify(context.Background(), "water boils at 100 degrees Celsius", "At sea level, water boils at exactly 100 degrees Celsius.")

	assert.Equal(t, model.VerifierOK, verdict.Status)
	assert.Equal(t, model.StanceSupports, verdict.Stance)
	assert.Equal(t, 0.95, verdict.Confidence)
	assert.Equal(t, "States the boiling point directly.", verdict.Rationale)
	oracle.AssertExpectations(t)
}

func TestVerify_NilOracleIsUnavailable(t *testing.T) {
	v := New(nil, Options{})
	verdict := v.Verify(context.Background(), "claim", "body")

	assert.Equal(t, model.VerifierUnavailable, verdict.Status)
	assert.Equal(t, model.StanceInconclusive, verdict.Stance)
	assert.Equal(t, "no oracle configured", verdict.Rationale)
}

func TestVerify_TransientFailureIsOracleError(t *testing.T) {
	oracle := &mockOracle{}
	oracle.On("Complete", mock.Anything, mock.Anything).
		Return("", resilience.NewTransientError(eris.New("status 529"), 529)).Once()

	v := New(oracle, Options{})
	verdict := v.Verify(context.Background(), "claim", "body")

	assert.Equal(t, model.VerifierOracleError, verdict.Status)
	assert.Equal(t, model.StanceInconclusive, verdict.Stance)
	assert.Zero(t, verdict.Confidence)
}

func TestVerify_AuthFailureIsUnavailable(t *testing.T) {
	oracle := &mockOracle{}
	oracle.On("Complete", mock.Anything, mock.Anything).
		Return("", eris.New("invalid api key")).Once()

	v := New(oracle, Options{})
	verdict := v.Verify(context.Background(), "claim", "body")

	assert.Equal(t, model.VerifierUnavailable, verdict.Status)
	assert.Equal(t, "invalid api key", verdict.Rationale)
}

func TestVerify_TimeoutIsOracleError(t *testing.T) {
	oracle := &funcOracle{fn: func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}

	v := New(oracle, Options{Timeout: 30 * time.Millisecond})
	verdict := v.Verify(context.Background(), "claim", "body")

	assert.Equal(t, model.VerifierOracleError, verdict.Status)
	assert.Equal(t, "timeout", verdict.Rationale)
}

func TestVerify_CanceledIsOracleError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	oracle := &funcOracle{fn: func(ctx context.Context, _ string) (string, error) {
		return "", ctx.Err()
	}}

	v := New(oracle, Options{})
	verdict := v.Verify(ctx, "claim", "body")

	assert.Equal(t, model.VerifierOracleError, verdict.Status)
	assert.Equal(t, "canceled", verdict.Rationale)
}

func TestVerify_OpenCircuitSkipsOracle(t *testing.T) {
	oracle := &mockOracle{}
	oracle.On("Complete", mock.Anything, mock.Anything).
		Return("", eris.New("boom")).Once()

	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Hour,
	})
	v := New(oracle, Options{Breaker: breaker})

	first := v.Verify(context.Background(), "claim", "body")
	assert.Equal(t, model.VerifierUnavailable, first.Status)

	second := v.Verify(context.Background(), "claim", "body")
	assert.Equal(t, model.VerifierUnavailable, second.Status)
	assert.Equal(t, "oracle circuit open", second.Rationale)

	oracle.AssertNumberOfCalls(t, "Complete", 1)
}

func TestVerify_UnmappableReplyIsOKInconclusive(t *testing.T) {
	oracle := &mockOracle{}
	oracle.On("Complete", mock.Anything, mock.Anything).
		Return("I am unable to help with this request.", nil).Once()

	v := New(oracle, Options{})
	verdict := v.Verify(context.Background(), "claim", "body")

	assert.Equal(t, model.VerifierOK, verdict.Status)
	assert.Equal(t, model.StanceInconclusive, verdict.Stance)
	assert.Zero(t, verdict.Confidence)
}

func TestVerify_LongArticleIsExcerpted(t *testing.T) {
	var captured string
	oracle := &funcOracle{fn: func(_ context.Context, prompt string) (string, error) {
		captured = prompt
		return `{"verdict":"unrelated","confidence":0.5}`, nil
	}}

	filler := strings.Repeat("Unrelated filler sentence about other things. ", 10)
	relevant := "The budget deficit widened to a record level this budget year."
	article := strings.Join([]string{filler, relevant, filler, filler, filler}, "\n\n")

	v := New(oracle, Options{MaxExcerptChars: 300})
	verdict := v.Verify(context.Background(), "the budget deficit widened", article)

	require.Equal(t, model.VerifierOK, verdict.Status)
	assert.Contains(t, captured, relevant)
	assert.NotContains(t, captured, "filler sentence")
	assert.Less(t, len(captured), 300+200, "prompt should carry only the excerpt plus template")
}
