package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claimsift/claimsift/internal/model"
)

func TestSQLite_DLQ_EnqueueFillsDefaults(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	entry, err := st.EnqueueDLQ(ctx, model.DLQEntry{
		Request: testRequest(),
		Error:   "discover: provider duckduckgo failed: status 503",
		Stage:   "discover",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, 3, entry.MaxRetries)
	assert.False(t, entry.NextRetryAt.IsZero())
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestSQLite_DLQ_ListOrderedByNextRetry(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := st.EnqueueDLQ(ctx, model.DLQEntry{
		ID: "later", Request: testRequest(), Error: "x", NextRetryAt: now.Add(time.Hour),
	})
	require.NoError(t, err)
	_, err = st.EnqueueDLQ(ctx, model.DLQEntry{
		ID: "sooner", Request: testRequest(), Error: "y", NextRetryAt: now.Add(-time.Minute),
	})
	require.NoError(t, err)

	entries, err := st.ListDLQ(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "sooner", entries[0].ID)
	assert.Equal(t, "later", entries[1].ID)

	// The overdue entry is due, the future one is not.
	assert.True(t, entries[0].Due(now))
	assert.False(t, entries[1].Due(now))
}

func TestSQLite_DLQ_RoundTripsRequest(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.EnqueueDLQ(ctx, model.DLQEntry{
		ID:      "dlq-1",
		Request: model.CheckRequest{Claim: "vaccines cause autism", Count: 8, Verify: true},
		Error:   "discover: provider duckduckgo failed",
		Stage:   "discover",
	})
	require.NoError(t, err)

	entries, err := st.ListDLQ(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "vaccines cause autism", entries[0].Request.Claim)
	assert.Equal(t, 8, entries[0].Request.Count)
	assert.True(t, entries[0].Request.Verify)
	assert.Equal(t, "discover", entries[0].Stage)
}

func TestSQLite_DLQ_BumpRetry(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.EnqueueDLQ(ctx, model.DLQEntry{ID: "dlq-1", Request: testRequest(), Error: "first failure"})
	require.NoError(t, err)

	next := time.Now().UTC().Add(10 * time.Minute)
	require.NoError(t, st.BumpDLQRetry(ctx, "dlq-1", next, "second failure"))

	entries, err := st.ListDLQ(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].RetryCount)
	assert.Equal(t, "second failure", entries[0].Error)
	assert.WithinDuration(t, next, entries[0].NextRetryAt, time.Second)
}

func TestSQLite_DLQ_BumpRetry_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.BumpDLQRetry(context.Background(), "missing", time.Now(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dlq entry not found")
}

func TestSQLite_DLQ_Delete(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.EnqueueDLQ(ctx, model.DLQEntry{ID: "dlq-1", Request: testRequest(), Error: "x"})
	require.NoError(t, err)

	require.NoError(t, st.DeleteDLQ(ctx, "dlq-1"))

	entries, err := st.ListDLQ(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSQLite_DLQ_Count(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	count, err := st.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, err = st.EnqueueDLQ(ctx, model.DLQEntry{ID: "dlq-1", Request: testRequest(), Error: "x"})
	require.NoError(t, err)
	_, err = st.EnqueueDLQ(ctx, model.DLQEntry{ID: "dlq-2", Request: testRequest(), Error: "y"})
	require.NoError(t, err)

	count, err = st.CountDLQ(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSQLite_DLQ_ReEnqueueSameIDUpdates(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.EnqueueDLQ(ctx, model.DLQEntry{ID: "dlq-1", Request: testRequest(), Error: "first"})
	require.NoError(t, err)
	_, err = st.EnqueueDLQ(ctx, model.DLQEntry{ID: "dlq-1", Request: testRequest(), Error: "second"})
	require.NoError(t, err)

	entries, err := st.ListDLQ(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "second", entries[0].Error)
}
