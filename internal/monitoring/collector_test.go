package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claimsift/claimsift/internal/model"
	"github.com/claimsift/claimsift/internal/store"
)

// fakeStore implements store.Store for testing.
type fakeStore struct {
	runs         []model.Run
	dlqCount     int
	blockedCount int
	listErr      error
	dlqErr       error
}

func (f *fakeStore) ListRuns(_ context.Context, filter store.RunFilter) ([]model.Run, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var filtered []model.Run
	for _, r := range f.runs {
		if !filter.CreatedAfter.IsZero() && r.CreatedAt.Before(filter.CreatedAfter) {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered, nil
}

func (f *fakeStore) CountDLQ(_ context.Context) (int, error) {
	return f.dlqCount, f.dlqErr
}

func (f *fakeStore) CountBlockedDomains(_ context.Context) (int, error) {
	return f.blockedCount, nil
}

// Unused store methods, present to satisfy the interface.
func (f *fakeStore) CreateRun(context.Context, model.CheckRequest) (*model.Run, error) {
	return nil, nil
}
func (f *fakeStore) UpdateRunStatus(context.Context, string, model.RunStatus, string) error {
	return nil
}
func (f *fakeStore) UpdateRunResult(context.Context, string, *model.CheckReport) error { return nil }
func (f *fakeStore) GetRun(context.Context, string) (*model.Run, error)                { return nil, nil }
func (f *fakeStore) GetCachedArticle(context.Context, string) (*model.Article, error) {
	return nil, nil
}
func (f *fakeStore) SetCachedArticle(context.Context, model.Article, time.Duration) error {
	return nil
}
func (f *fakeStore) DeleteExpiredArticles(context.Context) (int, error) { return 0, nil }
func (f *fakeStore) UpsertBlockedDomains(context.Context, []model.BlockedDomain) (int, error) {
	return 0, nil
}
func (f *fakeStore) ListBlockedDomains(context.Context) ([]model.BlockedDomain, error) {
	return nil, nil
}
func (f *fakeStore) GetSyncETag(context.Context, string) (string, error) { return "", nil }
func (f *fakeStore) SetSyncETag(context.Context, string, string) error   { return nil }
func (f *fakeStore) EnqueueDLQ(context.Context, model.DLQEntry) (*model.DLQEntry, error) {
	return nil, nil
}
func (f *fakeStore) ListDLQ(context.Context, int) ([]model.DLQEntry, error) { return nil, nil }
func (f *fakeStore) DeleteDLQ(context.Context, string) error                { return nil }
func (f *fakeStore) BumpDLQRetry(context.Context, string, time.Time, string) error {
	return nil
}
func (f *fakeStore) Migrate(context.Context) error { return nil }
func (f *fakeStore) Close() error                  { return nil }

var _ store.Store = (*fakeStore)(nil)

func reportWith(counts model.ReportCounts, statuses ...model.VerifierStatus) *model.CheckReport {
	results := make([]model.SourceResult, len(statuses))
	for i, s := range statuses {
		results[i] = model.SourceResult{Rank: i, Verdict: model.Verdict{Status: s}}
	}
	return &model.CheckReport{Results: results, Counts: counts}
}

func TestCollector_EmptyStore(t *testing.T) {
	st := &fakeStore{}
	c := NewCollector(st)

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 0, snap.RunsTotal)
	assert.Equal(t, 0, snap.RunsFailed)
	assert.Equal(t, 0.0, snap.RunFailRate)
	assert.Equal(t, 0.0, snap.OracleErrorRate)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_RunMetrics(t *testing.T) {
	now := time.Now().UTC()
	st := &fakeStore{
		runs: []model.Run{
			{
				ID: "1", Status: model.RunStatusComplete, CreatedAt: now.Add(-1 * time.Hour),
				Report: reportWith(
					model.ReportCounts{Fetched: 3, Unreachable: 1, Supports: 2, Refutes: 1},
					model.VerifierOK, model.VerifierOK, model.VerifierOK,
				),
			},
			{
				ID: "2", Status: model.RunStatusComplete, CreatedAt: now.Add(-2 * time.Hour),
				Report: reportWith(
					model.ReportCounts{Fetched: 2, ParseFailed: 1, Inconclusive: 2},
					model.VerifierOK, model.VerifierOracleError,
				),
			},
			{ID: "3", Status: model.RunStatusFailed, CreatedAt: now.Add(-3 * time.Hour)},
			{ID: "4", Status: model.RunStatusQueued, CreatedAt: now.Add(-30 * time.Minute)},
			{ID: "5", Status: model.RunStatusRunning, CreatedAt: now.Add(-10 * time.Minute)},
			// Outside lookback window.
			{ID: "6", Status: model.RunStatusFailed, CreatedAt: now.Add(-48 * time.Hour)},
		},
		dlqCount:     3,
		blockedCount: 12,
	}

	c := NewCollector(st)
	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 5, snap.RunsTotal)
	assert.Equal(t, 2, snap.RunsComplete)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, 1, snap.RunsQueued)
	assert.Equal(t, 1, snap.RunsRunning)
	assert.InDelta(t, 1.0/3.0, snap.RunFailRate, 0.001)

	assert.Equal(t, 5, snap.SourcesFetched)
	assert.Equal(t, 2, snap.SourcesFailed)
	assert.Equal(t, 2, snap.Supports)
	assert.Equal(t, 1, snap.Refutes)
	assert.Equal(t, 2, snap.Inconclusive)

	assert.Equal(t, 5, snap.OracleAttempts)
	assert.Equal(t, 1, snap.OracleErrors)
	assert.InDelta(t, 0.2, snap.OracleErrorRate, 0.001)

	assert.Equal(t, 3, snap.DLQDepth)
	assert.Equal(t, 12, snap.BlockedDomains)
}

func TestCollector_SkippedVerdictsAreNotAttempts(t *testing.T) {
	now := time.Now().UTC()
	st := &fakeStore{
		runs: []model.Run{
			{
				ID: "1", Status: model.RunStatusComplete, CreatedAt: now.Add(-1 * time.Hour),
				Report: reportWith(
					model.ReportCounts{Fetched: 2},
					model.VerifierSkipped, model.VerifierSkipped,
				),
			},
		},
	}

	c := NewCollector(st)
	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 0, snap.OracleAttempts)
	assert.Equal(t, 0.0, snap.OracleErrorRate)
}

func TestCollector_FailureRateZeroFinished(t *testing.T) {
	now := time.Now().UTC()
	st := &fakeStore{
		runs: []model.Run{
			{ID: "1", Status: model.RunStatusQueued, CreatedAt: now.Add(-1 * time.Hour)},
			{ID: "2", Status: model.RunStatusQueued, CreatedAt: now.Add(-2 * time.Hour)},
		},
	}

	c := NewCollector(st)
	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 0.0, snap.RunFailRate)
}

func TestCollector_StoreErrorsPropagate(t *testing.T) {
	c := NewCollector(&fakeStore{listErr: eris.New("db gone")})
	_, err := c.Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list runs")

	c = NewCollector(&fakeStore{dlqErr: eris.New("db gone")})
	_, err = c.Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count dlq")
}
