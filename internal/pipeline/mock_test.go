package pipeline

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/claimsift/claimsift/internal/model"
	"github.com/claimsift/claimsift/internal/store"
)

// --- Discoverer Mock ---

type mockDiscoverer struct {
	mock.Mock
}

var _ Discoverer = (*mockDiscoverer)(nil)

func (m *mockDiscoverer) Discover(ctx context.Context, claim string, count int) ([]model.Candidate, error) {
	args := m.Called(ctx, claim, count)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Candidate), args.Error(1)
}

// --- Fetcher Mock ---

type mockFetcher struct {
	mock.Mock
}

var _ Fetcher = (*mockFetcher)(nil)

func (m *mockFetcher) Fetch(ctx context.Context, rawURL string) model.Article {
	args := m.Called(ctx, rawURL)
	return args.Get(0).(model.Article)
}

// --- Verifier Mock ---

type mockVerifier struct {
	mock.Mock
}

var _ Verifier = (*mockVerifier)(nil)

func (m *mockVerifier) Verify(ctx context.Context, claim, articleText string) model.Verdict {
	args := m.Called(ctx, claim, articleText)
	return args.Get(0).(model.Verdict)
}

// --- Func adapters for timing-sensitive tests ---

type discoverFunc func(ctx context.Context, claim string, count int) ([]model.Candidate, error)

func (f discoverFunc) Discover(ctx context.Context, claim string, count int) ([]model.Candidate, error) {
	return f(ctx, claim, count)
}

type fetchFunc func(ctx context.Context, rawURL string) model.Article

func (f fetchFunc) Fetch(ctx context.Context, rawURL string) model.Article {
	return f(ctx, rawURL)
}

type verifyFunc func(ctx context.Context, claim, articleText string) model.Verdict

func (f verifyFunc) Verify(ctx context.Context, claim, articleText string) model.Verdict {
	return f(ctx, claim, articleText)
}

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

var _ store.Store = (*mockStore)(nil)

func (m *mockStore) CreateRun(ctx context.Context, req model.CheckRequest) (*model.Run, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *mockStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus, errMsg string) error {
	args := m.Called(ctx, runID, status, errMsg)
	return args.Error(0)
}

func (m *mockStore) UpdateRunResult(ctx context.Context, runID string, report *model.CheckReport) error {
	args := m.Called(ctx, runID, report)
	return args.Error(0)
}

func (m *mockStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *mockStore) ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Run), args.Error(1)
}

func (m *mockStore) GetCachedArticle(ctx context.Context, rawURL string) (*model.Article, error) {
	args := m.Called(ctx, rawURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Article), args.Error(1)
}

func (m *mockStore) SetCachedArticle(ctx context.Context, article model.Article, ttl time.Duration) error {
	args := m.Called(ctx, article, ttl)
	return args.Error(0)
}

func (m *mockStore) DeleteExpiredArticles(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) UpsertBlockedDomains(ctx context.Context, domains []model.BlockedDomain) (int, error) {
	args := m.Called(ctx, domains)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) ListBlockedDomains(ctx context.Context) ([]model.BlockedDomain, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.BlockedDomain), args.Error(1)
}

func (m *mockStore) CountBlockedDomains(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) GetSyncETag(ctx context.Context, source string) (string, error) {
	args := m.Called(ctx, source)
	return args.String(0), args.Error(1)
}

func (m *mockStore) SetSyncETag(ctx context.Context, source, etag string) error {
	args := m.Called(ctx, source, etag)
	return args.Error(0)
}

func (m *mockStore) EnqueueDLQ(ctx context.Context, entry model.DLQEntry) (*model.DLQEntry, error) {
	args := m.Called(ctx, entry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DLQEntry), args.Error(1)
}

func (m *mockStore) ListDLQ(ctx context.Context, limit int) ([]model.DLQEntry, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.DLQEntry), args.Error(1)
}

func (m *mockStore) CountDLQ(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) DeleteDLQ(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockStore) BumpDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	args := m.Called(ctx, id, nextRetryAt, lastErr)
	return args.Error(0)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
