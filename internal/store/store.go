// Package store persists check runs, the article cache, the discovery
// blocklist, and the dead letter queue behind a single interface with
// SQLite and Postgres implementations.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/claimsift/claimsift/internal/model"
)

// ErrRunNotFound is returned by GetRun when no run has the given ID.
// Callers distinguish it from storage failures with eris.Is.
var ErrRunNotFound = eris.New("store: run not found")

// defaultListLimit caps ListRuns and ListDLQ when callers pass no limit.
const defaultListLimit = 100

// orDefaultLimit substitutes the package default for unset or nonsense
// limits.
func orDefaultLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status       model.RunStatus `json:"status,omitempty"`
	Claim        string          `json:"claim,omitempty"` // substring match, case-insensitive
	CreatedAfter time.Time       `json:"created_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the check pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, req model.CheckRequest) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus, errMsg string) error
	UpdateRunResult(ctx context.Context, runID string, report *model.CheckReport) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Article cache
	GetCachedArticle(ctx context.Context, rawURL string) (*model.Article, error)
	SetCachedArticle(ctx context.Context, article model.Article, ttl time.Duration) error
	DeleteExpiredArticles(ctx context.Context) (int, error)

	// Discovery blocklist
	UpsertBlockedDomains(ctx context.Context, domains []model.BlockedDomain) (int, error)
	ListBlockedDomains(ctx context.Context) ([]model.BlockedDomain, error)
	CountBlockedDomains(ctx context.Context) (int, error)

	// Blocklist sync state
	GetSyncETag(ctx context.Context, source string) (string, error)
	SetSyncETag(ctx context.Context, source, etag string) error

	// Dead letter queue
	EnqueueDLQ(ctx context.Context, entry model.DLQEntry) (*model.DLQEntry, error)
	ListDLQ(ctx context.Context, limit int) ([]model.DLQEntry, error)
	CountDLQ(ctx context.Context) (int, error)
	DeleteDLQ(ctx context.Context, id string) error
	BumpDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// scannable is satisfied by single rows and row iterators of both the
// database/sql and pgx backends.
type scannable interface {
	Scan(dest ...any) error
}

// fillDLQDefaults stamps identity and retry bookkeeping on entries that
// arrive with zero values, keeping both backends consistent.
func fillDLQDefaults(entry *model.DLQEntry) {
	now := time.Now().UTC()
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.MaxRetries == 0 {
		entry.MaxRetries = 3
	}
	if entry.NextRetryAt.IsZero() {
		entry.NextRetryAt = now
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.LastFailedAt.IsZero() {
		entry.LastFailedAt = now
	}
}
