package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claimsift/claimsift/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_CreateRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "queued", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateRun(context.Background(), testRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)
	assert.Equal(t, "coffee prevents heart disease", run.Request.Claim)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, request, status, report, error, created_at, updated_at FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRunStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET status = \$1, error = \$2, updated_at = \$3 WHERE id = \$4`).
		WithArgs("failed", "boom", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateRunStatus(context.Background(), "missing", model.RunStatusFailed, "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRunResult(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs SET report = \$1, status = \$2, updated_at = \$3 WHERE id = \$4`).
		WithArgs(pgxmock.AnyArg(), "complete", pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateRunResult(context.Background(), "run-1", testReport())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_FilterQuery(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{"id", "request", "status", "report", "error", "created_at", "updated_at"}).
		AddRow("run-1", []byte(`{"claim":"coffee prevents heart disease"}`), model.RunStatusComplete, (*[]byte)(nil), "", now, now)
	mock.ExpectQuery(`SELECT .+ FROM runs WHERE status = \$1 AND request->>'claim' ILIKE \$2 ORDER BY created_at DESC LIMIT \$3`).
		WithArgs("complete", "%coffee%", 50).
		WillReturnRows(rows)

	runs, err := s.ListRuns(context.Background(), RunFilter{Status: model.RunStatusComplete, Claim: "coffee", Limit: 50})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, "coffee prevents heart disease", runs[0].Request.Claim)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCachedArticle_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT article FROM article_cache`).
		WithArgs("https://unknown.example/").
		WillReturnError(pgx.ErrNoRows)

	art, err := s.GetCachedArticle(context.Background(), "https://unknown.example/")
	require.NoError(t, err)
	assert.Nil(t, art)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCachedArticle_Hit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"article"}).
		AddRow([]byte(`{"url":"https://news.example/story","title":"Story","fetch_status":"ok"}`))
	mock.ExpectQuery(`SELECT article FROM article_cache`).
		WithArgs("https://news.example/story").
		WillReturnRows(rows)

	art, err := s.GetCachedArticle(context.Background(), "https://news.example/story")
	require.NoError(t, err)
	require.NotNil(t, art)
	assert.Equal(t, "Story", art.Title)
	assert.Equal(t, model.FetchOK, art.FetchStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetCachedArticle_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO article_cache .+ ON CONFLICT \(url\) DO UPDATE`).
		WithArgs(pgxmock.AnyArg(), "https://news.example/story", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SetCachedArticle(context.Background(), model.Article{URL: "https://news.example/story", Title: "Story"}, time.Hour)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteExpiredArticles(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM article_cache WHERE expires_at <= now\(\)`).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	n, err := s.DeleteExpiredArticles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertBlockedDomains_BulkPath(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "staging_blocked_domains"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"staging_blocked_domains"}, []string{"domain", "reason", "source", "added_at"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "blocked_domains"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := s.UpsertBlockedDomains(context.Background(), []model.BlockedDomain{
		{Domain: "spam.example", Reason: "seed"},
		{Domain: "junk.example", Reason: "seed"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountBlockedDomains(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM blocked_domains`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(42))

	count, err := s.CountBlockedDomains(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSyncETag_Missing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT etag FROM sync_state`).
		WithArgs("https://lists.example/blocklist.csv").
		WillReturnError(pgx.ErrNoRows)

	etag, err := s.GetSyncETag(context.Background(), "https://lists.example/blocklist.csv")
	require.NoError(t, err)
	assert.Empty(t, etag)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetSyncETag(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO sync_state .+ ON CONFLICT \(source\) DO UPDATE`).
		WithArgs("https://lists.example/blocklist.csv", `"v1"`, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SetSyncETag(context.Background(), "https://lists.example/blocklist.csv", `"v1"`)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnqueueDLQ_FillsDefaults(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO dead_letter_queue`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "discover: provider duckduckgo failed",
			"discover", 0, 3, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	entry, err := s.EnqueueDLQ(context.Background(), model.DLQEntry{
		Request: testRequest(),
		Error:   "discover: provider duckduckgo failed",
		Stage:   "discover",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, 3, entry.MaxRetries)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountDLQ(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM dead_letter_queue`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))

	count, err := s.CountDLQ(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_BumpDLQRetry_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE dead_letter_queue`).
		WithArgs(pgxmock.AnyArg(), "later failure", "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.BumpDLQRetry(context.Background(), "missing", time.Now(), "later failure")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dlq entry not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}
