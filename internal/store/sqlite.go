package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/claimsift/claimsift/internal/model"
)

// SQLiteStore implements Store on a single database/sql handle. It is the
// zero-setup backend: one file on disk, no server.
type SQLiteStore struct {
	db *sql.DB
}

// sqlitePragmas tune the connection at open time. WAL keeps the HTTP API's
// readers from blocking pipeline writes; the busy timeout rides out brief
// writer contention instead of failing outright.
var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
}

// NewSQLite opens (or creates) the database file named by dsn.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range sqlitePragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// sqliteSchema mirrors the Postgres schema with JSON payloads stored as
// TEXT. Statements are idempotent, so Migrate can run on every start.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		request TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'queued',
		report TEXT,
		error TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT (datetime('now')),
		updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`,
	`CREATE INDEX IF NOT EXISTS runs_status_idx ON runs (status)`,
	`CREATE INDEX IF NOT EXISTS runs_created_at_idx ON runs (created_at)`,

	`CREATE TABLE IF NOT EXISTS article_cache (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL UNIQUE,
		article TEXT NOT NULL,
		fetched_at DATETIME NOT NULL DEFAULT (datetime('now')),
		expires_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS article_cache_expires_at_idx ON article_cache (expires_at)`,

	`CREATE TABLE IF NOT EXISTS blocked_domains (
		domain TEXT PRIMARY KEY,
		reason TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		added_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`,

	`CREATE TABLE IF NOT EXISTS sync_state (
		source TEXT PRIMARY KEY,
		etag TEXT NOT NULL DEFAULT '',
		synced_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`,

	`CREATE TABLE IF NOT EXISTS dead_letter_queue (
		id TEXT PRIMARY KEY,
		request TEXT NOT NULL,
		error TEXT NOT NULL,
		stage TEXT NOT NULL DEFAULT '',
		retry_count INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 3,
		next_retry_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL DEFAULT (datetime('now')),
		last_failed_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`,
	`CREATE INDEX IF NOT EXISTS dlq_next_retry_at_idx ON dead_letter_queue (next_retry_at)`,
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return eris.Wrap(err, "sqlite: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Column lists shared by the queries below and the decoders in store.go.
const (
	sqliteRunCols = "id, request, status, report, error, created_at, updated_at"
	sqliteDLQCols = "id, request, error, stage, retry_count, max_retries, next_retry_at, created_at, last_failed_at"
)

func (s *SQLiteStore) CreateRun(ctx context.Context, req model.CheckRequest) (*model.Run, error) {
	now := time.Now().UTC()
	run := &model.Run{
		ID:        uuid.New().String(),
		Request:   req,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	rawReq, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: encode request")
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, request, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, string(rawReq), string(run.Status), run.CreatedAt, run.UpdatedAt,
	); err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update status of run %s", runID)
	}
	return runHit(res, runID)
}

func (s *SQLiteStore) UpdateRunResult(ctx context.Context, runID string, report *model.CheckReport) error {
	rawReport, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "sqlite: encode report")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET report = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(rawReport), string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: store report for run %s", runID)
	}
	return runHit(res, runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunCols+` FROM runs WHERE id = ?`, runID)

	run, err := decodeRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get run")
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Claim != "" {
		where = append(where, "json_extract(request, '$.claim') LIKE ?")
		args = append(args, "%"+filter.Claim+"%")
	}
	if !filter.CreatedAfter.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, filter.CreatedAfter.UTC())
	}

	query := `SELECT ` + sqliteRunCols + ` FROM runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, orDefaultLimit(filter.Limit))
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := decodeRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: read run row")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func (s *SQLiteStore) GetCachedArticle(ctx context.Context, rawURL string) (*model.Article, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT article FROM article_cache WHERE url = ? AND expires_at > ?`,
		rawURL, time.Now().UTC(),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached article")
	}

	var art model.Article
	if err := json.Unmarshal(raw, &art); err != nil {
		return nil, eris.Wrap(err, "sqlite: decode cached article")
	}
	return &art, nil
}

func (s *SQLiteStore) SetCachedArticle(ctx context.Context, article model.Article, ttl time.Duration) error {
	rawArticle, err := json.Marshal(article)
	if err != nil {
		return eris.Wrap(err, "sqlite: encode article")
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO article_cache (id, url, article, fetched_at, expires_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET article = excluded.article,
		   fetched_at = excluded.fetched_at, expires_at = excluded.expires_at`,
		uuid.New().String(), article.URL, string(rawArticle), now, now.Add(ttl),
	)
	return eris.Wrap(err, "sqlite: set cached article")
}

func (s *SQLiteStore) DeleteExpiredArticles(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM article_cache WHERE expires_at <= ?`,
		time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired articles")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) UpsertBlockedDomains(ctx context.Context, domains []model.BlockedDomain) (int, error) {
	if len(domains) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO blocked_domains (domain, reason, source, added_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(domain) DO UPDATE SET reason = excluded.reason, source = excluded.source`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, d := range domains {
		addedAt := d.AddedAt
		if addedAt.IsZero() {
			addedAt = now
		}
		if _, err := stmt.ExecContext(ctx, d.Domain, d.Reason, d.Source, addedAt); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert domain %s", d.Domain)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert")
	}
	return len(domains), nil
}

func (s *SQLiteStore) ListBlockedDomains(ctx context.Context) ([]model.BlockedDomain, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT domain, reason, source, added_at FROM blocked_domains ORDER BY domain`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list blocked domains")
	}
	defer rows.Close()

	var domains []model.BlockedDomain
	for rows.Next() {
		var d model.BlockedDomain
		if err := rows.Scan(&d.Domain, &d.Reason, &d.Source, &d.AddedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: read blocked domain")
		}
		domains = append(domains, d)
	}
	return domains, eris.Wrap(rows.Err(), "sqlite: iterate blocked domains")
}

func (s *SQLiteStore) CountBlockedDomains(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blocked_domains`).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count blocked domains")
}

func (s *SQLiteStore) GetSyncETag(ctx context.Context, source string) (string, error) {
	var etag string
	err := s.db.QueryRowContext(ctx,
		`SELECT etag FROM sync_state WHERE source = ?`, source,
	).Scan(&etag)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrap(err, "sqlite: get sync etag")
	}
	return etag, nil
}

func (s *SQLiteStore) SetSyncETag(ctx context.Context, source, etag string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_state (source, etag, synced_at) VALUES (?, ?, ?)
		 ON CONFLICT(source) DO UPDATE SET etag = excluded.etag, synced_at = excluded.synced_at`,
		source, etag, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: set sync etag")
}

func (s *SQLiteStore) EnqueueDLQ(ctx context.Context, entry model.DLQEntry) (*model.DLQEntry, error) {
	fillDLQDefaults(&entry)

	rawReq, err := json.Marshal(entry.Request)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: encode dlq request")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dead_letter_queue (`+sqliteDLQCols+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   error = excluded.error, stage = excluded.stage, retry_count = excluded.retry_count,
		   next_retry_at = excluded.next_retry_at, last_failed_at = excluded.last_failed_at`,
		entry.ID, string(rawReq), entry.Error, entry.Stage,
		entry.RetryCount, entry.MaxRetries,
		entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: enqueue dlq")
	}
	return &entry, nil
}

func (s *SQLiteStore) ListDLQ(ctx context.Context, limit int) ([]model.DLQEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteDLQCols+` FROM dead_letter_queue ORDER BY next_retry_at ASC LIMIT ?`,
		orDefaultLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list dlq")
	}
	defer rows.Close()

	var entries []model.DLQEntry
	for rows.Next() {
		e, err := decodeDLQEntry(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: read dlq entry")
		}
		entries = append(entries, *e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: iterate dlq")
}

func (s *SQLiteStore) CountDLQ(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count dlq")
}

func (s *SQLiteStore) DeleteDLQ(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM dead_letter_queue WHERE id = ?`, id)
	return eris.Wrap(err, "sqlite: delete dlq")
}

func (s *SQLiteStore) BumpDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE dead_letter_queue
		 SET retry_count = retry_count + 1, next_retry_at = ?, error = ?, last_failed_at = ?
		 WHERE id = ?`,
		nextRetryAt, lastErr, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: bump retry for dlq entry %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("dlq entry not found: %s", id)
	}
	return nil
}

// runHit translates an UPDATE that matched nothing into ErrRunNotFound, so
// both backends miss the same way.
func runHit(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrRunNotFound, "sqlite: run %s", runID)
	}
	return nil
}
