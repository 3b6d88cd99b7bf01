package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/claimsift/claimsift/internal/db"
	"github.com/claimsift/claimsift/internal/model"
)

// Pool tuning applied to every Postgres store.
const (
	defaultMaxConns = 10
	defaultMinConns = 2
	connMaxLifetime = 30 * time.Minute
	connMaxIdleTime = 5 * time.Minute
)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool    db.Pool
	cleanup func()
}

// PoolConfig tunes pool sizing. Zero fields fall back to package defaults.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

func (c *PoolConfig) apply(cfg *pgxpool.Config) {
	cfg.MaxConns = defaultMaxConns
	cfg.MinConns = defaultMinConns
	if c != nil && c.MaxConns > 0 {
		cfg.MaxConns = c.MaxConns
	}
	if c != nil && c.MinConns > 0 {
		cfg.MinConns = c.MinConns
	}
	cfg.MaxConnLifetime = connMaxLifetime
	cfg.MaxConnIdleTime = connMaxIdleTime
}

// Statements on the run and article hot paths. Each pooled connection
// prepares them up front so steady-state checks skip the describe round
// trip on every query.
const (
	insertRunSQL       = `INSERT INTO runs (id, request, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`
	updateRunStatusSQL = `UPDATE runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`
	updateRunReportSQL = `UPDATE runs SET report = $1, status = $2, updated_at = $3 WHERE id = $4`
	selectRunSQL       = `SELECT id, request, status, report, error, created_at, updated_at FROM runs`
	articleLookupSQL   = `SELECT article FROM article_cache WHERE url = $1 AND expires_at > now()`
	articleUpsertSQL   = `INSERT INTO article_cache (id, url, article, fetched_at, expires_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (url) DO UPDATE SET article = $3, fetched_at = $4, expires_at = $5`
	syncETagSQL        = `SELECT etag FROM sync_state WHERE source = $1`
)

func prepareHotPaths(ctx context.Context, conn *pgx.Conn) error {
	stmts := []struct {
		name, sql string
	}{
		{"insert_run", insertRunSQL},
		{"update_run_status", updateRunStatusSQL},
		{"update_run_report", updateRunReportSQL},
		{"get_run", selectRunSQL + ` WHERE id = $1`},
		{"article_lookup", articleLookupSQL},
		{"article_upsert", articleUpsertSQL},
		{"sync_etag", syncETagSQL},
	}
	for _, st := range stmts {
		if _, err := conn.Prepare(ctx, st.name, st.sql); err != nil {
			return eris.Wrapf(err, "postgres: prepare %s", st.name)
		}
	}
	return nil
}

// NewPostgres opens a pooled Postgres store and verifies the connection
// before returning it.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse conn string")
	}
	poolCfg.apply(cfg)
	cfg.AfterConnect = prepareHotPaths

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, cleanup: pool.Close}, nil
}

// postgresSchema is applied statement by statement. Every statement is
// idempotent, so Migrate is safe to run against an existing database.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		request JSONB NOT NULL,
		status TEXT NOT NULL DEFAULT 'queued',
		report JSONB,
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS runs_status_idx ON runs (status)`,
	`CREATE INDEX IF NOT EXISTS runs_created_at_idx ON runs (created_at)`,
	`CREATE TABLE IF NOT EXISTS article_cache (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL UNIQUE,
		article JSONB NOT NULL,
		fetched_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		expires_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS article_cache_expires_idx ON article_cache (expires_at)`,
	`CREATE TABLE IF NOT EXISTS blocked_domains (
		domain TEXT PRIMARY KEY,
		reason TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		added_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS sync_state (
		source TEXT PRIMARY KEY,
		etag TEXT NOT NULL DEFAULT '',
		synced_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS dead_letter_queue (
		id TEXT PRIMARY KEY,
		request JSONB NOT NULL,
		error TEXT NOT NULL,
		stage TEXT NOT NULL DEFAULT '',
		retry_count INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 3,
		next_retry_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_failed_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS dlq_next_retry_idx ON dead_letter_queue (next_retry_at)`,
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	for i, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return eris.Wrapf(err, "postgres: migrate statement %d", i+1)
		}
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.cleanup != nil {
		s.cleanup()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, req model.CheckRequest) (*model.Run, error) {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: encode request")
	}

	created := time.Now().UTC()
	run := &model.Run{
		ID:        uuid.New().String(),
		Request:   req,
		Status:    model.RunStatusQueued,
		CreatedAt: created,
		UpdatedAt: created,
	}
	if _, err := s.pool.Exec(ctx, insertRunSQL, run.ID, reqJSON, string(run.Status), created, created); err != nil {
		return nil, eris.Wrap(err, "postgres: create run")
	}
	return run, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus, errMsg string) error {
	tag, err := s.pool.Exec(ctx, updateRunStatusSQL, string(status), errMsg, time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: update status for run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrRunNotFound, "postgres: run %s", runID)
	}
	return nil
}

func (s *PostgresStore) UpdateRunResult(ctx context.Context, runID string, report *model.CheckReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "postgres: encode report")
	}

	tag, err := s.pool.Exec(ctx, updateRunReportSQL, reportJSON, string(model.RunStatusComplete), time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: store report for run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrRunNotFound, "postgres: run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	run, err := decodeRun(s.pool.QueryRow(ctx, selectRunSQL+` WHERE id = $1`, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Status != "" {
		conds = append(conds, "status = "+arg(string(filter.Status)))
	}
	if filter.Claim != "" {
		conds = append(conds, "request->>'claim' ILIKE "+arg("%"+filter.Claim+"%"))
	}
	if !filter.CreatedAfter.IsZero() {
		conds = append(conds, "created_at >= "+arg(filter.CreatedAfter.UTC()))
	}

	query := selectRunSQL
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"

	query += " LIMIT " + arg(orDefaultLimit(filter.Limit))
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := decodeRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: read run row")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

// decodeRun scans a runs row and decodes its JSONB payloads. Scan errors
// come back unwrapped so callers can translate pgx.ErrNoRows.
func decodeRun(row scannable) (*model.Run, error) {
	var (
		r         model.Run
		rawReq    []byte
		rawReport *[]byte
	)
	if err := row.Scan(&r.ID, &rawReq, &r.Status, &rawReport, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(rawReq, &r.Request); err != nil {
		return nil, eris.Wrap(err, "postgres: decode request")
	}
	if rawReport != nil {
		r.Report = &model.CheckReport{}
		if err := json.Unmarshal(*rawReport, r.Report); err != nil {
			return nil, eris.Wrap(err, "postgres: decode report")
		}
	}
	return &r, nil
}

func (s *PostgresStore) GetCachedArticle(ctx context.Context, rawURL string) (*model.Article, error) {
	var rawArticle []byte
	err := s.pool.QueryRow(ctx, articleLookupSQL, rawURL).Scan(&rawArticle)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get cached article")
	}

	var art model.Article
	if err := json.Unmarshal(rawArticle, &art); err != nil {
		return nil, eris.Wrap(err, "postgres: decode cached article")
	}
	return &art, nil
}

func (s *PostgresStore) SetCachedArticle(ctx context.Context, article model.Article, ttl time.Duration) error {
	articleJSON, err := json.Marshal(article)
	if err != nil {
		return eris.Wrap(err, "postgres: encode article")
	}

	fetched := time.Now().UTC()
	_, err = s.pool.Exec(ctx, articleUpsertSQL,
		uuid.New().String(), article.URL, articleJSON, fetched, fetched.Add(ttl))
	return eris.Wrap(err, "postgres: set cached article")
}

func (s *PostgresStore) DeleteExpiredArticles(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM article_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired articles")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) UpsertBlockedDomains(ctx context.Context, domains []model.BlockedDomain) (int, error) {
	if len(domains) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(domains))
	for _, d := range domains {
		addedAt := d.AddedAt
		if addedAt.IsZero() {
			addedAt = now
		}
		rows = append(rows, []any{d.Domain, d.Reason, d.Source, addedAt})
	}

	upsert := db.Upsert{
		Table:   "blocked_domains",
		Columns: []string{"domain", "reason", "source", "added_at"},
		Keys:    []string{"domain"},
		Update:  []string{"reason", "source"},
	}
	n, err := upsert.Run(ctx, s.pool, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert blocked domains")
	}
	return int(n), nil
}

func (s *PostgresStore) ListBlockedDomains(ctx context.Context) ([]model.BlockedDomain, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT domain, reason, source, added_at FROM blocked_domains ORDER BY domain`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list blocked domains")
	}
	defer rows.Close()

	var domains []model.BlockedDomain
	for rows.Next() {
		var d model.BlockedDomain
		if err := rows.Scan(&d.Domain, &d.Reason, &d.Source, &d.AddedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: read blocked domain")
		}
		domains = append(domains, d)
	}
	return domains, eris.Wrap(rows.Err(), "postgres: iterate blocked domains")
}

func (s *PostgresStore) CountBlockedDomains(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM blocked_domains`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count blocked domains")
	}
	return n, nil
}

func (s *PostgresStore) GetSyncETag(ctx context.Context, source string) (string, error) {
	var etag string
	err := s.pool.QueryRow(ctx, syncETagSQL, source).Scan(&etag)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrap(err, "postgres: get sync etag")
	}
	return etag, nil
}

func (s *PostgresStore) SetSyncETag(ctx context.Context, source, etag string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sync_state (source, etag, synced_at) VALUES ($1, $2, $3)
		 ON CONFLICT (source) DO UPDATE SET etag = $2, synced_at = $3`,
		source, etag, time.Now().UTC())
	return eris.Wrap(err, "postgres: set sync etag")
}

const selectDLQSQL = `SELECT id, request, error, stage, retry_count, max_retries, next_retry_at, created_at, last_failed_at FROM dead_letter_queue`

func (s *PostgresStore) EnqueueDLQ(ctx context.Context, entry model.DLQEntry) (*model.DLQEntry, error) {
	fillDLQDefaults(&entry)

	reqJSON, err := json.Marshal(entry.Request)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: encode dlq request")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO dead_letter_queue
		   (id, request, error, stage, retry_count, max_retries, next_retry_at, created_at, last_failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE
		   SET error = $3, stage = $4, retry_count = $5, next_retry_at = $7, last_failed_at = $9`,
		entry.ID, reqJSON, entry.Error, entry.Stage, entry.RetryCount,
		entry.MaxRetries, entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: enqueue dlq")
	}
	return &entry, nil
}

func (s *PostgresStore) ListDLQ(ctx context.Context, limit int) ([]model.DLQEntry, error) {
	rows, err := s.pool.Query(ctx, selectDLQSQL+` ORDER BY next_retry_at ASC LIMIT $1`, orDefaultLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list dlq")
	}
	defer rows.Close()

	var entries []model.DLQEntry
	for rows.Next() {
		e, err := decodeDLQEntry(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: read dlq entry")
		}
		entries = append(entries, *e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: iterate dlq")
}

func decodeDLQEntry(row scannable) (*model.DLQEntry, error) {
	var (
		e      model.DLQEntry
		rawReq []byte
	)
	err := row.Scan(&e.ID, &rawReq, &e.Error, &e.Stage, &e.RetryCount,
		&e.MaxRetries, &e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(rawReq, &e.Request); err != nil {
		return nil, eris.Wrap(err, "postgres: decode dlq request")
	}
	return &e, nil
}

func (s *PostgresStore) CountDLQ(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dead_letter_queue`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count dlq")
	}
	return n, nil
}

func (s *PostgresStore) DeleteDLQ(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM dead_letter_queue WHERE id = $1`, id); err != nil {
		return eris.Wrap(err, "postgres: delete dlq")
	}
	return nil
}

func (s *PostgresStore) BumpDLQRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE dead_letter_queue
		 SET retry_count = retry_count + 1, next_retry_at = $1, error = $2, last_failed_at = now()
		 WHERE id = $3`,
		nextRetryAt, lastErr, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: bump retry for dlq entry %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("dlq entry not found: %s", id)
	}
	return nil
}
