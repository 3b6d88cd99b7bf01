package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Upsert describes a bulk insert-or-update against one table. Keys are the
// columns of the unique constraint that decides conflicts; Update lists the
// columns rewritten when a row already exists, defaulting to every non-key
// column.
type Upsert struct {
	Table   string // optionally schema-qualified
	Columns []string
	Keys    []string
	Update  []string
}

// Run stages rows in a session temp table via COPY, then folds them into the
// target with a single INSERT ... ON CONFLICT. Everything happens in one
// transaction and the staging table drops on commit. Returns the number of
// rows the merge touched.
func (u Upsert) Run(ctx context.Context, pool Pool, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := u.validate(); err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	staging := "staging_" + strings.ReplaceAll(u.Table, ".", "_")

	create := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{staging}.Sanitize(), tableIdent(u.Table),
	)
	if _, err := tx.Exec(ctx, create); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: create staging table for %s", u.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{staging}, u.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: copy into staging table for %s", u.Table)
	}

	tag, err := tx.Exec(ctx, u.mergeSQL(staging))
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: merge into %s", u.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}
	return tag.RowsAffected(), nil
}

func (u Upsert) validate() error {
	if u.Table == "" {
		return eris.New("db: upsert: no table specified")
	}
	if len(u.Columns) == 0 {
		return eris.New("db: upsert: no columns specified")
	}
	if len(u.Keys) == 0 {
		return eris.New("db: upsert: no conflict keys specified")
	}
	return nil
}

// mergeSQL builds the INSERT ... ON CONFLICT statement that moves staged
// rows into the target. When every column is part of the key there is
// nothing to update, so conflicts are dropped instead.
func (u Upsert) mergeSQL(staging string) string {
	update := u.Update
	if update == nil {
		keys := make(map[string]bool, len(u.Keys))
		for _, k := range u.Keys {
			keys[k] = true
		}
		for _, c := range u.Columns {
			if !keys[c] {
				update = append(update, c)
			}
		}
	}

	assignments := make([]string, len(update))
	for i, col := range update {
		q := pgx.Identifier{col}.Sanitize()
		assignments[i] = q + " = EXCLUDED." + q
	}
	action := "DO NOTHING"
	if len(assignments) > 0 {
		action = "DO UPDATE SET " + strings.Join(assignments, ", ")
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		tableIdent(u.Table),
		idents(u.Columns),
		idents(u.Columns),
		pgx.Identifier{staging}.Sanitize(),
		idents(u.Keys),
		action,
	)
}

// tableIdent quotes a table name, splitting a schema qualifier if present.
func tableIdent(name string) string {
	if schema, table, ok := strings.Cut(name, "."); ok {
		return pgx.Identifier{schema, table}.Sanitize()
	}
	return pgx.Identifier{name}.Sanitize()
}

func idents(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
