package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// SwapConfig defines a full table replacement.
type SwapConfig struct {
	Table   string   // destination table
	Columns []string // columns written by COPY
	Schema  string   // column definitions, e.g. "id BIGINT PRIMARY KEY, doc JSONB NOT NULL"
	Indexes []string // columns to index on the new table
}

// SwapTable replaces the contents of cfg.Table in one transaction:
//  1. creates <table>_staging with cfg.Schema
//  2. COPY rows into the staging table
//  3. renames the live table to <table>_old and staging into its place
//  4. drops the old table
//
// Readers see either the old or the new table, never a partial one. On any
// error the transaction rolls back and the live table is untouched.
func SwapTable(ctx context.Context, pool Pool, cfg SwapConfig, rows [][]any) (int64, error) {
	if cfg.Table == "" {
		return 0, eris.New("db: swap: no table specified")
	}
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: swap: no columns specified")
	}
	if cfg.Schema == "" {
		return 0, eris.New("db: swap: no schema specified")
	}

	staging := cfg.Table + "_staging"
	old := cfg.Table + "_old"

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: swap: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	stmts := []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s", ident(staging)),
		fmt.Sprintf("CREATE TABLE %s (%s)", ident(staging), cfg.Schema),
	}
	for _, s := range stmts {
		if _, err := tx.Exec(ctx, s); err != nil {
			return 0, eris.Wrapf(err, "db: swap: prepare staging for %s", cfg.Table)
		}
	}

	n, err := CopyFrom(ctx, tx, staging, cfg.Columns, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "db: swap: stage %s", cfg.Table)
	}

	stmts = []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s", ident(old)),
		fmt.Sprintf("ALTER TABLE IF EXISTS %s RENAME TO %s", ident(cfg.Table), ident(bareName(old))),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", ident(staging), ident(bareName(cfg.Table))),
		fmt.Sprintf("DROP TABLE IF EXISTS %s", ident(old)),
	}
	for _, col := range cfg.Indexes {
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX ON %s (%s)", ident(cfg.Table), ident(col)))
	}
	for _, s := range stmts {
		if _, err := tx.Exec(ctx, s); err != nil {
			return 0, eris.Wrapf(err, "db: swap: %s", firstWords(s, 3))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: swap: commit tx")
	}

	return n, nil
}

// identifier splits a possibly schema-qualified table name like "crc.cores".
func identifier(table string) pgx.Identifier {
	return pgx.Identifier(strings.SplitN(table, ".", 2))
}

func ident(table string) string {
	return identifier(table).Sanitize()
}

// bareName strips the schema; RENAME TO takes an unqualified name.
func bareName(table string) string {
	if i := strings.LastIndex(table, "."); i >= 0 {
		return table[i+1:]
	}
	return table
}

// Ident is the exported form of ident for callers building their own SQL.
func Ident(table string) string {
	return ident(table)
}

func firstWords(s string, n int) string {
	f := strings.Fields(s)
	if len(f) > n {
		f = f[:n]
	}
	return strings.ToLower(strings.Join(f, " "))
}
