package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/crc-cores/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Collections are
// tables of (id, doc TEXT) holding JSON documents.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   DATETIME NOT NULL,
	completed_at DATETIME,
	result       TEXT,
	error        TEXT
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started_at ON pipeline_runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// quote quotes a table name for SQLite.
func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// InsertDocs appends documents to a source collection, creating its table
// if needed.
func (s *SQLiteStore) InsertDocs(ctx context.Context, name string, docs []model.Doc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (id INTEGER PRIMARY KEY AUTOINCREMENT, doc TEXT NOT NULL)`, quote(name),
	)); err != nil {
		return eris.Wrapf(err, "sqlite: create %s", name)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (doc) VALUES (?)`, quote(name)))
	if err != nil {
		return eris.Wrapf(err, "sqlite: prepare insert %s", name)
	}
	defer stmt.Close()

	for i, d := range docs {
		b, err := json.Marshal(d)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal %s doc %d", name, i)
		}
		if _, err := stmt.ExecContext(ctx, string(b)); err != nil {
			return eris.Wrapf(err, "sqlite: insert %s doc %d", name, i)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func (s *SQLiteStore) LoadCollection(ctx context.Context, name string) ([]model.Doc, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT doc FROM %s ORDER BY id`, quote(name)))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load %s", name)
	}
	defer rows.Close()

	var docs []model.Doc
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s", name)
		}
		d, err := model.DecodeJSONDoc([]byte(raw))
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode %s row %d", name, len(docs))
		}
		docs = append(docs, d)
	}
	return docs, eris.Wrapf(rows.Err(), "sqlite: iterate %s", name)
}

// ReplaceOutput stages records into <name>_staging and swaps it into place
// in one transaction. SQLite DDL is transactional, so a failure leaves the
// previous table intact.
func (s *SQLiteStore) ReplaceOutput(ctx context.Context, name string, records []model.OutputRecord) (int64, error) {
	staging := name + "_staging"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, q := range []string{
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, quote(staging)),
		fmt.Sprintf(`CREATE TABLE %s (id INTEGER PRIMARY KEY, lib_num TEXT, doc TEXT NOT NULL)`, quote(staging)),
	} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return 0, eris.Wrapf(err, "sqlite: prepare staging for %s", name)
		}
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (id, lib_num, doc) VALUES (?, ?, ?)`, quote(staging)))
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: prepare insert %s", staging)
	}
	defer stmt.Close()

	var n int64
	for i := range records {
		libNum, doc, err := encodeRecord(&records[i])
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: encode %s record %d", name, i)
		}
		if _, err := stmt.ExecContext(ctx, i, libNum, string(doc)); err != nil {
			return 0, eris.Wrapf(err, "sqlite: stage %s record %d", name, i)
		}
		n++
	}

	for _, q := range []string{
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, quote(name)),
		fmt.Sprintf(`ALTER TABLE %s RENAME TO %s`, quote(staging), quote(name)),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(lib_num)`, quote("idx_"+name+"_lib_num"), quote(name)),
	} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return 0, eris.Wrapf(err, "sqlite: swap %s", name)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit")
	}
	return n, nil
}

func (s *SQLiteStore) GetOutput(ctx context.Context, name string, libNum string) (*model.OutputRecord, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT doc FROM %s WHERE lib_num = ? ORDER BY id LIMIT 1`, quote(name)),
		libNum,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isNoSuchTable(err) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: get %s %s", name, libNum)
	}

	var r model.OutputRecord
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal %s %s", name, libNum)
	}
	return &r, nil
}

func (s *SQLiteStore) ListOutput(ctx context.Context, name string, limit, offset int) ([]model.OutputRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT doc FROM %s ORDER BY id LIMIT ? OFFSET ?`, quote(name)),
		defaultLimit(limit), max(offset, 0),
	)
	if err != nil {
		if isNoSuchTable(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: list %s", name)
	}
	defer rows.Close()

	var out []model.OutputRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s", name)
		}
		var r model.OutputRecord
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal %s", name)
		}
		out = append(out, r)
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: iterate %s", name)
}

func (s *SQLiteStore) StartRun(ctx context.Context) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, status, started_at) VALUES (?, ?, ?)`,
		run.ID, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: start run")
	}
	return run, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult, errMsg string) error {
	var resultJSON *string
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal run result")
		}
		js := string(b)
		resultJSON = &js
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, completed_at = ?, result = ?, error = ? WHERE id = ?`,
		string(status), time.Now().UTC(), resultJSON, nullString(errMsg), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanSQLiteRun(s.db.QueryRowContext(ctx, selectRun+` WHERE id = ?`, runID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := selectRun + ` WHERE 1=1`
	args := []any{}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC LIMIT ? OFFSET ?`
	args = append(args, defaultLimit(filter.Limit), max(filter.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func scanSQLiteRun(row scannable) (*model.Run, error) {
	var r model.Run
	var status string
	var completedAt sql.NullTime
	var resultJSON, errMsg sql.NullString
	if err := row.Scan(&r.ID, &status, &r.StartedAt, &completedAt, &resultJSON, &errMsg); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	r.Error = errMsg.String
	if resultJSON.Valid && resultJSON.String != "" {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), r.Result); err != nil {
			return nil, eris.Wrap(err, "unmarshal run result")
		}
	}
	return &r, nil
}

func checkRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func isNoSuchTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}
