package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crc-cores/internal/db"
	"github.com/sells-group/crc-cores/internal/model"
)

// PostgresStore implements Store on Postgres. Each collection is a table of
// (id, doc JSONB); the output table also carries lib_num for lookups.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	outputSchema = "id BIGINT PRIMARY KEY, lib_num TEXT, doc JSONB NOT NULL"
	sourceSchema = "id BIGSERIAL PRIMARY KEY, doc JSONB NOT NULL"
)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. The caller owns its lifecycle.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ,
	result       JSONB,
	error        TEXT
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started_at ON pipeline_runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_status ON pipeline_runs(status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) LoadCollection(ctx context.Context, name string) ([]model.Doc, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT doc FROM %s ORDER BY id`, db.Ident(name)))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load %s", name)
	}
	defer rows.Close()

	var docs []model.Doc
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s", name)
		}
		d, err := model.DecodeJSONDoc(raw)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: decode %s row %d", name, len(docs))
		}
		docs = append(docs, d)
	}
	return docs, eris.Wrapf(rows.Err(), "postgres: iterate %s", name)
}

// InsertDocs appends documents to a source table, creating it if needed.
func (s *PostgresStore) InsertDocs(ctx context.Context, name string, docs []model.Doc) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (%s)`, db.Ident(name), sourceSchema,
	)); err != nil {
		return eris.Wrapf(err, "postgres: create %s", name)
	}

	rows := make([][]any, 0, len(docs))
	for i, d := range docs {
		b, err := json.Marshal(d)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal %s doc %d", name, i)
		}
		rows = append(rows, []any{b})
	}
	if _, err := db.CopyFrom(ctx, s.pool, name, []string{"doc"}, rows); err != nil {
		return eris.Wrapf(err, "postgres: insert %s", name)
	}
	return nil
}

func (s *PostgresStore) ReplaceOutput(ctx context.Context, name string, records []model.OutputRecord) (int64, error) {
	rows := make([][]any, 0, len(records))
	for i := range records {
		libNum, doc, err := encodeRecord(&records[i])
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: encode %s record %d", name, i)
		}
		rows = append(rows, []any{int64(i), libNum, doc})
	}

	n, err := db.SwapTable(ctx, s.pool, db.SwapConfig{
		Table:   name,
		Columns: []string{"id", "lib_num", "doc"},
		Schema:  outputSchema,
		Indexes: []string{"lib_num"},
	}, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: replace %s", name)
	}
	return n, nil
}

func (s *PostgresStore) GetOutput(ctx context.Context, name string, libNum string) (*model.OutputRecord, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT doc FROM %s WHERE lib_num = $1 ORDER BY id LIMIT 1`, db.Ident(name)),
		libNum,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUndefinedTable(err) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get %s %s", name, libNum)
	}

	var r model.OutputRecord
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal %s %s", name, libNum)
	}
	return &r, nil
}

func (s *PostgresStore) ListOutput(ctx context.Context, name string, limit, offset int) ([]model.OutputRecord, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT doc FROM %s ORDER BY id LIMIT $1 OFFSET $2`, db.Ident(name)),
		defaultLimit(limit), max(offset, 0),
	)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: list %s", name)
	}
	defer rows.Close()

	var out []model.OutputRecord
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s", name)
		}
		var r model.OutputRecord
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal %s", name)
		}
		out = append(out, r)
	}
	return out, eris.Wrapf(rows.Err(), "postgres: iterate %s", name)
}

func (s *PostgresStore) StartRun(ctx context.Context) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (id, status, started_at) VALUES ($1, $2, $3)`,
		run.ID, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: start run")
	}
	return run, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult, errMsg string) error {
	var resultJSON []byte
	if result != nil {
		var err error
		if resultJSON, err = json.Marshal(result); err != nil {
			return eris.Wrap(err, "postgres: marshal run result")
		}
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET status = $1, completed_at = $2, result = $3, error = $4 WHERE id = $5`,
		string(status), time.Now().UTC(), resultJSON, nullString(errMsg), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: finish run %s", runID)
	}
	return nil
}

const selectRun = `SELECT id, status, started_at, completed_at, result, error FROM pipeline_runs`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	r, err := scanRun(s.pool.QueryRow(ctx, selectRun+` WHERE id = $1`, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := selectRun + ` WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d`, argIdx)
	args = append(args, defaultLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var status string
	var completedAt *time.Time
	var resultJSON []byte
	var errMsg *string
	if err := row.Scan(&r.ID, &status, &r.StartedAt, &completedAt, &resultJSON, &errMsg); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	r.CompletedAt = completedAt
	if errMsg != nil {
		r.Error = *errMsg
	}
	if len(resultJSON) > 0 {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal(resultJSON, r.Result); err != nil {
			return nil, eris.Wrap(err, "unmarshal run result")
		}
	}
	return &r, nil
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// encodeRecord renders a record as its JSON document plus the string form of
// its library number.
func encodeRecord(r *model.OutputRecord) (string, []byte, error) {
	doc, err := json.Marshal(r)
	if err != nil {
		return "", nil, err
	}
	libNum, _ := model.Stringify(r.LibNum)
	return libNum, doc, nil
}
