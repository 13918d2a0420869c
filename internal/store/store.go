package store

import (
	"context"
	"errors"

	"github.com/sells-group/crc-cores/internal/model"
)

// ErrNotFound is returned when a requested record or run does not exist.
var ErrNotFound = errors.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store is the persistence interface for the enrichment job. Runs only read
// source collections (InsertDocs serves the import command); the output
// collection is only ever replaced wholesale.
type Store interface {
	// Sources
	LoadCollection(ctx context.Context, name string) ([]model.Doc, error)
	InsertDocs(ctx context.Context, name string, docs []model.Doc) error

	// Output
	ReplaceOutput(ctx context.Context, name string, records []model.OutputRecord) (int64, error)
	GetOutput(ctx context.Context, name string, libNum string) (*model.OutputRecord, error)
	ListOutput(ctx context.Context, name string, limit, offset int) ([]model.OutputRecord, error)

	// Run log
	StartRun(ctx context.Context) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult, errMsg string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const runsTable = "pipeline_runs"

func defaultLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}
