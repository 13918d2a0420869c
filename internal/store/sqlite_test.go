package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crc-cores/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// --- Collections ---

func TestSQLite_InsertAndLoadCollection(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	docs := []model.Doc{
		{"Lib Num": int64(12345), "Min Depth": int64(100), "Formation": "NIOBRARA"},
		{"Lib Num": int64(12345), "Min Depth": 150.5},
		{"Lib Num": "A-1", "Operator": nil},
	}
	require.NoError(t, st.InsertDocs(ctx, "cores_raw", docs))

	got, err := st.LoadCollection(ctx, "cores_raw")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(12345), got[0]["Lib Num"])
	assert.Equal(t, int64(100), got[0]["Min Depth"])
	assert.Equal(t, 150.5, got[1]["Min Depth"])
	assert.Equal(t, "A-1", got[2]["Lib Num"])
	assert.Contains(t, got[2], "Operator")
}

func TestSQLite_LoadCollection_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.LoadCollection(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite: load nope")
}

// --- Output ---

func TestSQLite_ReplaceOutput_ReplacesWholesale(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first := []model.OutputRecord{{LibNum: "1"}, {LibNum: "2"}, {LibNum: "3"}}
	n, err := st.ReplaceOutput(ctx, "cores", first)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	second := []model.OutputRecord{{LibNum: "9", CRCWCURL: "https://my.usgs.gov/crcwc/core/report/9"}}
	n, err = st.ReplaceOutput(ctx, "cores", second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	out, err := st.ListOutput(ctx, "cores", 0, 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "9", out[0].LibNum)

	_, err = st.GetOutput(ctx, "cores", "1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ReplaceOutput_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.ReplaceOutput(ctx, "cores", []model.OutputRecord{{LibNum: "1"}})
	require.NoError(t, err)

	n, err := st.ReplaceOutput(ctx, "cores", nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	out, err := st.ListOutput(ctx, "cores", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSQLite_GetOutput_NumericLibNum(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.ReplaceOutput(ctx, "cores", []model.OutputRecord{{
		LibNum:    int64(12345),
		Operator:  "ACME OIL",
		Intervals: []model.Interval{{Formation: "MANCOS", MinDepth: int64(100), MaxDepth: int64(150)}},
	}})
	require.NoError(t, err)

	r, err := st.GetOutput(ctx, "cores", "12345")
	require.NoError(t, err)
	assert.Equal(t, 12345.0, r.LibNum)
	assert.Equal(t, "ACME OIL", r.Operator)
	require.Len(t, r.Intervals, 1)
	assert.Equal(t, 150.0, r.Intervals[0].MaxDepth)
}

func TestSQLite_OutputMissingTable(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.GetOutput(ctx, "cores", "1")
	assert.ErrorIs(t, err, ErrNotFound)

	out, err := st.ListOutput(ctx, "cores", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSQLite_ListOutput_Paging(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var records []model.OutputRecord
	for _, ln := range []string{"a", "b", "c", "d", "e"} {
		records = append(records, model.OutputRecord{LibNum: ln})
	}
	_, err := st.ReplaceOutput(ctx, "cores", records)
	require.NoError(t, err)

	page, err := st.ListOutput(ctx, "cores", 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0].LibNum)
	assert.Equal(t, "d", page[1].LibNum)
}

// --- Runs ---

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.StartRun(ctx)
	require.NoError(t, err)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, got.Status)
	assert.Nil(t, got.CompletedAt)
	assert.Nil(t, got.Result)

	result := &model.RunResult{Wells: 2, Intervals: 5, Written: 2, Warnings: map[string]int{"missing_mapserver": 1}}
	require.NoError(t, st.FinishRun(ctx, run.ID, model.RunStatusComplete, result, ""))

	got, err = st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	require.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.Result)
	assert.Equal(t, 5, got.Result.Intervals)
	assert.Equal(t, 1, got.Result.Warnings["missing_mapserver"])
}

func TestSQLite_FinishRun_Unknown(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.FinishRun(context.Background(), "missing", model.RunStatusFailed, nil, "boom")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_GetRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListRuns_Filter(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	ok, err := st.StartRun(ctx)
	require.NoError(t, err)
	require.NoError(t, st.FinishRun(ctx, ok.ID, model.RunStatusComplete, &model.RunResult{Wells: 1}, ""))

	bad, err := st.StartRun(ctx)
	require.NoError(t, err)
	require.NoError(t, st.FinishRun(ctx, bad.ID, model.RunStatusFailed, nil, "replace failed"))

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	failed, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, bad.ID, failed[0].ID)
	assert.Equal(t, "replace failed", failed[0].Error)

	limited, err := st.ListRuns(ctx, RunFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
