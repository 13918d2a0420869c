package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crc-cores/internal/model"
	"github.com/sells-group/crc-cores/internal/store"
)

func newTestAPI(t *testing.T) (http.Handler, string) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck

	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	_, err = st.ReplaceOutput(ctx, "cores", []model.OutputRecord{
		{
			LibNum:            "12345",
			Operator:          "ACME OIL",
			CRCCollectionName: "core",
			Intervals:         []model.Interval{{Formation: "NIOBRARA", MinDepth: 100.0, MaxDepth: 150.0}},
			CRCWCURL:          "https://my.usgs.gov/crcwc/core/report/99",
		},
		{LibNum: "777", Operator: "OTHER"},
	})
	require.NoError(t, err)

	run, err := st.StartRun(ctx)
	require.NoError(t, err)
	require.NoError(t, st.FinishRun(ctx, run.ID, model.RunStatusComplete, &model.RunResult{Wells: 2, Written: 2}, ""))

	return newRouter(st, "cores"), run.ID
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Health(t *testing.T) {
	h, _ := newTestAPI(t)

	rr := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_ListCores(t *testing.T) {
	h, _ := newTestAPI(t)

	rr := get(t, h, "/v1/cores?limit=1&offset=1")
	require.Equal(t, http.StatusOK, rr.Code)

	var recs []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &recs))
	require.Len(t, recs, 1)
	assert.Equal(t, "777", recs[0]["Lib Num"])
}

func TestRouter_ListCores_BadPaging(t *testing.T) {
	h, _ := newTestAPI(t)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/v1/cores?limit=abc").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/v1/cores?offset=-1").Code)
}

func TestRouter_GetCore(t *testing.T) {
	h, _ := newTestAPI(t)

	rr := get(t, h, "/v1/cores/12345")
	require.Equal(t, http.StatusOK, rr.Code)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Equal(t, "ACME OIL", rec["Operator"])
	assert.Equal(t, "https://my.usgs.gov/crcwc/core/report/99", rec["crcwc_url"])

	assert.Equal(t, http.StatusNotFound, get(t, h, "/v1/cores/00000").Code)
}

func TestRouter_GetSBItem(t *testing.T) {
	h, _ := newTestAPI(t)

	rr := get(t, h, "/v1/cores/12345/sbitem")
	require.Equal(t, http.StatusOK, rr.Code)
	var item map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &item))
	assert.Equal(t, "Core Research Center Core 12345", item["title"])

	rr = get(t, h, "/v1/cores/777/sbitem")
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), "crcwc_url")
}

func TestRouter_Runs(t *testing.T) {
	h, runID := newTestAPI(t)

	rr := get(t, h, "/v1/runs?status=complete")
	require.Equal(t, http.StatusOK, rr.Code)
	var runs []model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].ID)

	rr = get(t, h, "/v1/runs?status=failed")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())

	rr = get(t, h, "/v1/runs/"+runID)
	require.Equal(t, http.StatusOK, rr.Code)
	var run model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &run))
	assert.Equal(t, model.RunStatusComplete, run.Status)
	require.NotNil(t, run.Result)
	assert.Equal(t, int64(2), run.Result.Written)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/v1/runs/does-not-exist").Code)
}

func TestRouter_CORS(t *testing.T) {
	h, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://example.test")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
