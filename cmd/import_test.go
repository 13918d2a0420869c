package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crc-cores/internal/config"
	"github.com/sells-group/crc-cores/internal/cores"
	"github.com/sells-group/crc-cores/internal/model"
	"github.com/sells-group/crc-cores/internal/store"
)

// useSQLiteConfig points the global config at a fresh SQLite file.
func useSQLiteConfig(t *testing.T) string {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "crc.db")
	t.Setenv("CRC_STORE_DRIVER", "sqlite")
	t.Setenv("CRC_STORE_DATABASE_URL", dsn)

	c, err := config.Load()
	require.NoError(t, err)
	cfg = c
	return dsn
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, cmd *cobra.Command, flags map[string]string, args ...string) (string, error) {
	t.Helper()
	for k, v := range flags {
		require.NoError(t, cmd.Flags().Set(k, v))
	}
	t.Cleanup(func() {
		for k := range flags {
			f := cmd.Flags().Lookup(k)
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
	})

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	err := cmd.RunE(cmd, args)
	return out.String(), err
}

func TestImportCommand_RequiresCollection(t *testing.T) {
	useSQLiteConfig(t)
	path := writeFile(t, "cores.csv", "Lib Num\n1\n")

	_, err := execute(t, importCmd, nil, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--collection is required")
}

func TestImportThenRun(t *testing.T) {
	dsn := useSQLiteConfig(t)
	cols := cores.DefaultCollections()

	coresCSV := writeFile(t, "cores_raw.csv",
		"Lib Num,Operator,coordinates_geohash,Formation,Min Depth,Max Depth\n"+
			"12345,ACME OIL,9xj64,NIOBRARA,100,150\n"+
			"12345,ACME OIL,9xj64,CODELL,150,200\n"+
			"777,OTHER,,,10,20\n")
	mapJSON := writeFile(t, "mapserver.json", `[{"properties":{"libno":12345},"id":99}]`)
	scrapedJSONL := writeFile(t, "scraped.jsonl",
		`{"source":"https://my.usgs.gov/crcwc/core/report/99","documents":["https://example.test/a.pdf"]}`+"\n")
	gmuJSONL := writeFile(t, "gmu.jsonl", `{"coordinates_geohash":"9xj64","data":{"name":"Pierre Shale"}}`+"\n")

	for path, coll := range map[string]string{
		coresCSV:     cols.CoresRaw,
		mapJSON:      cols.MapServer,
		scrapedJSONL: cols.Scraped,
		gmuJSONL:     cols.GMU,
	} {
		_, err := execute(t, importCmd, map[string]string{"collection": coll}, path)
		require.NoError(t, err, path)
	}

	out, err := execute(t, runCmd, map[string]string{"yes": "true"})
	require.NoError(t, err)

	var sum cores.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Equal(t, model.RunStatusComplete, sum.Status)
	assert.Equal(t, 2, sum.Wells)
	assert.Equal(t, int64(2), sum.Written)

	st, err := store.NewSQLite(dsn)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	rec, err := st.GetOutput(context.Background(), cols.Output, "12345")
	require.NoError(t, err)
	assert.Equal(t, "https://my.usgs.gov/crcwc/core/report/99", rec.CRCWCURL)
	assert.Equal(t, "Pierre Shale", rec.GMUName)
	require.Len(t, rec.Intervals, 2)
	assert.Equal(t, "NIOBRARA", rec.Intervals[0].Formation)
}

func TestRunCommand_DeclinedLeavesOutput(t *testing.T) {
	useSQLiteConfig(t)
	path := writeFile(t, "cores_raw.jsonl", `{"Lib Num":"1","Min Depth":1,"Max Depth":2}`+"\n")
	_, err := execute(t, importCmd, map[string]string{"collection": "cores_raw"}, path)
	require.NoError(t, err)
	for _, coll := range []string{"cores_from_mapserver", "scraped_web_pages", "gmu_context"} {
		empty := writeFile(t, coll+".json", `[]`)
		_, err := execute(t, importCmd, map[string]string{"collection": coll}, empty)
		require.NoError(t, err)
	}

	var stderr bytes.Buffer
	runCmd.SetIn(bytes.NewBufferString("n\n"))
	runCmd.SetErr(&stderr)
	t.Cleanup(func() { runCmd.SetIn(nil); runCmd.SetErr(nil) })

	out, err := execute(t, runCmd, nil)
	require.NoError(t, err)

	var sum cores.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Equal(t, model.RunStatusAborted, sum.Status)
	assert.Zero(t, sum.Written)
	assert.Contains(t, stderr.String(), "Proceed? [y/N]")
	assert.Contains(t, stderr.String(), "Aborted; the output collection was not changed.")
}
