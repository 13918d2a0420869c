package ingest

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/crc-cores/internal/model"
)

func collect(t *testing.T, docCh <-chan model.Doc, errCh <-chan error) ([]model.Doc, error) {
	t.Helper()
	var docs []model.Doc
	for d := range docCh {
		docs = append(docs, d)
	}
	for err := range errCh {
		if err != nil {
			return docs, err
		}
	}
	return docs, nil
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("JSONL")
	require.NoError(t, err)
	assert.Equal(t, FormatJSONLines, f)

	_, err = ParseFormat("parquet")
	require.Error(t, err)
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"exports/cores_raw.csv", FormatCSV},
		{"mapserver.JSON", FormatJSON},
		{"scraped.jsonl", FormatJSONLines},
		{"scraped.ndjson", FormatJSONLines},
		{"download.xlsx", FormatXLSX},
	}
	for _, tt := range tests {
		got, err := FormatFromPath(tt.path)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}

	_, err := FormatFromPath("notes.txt")
	require.Error(t, err)
}

func TestStreamCSV(t *testing.T) {
	input := "\ufeffLib Num,API Num,Operator,Min Depth,Max Depth\n" +
		"12345,05123456780000,ACME OIL,100.5,150\n" +
		"777,,\"OTHER, INC\",10\n"

	docs, err := collect(t, Stream(context.Background(), strings.NewReader(input), FormatCSV, Options{}))
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, int64(12345), docs[0]["Lib Num"])
	assert.Equal(t, "05123456780000", docs[0]["API Num"], "leading zeros keep the string")
	assert.Equal(t, 100.5, docs[0]["Min Depth"])
	assert.Equal(t, int64(150), docs[0]["Max Depth"])

	assert.Equal(t, "", docs[1]["API Num"])
	assert.Equal(t, "OTHER, INC", docs[1]["Operator"])
	_, ok := docs[1]["Max Depth"]
	assert.False(t, ok, "short rows leave trailing fields absent")
}

func TestStreamCSV_KeepStrings(t *testing.T) {
	input := "Lib Num;State\n12345;CO\n"
	docs, err := collect(t, Stream(context.Background(), strings.NewReader(input), FormatCSV,
		Options{Delimiter: ';', KeepStrings: true}))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "12345", docs[0]["Lib Num"])
	assert.Equal(t, "CO", docs[0]["State"])
}

func TestStreamCSV_TooManyFields(t *testing.T) {
	input := "a,b\n1,2,3\n"
	_, err := collect(t, Stream(context.Background(), strings.NewReader(input), FormatCSV, Options{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2 has 3 fields")
}

func TestStreamCSV_Empty(t *testing.T) {
	docs, err := collect(t, Stream(context.Background(), strings.NewReader(""), FormatCSV, Options{}))
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestStreamJSONArray(t *testing.T) {
	input := `[{"properties":{"libno":"12345"},"id":99},{"_id":{"$oid":"5f0000000000000000000001"},"id":1.5}]`

	docs, err := collect(t, Stream(context.Background(), strings.NewReader(input), FormatJSON, Options{}))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "12345", docs[0].Get("properties.libno"))
	assert.Equal(t, int64(99), docs[0]["id"])
	assert.Equal(t, "5f0000000000000000000001", docs[1]["_id"])
	assert.Equal(t, 1.5, docs[1]["id"])
}

func TestStreamJSONArray_NotArray(t *testing.T) {
	_, err := collect(t, Stream(context.Background(), strings.NewReader(`{"a":1}`), FormatJSON, Options{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected '['")
}

func TestStreamJSONLines(t *testing.T) {
	input := "{\"source\":\"https://my.usgs.gov/crcwc/core/report/99\",\"documents\":[\"a.pdf\"]}\n\n" +
		"{\"source\":null}\n"

	docs, err := collect(t, Stream(context.Background(), strings.NewReader(input), FormatJSONLines, Options{}))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, []any{"a.pdf"}, docs[0]["documents"])
	v, ok := docs[1].Lookup("source")
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestStreamJSONLines_BadLine(t *testing.T) {
	input := "{\"a\":1}\nnot json\n"
	docs, err := collect(t, Stream(context.Background(), strings.NewReader(input), FormatJSONLines, Options{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jsonl: line 2")
	assert.Len(t, docs, 1)
}

func xlsxBytes(t *testing.T, sheet string, rows [][]string) []byte {
	t.Helper()
	f := xlsx.NewFile()
	sh, err := f.AddSheet(sheet)
	require.NoError(t, err)
	for _, r := range rows {
		row := sh.AddRow()
		for _, c := range r {
			row.AddCell().SetString(c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestStreamXLSX(t *testing.T) {
	b := xlsxBytes(t, "download", [][]string{
		{"Lib Num", "Operator", "Min Depth"},
		{"12345", "ACME OIL", "100.5"},
		{"", "", ""},
		{"777", "OTHER", "10"},
	})

	docs, err := collect(t, Stream(context.Background(), bytes.NewReader(b), FormatXLSX, Options{}))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, int64(12345), docs[0]["Lib Num"])
	assert.Equal(t, 100.5, docs[0]["Min Depth"])
	assert.Equal(t, "OTHER", docs[1]["Operator"])
}

func TestStreamXLSX_MissingSheet(t *testing.T) {
	b := xlsxBytes(t, "download", [][]string{{"Lib Num"}})
	_, err := collect(t, Stream(context.Background(), bytes.NewReader(b), FormatXLSX, Options{SheetName: "other"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sheet "other" not found`)
}

func TestLoad_Batches(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("Lib Num\n")
	for i := range 5 {
		sb.WriteString(strings.Repeat("1", i+1) + "\n")
	}

	var sizes []int
	n, err := Load(context.Background(), strings.NewReader(sb.String()), FormatCSV, Options{}, 2,
		func(_ context.Context, docs []model.Doc) error {
			sizes = append(sizes, len(docs))
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []int{2, 2, 1}, sizes)
}

func TestLoad_SinkError(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("Lib Num\n")
	for i := range 200 {
		sb.WriteString(strings.Repeat("7", i%10+1) + "\n")
	}

	calls := 0
	n, err := Load(context.Background(), strings.NewReader(sb.String()), FormatCSV, Options{}, 10,
		func(_ context.Context, docs []model.Doc) error {
			calls++
			if calls == 2 {
				return errors.New("disk full")
			}
			return nil
		})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 10, n)
}

func TestLoad_StreamError(t *testing.T) {
	_, err := Load(context.Background(), strings.NewReader("[1,"), FormatJSON, Options{}, 0,
		func(context.Context, []model.Doc) error { return nil })
	require.Error(t, err)
}

func TestLoad_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var sb strings.Builder
	sb.WriteString("[")
	for i := range 1000 {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(`{"id":1}`)
	}
	sb.WriteString("]")

	_, err := Load(ctx, strings.NewReader(sb.String()), FormatJSON, Options{}, 10,
		func(context.Context, []model.Doc) error { return nil })
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScalar(t *testing.T) {
	assert.Equal(t, int64(42), scalar("42"))
	assert.Equal(t, -1.25, scalar("-1.25"))
	assert.Equal(t, "007", scalar("007"))
	assert.Equal(t, "1e3", scalar("1e3"))
	assert.Equal(t, "", scalar(""))
	assert.Equal(t, "NaN", scalar("NaN"))
	assert.Equal(t, "CO", scalar("CO"))
}
