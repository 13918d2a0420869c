// Package ingest streams source documents out of export files (CSV, JSON,
// JSON lines and XLSX) so they can be loaded into a store.
package ingest

import (
	"context"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crc-cores/internal/model"
)

// Format names a source file format.
type Format string

const (
	FormatCSV       Format = "csv"
	FormatJSON      Format = "json"  // one JSON array of objects
	FormatJSONLines Format = "jsonl" // one object per line, as mongoexport writes
	FormatXLSX      Format = "xlsx"
)

// DefaultBatchSize is the number of documents handed to the sink at once.
const DefaultBatchSize = 1000

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatCSV, FormatJSON, FormatJSONLines, FormatXLSX:
		return f, nil
	default:
		return "", eris.Errorf("ingest: unknown format %q (want csv, json, jsonl or xlsx)", s)
	}
}

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "ndjson" {
		ext = string(FormatJSONLines)
	}
	return ParseFormat(ext)
}

// Options configures parsing.
type Options struct {
	Delimiter   rune   // CSV only; default ','
	SheetName   string // XLSX only; default first sheet
	KeepStrings bool   // CSV and XLSX: do not convert numeric cells
}

// Stream decodes documents from r. Both channels are closed when decoding
// completes; the caller must drain the document channel before reading the
// error channel.
func Stream(ctx context.Context, r io.Reader, f Format, opts Options) (<-chan model.Doc, <-chan error) {
	switch f {
	case FormatCSV:
		return streamCSV(ctx, r, opts)
	case FormatJSON:
		return streamJSONArray(ctx, r)
	case FormatJSONLines:
		return streamJSONLines(ctx, r)
	case FormatXLSX:
		return streamXLSX(ctx, r, opts)
	default:
		docCh := make(chan model.Doc)
		errCh := make(chan error, 1)
		errCh <- eris.Errorf("ingest: unknown format %q", f)
		close(docCh)
		close(errCh)
		return docCh, errCh
	}
}

// Load streams documents from r and passes them to sink in batches. It
// returns the number of documents accepted by sink.
func Load(ctx context.Context, r io.Reader, f Format, opts Options, batchSize int, sink func(context.Context, []model.Doc) error) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	docCh, errCh := Stream(ctx, r, f, opts)

	n := 0
	batch := make([]model.Doc, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := sink(ctx, batch); err != nil {
			return eris.Wrapf(err, "ingest: load batch at %d", n)
		}
		n += len(batch)
		batch = make([]model.Doc, 0, batchSize)
		return nil
	}

	for d := range docCh {
		batch = append(batch, d)
		if len(batch) < batchSize {
			continue
		}
		if err := flush(); err != nil {
			cancel()
			for range docCh {
			}
			return n, err
		}
	}
	if err := <-errCh; err != nil {
		return n, err
	}
	return n, flush()
}

// send delivers d unless ctx is done.
func send(ctx context.Context, ch chan<- model.Doc, d model.Doc) error {
	select {
	case ch <- d:
		return nil
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "ingest: context cancelled")
	}
}

// rowDoc builds a document from a header and one row of cells. Cells past
// the end of a short row are left absent.
func rowDoc(header, row []string, keepStrings bool) model.Doc {
	d := make(model.Doc, len(header))
	for i, name := range header {
		if i >= len(row) || name == "" {
			continue
		}
		if keepStrings {
			d[name] = row[i]
		} else {
			d[name] = scalar(row[i])
		}
	}
	return d
}

// scalar converts a cell to int64 or float64 when the number prints back
// exactly as written, so identifiers with leading zeros stay strings.
func scalar(s string) any {
	if s == "" {
		return s
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		if strconv.FormatInt(i, 10) == s {
			return i
		}
		return s
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		if strconv.FormatFloat(f, 'f', -1, 64) == s {
			return f
		}
	}
	return s
}
