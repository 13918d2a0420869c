package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crc-cores/internal/model"
)

// streamCSV reads a CSV export whose first row names the fields, as the CRC
// web site download does.
func streamCSV(ctx context.Context, r io.Reader, opts Options) (<-chan model.Doc, <-chan error) {
	docCh := make(chan model.Doc, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(docCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		reader.LazyQuotes = true
		reader.FieldsPerRecord = -1

		header, err := reader.Read()
		if err == io.EOF {
			return
		}
		if err != nil {
			errCh <- eris.Wrap(err, "csv: read header")
			return
		}
		for i, h := range header {
			header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		}

		for line := 2; ; line++ {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			row, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrapf(err, "csv: read row %d", line)
				return
			}
			if len(row) > len(header) {
				errCh <- eris.Errorf("csv: row %d has %d fields, header has %d", line, len(row), len(header))
				return
			}
			for i := range row {
				row[i] = strings.TrimSpace(row[i])
			}

			if err := send(ctx, docCh, rowDoc(header, row, opts.KeepStrings)); err != nil {
				errCh <- err
				return
			}
		}
	}()

	return docCh, errCh
}
