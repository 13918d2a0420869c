package ingest

import (
	"context"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/crc-cores/internal/model"
)

// streamXLSX reads one sheet whose first row names the fields. The workbook
// is read into memory; XLSX is a zip archive and cannot be streamed.
func streamXLSX(ctx context.Context, r io.Reader, opts Options) (<-chan model.Doc, <-chan error) {
	docCh := make(chan model.Doc, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(docCh)
		defer close(errCh)

		b, err := io.ReadAll(r)
		if err != nil {
			errCh <- eris.Wrap(err, "xlsx: read")
			return
		}
		f, err := xlsx.OpenBinary(b)
		if err != nil {
			errCh <- eris.Wrap(err, "xlsx: open workbook")
			return
		}
		sheet, err := getSheet(f, opts.SheetName)
		if err != nil {
			errCh <- err
			return
		}
		if len(sheet.Rows) == 0 {
			return
		}

		header := rowToStrings(sheet.Rows[0])
		for _, row := range sheet.Rows[1:] {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "xlsx: context cancelled")
				return
			}
			cells := rowToStrings(row)
			if isBlank(cells) {
				continue
			}
			if err := send(ctx, docCh, rowDoc(header, cells, opts.KeepStrings)); err != nil {
				errCh <- err
				return
			}
		}
	}()

	return docCh, errCh
}

func getSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sheet, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", name)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("xlsx: workbook has no sheets")
	}
	return f.Sheets[0], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = strings.TrimSpace(cell.String())
	}
	return cells
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
