// Package export writes output records to files for downstream loaders.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/crc-cores/internal/model"
	"github.com/sells-group/crc-cores/internal/sbitem"
)

// Format names an export file format.
type Format string

const (
	FormatJSONLines Format = "jsonl"
	FormatSBItems   Format = "sbitem"
	FormatXLSX      Format = "xlsx"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSONLines, FormatSBItems, FormatXLSX:
		return f, nil
	default:
		return "", eris.Errorf("export: unknown format %q (want jsonl, sbitem or xlsx)", s)
	}
}

// Write dispatches to the writer for f and returns the number of records
// written.
func Write(w io.Writer, f Format, records []model.OutputRecord) (int, error) {
	switch f {
	case FormatJSONLines:
		return JSONLines(w, records)
	case FormatSBItems:
		return SBItems(w, records)
	case FormatXLSX:
		return XLSX(w, records)
	default:
		return 0, eris.Errorf("export: unknown format %q", f)
	}
}

// JSONLines writes one JSON document per record.
func JSONLines(w io.Writer, records []model.OutputRecord) (int, error) {
	enc := json.NewEncoder(w)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return i, eris.Wrapf(err, "export: encode record %d", i)
		}
	}
	return len(records), nil
}

// SBItems writes one ScienceBase item per record. Records without a well
// catalog URL cannot become items and are skipped.
func SBItems(w io.Writer, records []model.OutputRecord) (int, error) {
	log := zap.L().With(zap.String("component", "export"))
	enc := json.NewEncoder(w)

	n, skipped := 0, 0
	for i := range records {
		item, err := sbitem.Build(&records[i])
		if errors.Is(err, sbitem.ErrNoReportURL) {
			skipped++
			continue
		}
		if err != nil {
			return n, err
		}
		if err := enc.Encode(item); err != nil {
			return n, eris.Wrapf(err, "export: encode item %d", i)
		}
		n++
	}
	if skipped > 0 {
		log.Warn("records without crcwc_url skipped", zap.Int("skipped", skipped))
	}
	return n, nil
}

// columns lists the sheet header in output field order.
func columns() []string {
	cols := make([]string, 0, len(model.WellFields)+1+len(model.EnrichmentFields))
	cols = append(cols, model.WellFields...)
	cols = append(cols, model.FieldIntervals)
	return append(cols, model.EnrichmentFields...)
}

// XLSX writes a single-sheet workbook with one row per well. List values
// are joined with "; " and intervals are written as a count.
func XLSX(w io.Writer, records []model.OutputRecord) (int, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("cores")
	if err != nil {
		return 0, eris.Wrap(err, "export: add sheet")
	}

	cols := columns()
	header := sheet.AddRow()
	for _, c := range cols {
		header.AddCell().SetString(c)
	}

	for i := range records {
		row := sheet.AddRow()
		for _, c := range cols {
			cell := row.AddCell()
			if c == model.FieldIntervals {
				cell.SetInt(len(records[i].Intervals))
				continue
			}
			v, _ := records[i].Get(c)
			cell.SetString(cellText(v))
		}
	}

	if err := f.Write(w); err != nil {
		return 0, eris.Wrap(err, "export: write workbook")
	}
	return len(records), nil
}

func cellText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			if s := cellText(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	case map[string]any:
		if view, ok := t["View"].(string); ok {
			return view
		}
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
	if s, ok := model.Stringify(v); ok {
		return s
	}
	return fmt.Sprint(v)
}
