package cores

import (
	"fmt"
	"slices"

	"github.com/sells-group/crc-cores/internal/model"
)

// Well is the group of core intervals that share one Lib Num.
type Well struct {
	// LibNum is the first member's Lib Num value; Key is its join key.
	LibNum any
	Key    any

	// Fields holds the descriptive fields, each taken from the first member
	// that carries it. Fields no member carries are absent from the map.
	Fields map[string]any

	Intervals []model.Interval

	heterogeneous []string
}

// GroupByWell partitions core records by Lib Num, preserving input order
// within each group. Wells are returned sorted by Lib Num. Records without a
// Lib Num form the null group, as $group does.
func GroupByWell(cores []model.Doc, rep *Report) []*Well {
	byKey := make(map[any]*Well)
	var wells []*Well

	for _, raw := range cores {
		cleaned, nans := model.Clean(map[string]any(raw))
		doc := model.Doc(cleaned.(map[string]any))

		libNum := doc.Get(model.FieldLibNum)
		key := model.KeyOf(libNum)
		if nans > 0 {
			rep.add(WarnSchemaDrift, libNum, fmt.Sprintf("%d NaN value(s) in core record replaced with null", nans))
		}

		w, ok := byKey[key]
		if !ok {
			w = &Well{LibNum: libNum, Key: key, Fields: make(map[string]any, len(model.WellFields))}
			byKey[key] = w
			wells = append(wells, w)
		}

		for _, f := range model.WellFields[1:] {
			v, present := doc.Lookup(f)
			if !present {
				continue
			}
			first, seen := w.Fields[f]
			if !seen {
				w.Fields[f] = v
				continue
			}
			if !model.SameValue(first, v) && !w.flagged(f) {
				rep.add(WarnHeterogeneousGroup, w.LibNum,
					fmt.Sprintf("%s differs within group: %v vs %v", f, first, v))
				w.flag(f)
			}
		}

		w.Intervals = append(w.Intervals, model.Interval{
			Formation: doc.Get(model.FieldFormation),
			Age:       doc.Get(model.FieldAge),
			MinDepth:  doc.Get(model.FieldMinDepth),
			MaxDepth:  doc.Get(model.FieldMaxDepth),
		})
	}

	slices.SortStableFunc(wells, func(a, b *Well) int {
		return model.CompareKeys(a.Key, b.Key)
	})
	for _, w := range wells {
		w.heterogeneous = nil
	}
	return wells
}

// flagged and flag track which fields already produced a heterogeneity
// warning so a group reports each field once.
func (w *Well) flagged(field string) bool {
	return slices.Contains(w.heterogeneous, field)
}

func (w *Well) flag(field string) {
	w.heterogeneous = append(w.heterogeneous, field)
}
