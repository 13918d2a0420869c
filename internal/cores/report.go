package cores

import (
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/sells-group/crc-cores/internal/model"
)

// WarningKind classifies a data-quality warning.
type WarningKind string

const (
	WarnMissingMapServer   WarningKind = "missing_mapserver"
	WarnAmbiguousMatch     WarningKind = "ambiguous_match"
	WarnHeterogeneousGroup WarningKind = "heterogeneous_group"
	WarnSchemaDrift        WarningKind = "schema_drift"
)

// Warning is one data-quality finding. None of them fail a run.
type Warning struct {
	Kind   WarningKind `json:"kind" yaml:"kind"`
	LibNum any         `json:"lib_num,omitempty" yaml:"lib_num,omitempty"`
	Detail string      `json:"detail" yaml:"detail"`
}

// Report collects the warnings of one transform, in well order.
type Report struct {
	Warnings []Warning `json:"warnings"`
}

func (r *Report) add(kind WarningKind, libNum any, detail string) {
	r.Warnings = append(r.Warnings, Warning{Kind: kind, LibNum: libNum, Detail: detail})
}

func (r *Report) merge(other *Report) {
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// Counts returns the number of warnings per kind.
func (r *Report) Counts() map[string]int {
	out := make(map[string]int)
	for _, w := range r.Warnings {
		out[string(w.Kind)]++
	}
	return out
}

// Log writes the first limit warnings individually and then the totals.
func (r *Report) Log(limit int) {
	log := zap.L().With(zap.String("component", "cores.report"))
	for i, w := range r.Warnings {
		if i >= limit {
			break
		}
		libNum, _ := model.Stringify(w.LibNum)
		log.Warn("data quality",
			zap.String("kind", string(w.Kind)),
			zap.String("lib_num", libNum),
			zap.String("detail", w.Detail),
		)
	}
	counts := r.Counts()
	for _, k := range slices.Sorted(maps.Keys(counts)) {
		log.Info("data quality total", zap.String("kind", k), zap.Int("count", counts[k]))
	}
}
