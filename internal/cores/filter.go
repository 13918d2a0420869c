package cores

import (
	"fmt"

	"github.com/sells-group/crc-cores/internal/model"
)

// Filter selects which output records are written.
type Filter interface {
	Keep(r *model.OutputRecord) bool
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(r *model.OutputRecord) bool

// Keep implements Filter.
func (f FilterFunc) Keep(r *model.OutputRecord) bool { return f(r) }

// MatchAll keeps every record.
var MatchAll Filter = FilterFunc(func(*model.OutputRecord) bool { return true })

// FieldRule requires a top-level output field to equal Value.
type FieldRule struct {
	Field string
	Value any
}

// FieldFilter keeps records matching every rule, with $match equality: numbers
// compare by value, null matches an absent field, and a list field matches if
// any element does.
type FieldFilter []FieldRule

// Keep implements Filter.
func (f FieldFilter) Keep(r *model.OutputRecord) bool {
	for _, rule := range f {
		v, _ := r.Get(rule.Field)
		if !matchValue(v, rule.Value) {
			return false
		}
	}
	return true
}

func (f FieldFilter) String() string {
	return fmt.Sprintf("%v", []FieldRule(f))
}

func matchValue(have, want any) bool {
	if model.SameValue(have, want) {
		return true
	}
	if items, ok := have.([]any); ok {
		for _, it := range items {
			if model.SameValue(it, want) {
				return true
			}
		}
	}
	return false
}
