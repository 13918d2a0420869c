package cores

import (
	"fmt"

	"github.com/sells-group/crc-cores/internal/model"
)

// Index is a read-only hash index over one foreign collection, keyed by the
// value at a field path. It is built once per transform and shared by all
// partitions.
type Index struct {
	name  string
	path  string
	byKey map[any][]model.Doc
}

// BuildIndex indexes docs by the value at path. Documents missing the field
// are indexed under the null key, and array values index every element, the
// way $lookup matches them. NaN values are replaced with null and reported.
func BuildIndex(name string, docs []model.Doc, path string, rep *Report) *Index {
	ix := &Index{name: name, path: path, byKey: make(map[any][]model.Doc)}
	drift := 0
	for _, raw := range docs {
		cleaned, nans := model.Clean(map[string]any(raw))
		drift += nans
		doc := model.Doc(cleaned.(map[string]any))

		v, _ := doc.Lookup(path)
		items, isArray := v.([]any)
		if !isArray {
			ix.add(model.KeyOf(v), doc)
			continue
		}
		seen := make(map[any]bool, len(items))
		for _, it := range items {
			k := model.KeyOf(it)
			if seen[k] {
				continue
			}
			seen[k] = true
			ix.add(k, doc)
		}
	}
	if drift > 0 {
		rep.add(WarnSchemaDrift, nil, fmt.Sprintf("%d NaN value(s) in %s replaced with null", drift, name))
	}
	return ix
}

func (ix *Index) add(key any, doc model.Doc) {
	ix.byKey[key] = append(ix.byKey[key], doc)
}

// Lookup returns the documents whose indexed value equals key, in collection
// order. key must come from model.KeyOf.
func (ix *Index) Lookup(key any) []model.Doc {
	return ix.byKey[key]
}

// Len returns the number of distinct keys.
func (ix *Index) Len() int {
	return len(ix.byKey)
}
