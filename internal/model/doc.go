package model

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// Doc is a schemaless document as read from a source collection. Nested
// documents are map[string]any and arrays are []any after normalization.
type Doc map[string]any

// Lookup resolves a dotted field path (e.g. "properties.libno") and reports
// whether the field is present. A present field may hold nil.
func (d Doc) Lookup(path string) (any, bool) {
	var cur any = map[string]any(d)
	for _, part := range strings.Split(path, ".") {
		var m map[string]any
		switch v := cur.(type) {
		case map[string]any:
			m = v
		case Doc:
			m = v
		default:
			return nil, false
		}
		next, ok := m[part]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Get is Lookup without the presence flag.
func (d Doc) Get(path string) any {
	v, _ := d.Lookup(path)
	return v
}

// DecodeJSONDoc parses a JSON object into a Doc. Integral numbers become
// int64 and all other numbers float64, matching what the Mongo store yields.
func DecodeJSONDoc(b []byte) (Doc, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, eris.Wrap(err, "model: decode json doc")
	}
	return Doc(normalizeJSON(m).(map[string]any)), nil
}

func normalizeJSON(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalizeJSON(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = normalizeJSON(val)
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return v
	}
}
