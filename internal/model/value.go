package model

import (
	"cmp"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
)

// KeyOf maps a field value to a comparable join/group key. Numbers compare
// by value regardless of width: integers and integral floats become int64,
// so int64(5) and float64(5) share a key while integers above 2^53 stay
// distinct. Other floats stay float64.
func KeyOf(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case int64:
		return t
	case float32:
		return KeyOf(float64(t))
	case float64:
		if math.IsNaN(t) {
			return nil
		}
		if t == math.Trunc(t) && t >= math.MinInt64 && t < math.MaxInt64 {
			return int64(t)
		}
		return t
	case string, bool:
		return t
	case time.Time:
		return t.UTC()
	default:
		return fmt.Sprintf("%T:%v", v, v)
	}
}

// SameValue reports whether two field values are equal under KeyOf
// semantics, falling back to deep equality for documents and arrays.
func SameValue(a, b any) bool {
	switch a.(type) {
	case map[string]any, []any, Doc:
		return reflect.DeepEqual(a, b)
	}
	switch b.(type) {
	case map[string]any, []any, Doc:
		return false
	}
	return KeyOf(a) == KeyOf(b)
}

// typeRank orders value kinds the way the document store sorts them:
// null, numbers, strings, then everything else.
func typeRank(k any) int {
	switch k.(type) {
	case nil:
		return 0
	case int64, float64:
		return 1
	case string:
		return 2
	case bool:
		return 4
	case time.Time:
		return 5
	default:
		return 3
	}
}

// CompareKeys orders two keys produced by KeyOf.
func CompareKeys(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch x := a.(type) {
	case int64:
		if y, ok := b.(int64); ok {
			return cmp.Compare(x, y)
		}
		return compareIntFloat(x, b.(float64))
	case float64:
		if y, ok := b.(int64); ok {
			return -compareIntFloat(y, x)
		}
		return cmp.Compare(x, b.(float64))
	case string:
		return cmp.Compare(x, b.(string))
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case time.Time:
		return x.Compare(b.(time.Time))
	case nil:
		return 0
	default:
		return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
}

// compareIntFloat orders an integer key against a non-integral or out of
// range float key. Converting i can only tie with f when f is 2^63 or
// beyond, which is larger than every int64.
func compareIntFloat(i int64, f float64) int {
	if c := cmp.Compare(float64(i), f); c != 0 {
		return c
	}
	if f > 0 {
		return -1
	}
	return 1
}

// Stringify converts a scalar to its string form the way $toString does.
// It returns false for nil, NaN, and values with no string form.
func Stringify(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case int:
		return strconv.Itoa(t), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float32:
		return Stringify(float64(t))
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return "", false
		}
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10), true
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano), true
	default:
		return "", false
	}
}

// Clean replaces NaN floats anywhere inside v with nil and returns how many
// replacements were made.
func Clean(v any) (any, int) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) {
			return nil, 1
		}
		return t, 0
	case float32:
		if math.IsNaN(float64(t)) {
			return nil, 1
		}
		return t, 0
	case map[string]any:
		n := 0
		out := make(map[string]any, len(t))
		for k, val := range t {
			c, k2 := Clean(val)
			out[k] = c
			n += k2
		}
		return out, n
	case Doc:
		c, n := Clean(map[string]any(t))
		return c, n
	case []any:
		n := 0
		out := make([]any, len(t))
		for i, val := range t {
			c, k := Clean(val)
			out[i] = c
			n += k
		}
		return out, n
	default:
		return v, 0
	}
}
