package model

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyOf_NumericWidths(t *testing.T) {
	t.Parallel()

	assert.Equal(t, KeyOf(int32(12345)), KeyOf(float64(12345)))
	assert.Equal(t, KeyOf(int64(7)), KeyOf(7))
	assert.NotEqual(t, KeyOf("12345"), KeyOf(int64(12345)))
	assert.Nil(t, KeyOf(math.NaN()))
	assert.Nil(t, KeyOf(nil))
	assert.Equal(t, 1.5, KeyOf(float32(1.5)))
}

func TestKeyOf_LargeIntegersStayDistinct(t *testing.T) {
	t.Parallel()

	a, b := int64(1<<53), int64(1<<53+1)
	assert.NotEqual(t, KeyOf(a), KeyOf(b))
	assert.False(t, SameValue(a, b))
	assert.Equal(t, KeyOf(a), KeyOf(float64(1<<53)))
	assert.Equal(t, -1, CompareKeys(KeyOf(a), KeyOf(b)))
	assert.Equal(t, math.Inf(1), KeyOf(math.Inf(1)))
}

func TestSameValue(t *testing.T) {
	t.Parallel()

	assert.True(t, SameValue(int64(3), 3.0))
	assert.True(t, SameValue("CO", "CO"))
	assert.False(t, SameValue("CO", "co"))
	assert.True(t, SameValue([]any{"a"}, []any{"a"}))
	assert.False(t, SameValue([]any{"a"}, "a"))
	assert.True(t, SameValue(nil, math.NaN()))
}

func TestCompareKeys(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b any
		want int
	}{
		{"null before number", nil, 1.0, -1},
		{"number before string", 99.0, "1", -1},
		{"strings", "A100", "A2", -1},
		{"numbers", 10.0, 2.0, 1},
		{"integers", int64(10), int64(2), 1},
		{"integer before fraction", int64(2), 2.5, -1},
		{"fraction before integer", 2.5, int64(3), -1},
		{"integer below infinity", int64(math.MaxInt64), math.Inf(1), -1},
		{"integer above 2^63 float", int64(math.MaxInt64), 9.3e18, -1},
		{"equal", "x", "x", 0},
		{"bools", false, true, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareKeys(tt.a, tt.b))
		})
	}
}

func TestStringify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   any
		want string
		ok   bool
	}{
		{"int64", int64(99), "99", true},
		{"int32", int32(7), "7", true},
		{"integral float", 99.0, "99", true},
		{"fractional float", 1.5, "1.5", true},
		{"string", "abc", "abc", true},
		{"bool", true, "true", true},
		{"time", time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC), "2020-01-02T03:04:05Z", true},
		{"nil", nil, "", false},
		{"nan", math.NaN(), "", false},
		{"doc", map[string]any{}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Stringify(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClean_ReplacesNestedNaN(t *testing.T) {
	t.Parallel()

	in := map[string]any{
		"a": math.NaN(),
		"b": []any{1.0, math.NaN(), "x"},
		"c": map[string]any{"d": math.NaN()},
	}
	out, n := Clean(in)
	require.Equal(t, 3, n)

	m := out.(map[string]any)
	assert.Nil(t, m["a"])
	assert.Equal(t, []any{1.0, nil, "x"}, m["b"])
	assert.Equal(t, map[string]any{"d": nil}, m["c"])
}

func TestDoc_Lookup(t *testing.T) {
	t.Parallel()

	d := Doc{
		"properties": map[string]any{"libno": "12345"},
		"data":       Doc{"map_ref": map[string]any{"url": "https://example.test/ref"}},
		"nothing":    nil,
	}

	v, ok := d.Lookup("properties.libno")
	assert.True(t, ok)
	assert.Equal(t, "12345", v)

	v, ok = d.Lookup("data.map_ref.url")
	assert.True(t, ok)
	assert.Equal(t, "https://example.test/ref", v)

	v, ok = d.Lookup("nothing")
	assert.True(t, ok)
	assert.Nil(t, v)

	_, ok = d.Lookup("properties.missing")
	assert.False(t, ok)

	_, ok = d.Lookup("properties.libno.deeper")
	assert.False(t, ok)
}

func TestDecodeJSONDoc_Numbers(t *testing.T) {
	t.Parallel()

	d, err := DecodeJSONDoc([]byte(`{"id": 99, "depth": 12.5, "nested": {"n": [1, 2.5]}}`))
	require.NoError(t, err)
	assert.Equal(t, int64(99), d["id"])
	assert.Equal(t, 12.5, d["depth"])
	assert.Equal(t, []any{int64(1), 2.5}, d.Get("nested.n"))
}

func TestDecodeJSONDoc_Invalid(t *testing.T) {
	t.Parallel()

	_, err := DecodeJSONDoc([]byte(`[1,2]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode json doc")
}
