package amp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombinationsOrder(t *testing.T) {
	got := Combinations(CandidateOptions{
		"b": {3, 4},
		"a": {1, 2},
	})

	assert.Equal(t, []any{
		map[string]any{"a": 1, "b": 3},
		map[string]any{"a": 1, "b": 4},
		map[string]any{"a": 2, "b": 3},
		map[string]any{"a": 2, "b": 4},
	}, got)
}

func TestCombinationsSkipsEmptyOptions(t *testing.T) {
	got := Combinations(CandidateOptions{
		"color": {"red", "blue"},
		"empty": {},
		"size":  {"s"},
	})

	require.Len(t, got, 2)
	assert.Equal(t, map[string]any{"color": "red", "size": "s"}, got[0])
	assert.Equal(t, map[string]any{"color": "blue", "size": "s"}, got[1])
}

func TestCombinationsEmpty(t *testing.T) {
	assert.Empty(t, Combinations(nil))
	assert.Empty(t, Combinations(CandidateOptions{"a": {}}))
}

func TestCandidateOptionsCount(t *testing.T) {
	tests := []struct {
		name    string
		options CandidateOptions
		want    int
	}{
		{"empty", CandidateOptions{}, 0},
		{"single", CandidateOptions{"a": {1, 2, 3}}, 3},
		{"product", CandidateOptions{"a": {1, 2, 3}, "b": {1, 2}, "c": {1, 2, 3, 4}}, 24},
		{"empty option ignored", CandidateOptions{"a": {1, 2}, "b": {}}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.options.Count())
			assert.Len(t, Combinations(tt.options), tt.want)
		})
	}
}

func TestCandidateOptionsCountSaturates(t *testing.T) {
	big := make([]any, 1<<16)
	options := CandidateOptions{"a": big, "b": big, "c": big, "d": big, "e": big}

	assert.Equal(t, math.MaxInt, options.Count())
}

func TestCandidateOptionsFirst(t *testing.T) {
	options := CandidateOptions{"color": {"red", "blue"}, "size": {"s", "m"}, "none": {}}

	assert.Equal(t, map[string]any{"color": "red", "size": "s"}, options.First())
	assert.Equal(t, Combinations(options)[0], options.First())
	assert.Nil(t, CandidateOptions{}.First())
}

func TestCandidateListExpand(t *testing.T) {
	list := CandidateList{"a", 2, map[string]any{"k": "v"}, nil}

	exp := Expand(list)

	assert.Equal(t, []any{"a", 2, map[string]any{"k": "v"}, nil}, exp.All)
	assert.Equal(t, []any{
		map[string]any{"value": "a"},
		map[string]any{"value": 2},
		map[string]any{"k": "v"},
		map[string]any{"value": nil},
	}, exp.RequestSafe)
}

func TestCandidateListExpandDoesNotAlias(t *testing.T) {
	list := CandidateList{"a", "b"}
	exp := Expand(list)
	exp.All[0] = "changed"

	assert.Equal(t, "a", list[0])
}

func TestExpandOptions(t *testing.T) {
	options := CandidateOptions{"color": {"red", "blue"}}

	exp := Expand(options)

	require.Len(t, exp.RequestSafe, 1)
	assert.Equal(t, map[string]any{"color": []any{"red", "blue"}}, exp.RequestSafe[0])
	assert.Len(t, exp.All, 2)
}

func TestExpandNil(t *testing.T) {
	exp := Expand(nil)

	assert.NotNil(t, exp.All)
	assert.NotNil(t, exp.RequestSafe)
	assert.Empty(t, exp.All)
}

func TestOptionsFromMap(t *testing.T) {
	options := OptionsFromMap(map[string]any{
		"list":   []any{1, 2},
		"typed":  []string{"x", "y", "z"},
		"scalar": "only",
		"bytes":  []byte("raw"),
		"nil":    nil,
	})

	assert.Equal(t, []any{1, 2}, options["list"])
	assert.Equal(t, []any{"x", "y", "z"}, options["typed"])
	assert.Equal(t, []any{"only"}, options["scalar"])
	assert.Equal(t, []any{[]byte("raw")}, options["bytes"])
	assert.Empty(t, options["nil"])
	assert.Equal(t, 2*3, options.Count())
}

func TestIsObject(t *testing.T) {
	type point struct{ X int }

	assert.True(t, isObject(map[string]any{}))
	assert.True(t, isObject(point{}))
	assert.True(t, isObject(&point{}))
	assert.False(t, isObject((*point)(nil)))
	assert.False(t, isObject("s"))
	assert.False(t, isObject([]any{1}))
	assert.False(t, isObject(nil))
}
