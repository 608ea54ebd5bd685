package amp

import (
	"math"
	"reflect"
	"sort"
)

// MaxCandidates caps the flattened size of a candidate space.
const MaxCandidates = 50

// Candidates is the space a decision chooses from. It is either a
// CandidateList or a CandidateOptions mapping.
type Candidates interface {
	// Count returns the flattened number of candidates without expanding them.
	Count() int
	// First returns the first candidate in expansion order, or nil when empty.
	First() any

	expand() Expansion
}

// Expansion is a candidate space in the two shapes a decide call needs:
// RequestSafe is what goes over the wire, All is what decision indexes point into.
type Expansion struct {
	RequestSafe []any
	All         []any
}

// Expand formats candidates for a request. A nil space yields empty sequences.
func Expand(candidates Candidates) Expansion {
	if candidates == nil {
		return Expansion{RequestSafe: []any{}, All: []any{}}
	}
	return candidates.expand()
}

// CandidateList is an explicit, ordered list of candidate values.
type CandidateList []any

// Count implements Candidates.
func (l CandidateList) Count() int { return len(l) }

// First implements Candidates.
func (l CandidateList) First() any {
	if len(l) == 0 {
		return nil
	}
	return l[0]
}

func (l CandidateList) expand() Expansion {
	all := make([]any, len(l))
	copy(all, l)

	safe := make([]any, len(l))
	for i, c := range l {
		if isObject(c) {
			safe[i] = c
		} else {
			safe[i] = map[string]any{"value": c}
		}
	}
	return Expansion{RequestSafe: safe, All: all}
}

// CandidateOptions maps option names to their possible values. It expands to
// the Cartesian product of every non-empty option.
type CandidateOptions map[string][]any

// OptionsFromMap builds CandidateOptions from loosely typed input. Slice and
// array values are taken as value lists; anything else is a single value.
func OptionsFromMap(m map[string]any) CandidateOptions {
	out := make(CandidateOptions, len(m))
	for key, value := range m {
		out[key] = toList(value)
	}
	return out
}

// Count implements Candidates. Options with no values do not contribute.
// The result saturates at math.MaxInt.
func (o CandidateOptions) Count() int {
	count := 0
	for _, values := range o {
		if len(values) == 0 {
			continue
		}
		if count == 0 {
			count = len(values)
			continue
		}
		if count > math.MaxInt/len(values) {
			return math.MaxInt
		}
		count *= len(values)
	}
	return count
}

// First implements Candidates.
func (o CandidateOptions) First() any {
	first := map[string]any{}
	for key, values := range o {
		if len(values) > 0 {
			first[key] = values[0]
		}
	}
	if len(first) == 0 {
		return nil
	}
	return first
}

func (o CandidateOptions) expand() Expansion {
	raw := make(map[string]any, len(o))
	for key, values := range o {
		raw[key] = values
	}
	return Expansion{RequestSafe: []any{raw}, All: Combinations(o)}
}

// Combinations expands options into every combination of their values.
// Keys are visited in ascending order; each later key multiplies the
// combinations built so far, so the last key varies fastest:
//
//	{a:[1,2], b:[3,4]} -> {a:1,b:3} {a:1,b:4} {a:2,b:3} {a:2,b:4}
func Combinations(options CandidateOptions) []any {
	keys := make([]string, 0, len(options))
	for key := range options {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var combos []map[string]any
	for _, key := range keys {
		values := options[key]
		if len(values) == 0 {
			continue
		}

		if combos == nil {
			combos = make([]map[string]any, 0, len(values))
			for _, value := range values {
				combos = append(combos, map[string]any{key: value})
			}
			continue
		}

		next := make([]map[string]any, 0, len(combos)*len(values))
		for _, combo := range combos {
			for _, value := range values {
				item := make(map[string]any, len(combo)+1)
				for k, v := range combo {
					item[k] = v
				}
				item[key] = value
				next = append(next, item)
			}
		}
		combos = next
	}

	out := make([]any, len(combos))
	for i, combo := range combos {
		out[i] = combo
	}
	return out
}

func toList(value any) []any {
	if value == nil {
		return nil
	}
	if list, ok := value.([]any); ok {
		return list
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{value}
	}
	// []byte is a scalar in JSON
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
		return []any{value}
	}

	list := make([]any, rv.Len())
	for i := range list {
		list[i] = rv.Index(i).Interface()
	}
	return list
}

// isObject reports whether v encodes as a JSON object.
func isObject(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	return rv.Kind() == reflect.Map || rv.Kind() == reflect.Struct
}
