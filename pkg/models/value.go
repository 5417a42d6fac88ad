package models

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	NullKind Kind = iota
	BoolKind
	NumberKind
	StringKind
	ArrayKind
	MapKind
	ModelKind
	RefKind
)

func (k Kind) String() string {
	switch k {
	case NullKind:
		return "null"
	case BoolKind:
		return "bool"
	case NumberKind:
		return "number"
	case StringKind:
		return "string"
	case ArrayKind:
		return "array"
	case MapKind:
		return "map"
	case ModelKind:
		return "model"
	case RefKind:
		return "ref"
	default:
		return "unknown"
	}
}

// Value is the attribute value of a model: a scalar, an array, a map,
// a live model instance or an unresolved wire reference.
//
// The zero Value is null.
type Value struct {
	kind  Kind
	b     bool
	n     float64
	s     string
	arr   []Value
	m     map[string]Value
	model *Model
	ref   Ref
}

// Null is the null value.
var Null = Value{}

func Bool(b bool) Value {
	return Value{kind: BoolKind, b: b}
}

func Number(n float64) Value {
	return Value{kind: NumberKind, n: n}
}

func Int(i int) Value {
	return Value{kind: NumberKind, n: float64(i)}
}

func String(s string) Value {
	return Value{kind: StringKind, s: s}
}

// Array builds an array value. Array() is the empty array, not null.
func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: ArrayKind, arr: items}
}

// Strings is a shorthand for an array of string values.
func Strings(items ...string) Value {
	out := make([]Value, len(items))
	for i, s := range items {
		out[i] = String(s)
	}
	return Array(out...)
}

// Map builds a map value. A nil map becomes the empty map.
func Map(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: MapKind, m: m}
}

// Instance wraps a model. A nil model is null.
func Instance(m *Model) Value {
	if m == nil {
		return Null
	}
	return Value{kind: ModelKind, model: m}
}

// RefValue wraps an unresolved reference.
func RefValue(r Ref) Value {
	return Value{kind: RefKind, ref: r}
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsNull() bool {
	return v.kind == NullKind
}

func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == BoolKind
}

func (v Value) AsNumber() (float64, bool) {
	return v.n, v.kind == NumberKind
}

// AsInt returns the number as an int when it holds an integral value.
func (v Value) AsInt() (int, bool) {
	if v.kind != NumberKind || v.n != math.Trunc(v.n) {
		return 0, false
	}
	return int(v.n), true
}

func (v Value) AsString() (string, bool) {
	return v.s, v.kind == StringKind
}

func (v Value) AsArray() ([]Value, bool) {
	return v.arr, v.kind == ArrayKind
}

func (v Value) AsMap() (map[string]Value, bool) {
	return v.m, v.kind == MapKind
}

func (v Value) AsModel() (*Model, bool) {
	return v.model, v.kind == ModelKind
}

func (v Value) AsRef() (Ref, bool) {
	return v.ref, v.kind == RefKind
}

// Get looks up key in a map value.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != MapKind {
		return Null, false
	}
	e, ok := v.m[key]
	return e, ok
}

// Len is the number of elements of an array or map, zero otherwise.
func (v Value) Len() int {
	switch v.kind {
	case ArrayKind:
		return len(v.arr)
	case MapKind:
		return len(v.m)
	}
	return 0
}

// Walk visits v and, in pre-order, every value nested in its arrays and maps.
// fn returning false skips the children of the visited value. Models are
// leaves: Walk never descends into a model's attributes.
func (v Value) Walk(fn func(Value) bool) {
	if !fn(v) {
		return
	}
	switch v.kind {
	case ArrayKind:
		for _, e := range v.arr {
			e.Walk(fn)
		}
	case MapKind:
		for _, k := range v.sortedKeys() {
			v.m[k].Walk(fn)
		}
	}
}

// Transform rebuilds v bottom-up, replacing every value for which fn
// returns a non-nil error or a replacement. Containers are copied.
func (v Value) Transform(fn func(Value) (Value, error)) (Value, error) {
	switch v.kind {
	case ArrayKind:
		out := make([]Value, len(v.arr))
		for i, e := range v.arr {
			r, err := e.Transform(fn)
			if err != nil {
				return Null, err
			}
			out[i] = r
		}
		return fn(Array(out...))
	case MapKind:
		out := make(map[string]Value, len(v.m))
		for k, e := range v.m {
			r, err := e.Transform(fn)
			if err != nil {
				return Null, err
			}
			out[k] = r
		}
		return fn(Map(out))
	}
	return fn(v)
}

// Copy deep-copies arrays and maps. Models are shared, not copied.
func (v Value) Copy() Value {
	switch v.kind {
	case ArrayKind:
		out := make([]Value, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Copy()
		}
		return Array(out...)
	case MapKind:
		out := make(map[string]Value, len(v.m))
		for k, e := range v.m {
			out[k] = e.Copy()
		}
		return Map(out)
	}
	return v
}

// Equal compares by value. Models compare by identity, refs by id.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case NullKind:
		return true
	case BoolKind:
		return a.b == b.b
	case NumberKind:
		return a.n == b.n || (math.IsNaN(a.n) && math.IsNaN(b.n))
	case StringKind:
		return a.s == b.s
	case ArrayKind:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case MapKind:
		if len(a.m) != len(b.m) {
			return false
		}
		for k, av := range a.m {
			bv, ok := b.m[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case ModelKind:
		return a.model == b.model
	case RefKind:
		return a.ref.ID == b.ref.ID
	}
	return false
}

func (v Value) sortedKeys() []string {
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (v Value) String() string {
	switch v.kind {
	case NullKind:
		return "null"
	case BoolKind:
		return strconv.FormatBool(v.b)
	case NumberKind:
		return strconv.FormatFloat(v.n, 'g', -1, 64)
	case StringKind:
		return strconv.Quote(v.s)
	case ArrayKind:
		parts := make([]string, len(v.arr))
		for i, e := range v.arr {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case MapKind:
		keys := v.sortedKeys()
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = strconv.Quote(k) + ": " + v.m[k].String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case ModelKind:
		return v.model.String()
	case RefKind:
		return fmt.Sprintf("ref(%s)", v.ref.ID)
	}
	return "?"
}
