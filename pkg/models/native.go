package models

import (
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"
	"github.com/goccy/go-json"
)

// Native converts v into plain Go data (nil, bool, float64, string,
// []any, map[string]any). Models and refs degrade to ref maps.
func (v Value) Native() any {
	switch v.kind {
	case BoolKind:
		return v.b
	case NumberKind:
		return v.n
	case StringKind:
		return v.s
	case ArrayKind:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Native()
		}
		return out
	case MapKind:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = e.Native()
		}
		return out
	case ModelKind:
		return v.model.Ref().native()
	case RefKind:
		return v.ref.native()
	}
	return nil
}

// FromNative converts decoded wire data into a Value. Maps shaped like a
// model reference become RefKind values.
func FromNative(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null, nil
	case Value:
		return t, nil
	case *Model:
		return Instance(t), nil
	case Ref:
		return RefValue(t), nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int8:
		return Number(float64(t)), nil
	case int16:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint:
		return Number(float64(t)), nil
	case uint8:
		return Number(float64(t)), nil
	case uint16:
		return Number(float64(t)), nil
	case uint32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Null, err
		}
		return Number(f), nil
	case string:
		return String(t), nil
	case []string:
		return Strings(t...), nil
	case []float64:
		out := make([]Value, len(t))
		for i, f := range t {
			out[i] = Number(f)
		}
		return Array(out...), nil
	case []Value:
		return Array(t...), nil
	case []any:
		out := make([]Value, len(t))
		for i, e := range t {
			v, err := FromNative(e)
			if err != nil {
				return Null, err
			}
			out[i] = v
		}
		return Array(out...), nil
	case map[string]Value:
		return Map(t), nil
	case map[string]any:
		if r, ok := refFromMap(t); ok {
			return RefValue(r), nil
		}
		out := make(map[string]Value, len(t))
		for k, e := range t {
			v, err := FromNative(e)
			if err != nil {
				return Null, err
			}
			out[k] = v
		}
		return Map(out), nil
	case map[any]any:
		conv := make(map[string]any, len(t))
		for k, e := range t {
			ks, ok := k.(string)
			if !ok {
				ks = fmt.Sprint(k)
			}
			conv[ks] = e
		}
		return FromNative(conv)
	case cbor.Tag:
		if t.Number != uint64(ModelRefTag) {
			return Null, fmt.Errorf("unsupported CBOR tag %d", t.Number)
		}
		v, err := FromNative(t.Content)
		if err != nil {
			return Null, err
		}
		if v.kind != RefKind {
			return Null, fmt.Errorf("CBOR tag %d does not wrap a reference", t.Number)
		}
		return v, nil
	}
	return Null, fmt.Errorf("cannot convert %T to a model value", x)
}

// MustFromNative is FromNative for literals known to be convertible.
func MustFromNative(x any) Value {
	v, err := FromNative(x)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Native())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromNative(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// SortedAttrs turns a map of attributes into a batch ordered by name so
// that notifications for wire-originated updates are deterministic.
func SortedAttrs(m map[string]Value) []Attr {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Attr, len(keys))
	for i, k := range keys {
		out[i] = Attr{Name: k, Value: m[k]}
	}
	return out
}
