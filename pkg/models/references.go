package models

import (
	"fmt"

	"github.com/modelsync/modelsync/pkg/constants"
)

// RecordReferences adds every model found in v to result. With recurse,
// the models reachable from each found model are added too.
func RecordReferences(v Value, result *RefSet, recurse bool) {
	var stack []*Model
	v.Walk(func(x Value) bool {
		if m, ok := x.AsModel(); ok {
			if result.Add(m) && recurse {
				stack = append(stack, m)
			}
			return false
		}
		return true
	})

	for len(stack) > 0 {
		m := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, ref := range m.ImmediateReferences() {
			if result.Add(ref) {
				stack = append(stack, ref)
			}
		}
	}
}

// ImmediateReferences returns the models held directly by serializable
// attributes, in declaration order.
func (m *Model) ImmediateReferences() []*Model {
	result := NewRefSet()
	for _, a := range m.SerializableAttributes() {
		RecordReferences(a.Value, result, false)
	}
	return result.Models()
}

// References returns m and every model reachable from it.
func (m *Model) References() []*Model {
	result := NewRefSet()
	RecordReferences(Instance(m), result, true)
	return result.Models()
}

// Select returns the reachable models named name.
func (m *Model) Select(name string) []*Model {
	var out []*Model
	for _, ref := range m.References() {
		if ref.Name() == name {
			out = append(out, ref)
		}
	}
	return out
}

// SelectType returns the reachable models whose schema is or derives from typ.
func (m *Model) SelectType(typ string) []*Model {
	var out []*Model
	for _, ref := range m.References() {
		if ref.schema.IsA(typ) {
			out = append(out, ref)
		}
	}
	return out
}

// SelectOne returns the single reachable model named name, nil when there
// is none.
func (m *Model) SelectOne(name string) (*Model, error) {
	found := m.Select(name)
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("%w: found %d models named '%s'", constants.ErrAmbiguousName, len(found), name)
	}
}
