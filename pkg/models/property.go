package models

import (
	"errors"
	"fmt"

	"github.com/modelsync/modelsync/pkg/constants"
)

// Spec is the normalized form of a property value: either a literal value
// or a field of a data source, optionally transformed.
type Spec struct {
	// Value is nil for field specs.
	Value     *Value
	Field     string
	Units     string
	Transform *Model
}

func (s Spec) IsField() bool {
	return s.Value == nil
}

var errNoValueSpec = errors.New("attempted to retrieve property value for property without value specification")

// parseSpec resolves the raw value of a dataspec attribute. Arrays are
// always literals; a map with exactly one of "value" or "field" is an
// explicit spec.
func parseSpec(attr string, raw Value) (Spec, error) {
	m, ok := raw.AsMap()
	if !ok {
		v := raw
		return Spec{Value: &v}, nil
	}

	value, hasValue := m["value"]
	field, hasField := m["field"]
	switch {
	case hasValue && hasField:
		return Spec{}, fmt.Errorf("%w: spec for '%s' mixes value and field", constants.ErrInvalidValue, attr)
	case !hasValue && !hasField:
		v := raw
		return Spec{Value: &v}, nil
	}

	var spec Spec
	if hasValue {
		spec.Value = &value
	} else {
		f, ok := field.AsString()
		if !ok {
			return Spec{}, fmt.Errorf("%w: field value for property '%s' is not a string", constants.ErrInvalidValue, attr)
		}
		spec.Field = f
	}
	if units, ok := m["units"]; ok && !units.IsNull() {
		u, ok := units.AsString()
		if !ok {
			return Spec{}, fmt.Errorf("%w: units for property '%s' is not a string", constants.ErrInvalidValue, attr)
		}
		spec.Units = u
	}
	if tr, ok := m["transform"]; ok && !tr.IsNull() {
		tm, ok := tr.AsModel()
		if !ok {
			return Spec{}, fmt.Errorf("%w: transform for property '%s' is not a model", constants.ErrInvalidValue, attr)
		}
		spec.Transform = tm
	}
	return spec, nil
}

// PropertyChange is the payload of Property.Change.
type PropertyChange struct {
	Old Value
	New Value
}

// Property is the typed slot of one attribute on one model.
type Property struct {
	model *Model
	def   AttrDef
	spec  Spec

	// Change fires whenever a non-silent write changes the value. Old is the
	// value before the first write of the batch.
	Change *Signal[PropertyChange]
}

func newProperty(m *Model, def AttrDef) *Property {
	return &Property{
		model:  m,
		def:    def,
		Change: NewSignal[PropertyChange](def.Name + ":change"),
	}
}

func (p *Property) Name() string {
	return p.def.Name
}

func (p *Property) Def() AttrDef {
	return p.def
}

func (p *Property) Spec() Spec {
	return p.spec
}

// check validates a candidate value without touching the model.
func (p *Property) check(v Value) (Spec, error) {
	if ref, ok := firstRef(v); ok {
		return Spec{}, fmt.Errorf("%w: %s.%s given unresolved ref %s", constants.ErrInvalidValue, p.model.typ, p.def.Name, ref.ID)
	}
	spec := Spec{Value: &v}
	if p.def.Dataspec {
		var err error
		if spec, err = parseSpec(p.def.Name, v); err != nil {
			return Spec{}, err
		}
	}
	if spec.Value != nil && !spec.Value.IsNull() {
		if err := p.def.Policy.Validate(*spec.Value); err != nil {
			return Spec{}, fmt.Errorf("%s property '%s': %w", p.def.Policy.Name(), p.def.Name, err)
		}
	}
	return spec, nil
}

// update re-derives the spec from the stored attribute.
func (p *Property) update() error {
	spec, err := p.check(p.model.attributes[p.def.Name])
	if err != nil {
		return err
	}
	p.spec = spec
	return nil
}

// Value returns the literal of a value spec, passed through the spec
// transform when applyTransform is set.
func (p *Property) Value(applyTransform bool) (Value, error) {
	if p.spec.Value == nil {
		return Null, errNoValueSpec
	}
	ret := *p.spec.Value
	if applyTransform && p.spec.Transform != nil {
		tr, err := transformOf(p.spec.Transform)
		if err != nil {
			return Null, err
		}
		return tr.Compute(ret)
	}
	return ret, nil
}

// Array materializes the property against source: a literal repeats once
// per row, a field reads the named column. The spec transform applies last.
func (p *Property) Array(source DataSource) ([]Value, error) {
	var ret []Value
	if p.spec.IsField() {
		col, ok := source.Column(p.spec.Field)
		if !ok {
			return nil, fmt.Errorf("%w '%s'", constants.ErrMissingField, p.spec.Field)
		}
		ret = append([]Value(nil), col...)
	} else {
		length, ok := source.Length()
		if !ok {
			length = 1
		}
		value, err := p.Value(false)
		if err != nil {
			return nil, err
		}
		ret = make([]Value, length)
		for i := range ret {
			ret[i] = value
		}
	}

	if p.spec.Transform != nil {
		tr, err := transformOf(p.spec.Transform)
		if err != nil {
			return nil, err
		}
		return tr.VCompute(ret)
	}
	return ret, nil
}

func transformOf(m *Model) (Transform, error) {
	tr, ok := m.Behavior().(Transform)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a transform", constants.ErrInvalidValue, m)
	}
	return tr, nil
}

func (p *Property) String() string {
	spec := "value"
	if p.spec.IsField() {
		spec = "field=" + p.spec.Field
	}
	return fmt.Sprintf("%s(%s.%s, %s)", p.def.Policy.Name(), p.model, p.def.Name, spec)
}

func firstRef(v Value) (Ref, bool) {
	var found *Ref
	v.Walk(func(x Value) bool {
		if found != nil {
			return false
		}
		if r, ok := x.AsRef(); ok {
			found = &r
			return false
		}
		return true
	})
	if found == nil {
		return Ref{}, false
	}
	return *found, true
}
