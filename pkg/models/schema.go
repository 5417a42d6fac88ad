package models

import (
	"fmt"
	"sort"

	"github.com/modelsync/modelsync/pkg/constants"
)

// Default is the value an attribute takes when nothing was set explicitly.
type Default struct {
	value   Value
	factory func(*Model) Value
}

// DefaultValue uses v. Arrays and maps are copied for every model so
// instances never share a container.
func DefaultValue(v Value) Default {
	return Default{value: v}
}

// DefaultFunc computes the default from the owning model.
func DefaultFunc(fn func(*Model) Value) Default {
	return Default{factory: fn}
}

func (d Default) materialize(m *Model) Value {
	if d.factory != nil {
		return d.factory(m)
	}
	return d.value.Copy()
}

// AttrDef declares one attribute of a schema.
type AttrDef struct {
	Name    string
	Policy  Policy
	Default Default
	// Internal attributes are never serialized nor reported to the document.
	Internal bool
	// Dataspec attributes may be driven by a data source column.
	Dataspec bool
	// Optional dataspecs are skipped when materializing an unset null value.
	Optional bool
}

// Define declares a serializable attribute with an optional literal default.
func Define(name string, policy Policy, def ...Value) AttrDef {
	a := AttrDef{Name: name, Policy: policy}
	if len(def) > 0 {
		a.Default = DefaultValue(def[0])
	}
	return a
}

// Internal declares an attribute that stays local to this peer.
func Internal(name string, policy Policy, def ...Value) AttrDef {
	a := Define(name, policy, def...)
	a.Internal = true
	return a
}

// DataspecDef declares an attribute that can be bound to a data source field.
func DataspecDef(name string, policy Policy, def ...Value) AttrDef {
	a := Define(name, policy, def...)
	a.Dataspec = true
	return a
}

// Mixin prefixes a reusable group of attribute declarations, e.g. the
// line_/fill_/text_ style groups shared by glyphs.
func Mixin(prefix string, defs ...AttrDef) []AttrDef {
	out := make([]AttrDef, len(defs))
	for i, d := range defs {
		d.Name = prefix + d.Name
		out[i] = d
	}
	return out
}

// Schema is the statically enumerated attribute table of a model type.
type Schema struct {
	name  string
	base  *Schema
	attrs []AttrDef
	index map[string]int

	// NewBehavior, when set, builds the type-specific logic attached to each
	// model. The behavior may implement Initializer, SignalConnector,
	// Transform, DataSource or ColumnSink.
	NewBehavior func(m *Model) any
}

// NewSchema declares a type. Attributes of base are inherited; redeclaring
// one panics, as schemas are built once at program start.
func NewSchema(name string, base *Schema, defs ...AttrDef) *Schema {
	s := &Schema{name: name, base: base, index: make(map[string]int)}
	if base != nil {
		for _, d := range base.attrs {
			s.add(d)
		}
		s.NewBehavior = base.NewBehavior
	}
	for _, d := range defs {
		if _, ok := s.index[d.Name]; ok {
			panic(fmt.Sprintf("attempted to redefine property '%s.%s'", name, d.Name))
		}
		if d.Name == constants.IDAttr {
			panic(fmt.Sprintf("'%s.id' is reserved", name))
		}
		s.add(d)
	}
	return s
}

func (s *Schema) add(d AttrDef) {
	if d.Policy == nil {
		d.Policy = AnyPolicy
	}
	s.index[d.Name] = len(s.attrs)
	s.attrs = append(s.attrs, d)
}

// Extend declares a subtype of s.
func (s *Schema) Extend(name string, defs ...AttrDef) *Schema {
	return NewSchema(name, s, defs...)
}

// Override replaces the default of an inherited attribute.
func (s *Schema) Override(name string, def Default) *Schema {
	i, ok := s.index[name]
	if !ok {
		panic(fmt.Sprintf("attempted to override nonexistent '%s.%s'", s.name, name))
	}
	s.attrs[i].Default = def
	return s
}

func (s *Schema) Name() string {
	return s.name
}

func (s *Schema) Base() *Schema {
	return s.base
}

// Attr returns the declaration of name.
func (s *Schema) Attr(name string) (AttrDef, bool) {
	i, ok := s.index[name]
	if !ok {
		return AttrDef{}, false
	}
	return s.attrs[i], true
}

// Attrs returns every declaration in declaration order.
func (s *Schema) Attrs() []AttrDef {
	return append([]AttrDef(nil), s.attrs...)
}

// IsA reports whether s is name or derives from it.
func (s *Schema) IsA(name string) bool {
	for cur := s; cur != nil; cur = cur.base {
		if cur.name == name {
			return true
		}
	}
	return false
}

// BaseModel carries the attributes every document model has.
var BaseModel = NewSchema("Model", nil,
	Define(constants.NameAttr, StringPolicy),
	Define("tags", ArrayPolicy, Array()),
	Define(constants.SubscribedEventsAttr, ArrayPolicy, Array()),
)

// Factory builds a zero-state model of one type.
type Factory func(opts Construct) (*Model, error)

// Registry maps type names to schemas. It is the only way the document
// layer finds constructors for wire-originated models.
type Registry struct {
	schemas map[string]*Schema
}

func NewRegistry(schemas ...*Schema) *Registry {
	r := &Registry{schemas: make(map[string]*Schema)}
	for _, s := range schemas {
		r.Register(s)
	}
	return r
}

// Register adds s, replacing any schema of the same name.
func (r *Registry) Register(s *Schema) {
	r.schemas[s.name] = s
}

func (r *Registry) Schema(name string) (*Schema, bool) {
	s, ok := r.schemas[name]
	return s, ok
}

// Lookup returns the constructor for a type name.
func (r *Registry) Lookup(name string) (Factory, error) {
	s, ok := r.schemas[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", constants.ErrUnknownType, name)
	}
	return func(opts Construct) (*Model, error) {
		return NewWithOptions(s, opts)
	}, nil
}

// Names lists the registered types, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.schemas))
	for n := range r.schemas {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
