package models

import (
	"fmt"
	"slices"

	"github.com/gofrs/uuid"
	"github.com/modelsync/modelsync/pkg/constants"
)

// Owner is the document side of the model/document relationship.
type Owner interface {
	// InvalidateModels is called when a change altered the reference graph.
	InvalidateModels() error
	NotifyChange(m *Model, attr string, oldValue, newValue Value, setterID string)
	SubscribeEvents(modelID string)
	SendEvent(ev *UIEvent)
	TriggerEvent(ev *UIEvent)
}

// Attr is one entry of an ordered attribute batch.
type Attr struct {
	Name  string
	Value Value
}

// A is shorthand for an Attr literal.
func A(name string, v Value) Attr {
	return Attr{Name: name, Value: v}
}

// SetOptions tune a Setv call.
type SetOptions struct {
	// Silent writes without any notification.
	Silent bool
	// Defaults writes without marking the attributes as explicitly set.
	Defaults bool
	// NoChange suppresses the aggregate Change signal.
	NoChange bool
	// SetterID is handed to the document so peers can ignore their own echoes.
	SetterID string
}

// Construct controls model creation.
type Construct struct {
	// ID is generated when empty.
	ID    string
	Attrs []Attr
	// DeferInitialization leaves Finalize to the caller, for bulk graph
	// loading where referenced models are not complete yet.
	DeferInitialization bool
}

// Model is a uniquely identified bag of typed attributes.
//
// Models are not safe for concurrent use.
type Model struct {
	id      string
	typ     string
	subtype string
	schema  *Schema

	attributes       map[string]Value
	setAfterDefaults map[string]bool
	properties       map[string]*Property

	document Owner
	behavior any

	changing  bool
	pending   bool
	finalized bool

	connections   []Connection
	eventHandlers map[string][]func(*UIEvent)

	// Change is the aggregate signal, emitted once per outermost Setv.
	Change          *Signal[*Model]
	Destroyed       *Signal[*Model]
	TransformChange *Signal[*Model]
}

func NewID() string {
	return uuid.Must(uuid.NewV4()).String()
}

// New builds and finalizes a model of the given schema.
func New(s *Schema, attrs ...Attr) (*Model, error) {
	return NewWithOptions(s, Construct{Attrs: attrs})
}

// MustNew is New for statically known attribute sets.
func MustNew(s *Schema, attrs ...Attr) *Model {
	m, err := New(s, attrs...)
	if err != nil {
		panic(err)
	}
	return m
}

func NewWithOptions(s *Schema, opts Construct) (*Model, error) {
	m := &Model{
		id:               opts.ID,
		typ:              s.name,
		schema:           s,
		attributes:       make(map[string]Value, len(s.attrs)),
		setAfterDefaults: make(map[string]bool),
		properties:       make(map[string]*Property, len(s.attrs)),
		eventHandlers:    make(map[string][]func(*UIEvent)),
		Change:           NewSignal[*Model]("change"),
		Destroyed:        NewSignal[*Model]("destroyed"),
		TransformChange:  NewSignal[*Model]("transformchange"),
	}
	if m.id == "" {
		m.id = NewID()
	}
	if s.NewBehavior != nil {
		m.behavior = s.NewBehavior(m)
	}

	for _, def := range s.attrs {
		m.properties[def.Name] = newProperty(m, def)
	}
	for _, def := range s.attrs {
		if err := m.materializeDefault(def); err != nil {
			return nil, err
		}
	}

	if err := m.Setv(opts.Attrs, SetOptions{Silent: true}); err != nil {
		return nil, err
	}

	if !opts.DeferInitialization {
		if err := m.Finalize(opts.Attrs); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Model) materializeDefault(def AttrDef) error {
	if _, ok := m.attributes[def.Name]; ok {
		return nil
	}
	v := def.Default.materialize(m)
	return m.Setv([]Attr{{Name: def.Name, Value: v}}, SetOptions{Silent: true, Defaults: true})
}

// Finalize completes construction: property specs are refreshed, spec
// transforms are connected and the type's initializer and signal
// connector run. It is a no-op on an already finalized model.
func (m *Model) Finalize(attrs []Attr) error {
	if m.finalized {
		return nil
	}
	for _, def := range m.schema.attrs {
		prop := m.properties[def.Name]
		if err := prop.update(); err != nil {
			return err
		}
		if tr := prop.spec.Transform; tr != nil {
			Listen(m, tr.Change, func(*Model) { m.TransformChange.Emit(m) })
		}
	}

	if init, ok := m.behavior.(Initializer); ok {
		if err := init.Initialize(attrs); err != nil {
			return fmt.Errorf("initializing %s: %w", m, err)
		}
	}
	m.connectSignals()
	m.finalized = true
	return nil
}

func (m *Model) connectSignals() {
	if prop, ok := m.properties[constants.SubscribedEventsAttr]; ok {
		Listen(m, prop.Change, func(PropertyChange) { m.updateEventSubscription() })
	}
	if sc, ok := m.behavior.(SignalConnector); ok {
		sc.ConnectSignals()
	}
}

func (m *Model) IsFinalized() bool {
	return m.finalized
}

// Destroy releases every connection the model holds, then emits Destroyed.
func (m *Model) Destroy() {
	for _, c := range m.connections {
		c.Disconnect()
	}
	m.connections = nil
	m.Destroyed.Emit(m)
	m.Change.DisconnectAll()
	m.TransformChange.DisconnectAll()
	m.Destroyed.DisconnectAll()
	for _, p := range m.properties {
		p.Change.DisconnectAll()
	}
}

// Clone builds a new model of the same type with the same attributes.
func (m *Model) Clone() (*Model, error) {
	attrs := make([]Attr, 0, len(m.schema.attrs))
	for _, def := range m.schema.attrs {
		if m.setAfterDefaults[def.Name] {
			attrs = append(attrs, Attr{Name: def.Name, Value: m.attributes[def.Name].Copy()})
		}
	}
	return New(m.schema, attrs...)
}

func (m *Model) ID() string {
	return m.id
}

func (m *Model) Type() string {
	return m.typ
}

func (m *Model) Schema() *Schema {
	return m.schema
}

// Subtype is only kept so it can be echoed back to the peer.
func (m *Model) Subtype() string {
	return m.subtype
}

func (m *Model) SetSubtype(subtype string) {
	m.subtype = subtype
}

// Behavior returns the type-specific logic built by the schema, if any.
func (m *Model) Behavior() any {
	return m.behavior
}

func (m *Model) Document() Owner {
	return m.document
}

func (m *Model) Ref() Ref {
	return Ref{ID: m.id, Type: m.typ, Subtype: m.subtype}
}

func (m *Model) String() string {
	return fmt.Sprintf("%s(%s)", m.typ, m.id)
}

func (m *Model) undeclared(name string) error {
	return fmt.Errorf("%w: %s.%s", constants.ErrUndeclaredProperty, m.typ, name)
}

// Property returns the slot backing name.
func (m *Model) Property(name string) (*Property, error) {
	p, ok := m.properties[name]
	if !ok {
		return nil, m.undeclared(name)
	}
	return p, nil
}

func (m *Model) Getv(name string) (Value, error) {
	if _, ok := m.properties[name]; !ok {
		return Null, m.undeclared(name)
	}
	return m.attributes[name], nil
}

// Set writes a single attribute with default options.
func (m *Model) Set(name string, v Value) error {
	return m.Setv([]Attr{{Name: name, Value: v}}, SetOptions{})
}

// Setv writes a batch of attributes. Every name is checked against the
// schema and every value against its policy before anything is written.
// Attribute-level Change signals fire in batch order; the aggregate Change
// signal fires only from the outermost call, once all nested writes made by
// handlers have settled.
func (m *Model) Setv(attrs []Attr, opts SetOptions) error {
	if len(attrs) == 0 {
		return nil
	}
	specs, err := m.check(attrs)
	if err != nil {
		return err
	}
	if !opts.Silent {
		if err := m.checkOwnership(attrs); err != nil {
			return err
		}
	}

	for _, a := range attrs {
		if !opts.Defaults {
			m.setAfterDefaults[a.Name] = true
		}
	}

	old := make([]Value, len(attrs))
	for i, a := range attrs {
		old[i] = m.attributes[a.Name]
	}

	m.write(attrs, specs, opts)

	if !opts.Silent {
		for i, a := range attrs {
			if err := m.tellDocumentAboutChange(a.Name, old[i], m.attributes[a.Name], opts); err != nil {
				return err
			}
		}
	}
	return nil
}

// Validate checks attrs the way Setv would, without writing anything.
func (m *Model) Validate(attrs []Attr) error {
	_, err := m.check(attrs)
	return err
}

func (m *Model) check(attrs []Attr) ([]Spec, error) {
	specs := make([]Spec, len(attrs))
	for i, a := range attrs {
		prop, ok := m.properties[a.Name]
		if !ok {
			return nil, m.undeclared(a.Name)
		}
		spec, err := prop.check(a.Value)
		if err != nil {
			return nil, err
		}
		specs[i] = spec
	}
	return specs, nil
}

// checkOwnership rejects values that would pull a model owned by another
// document into m's document.
func (m *Model) checkOwnership(attrs []Attr) error {
	if m.document == nil {
		return nil
	}
	refs := NewRefSet()
	for _, a := range attrs {
		if def, _ := m.schema.Attr(a.Name); def.Internal {
			continue
		}
		RecordReferences(a.Value, refs, true)
	}
	for _, r := range refs.Models() {
		if r.document != nil && r.document != m.document {
			return fmt.Errorf("%w: %s", constants.ErrOwnershipViolation, r)
		}
	}
	return nil
}

func (m *Model) write(attrs []Attr, specs []Spec, opts SetOptions) {
	changing := m.changing
	m.changing = true

	var changes []string
	olds := make(map[string]Value, len(attrs))
	for i, a := range attrs {
		if _, ok := olds[a.Name]; !ok {
			olds[a.Name] = m.attributes[a.Name]
		}
		if cur, ok := m.attributes[a.Name]; !ok || !Equal(cur, a.Value) {
			if !slices.Contains(changes, a.Name) {
				changes = append(changes, a.Name)
			}
		}
		m.attributes[a.Name] = a.Value
		m.properties[a.Name].spec = specs[i]
	}

	if !opts.Silent {
		if len(changes) > 0 {
			m.pending = true
		}
		for _, name := range changes {
			m.properties[name].Change.Emit(PropertyChange{Old: olds[name], New: m.attributes[name]})
		}
	}

	// nested calls only mark pending; the outermost call drains
	if changing {
		return
	}
	if !opts.Silent && !opts.NoChange {
		for m.pending {
			m.pending = false
			m.Change.Emit(m)
		}
	}
	m.pending = false
	m.changing = false
}

// IsSetExplicitly reports whether name was written other than by its default.
func (m *Model) IsSetExplicitly(name string) bool {
	return m.setAfterDefaults[name]
}

func (m *Model) AttributeIsSerializable(name string) (bool, error) {
	def, ok := m.schema.Attr(name)
	if !ok {
		return false, m.undeclared(name)
	}
	return !def.Internal, nil
}

// SerializableAttributes returns the non-internal attributes in
// declaration order.
func (m *Model) SerializableAttributes() []Attr {
	out := make([]Attr, 0, len(m.schema.attrs))
	for _, def := range m.schema.attrs {
		if def.Internal {
			continue
		}
		out = append(out, Attr{Name: def.Name, Value: m.attributes[def.Name]})
	}
	return out
}

// AttributesAsJSON returns the serializable attributes with model values
// degraded to refs. Without includeDefaults only explicitly set attributes
// are returned.
func (m *Model) AttributesAsJSON(includeDefaults bool) map[string]Value {
	out := make(map[string]Value)
	for _, a := range m.SerializableAttributes() {
		if includeDefaults || m.setAfterDefaults[a.Name] {
			out[a.Name] = ToWire(a.Value)
		}
	}
	return out
}

// ToWire replaces every model nested in v by its ref.
func ToWire(v Value) Value {
	out, _ := v.Transform(func(x Value) (Value, error) {
		if mm, ok := x.AsModel(); ok {
			return RefValue(mm.Ref()), nil
		}
		return x, nil
	})
	return out
}

func (m *Model) tellDocumentAboutChange(attr string, oldValue, newValue Value, opts SetOptions) error {
	if def, _ := m.schema.Attr(attr); def.Internal {
		return nil
	}
	if m.document == nil {
		return nil
	}

	if !sameReferences(oldValue, newValue) {
		if err := m.document.InvalidateModels(); err != nil {
			return err
		}
	}
	m.document.NotifyChange(m, attr, oldValue, newValue, opts.SetterID)
	return nil
}

func sameReferences(a, b Value) bool {
	ra, rb := NewRefSet(), NewRefSet()
	RecordReferences(a, ra, false)
	RecordReferences(b, rb, false)
	if ra.Len() != rb.Len() {
		return false
	}
	for _, id := range ra.order {
		if !rb.Has(id) {
			return false
		}
	}
	return true
}

// AttachDocument is called by the document when the model becomes reachable.
func (m *Model) AttachDocument(doc Owner) error {
	if m.document != nil && m.document != doc {
		return fmt.Errorf("%w: %s", constants.ErrOwnershipViolation, m)
	}
	m.document = doc
	m.docAttached()
	return nil
}

// DetachDocument is called by the document when the model is no longer reachable.
func (m *Model) DetachDocument() {
	m.document = nil
}

// Name returns the "name" attribute, empty when unset or undeclared.
func (m *Model) Name() string {
	v, ok := m.attributes[constants.NameAttr]
	if !ok {
		return ""
	}
	s, _ := v.AsString()
	return s
}

// MaterializeDataspecs materializes every dataspec property against source
// into "_<name>" arrays.
func (m *Model) MaterializeDataspecs(source DataSource) (map[string][]Value, error) {
	data := make(map[string][]Value)
	for _, def := range m.schema.attrs {
		if !def.Dataspec {
			continue
		}
		prop := m.properties[def.Name]
		if def.Optional && prop.spec.Value != nil && prop.spec.Value.IsNull() && !m.setAfterDefaults[def.Name] {
			continue
		}
		arr, err := prop.Array(source)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", m.typ, def.Name, err)
		}
		data["_"+def.Name] = arr
	}
	return data, nil
}
