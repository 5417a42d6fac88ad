package modelsync

import (
	"fmt"
	"slices"
	"sort"

	"github.com/buger/jsonparser"
	"github.com/goccy/go-json"
	"github.com/modelsync/modelsync/pkg/constants"
	"github.com/modelsync/modelsync/pkg/models"
)

// ModelJSON is the fully serialized form of one model.
type ModelJSON struct {
	ID         string                  `json:"id" cbor:"id"`
	Type       string                  `json:"type" cbor:"type"`
	Subtype    string                  `json:"subtype,omitempty" cbor:"subtype,omitempty"`
	Attributes map[string]models.Value `json:"attributes" cbor:"attributes"`
}

// EventJSON is the wire form of a change event. Which fields are set
// depends on Kind.
type EventJSON struct {
	Kind string `json:"kind" cbor:"kind"`

	Model *models.Ref   `json:"model,omitempty" cbor:"model,omitempty"`
	Attr  string        `json:"attr,omitempty" cbor:"attr,omitempty"`
	New   *models.Value `json:"new,omitempty" cbor:"new,omitempty"`

	Title *string `json:"title,omitempty" cbor:"title,omitempty"`

	ColumnSource *models.Ref   `json:"column_source,omitempty" cbor:"column_source,omitempty"`
	Data         *models.Value `json:"data,omitempty" cbor:"data,omitempty"`
	Rollover     *models.Value `json:"rollover,omitempty" cbor:"rollover,omitempty"`
	Patches      *models.Value `json:"patches,omitempty" cbor:"patches,omitempty"`
}

// UnmarshalJSON rejects unknown kinds before decoding the rest of the event.
func (e *EventJSON) UnmarshalJSON(data []byte) error {
	kind, err := jsonparser.GetString(data, "kind")
	if err != nil {
		return fmt.Errorf("%w: event without kind: %v", constants.ErrMalformedPatch, err)
	}
	if !knownKind(kind) {
		return fmt.Errorf("%w: %s", constants.ErrUnknownEventKind, kind)
	}

	type plain EventJSON
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = EventJSON(p)
	return nil
}

func knownKind(kind string) bool {
	switch kind {
	case constants.KindModelChanged, constants.KindRootAdded, constants.KindRootRemoved,
		constants.KindTitleChanged, constants.KindColumnsStreamed, constants.KindColumnsPatched:
		return true
	}
	return false
}

// Validate checks that the event carries the fields its kind requires.
func (e *EventJSON) Validate() error {
	missing := func(field string) error {
		return fmt.Errorf("%w: %s event without %s", constants.ErrMalformedPatch, e.Kind, field)
	}
	switch e.Kind {
	case constants.KindModelChanged:
		if e.Model == nil || e.Model.ID == "" {
			return missing("model")
		}
		if e.Attr == "" {
			return missing("attr")
		}
	case constants.KindRootAdded, constants.KindRootRemoved:
		if e.Model == nil || e.Model.ID == "" {
			return missing("model")
		}
	case constants.KindTitleChanged:
		if e.Title == nil {
			return missing("title")
		}
	case constants.KindColumnsStreamed:
		if e.ColumnSource == nil || e.ColumnSource.ID == "" {
			return missing("column_source")
		}
		if e.Data == nil {
			return missing("data")
		}
	case constants.KindColumnsPatched:
		if e.ColumnSource == nil || e.ColumnSource.ID == "" {
			return missing("column_source")
		}
		if e.Patches == nil {
			return missing("patches")
		}
	default:
		return fmt.Errorf("%w: %s", constants.ErrUnknownEventKind, e.Kind)
	}
	return nil
}

func (e *EventJSON) rollover() models.Value {
	if e.Rollover == nil {
		return models.Null
	}
	return *e.Rollover
}

func (e *EventJSON) target() string {
	switch {
	case e.Model != nil:
		return e.Model.ID
	case e.ColumnSource != nil:
		return e.ColumnSource.ID
	}
	return ""
}

// Patch is a self-contained set of change events plus every model they
// introduce.
type Patch struct {
	Events     []EventJSON `json:"events" cbor:"events"`
	References []ModelJSON `json:"references" cbor:"references"`
}

func (p *Patch) Validate() error {
	for i := range p.Events {
		if err := p.Events[i].Validate(); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
	}
	for _, r := range p.References {
		if r.ID == "" || r.Type == "" {
			return fmt.Errorf("%w: reference without id or type", constants.ErrMalformedPatch)
		}
	}
	return nil
}

func referencesJSON(ms []*models.Model, includeDefaults bool) []ModelJSON {
	out := make([]ModelJSON, 0, len(ms))
	for _, m := range ms {
		out = append(out, ModelJSON{
			ID:         m.ID(),
			Type:       m.Type(),
			Subtype:    m.Subtype(),
			Attributes: m.AttributesAsJSON(includeDefaults),
		})
	}
	return out
}

// CreateJSONPatch serializes events, which must all belong to d.
func (d *Document) CreateJSONPatch(events []ChangeEvent) (*Patch, error) {
	refs := models.NewRefSet()
	out := make([]EventJSON, 0, len(events))
	for _, ev := range events {
		if ev.Document() != d {
			return nil, constants.ErrForeignEvent
		}
		ej, err := ev.toJSON(refs)
		if err != nil {
			return nil, err
		}
		out = append(out, ej)
	}
	return &Patch{Events: out, References: referencesJSON(refs.Models(), true)}, nil
}

func (d *Document) CreateJSONPatchString(events []ChangeEvent) (string, error) {
	p, err := d.CreateJSONPatch(events)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Publish creates a patch from events and sends it to the transport.
func (d *Document) Publish(events []ChangeEvent) error {
	p, err := d.CreateJSONPatch(events)
	if err != nil {
		return err
	}
	d.events.SendPatch(p)
	return nil
}

func (d *Document) ApplyJSONPatchString(patch, setterID string) error {
	var p Patch
	if err := json.Unmarshal([]byte(patch), &p); err != nil {
		return err
	}
	return d.ApplyJSONPatch(&p, setterID)
}

// pendingModel is a model being loaded from serialized references.
type pendingModel struct {
	model *models.Model
	attrs map[string]models.Value
	fresh bool
}

// modelTable resolves ids while a patch or snapshot is being loaded: known
// models first, then the ones instantiated from the payload.
type modelTable struct {
	known   *models.RefSet
	fresh   map[string]*models.Model
	pending map[string]*pendingModel
	order   []string
}

// instantiate creates, with deferred initialization, every reference the
// document does not know yet. Known references reuse the attached instance.
func instantiate(refs []ModelJSON, known *models.RefSet, registry *models.Registry) (*modelTable, error) {
	t := &modelTable{
		known:   known,
		fresh:   make(map[string]*models.Model),
		pending: make(map[string]*pendingModel),
	}
	for _, obj := range refs {
		if _, ok := t.pending[obj.ID]; ok {
			continue
		}
		if m, ok := known.Get(obj.ID); ok {
			t.pending[obj.ID] = &pendingModel{model: m, attrs: obj.Attributes}
			t.order = append(t.order, obj.ID)
			continue
		}
		factory, err := registry.Lookup(obj.Type)
		if err != nil {
			return nil, err
		}
		m, err := factory(models.Construct{ID: obj.ID, DeferInitialization: true})
		if err != nil {
			return nil, fmt.Errorf("instantiating %s(%s): %w", obj.Type, obj.ID, err)
		}
		if obj.Subtype != "" {
			m.SetSubtype(obj.Subtype)
		}
		t.fresh[obj.ID] = m
		t.pending[obj.ID] = &pendingModel{model: m, attrs: obj.Attributes, fresh: true}
		t.order = append(t.order, obj.ID)
	}
	return t, nil
}

func (t *modelTable) lookup(id string) (*models.Model, bool) {
	if m, ok := t.known.Get(id); ok {
		return m, true
	}
	m, ok := t.fresh[id]
	return m, ok
}

// resolve replaces every ref nested in v by its model.
func (t *modelTable) resolve(v models.Value) (models.Value, error) {
	return v.Transform(func(x models.Value) (models.Value, error) {
		r, ok := x.AsRef()
		if !ok {
			return x, nil
		}
		m, ok := t.lookup(r.ID)
		if !ok {
			return models.Null, fmt.Errorf("%w: %s", constants.ErrUnresolvedReference, r.ID)
		}
		return models.Instance(m), nil
	})
}

// resolveAll resolves the attributes of every reference and checks the
// ones that will be written to fresh models.
func (t *modelTable) resolveAll() error {
	for _, id := range t.order {
		p := t.pending[id]
		resolved := make(map[string]models.Value, len(p.attrs))
		for k, v := range p.attrs {
			r, err := t.resolve(v)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", p.model, k, err)
			}
			resolved[k] = r
		}
		p.attrs = resolved
		if p.fresh {
			if err := p.model.Validate(models.SortedAttrs(resolved)); err != nil {
				return err
			}
		}
	}
	return nil
}

// initialize writes the attributes of fresh models, then finalizes them.
// Both passes visit a model's references before the model itself, so
// initializers see complete referenced models.
func (t *modelTable) initialize() error {
	if err := t.depthFirst(func(p *pendingModel) error {
		return p.model.Setv(models.SortedAttrs(p.attrs), models.SetOptions{Silent: true})
	}); err != nil {
		return err
	}
	return t.depthFirst(func(p *pendingModel) error {
		return p.model.Finalize(models.SortedAttrs(p.attrs))
	})
}

func (t *modelTable) depthFirst(fn func(*pendingModel) error) error {
	started := make(map[string]bool)

	var visit func(v models.Value) error
	visit = func(v models.Value) error {
		var err error
		v.Walk(func(x models.Value) bool {
			if err != nil {
				return false
			}
			m, ok := x.AsModel()
			if !ok {
				return true
			}
			p, ok := t.pending[m.ID()]
			if !ok || started[m.ID()] {
				return false
			}
			started[m.ID()] = true
			for _, k := range sortedKeys(p.attrs) {
				if err = visit(p.attrs[k]); err != nil {
					return false
				}
			}
			if p.fresh {
				err = fn(p)
			}
			return false
		})
		return err
	}

	for _, id := range t.order {
		if err := visit(models.Instance(t.pending[id].model)); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(m map[string]models.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// preparedEvent is a validated event ready for dispatch.
type preparedEvent struct {
	json   *EventJSON
	target *models.Model
	attrs  []models.Attr
}

// ApplyJSONPatch replays p against d. Reference resolution, event targets,
// attribute declarations and values are all checked before the document or
// any attached model is modified. Each event is checked against the roots
// and attributes the preceding events will leave behind, so a target that
// would be detached by the time its event applies fails the whole patch.
func (d *Document) ApplyJSONPatch(p *Patch, setterID string) (err error) {
	if p == nil {
		return fmt.Errorf("%w: nil patch", constants.ErrMalformedPatch)
	}
	defer func() {
		d.metrics.ObservePatch(len(p.Events), err)
	}()

	if err := p.Validate(); err != nil {
		return err
	}

	table, err := instantiate(p.References, d.allModels, d.registry)
	if err != nil {
		return err
	}
	if err := table.resolveAll(); err != nil {
		return err
	}

	prepared := make([]preparedEvent, len(p.Events))
	for i := range p.Events {
		ev := &p.Events[i]
		prepared[i].json = ev
		if ev.Kind == constants.KindTitleChanged {
			continue
		}

		target, ok := table.lookup(ev.target())
		if !ok {
			return fmt.Errorf("%w: %s event for %s", constants.ErrUnknownTarget, ev.Kind, ev.target())
		}
		prepared[i].target = target

		switch ev.Kind {
		case constants.KindModelChanged:
			attrs, err := d.changedAttrs(table, target, ev)
			if err != nil {
				return err
			}
			prepared[i].attrs = attrs
		case constants.KindColumnsStreamed, constants.KindColumnsPatched:
			if _, ok := target.Behavior().(models.ColumnSink); !ok {
				return fmt.Errorf("%w: %s", constants.ErrNotDataBearing, target)
			}
		}
	}

	if err := table.initialize(); err != nil {
		return err
	}

	plan := newPatchPlan(d.roots)
	for _, pe := range prepared {
		if err := plan.check(pe); err != nil {
			return err
		}
	}

	for _, pe := range prepared {
		if err := d.dispatch(table, pe, setterID); err != nil {
			return err
		}
	}
	return nil
}

// patchPlan follows the roots and attribute values a patch leaves behind
// event by event, without touching the document.
type patchPlan struct {
	roots     []*models.Model
	written   map[*models.Model]map[string]models.Value
	reachable *models.RefSet
}

func newPatchPlan(roots []*models.Model) *patchPlan {
	return &patchPlan{
		roots:   slices.Clone(roots),
		written: make(map[*models.Model]map[string]models.Value),
	}
}

func (pl *patchPlan) reader(m *models.Model) models.AttrReader {
	return func(name string) models.Value {
		if v, ok := pl.written[m][name]; ok {
			return v
		}
		v, _ := m.Getv(name)
		return v
	}
}

func (pl *patchPlan) write(m *models.Model, attrs []models.Attr) {
	w, ok := pl.written[m]
	if !ok {
		w = make(map[string]models.Value)
		pl.written[m] = w
	}
	for _, a := range attrs {
		w[a.Name] = a.Value
	}
	pl.reachable = nil
}

// attached reports whether m is reachable from the planned roots through
// the planned attribute values.
func (pl *patchPlan) attached(m *models.Model) bool {
	if pl.reachable == nil {
		pl.reachable = models.NewRefSet()
		var stack []*models.Model
		record := func(v models.Value) {
			v.Walk(func(x models.Value) bool {
				if ref, ok := x.AsModel(); ok {
					if pl.reachable.Add(ref) {
						stack = append(stack, ref)
					}
					return false
				}
				return true
			})
		}
		for _, r := range pl.roots {
			record(models.Instance(r))
		}
		for len(stack) > 0 {
			next := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			get := pl.reader(next)
			for _, a := range next.SerializableAttributes() {
				record(get(a.Name))
			}
		}
	}
	found, ok := pl.reachable.Get(m.ID())
	return ok && found == m
}

func (pl *patchPlan) check(pe preparedEvent) error {
	ev := pe.json
	switch ev.Kind {
	case constants.KindModelChanged:
		if !pl.attached(pe.target) {
			return fmt.Errorf("%w: cannot apply patch to %s which is not in the document", constants.ErrUnknownTarget, pe.target.ID())
		}
		pl.write(pe.target, pe.attrs)

	case constants.KindColumnsStreamed, constants.KindColumnsPatched:
		if !pl.attached(pe.target) {
			return fmt.Errorf("%w: cannot update columns of %s which is not in the document", constants.ErrUnknownTarget, pe.target.ID())
		}
		sink := pe.target.Behavior().(models.ColumnSink)
		var (
			attrs []models.Attr
			err   error
		)
		if ev.Kind == constants.KindColumnsPatched {
			attrs, err = sink.PlanPatch(pl.reader(pe.target), *ev.Patches)
		} else {
			attrs, err = sink.PlanStream(pl.reader(pe.target), *ev.Data, ev.rollover())
		}
		if err != nil {
			return err
		}
		pl.write(pe.target, attrs)

	case constants.KindRootAdded:
		if !slices.Contains(pl.roots, pe.target) {
			pl.roots = append(pl.roots, pe.target)
			pl.reachable = nil
		}

	case constants.KindRootRemoved:
		if i := slices.Index(pl.roots, pe.target); i >= 0 {
			pl.roots = slices.Delete(pl.roots, i, i+1)
			pl.reachable = nil
		}
	}
	return nil
}

// changedAttrs resolves and checks the value of a ModelChanged event.
func (d *Document) changedAttrs(table *modelTable, target *models.Model, ev *EventJSON) ([]models.Attr, error) {
	if ev.Attr == constants.IDAttr {
		return nil, fmt.Errorf("%w: %s", constants.ErrImmutableID, target)
	}
	raw := models.Null
	if ev.New != nil {
		raw = *ev.New
	}

	var attrs []models.Attr
	if dec, ok := target.Behavior().(models.AttrDecoder); ok {
		decoded, handled, err := dec.DecodeAttr(ev.Attr, raw)
		if err != nil {
			return nil, err
		}
		if handled {
			attrs = decoded
		}
	}
	if attrs == nil {
		value, err := table.resolve(raw)
		if err != nil {
			return nil, err
		}
		attrs = []models.Attr{{Name: ev.Attr, Value: value}}
	}

	if err := target.Validate(attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}

func (d *Document) dispatch(table *modelTable, pe preparedEvent, setterID string) error {
	ev := pe.json
	switch ev.Kind {
	case constants.KindModelChanged:
		target := d.GetModelByID(ev.Model.ID)
		if target == nil {
			return fmt.Errorf("%w: cannot apply patch to %s which is not in the document", constants.ErrUnknownTarget, ev.Model.ID)
		}
		return target.Setv(pe.attrs, models.SetOptions{SetterID: setterID})

	case constants.KindColumnsStreamed, constants.KindColumnsPatched:
		target := d.GetModelByID(ev.ColumnSource.ID)
		if target == nil {
			return fmt.Errorf("%w: cannot update columns of %s which is not in the document", constants.ErrUnknownTarget, ev.ColumnSource.ID)
		}
		sink := target.Behavior().(models.ColumnSink)
		if ev.Kind == constants.KindColumnsPatched {
			return sink.Patch(*ev.Patches, setterID)
		}
		return sink.Stream(*ev.Data, ev.rollover(), setterID)

	case constants.KindRootAdded:
		root, _ := table.lookup(ev.Model.ID)
		return d.addRoot(root, setterID)

	case constants.KindRootRemoved:
		root, _ := table.lookup(ev.Model.ID)
		return d.removeRoot(root, setterID)

	case constants.KindTitleChanged:
		d.setTitle(*ev.Title, setterID)
	}
	return nil
}
