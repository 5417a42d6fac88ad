package modelsync

import (
	"errors"
	"fmt"
	"slices"

	"github.com/modelsync/modelsync/pkg/constants"
	"github.com/modelsync/modelsync/pkg/logger"
	"github.com/modelsync/modelsync/pkg/metrics"
	"github.com/modelsync/modelsync/pkg/models"
)

// Document owns a forest of root models and every model reachable from them.
//
// A Document is not safe for concurrent use.
type Document struct {
	title string
	roots []*models.Model

	// allModels is the closure reachable from roots, except while frozen.
	allModels   *models.RefSet
	byName      map[string][]*models.Model
	freezeCount int

	callbacks      []changeCallback
	nextCallbackID uint64

	events        *EventManager
	registry      *models.Registry
	logger        logger.Logger
	metrics       *metrics.Collector
	recomputeHook func(RecomputeStats)
}

var (
	_ models.Owner           = (*Document)(nil)
	_ models.ColumnsNotifier = (*Document)(nil)
)

type changeCallback struct {
	id uint64
	fn func(ChangeEvent)
}

// CallbackHandle identifies a callback registered with OnChange.
type CallbackHandle uint64

func NewDocument(opts ...Option) *Document {
	d := &Document{
		title:     constants.DefaultTitle,
		allModels: models.NewRefSet(),
		byName:    make(map[string][]*models.Model),
		registry:  models.NewRegistry(),
	}
	d.events = newEventManager(d)
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = logger.Default()
	}
	return d
}

func (d *Document) Title() string {
	return d.title
}

func (d *Document) SetTitle(title string) {
	d.setTitle(title, "")
}

func (d *Document) setTitle(title, setterID string) {
	if title == d.title {
		return
	}
	d.title = title
	d.trigger(&TitleChangedEvent{docEvent: docEvent{doc: d, setter: setterID}, Title: title})
}

// Roots returns the root models in insertion order.
func (d *Document) Roots() []*models.Model {
	return slices.Clone(d.roots)
}

// AllModels returns every model currently attached to the document.
func (d *Document) AllModels() []*models.Model {
	return d.allModels.Models()
}

func (d *Document) Registry() *models.Registry {
	return d.registry
}

func (d *Document) EventManager() *EventManager {
	return d.events
}

// AddRoot adds m to the roots, attaching every model it reaches. Adding a
// root twice is a no-op. When a reachable model is owned by another
// document the root is not added.
func (d *Document) AddRoot(m *models.Model) error {
	return d.addRoot(m, "")
}

func (d *Document) addRoot(m *models.Model, setterID string) error {
	if slices.Contains(d.roots, m) {
		return nil
	}
	d.logger.Debug("adding root", "model", m.String())

	d.Freeze()
	d.roots = append(d.roots, m)
	if err := d.Unfreeze(); err != nil {
		d.roots = slices.DeleteFunc(d.roots, func(r *models.Model) bool { return r == m })
		return err
	}

	d.trigger(&RootAddedEvent{docEvent: docEvent{doc: d, setter: setterID}, Model: m})
	return nil
}

// RemoveRoot removes m from the roots, detaching every model no longer
// reachable. Removing a model that is not a root is a no-op.
func (d *Document) RemoveRoot(m *models.Model) error {
	return d.removeRoot(m, "")
}

func (d *Document) removeRoot(m *models.Model, setterID string) error {
	i := slices.Index(d.roots, m)
	if i < 0 {
		return nil
	}

	d.Freeze()
	d.roots = slices.Delete(d.roots, i, i+1)
	if err := d.Unfreeze(); err != nil {
		return err
	}

	d.trigger(&RootRemovedEvent{docEvent: docEvent{doc: d, setter: setterID}, Model: m})
	return nil
}

// Clear removes every root with a single recomputation.
func (d *Document) Clear() error {
	return d.Batch(func() error {
		for len(d.roots) > 0 {
			if err := d.RemoveRoot(d.roots[0]); err != nil {
				return err
			}
		}
		return nil
	})
}

// DestructivelyMove moves the roots and title of d into dest, replacing
// whatever dest held. d is left empty.
func (d *Document) DestructivelyMove(dest *Document) error {
	if dest == d {
		return constants.ErrSelfMove
	}
	if err := dest.Clear(); err != nil {
		return err
	}

	// every root leaves d before any joins dest, so no model is ever
	// attached to both
	roots := d.Roots()
	if err := d.Clear(); err != nil {
		return err
	}
	for _, r := range roots {
		if r.Document() != nil {
			return fmt.Errorf("%w: %s was not detached", constants.ErrOwnershipViolation, r)
		}
	}
	if d.allModels.Len() != 0 {
		return fmt.Errorf("%w: %d models still attached after clear", constants.ErrOwnershipViolation, d.allModels.Len())
	}

	for _, r := range roots {
		if err := dest.AddRoot(r); err != nil {
			return err
		}
	}
	dest.SetTitle(d.title)
	return nil
}

// Freeze defers recomputation of the reachable set until the matching
// Unfreeze. Calls nest.
func (d *Document) Freeze() {
	d.freezeCount++
}

// Unfreeze ends a Freeze scope. Leaving the outermost scope recomputes the
// reachable set.
func (d *Document) Unfreeze() error {
	if d.freezeCount == 0 {
		return errors.New("unfreeze without matching freeze")
	}
	d.freezeCount--
	if d.freezeCount == 0 {
		return d.recompute()
	}
	return nil
}

// Batch runs fn inside a Freeze scope. The scope is closed on every exit
// path, panics included.
func (d *Document) Batch(fn func() error) (err error) {
	d.Freeze()
	defer func() {
		err = errors.Join(err, d.Unfreeze())
	}()
	return fn()
}

// InvalidateModels recomputes the reachable set, or defers it while frozen.
func (d *Document) InvalidateModels() error {
	d.logger.Debug("invalidating document models")
	if d.freezeCount == 0 {
		return d.recompute()
	}
	return nil
}

func (d *Document) recompute() error {
	reachable := models.NewRefSet()
	for _, r := range d.roots {
		models.RecordReferences(models.Instance(r), reachable, true)
	}

	var toDetach, toAttach []*models.Model
	for _, m := range d.allModels.Models() {
		if !reachable.Has(m.ID()) {
			toDetach = append(toDetach, m)
		}
	}
	for _, m := range reachable.Models() {
		if d.allModels.Has(m.ID()) {
			continue
		}
		if owner := m.Document(); owner != nil && owner != models.Owner(d) {
			return fmt.Errorf("%w: %s", constants.ErrOwnershipViolation, m)
		}
		toAttach = append(toAttach, m)
	}

	for _, m := range toDetach {
		m.DetachDocument()
		d.unindexName(m, m.Name())
	}
	for _, m := range toAttach {
		if err := m.AttachDocument(d); err != nil {
			return err
		}
		d.indexName(m, m.Name())
	}
	d.allModels = reachable

	stats := RecomputeStats{Attached: len(toAttach), Detached: len(toDetach), Reachable: reachable.Len()}
	d.metrics.ObserveRecompute(stats.Attached, stats.Detached, stats.Reachable)
	if d.recomputeHook != nil {
		d.recomputeHook(stats)
	}
	return nil
}

func (d *Document) indexName(m *models.Model, name string) {
	if name == "" {
		return
	}
	d.byName[name] = append(d.byName[name], m)
}

func (d *Document) unindexName(m *models.Model, name string) {
	if name == "" {
		return
	}
	d.byName[name] = slices.DeleteFunc(d.byName[name], func(o *models.Model) bool { return o == m })
	if len(d.byName[name]) == 0 {
		delete(d.byName, name)
	}
}

// GetModelByID returns the attached model with the given id, or nil.
func (d *Document) GetModelByID(id string) *models.Model {
	m, _ := d.allModels.Get(id)
	return m
}

// GetModelByName returns the attached model named name, nil when there is
// none and ErrAmbiguousName when there are several.
func (d *Document) GetModelByName(name string) (*models.Model, error) {
	found := d.byName[name]
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("%w: multiple models are named '%s'", constants.ErrAmbiguousName, name)
	}
}

// OnChange registers cb for every change event of the document.
func (d *Document) OnChange(cb func(ChangeEvent)) CallbackHandle {
	d.nextCallbackID++
	d.callbacks = append(d.callbacks, changeCallback{id: d.nextCallbackID, fn: cb})
	return CallbackHandle(d.nextCallbackID)
}

func (d *Document) RemoveOnChange(h CallbackHandle) {
	d.callbacks = slices.DeleteFunc(d.callbacks, func(c changeCallback) bool {
		return c.id == uint64(h)
	})
}

func (d *Document) trigger(ev ChangeEvent) {
	d.metrics.ObserveChange(ev.Kind())
	for _, cb := range slices.Clone(d.callbacks) {
		cb.fn(ev)
	}
}

// NotifyChange is called by attached models after an attribute changed.
func (d *Document) NotifyChange(m *models.Model, attr string, oldValue, newValue models.Value, setterID string) {
	if attr == constants.NameAttr && d.allModels.Has(m.ID()) {
		oldName, _ := oldValue.AsString()
		newName, _ := newValue.AsString()
		d.unindexName(m, oldName)
		d.indexName(m, newName)
	}
	d.trigger(&ModelChangedEvent{
		docEvent: docEvent{doc: d, setter: setterID},
		Model:    m,
		Attr:     attr,
		Old:      oldValue,
		New:      newValue,
	})
}

func (d *Document) NotifyColumnsStreamed(m *models.Model, data, rollover models.Value, setterID string) {
	d.trigger(&ColumnsStreamedEvent{
		docEvent: docEvent{doc: d, setter: setterID},
		Source:   m,
		Data:     data,
		Rollover: rollover,
	})
}

func (d *Document) NotifyColumnsPatched(m *models.Model, patches models.Value, setterID string) {
	d.trigger(&ColumnsPatchedEvent{
		docEvent: docEvent{doc: d, setter: setterID},
		Source:   m,
		Patches:  patches,
	})
}

func (d *Document) SubscribeEvents(modelID string) {
	d.events.Subscribe(modelID)
}

func (d *Document) SendEvent(ev *models.UIEvent) {
	d.events.SendEvent(ev)
}

func (d *Document) TriggerEvent(ev *models.UIEvent) {
	d.events.Trigger(ev)
}
