package modelsync

import (
	"slices"

	"github.com/modelsync/modelsync/pkg/constants"
	"github.com/modelsync/modelsync/pkg/models"
)

// ComputePatchSinceJSON returns the patch that turns the snapshot from into
// the current state of d. It detects changes made while a document was
// being loaded, e.g. by model initializers. Adding or removing roots is not
// supported and fails with ErrRootsChanged.
func (d *Document) ComputePatchSinceJSON(from *Snapshot) (*Patch, error) {
	to := d.ToJSON(false)

	fromRefs := indexReferences(from)
	toRefs := indexReferences(to)

	fromRoots := slices.Clone(from.Roots.RootIDs)
	toRoots := slices.Clone(to.Roots.RootIDs)
	slices.Sort(fromRoots)
	slices.Sort(toRoots)
	if !slices.Equal(fromRoots, toRoots) {
		return nil, constants.ErrRootsChanged
	}

	valueRefs := models.NewRefSet()
	var events []EventJSON
	for _, m := range d.allModels.Models() {
		fromObj, ok := fromRefs[m.ID()]
		if !ok {
			continue
		}
		events = append(events, d.eventsToSync(m, fromObj, toRefs[m.ID()], valueRefs)...)
	}

	return &Patch{Events: events, References: referencesJSON(valueRefs.Models(), false)}, nil
}

func indexReferences(s *Snapshot) map[string]ModelJSON {
	out := make(map[string]ModelJSON, len(s.Roots.References))
	for _, obj := range s.Roots.References {
		out[obj.ID] = obj
	}
	return out
}

func (d *Document) eventsToSync(m *models.Model, from, to ModelJSON, valueRefs *models.RefSet) []EventJSON {
	var events []EventJSON
	for _, key := range sortedKeys(from.Attributes) {
		if _, ok := to.Attributes[key]; !ok {
			d.logger.Warn("peer sent an attribute missing from our JSON", "model", m.String(), "attr", key)
		}
	}

	for _, key := range sortedKeys(to.Attributes) {
		newValue := to.Attributes[key]
		oldValue, shared := from.Attributes[key]
		if shared {
			if oldValue.IsNull() && newValue.IsNull() {
				continue
			}
			if models.Equal(oldValue, newValue) {
				continue
			}
		}
		if ev, ok := d.eventForAttributeChange(m, key, newValue, valueRefs); ok {
			events = append(events, ev)
		}
	}
	return events
}

func (d *Document) eventForAttributeChange(m *models.Model, key string, newValue models.Value, valueRefs *models.RefSet) (EventJSON, bool) {
	if ok, err := m.AttributeIsSerializable(key); err != nil || !ok {
		return EventJSON{}, false
	}
	d.recordJSONReferences(newValue, valueRefs)

	ref := models.Ref{ID: m.ID(), Type: m.Type()}
	return EventJSON{
		Kind:  constants.KindModelChanged,
		Model: &ref,
		Attr:  key,
		New:   &newValue,
	}, true
}

// recordJSONReferences adds the models behind the refs of a wire value,
// with everything they reach.
func (d *Document) recordJSONReferences(v models.Value, result *models.RefSet) {
	v.Walk(func(x models.Value) bool {
		if r, ok := x.AsRef(); ok {
			if m := d.GetModelByID(r.ID); m != nil {
				models.RecordReferences(models.Instance(m), result, true)
			}
			return false
		}
		return true
	})
}
