package modelsync

import (
	"fmt"

	"github.com/modelsync/modelsync/pkg/constants"
	"github.com/modelsync/modelsync/pkg/models"
)

// ChangeEvent is a mutation of a document, delivered to OnChange callbacks.
type ChangeEvent interface {
	Document() *Document
	Kind() string
	// SetterID identifies the peer whose patch caused the change, empty for
	// local changes.
	SetterID() string

	// toJSON renders the wire form and records every model the receiving
	// peer may not know yet.
	toJSON(refs *models.RefSet) (EventJSON, error)
}

type docEvent struct {
	doc    *Document
	setter string
}

func (e docEvent) Document() *Document {
	return e.doc
}

func (e docEvent) SetterID() string {
	return e.setter
}

// ModelChangedEvent reports a change of one attribute of one model.
type ModelChangedEvent struct {
	docEvent
	Model *models.Model
	Attr  string
	Old   models.Value
	New   models.Value
}

func (e *ModelChangedEvent) Kind() string {
	return constants.KindModelChanged
}

func (e *ModelChangedEvent) toJSON(refs *models.RefSet) (EventJSON, error) {
	if e.Attr == constants.IDAttr {
		return EventJSON{}, fmt.Errorf("%w: %s", constants.ErrImmutableID, e.Model)
	}

	valueRefs := models.NewRefSet()
	models.RecordReferences(e.New, valueRefs, true)
	// the patched model is only shipped when it is the value itself
	if self, ok := e.New.AsModel(); valueRefs.Has(e.Model.ID()) && (!ok || self != e.Model) {
		valueRefs.Delete(e.Model.ID())
	}
	for _, m := range valueRefs.Models() {
		refs.Add(m)
	}

	ref := e.Model.Ref()
	value := models.ToWire(e.New)
	return EventJSON{
		Kind:  constants.KindModelChanged,
		Model: &ref,
		Attr:  e.Attr,
		New:   &value,
	}, nil
}

type RootAddedEvent struct {
	docEvent
	Model *models.Model
}

func (e *RootAddedEvent) Kind() string {
	return constants.KindRootAdded
}

func (e *RootAddedEvent) toJSON(refs *models.RefSet) (EventJSON, error) {
	models.RecordReferences(models.Instance(e.Model), refs, true)
	ref := e.Model.Ref()
	return EventJSON{Kind: constants.KindRootAdded, Model: &ref}, nil
}

type RootRemovedEvent struct {
	docEvent
	Model *models.Model
}

func (e *RootRemovedEvent) Kind() string {
	return constants.KindRootRemoved
}

func (e *RootRemovedEvent) toJSON(*models.RefSet) (EventJSON, error) {
	ref := e.Model.Ref()
	return EventJSON{Kind: constants.KindRootRemoved, Model: &ref}, nil
}

type TitleChangedEvent struct {
	docEvent
	Title string
}

func (e *TitleChangedEvent) Kind() string {
	return constants.KindTitleChanged
}

func (e *TitleChangedEvent) toJSON(*models.RefSet) (EventJSON, error) {
	title := e.Title
	return EventJSON{Kind: constants.KindTitleChanged, Title: &title}, nil
}

// ColumnsStreamedEvent reports rows appended to a data-bearing model.
type ColumnsStreamedEvent struct {
	docEvent
	Source   *models.Model
	Data     models.Value
	Rollover models.Value
}

func (e *ColumnsStreamedEvent) Kind() string {
	return constants.KindColumnsStreamed
}

func (e *ColumnsStreamedEvent) toJSON(*models.RefSet) (EventJSON, error) {
	ref := models.Ref{ID: e.Source.ID()}
	data, rollover := e.Data, e.Rollover
	return EventJSON{
		Kind:         constants.KindColumnsStreamed,
		ColumnSource: &ref,
		Data:         &data,
		Rollover:     &rollover,
	}, nil
}

// ColumnsPatchedEvent reports in-place updates of a data-bearing model's rows.
type ColumnsPatchedEvent struct {
	docEvent
	Source  *models.Model
	Patches models.Value
}

func (e *ColumnsPatchedEvent) Kind() string {
	return constants.KindColumnsPatched
}

func (e *ColumnsPatchedEvent) toJSON(*models.RefSet) (EventJSON, error) {
	ref := models.Ref{ID: e.Source.ID()}
	patches := e.Patches
	return EventJSON{
		Kind:         constants.KindColumnsPatched,
		ColumnSource: &ref,
		Patches:      &patches,
	}, nil
}
