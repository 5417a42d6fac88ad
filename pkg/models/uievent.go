package models

import (
	"slices"

	"github.com/modelsync/modelsync/pkg/constants"
)

// UIEvent is an interaction event raised on one model, e.g. a button click.
type UIEvent struct {
	Name    string           `json:"event_name" cbor:"event_name"`
	ModelID string           `json:"model_id,omitempty" cbor:"model_id,omitempty"`
	Values  map[string]Value `json:"event_values,omitempty" cbor:"event_values,omitempty"`
}

// AppliesTo reports whether the event addresses m. Events without a model
// id are broadcast.
func (ev *UIEvent) AppliesTo(m *Model) bool {
	return ev.ModelID == "" || ev.ModelID == m.id
}

// OnEvent registers a local handler for events named name.
func (m *Model) OnEvent(name string, fn func(*UIEvent)) {
	m.eventHandlers[name] = append(m.eventHandlers[name], fn)
	m.updateEventSubscription()
}

// TriggerEvent raises ev on behalf of m. Detached models drop the event.
func (m *Model) TriggerEvent(ev *UIEvent) {
	if m.document == nil {
		return
	}
	ev.ModelID = m.id
	m.document.TriggerEvent(ev)
}

// ProcessEvent runs the local handlers for ev and forwards it to the peer
// when m subscribed to it.
func (m *Model) ProcessEvent(ev *UIEvent) {
	if !ev.AppliesTo(m) {
		return
	}
	for _, fn := range m.eventHandlers[ev.Name] {
		fn(ev)
	}
	if m.document != nil && slices.Contains(m.subscribedEvents(), ev.Name) {
		m.document.SendEvent(ev)
	}
}

func (m *Model) subscribedEvents() []string {
	v, ok := m.attributes[constants.SubscribedEventsAttr]
	if !ok {
		return nil
	}
	arr, _ := v.AsArray()
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.AsString(); ok {
			out = append(out, s)
		}
	}
	return out
}

func (m *Model) updateEventSubscription() {
	if m.document == nil {
		return
	}
	m.document.SubscribeEvents(m.id)
}

func (m *Model) docAttached() {
	if len(m.eventHandlers) > 0 || len(m.subscribedEvents()) > 0 {
		m.updateEventSubscription()
	}
}
