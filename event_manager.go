package modelsync

import (
	"github.com/modelsync/modelsync/pkg/connection"
	"github.com/modelsync/modelsync/pkg/constants"
	"github.com/modelsync/modelsync/pkg/models"
)

// EventManager routes UI events between the models of a document and the
// remote peer.
type EventManager struct {
	doc        *Document
	transport  connection.Transport
	subscribed []string
	seen       map[string]bool
}

func newEventManager(d *Document) *EventManager {
	return &EventManager{doc: d, seen: make(map[string]bool)}
}

func (em *EventManager) SetTransport(t connection.Transport) {
	em.transport = t
}

// Subscribe registers a model to receive triggered events. Subscribing
// twice is a no-op.
func (em *EventManager) Subscribe(modelID string) {
	if em.seen[modelID] {
		return
	}
	em.seen[modelID] = true
	em.subscribed = append(em.subscribed, modelID)
}

// Subscribed lists the subscribed model ids in subscription order.
func (em *EventManager) Subscribed() []string {
	return append([]string(nil), em.subscribed...)
}

// SendEvent hands ev to the transport. Without a transport the event is
// dropped.
func (em *EventManager) SendEvent(ev *models.UIEvent) {
	if em.transport == nil {
		return
	}
	em.transport.Send(connection.NewMessage(constants.MsgTypeEvent, ev))
	em.doc.metrics.ObserveForward()
}

// SendPatch hands a patch to the transport.
func (em *EventManager) SendPatch(p *Patch) {
	if em.transport == nil {
		return
	}
	em.transport.Send(connection.NewMessage(constants.MsgTypePatchDoc, p))
}

// SendSnapshot answers a peer's document pull with the full document.
func (em *EventManager) SendSnapshot() {
	if em.transport == nil {
		return
	}
	em.transport.Send(connection.NewMessage(constants.MsgTypePullDoc, em.doc.ToJSON(true)))
}

// Trigger delivers ev to every subscribed model it addresses. Subscribed
// models that left the document are skipped.
func (em *EventManager) Trigger(ev *models.UIEvent) {
	for _, id := range em.Subscribed() {
		if ev.ModelID != "" && ev.ModelID != id {
			continue
		}
		if m := em.doc.GetModelByID(id); m != nil {
			m.ProcessEvent(ev)
		}
	}
}
