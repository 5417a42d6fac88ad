package connection

import (
	"sync"

	"github.com/modelsync/modelsync/internal/rand"
	"github.com/modelsync/modelsync/pkg/constants"
)

// Message is the envelope every payload travels in.
type Message struct {
	ID      string `json:"id" cbor:"id"`
	MsgType string `json:"msgtype" cbor:"msgtype"`
	Content any    `json:"content" cbor:"content"`
}

// NewMessage wraps content with a fresh message id.
func NewMessage(msgType string, content any) *Message {
	return &Message{
		ID:      rand.NewMessageID(constants.MessageIDLength),
		MsgType: msgType,
		Content: content,
	}
}

// Transport delivers messages to the remote peer. Send is fire-and-forget:
// callers never learn whether delivery succeeded, failures are the
// transport's own business.
type Transport interface {
	Send(msg *Message)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(msg *Message)

func (f TransportFunc) Send(msg *Message) {
	f(msg)
}

// Recorder is an in-memory Transport that keeps every message it is given.
type Recorder struct {
	mu       sync.Mutex
	messages []*Message
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Send(msg *Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

// Messages returns the recorded messages in send order.
func (r *Recorder) Messages() []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Message(nil), r.messages...)
}

// Reset drops every recorded message.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = nil
}
