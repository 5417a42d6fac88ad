package models

// Signal is a typed notification channel owned by a single model or property.
// Slots run synchronously in connection order.
type Signal[T any] struct {
	name  string
	slots []*slot[T]
	seq   uint64
}

type slot[T any] struct {
	id     uint64
	fn     func(T)
	filter func(T) bool
}

// Connection is the handle returned by Connect.
type Connection struct {
	disconnect func()
}

// Disconnect removes the slot. Calling it more than once is harmless.
func (c Connection) Disconnect() {
	if c.disconnect != nil {
		c.disconnect()
	}
}

func NewSignal[T any](name string) *Signal[T] {
	return &Signal[T]{name: name}
}

func (s *Signal[T]) Name() string {
	return s.name
}

// Connect registers fn. When filter is given, fn only runs for payloads the
// filter accepts.
func (s *Signal[T]) Connect(fn func(T), filter ...func(T) bool) Connection {
	s.seq++
	sl := &slot[T]{id: s.seq, fn: fn}
	if len(filter) > 0 {
		sl.filter = filter[0]
	}
	s.slots = append(s.slots, sl)

	id := sl.id
	return Connection{disconnect: func() { s.remove(id) }}
}

func (s *Signal[T]) remove(id uint64) {
	for i, sl := range s.slots {
		if sl.id == id {
			s.slots = append(s.slots[:i:i], s.slots[i+1:]...)
			return
		}
	}
}

// Emit runs every slot connected at the time of the call. Slots connected
// or disconnected by a running slot take effect on the next Emit.
func (s *Signal[T]) Emit(v T) {
	slots := s.slots
	for _, sl := range slots {
		if sl.filter != nil && !sl.filter(v) {
			continue
		}
		sl.fn(v)
	}
}

func (s *Signal[T]) DisconnectAll() {
	s.slots = nil
}

// Len reports the number of connected slots.
func (s *Signal[T]) Len() int {
	return len(s.slots)
}

// Listen connects fn to s on behalf of receiver. The connection is released
// when the receiver is destroyed.
func Listen[T any](receiver *Model, s *Signal[T], fn func(T), filter ...func(T) bool) Connection {
	c := s.Connect(fn, filter...)
	receiver.connections = append(receiver.connections, c)
	return c
}
