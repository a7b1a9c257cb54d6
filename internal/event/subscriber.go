package event

import "sync"

// Subscriber registers handlers on a bus under one fixed subscriber id, so a
// collaborator can be paused, resumed or removed from every type at once.
type Subscriber struct {
	bus *Bus
	id  string

	mu     sync.Mutex
	types  []Type
	closed bool
}

// NewSubscriber creates a Subscriber identified by id.
func NewSubscriber(bus *Bus, id string) *Subscriber {
	return &Subscriber{
		bus: bus,
		id:  id,
	}
}

// ID returns the subscriber id.
func (s *Subscriber) ID() string {
	return s.id
}

// Subscribe registers h for t at priority p.
func (s *Subscriber) Subscribe(t Type, h Handler, p Priority) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSubscriberClosed
	}
	if isNilHandler(h) {
		return ErrNilHandler
	}
	if t == "" {
		return ErrInvalidType
	}

	s.bus.Subscribe(t, h, WithID(s.id), WithSubscriberPriority(p))
	s.types = append(s.types, t)
	return nil
}

// Types returns the types this subscriber registered.
func (s *Subscriber) Types() []Type {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Type, len(s.types))
	copy(out, s.types)
	return out
}

// Pause stops delivery without unsubscribing.
func (s *Subscriber) Pause() {
	s.bus.SetActive(s.id, false)
}

// Resume restarts delivery.
func (s *Subscriber) Resume() {
	s.bus.SetActive(s.id, true)
}

// Close unsubscribes from every type. Further Subscribe calls fail.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.types = nil
	s.bus.UnsubscribeAll(s.id)
}
