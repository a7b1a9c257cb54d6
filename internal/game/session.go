package game

import (
	"maps"
	"slices"
	"sync"

	"github.com/dshills/memento/internal/event"
)

// SessionSubscriberID is the bus subscriber id of an attached Session.
const SessionSubscriberID = "GameSession"

// Session is the player model: location, attributes, inventory and the
// objects already examined.
type Session struct {
	mu         sync.RWMutex
	location   string
	attributes map[string]int
	inventory  []string
	examined   map[string]bool

	sub *event.Subscriber
}

// NewSession returns a session in DefaultLocation with every attribute at 1.
func NewSession() *Session {
	return &Session{
		location: DefaultLocation,
		attributes: map[string]int{
			AttrObservation:   1,
			AttrCommunication: 1,
			AttrAction:        1,
			AttrEmpathy:       1,
		},
		examined: make(map[string]bool),
	}
}

// Attach subscribes the session to the events that change it.
func (s *Session) Attach(bus *event.Bus) error {
	s.mu.Lock()
	if s.sub != nil {
		s.mu.Unlock()
		return nil
	}
	sub := event.NewSubscriber(bus, SessionSubscriberID)
	s.sub = sub
	s.mu.Unlock()

	subs := []struct {
		t event.Type
		h event.Handler
	}{
		{event.TypeAttributeChanged, event.PayloadHandler(s.onAttributeChanged)},
		{event.TypeLocationChanged, event.PayloadHandler(s.onLocationChanged)},
		{event.TypeItemAcquired, event.PayloadHandler(s.onItemAcquired)},
		{event.TypeItemLost, event.PayloadHandler(s.onItemLost)},
	}
	for _, e := range subs {
		if err := sub.Subscribe(e.t, e.h, event.PriorityHigh); err != nil {
			sub.Close()
			return err
		}
	}
	return nil
}

// Detach removes the session's subscriptions.
func (s *Session) Detach() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
}

// Location returns the current location.
func (s *Session) Location() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.location
}

// Attribute returns the value of one attribute, or 0 if unknown.
func (s *Session) Attribute(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attributes[name]
}

// Attributes returns a copy of every attribute.
func (s *Session) Attributes() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.attributes)
}

// Inventory returns the held item ids in acquisition order.
func (s *Session) Inventory() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.inventory)
}

// MarkExamined records that id has been examined and reports whether this
// was the first time.
func (s *Session) MarkExamined(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.examined[id] {
		return false
	}
	s.examined[id] = true
	return true
}

// Examined reports whether id has been examined.
func (s *Session) Examined(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.examined[id]
}

// onAttributeChanged applies the delta rather than NewValue, so several
// changes queued in one tick accumulate.
func (s *Session) onAttributeChanged(_ event.Event, p event.AttributeChanged) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attributes[p.Attribute] += p.Delta()
	return nil
}

func (s *Session) onLocationChanged(_ event.Event, p event.LocationChanged) error {
	if p.To == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.location = p.To
	return nil
}

func (s *Session) onItemAcquired(_ event.Event, p event.ItemAcquired) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.inventory, p.ItemID) {
		s.inventory = append(s.inventory, p.ItemID)
	}
	return nil
}

func (s *Session) onItemLost(_ event.Event, p event.ItemLost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inventory = slices.DeleteFunc(s.inventory, func(id string) bool { return id == p.ItemID })
	return nil
}
