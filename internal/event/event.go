package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// timeNow is a variable to allow testing with fixed timestamps.
var timeNow = time.Now

// Event is an immutable notification routed by the bus.
//
// Events are values; every field is read through an accessor so a handler
// cannot alter what later handlers observe. Once an event is handed to the
// bus the publisher must not rely on it any further.
type Event struct {
	id          string
	typ         Type
	priority    Priority
	cancellable bool
	createdAt   time.Time
	source      string
	payload     Payload
}

// Option configures an Event at construction.
type Option func(*Event)

// WithPriority overrides the default priority. Values are clamped to [0, 10].
func WithPriority(p Priority) Option {
	return func(e *Event) {
		e.priority = p.clamp()
	}
}

// WithCancellable overrides cancellability for non-canonical types.
// GameStateChanged and Error remain non-cancellable.
func WithCancellable(cancellable bool) Option {
	return func(e *Event) {
		e.cancellable = cancellable
	}
}

// WithSource records the component that produced the event.
func WithSource(source string) Option {
	return func(e *Event) {
		e.source = source
	}
}

// New creates a payload-less event of type t with the type's defaults.
func New(t Type, opts ...Option) Event {
	e := Event{
		id:          uuid.NewString(),
		typ:         t,
		priority:    DefaultPriority(t),
		cancellable: IsCancellable(t),
		createdAt:   timeNow(),
	}
	for _, opt := range opts {
		opt(&e)
	}
	if !IsCancellable(t) {
		e.cancellable = false
	}
	return e
}

// Of creates an event carrying p, typed by p.EventType().
func Of(p Payload, opts ...Option) Event {
	if p == nil {
		return Event{}
	}
	e := New(p.EventType(), opts...)
	e.payload = p
	return e
}

// ID returns the unique event id.
func (e Event) ID() string { return e.id }

// Type returns the event type tag.
func (e Event) Type() Type { return e.typ }

// Priority returns the event priority.
func (e Event) Priority() Priority { return e.priority }

// Cancellable reports whether the event may be cancelled by a handler.
func (e Event) Cancellable() bool { return e.cancellable }

// CreatedAt returns when the event was constructed.
func (e Event) CreatedAt() time.Time { return e.createdAt }

// Source returns the producing component, if recorded.
func (e Event) Source() string { return e.source }

// Payload returns the event payload, or nil for payload-less events.
func (e Event) Payload() Payload { return e.payload }

// IsZero reports whether e was never constructed.
func (e Event) IsZero() bool { return e.typ == "" }

// As extracts the payload of ev as T.
func As[T Payload](ev Event) (T, bool) {
	p, ok := ev.payload.(T)
	return p, ok
}

// wireEvent is the JSON form of an Event.
type wireEvent struct {
	ID          string    `json:"id"`
	Type        Type      `json:"type"`
	Priority    Priority  `json:"priority"`
	Cancellable bool      `json:"cancellable"`
	CreatedAt   time.Time `json:"createdAt"`
	Source      string    `json:"source,omitempty"`
	Payload     Payload   `json:"payload,omitempty"`
}

// MarshalJSON encodes the event for external collaborators.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEvent{
		ID:          e.id,
		Type:        e.typ,
		Priority:    e.priority,
		Cancellable: e.cancellable,
		CreatedAt:   e.createdAt,
		Source:      e.source,
		Payload:     e.payload,
	})
}
