package event

import "strconv"

// Type identifies an event kind. Subscriptions and filters are keyed by Type.
type Type string

// String returns the type name.
func (t Type) String() string {
	return string(t)
}

// Canonical event types. Collaborators subscribe to these names.
const (
	TypeAttributeChanged Type = "AttributeChanged"
	TypeItemAcquired     Type = "ItemAcquired"
	TypeItemLost         Type = "ItemLost"
	TypeLocationChanged  Type = "LocationChanged"
	TypeObjectExamined   Type = "ObjectExamined"
	TypeDialogueStarted  Type = "DialogueStarted"
	TypeDialogueChoice   Type = "DialogueChoice"
	TypeDialogueEnded    Type = "DialogueEnded"
	TypeInsightGained    Type = "InsightGained"
	TypePuzzleSolved     Type = "PuzzleSolved"
	TypeGameStateChanged Type = "GameStateChanged"
	TypeGameSaved        Type = "GameSaved"
	TypeError            Type = "Error"
)

// Priority determines handler execution order and is carried by every event.
// Lower values execute first.
type Priority int

const (
	// PriorityCritical is reserved for error handling.
	PriorityCritical Priority = 0

	// PriorityHigh is for state changes and dialogue transitions.
	PriorityHigh Priority = 1

	// PriorityNormal is the default priority.
	PriorityNormal Priority = 5

	// PriorityLow is for observers such as mirrors and metrics that run last.
	PriorityLow Priority = 10
)

// String returns a human-readable priority name.
func (p Priority) String() string {
	switch {
	case p <= PriorityCritical:
		return "critical"
	case p <= PriorityHigh:
		return "high"
	case p < PriorityLow:
		return "normal(" + strconv.Itoa(int(p)) + ")"
	default:
		return "low"
	}
}

// clamp bounds an event priority to [PriorityCritical, PriorityLow].
func (p Priority) clamp() Priority {
	if p < PriorityCritical {
		return PriorityCritical
	}
	if p > PriorityLow {
		return PriorityLow
	}
	return p
}

// traits holds the per-type defaults of the canonical vocabulary.
type traits struct {
	priority    Priority
	cancellable bool
}

var canonical = map[Type]traits{
	TypeAttributeChanged: {PriorityNormal, true},
	TypeItemAcquired:     {3, true},
	TypeItemLost:         {PriorityNormal, true},
	TypeLocationChanged:  {2, true},
	TypeObjectExamined:   {PriorityNormal, true},
	TypeDialogueStarted:  {PriorityHigh, true},
	TypeDialogueChoice:   {PriorityNormal, true},
	TypeDialogueEnded:    {PriorityNormal, true},
	TypeInsightGained:    {3, true},
	TypePuzzleSolved:     {4, true},
	TypeGameStateChanged: {PriorityHigh, false},
	TypeGameSaved:        {PriorityNormal, true},
	TypeError:            {PriorityCritical, false},
}

// DefaultPriority returns the default priority for t.
// Types outside the canonical vocabulary default to PriorityNormal.
func DefaultPriority(t Type) Priority {
	if tr, ok := canonical[t]; ok {
		return tr.priority
	}
	return PriorityNormal
}

// IsCancellable reports whether events of type t may be cancelled.
// GameStateChanged and Error never are.
func IsCancellable(t Type) bool {
	if tr, ok := canonical[t]; ok {
		return tr.cancellable
	}
	return true
}

// IsCanonical reports whether t is part of the canonical vocabulary.
func IsCanonical(t Type) bool {
	_, ok := canonical[t]
	return ok
}

// CanonicalTypes returns the canonical vocabulary in declaration order.
func CanonicalTypes() []Type {
	return []Type{
		TypeAttributeChanged,
		TypeItemAcquired,
		TypeItemLost,
		TypeLocationChanged,
		TypeObjectExamined,
		TypeDialogueStarted,
		TypeDialogueChoice,
		TypeDialogueEnded,
		TypeInsightGained,
		TypePuzzleSolved,
		TypeGameStateChanged,
		TypeGameSaved,
		TypeError,
	}
}

// Handler processes a dispatched event.
// A returned error is reported for this handler only; dispatch continues.
type Handler interface {
	Handle(ev Event) error
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(ev Event) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ev Event) error {
	return f(ev)
}

// Callback adapts a function without an error return into a Handler.
func Callback(fn func(ev Event)) Handler {
	if fn == nil {
		return nil
	}
	return HandlerFunc(func(ev Event) error {
		fn(ev)
		return nil
	})
}

// PayloadHandler returns a Handler that only fires for events whose payload is T.
// Events carrying a different payload are skipped silently.
func PayloadHandler[T Payload](fn func(ev Event, payload T) error) Handler {
	if fn == nil {
		return nil
	}
	return HandlerFunc(func(ev Event) error {
		p, ok := As[T](ev)
		if !ok {
			return nil
		}
		return fn(ev, p)
	})
}
