package event

import "errors"

// Sentinel errors for the event bus.
var (
	// ErrQueueFull is recorded when a queued publish is dropped at capacity.
	// It is never returned from Publish.
	ErrQueueFull = errors.New("event queue is full")

	// ErrInvalidEvent is reported when a zero Event is published.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrInvalidType is returned when an event type is empty.
	ErrInvalidType = errors.New("invalid event type")

	// ErrNilHandler is returned when a nil handler is provided.
	ErrNilHandler = errors.New("handler cannot be nil")

	// ErrSubscriptionNotFound is returned when no subscription matches.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrHandlerPanic matches any PanicError.
	ErrHandlerPanic = errors.New("handler panicked")

	// ErrSubscriberClosed is returned when subscribing through a closed Subscriber.
	ErrSubscriberClosed = errors.New("subscriber is closed")

	// ErrFiltered is reported in debug mode when an event is rejected by the allow-list.
	ErrFiltered = errors.New("event type filtered")
)

// HandlerError wraps an error returned by a handler with additional context.
type HandlerError struct {
	// SubscriberID is the ID of the subscription whose handler failed.
	SubscriberID string

	// Type is the event type being dispatched.
	Type Type

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return "handler error for subscriber " + e.SubscriberID + " on " + string(e.Type) + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// PanicError wraps a handler panic as an error.
type PanicError struct {
	// SubscriberID is the ID of the subscription whose handler panicked.
	SubscriberID string

	// Type is the event type being dispatched.
	Type Type

	// Value is the value passed to panic().
	Value any

	// Stack is the stack trace at the time of the panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return "handler panic for subscriber " + e.SubscriberID + " on " + string(e.Type)
}

// Is allows errors.Is to match PanicError with ErrHandlerPanic.
func (e *PanicError) Is(target error) bool {
	return target == ErrHandlerPanic
}
