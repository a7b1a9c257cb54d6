// Package event provides the event bus that connects game components.
//
// Components never call each other directly for notifications. They publish
// events and subscribe handlers by event type.
//
// # Events
//
// An Event is an immutable value carrying a Type, a Priority in [0, 10], a
// cancellable flag, a creation time and an optional Payload. Payloads form a
// closed set declared in payloads.go; Custom carries free-form fields for
// types outside the canonical vocabulary.
//
//	ev := event.Of(event.LocationChanged{From: "bookstore", To: "street"})
//	if p, ok := event.As[event.LocationChanged](ev); ok {
//	    fmt.Println(p.To)
//	}
//
// # Subscribing
//
// Handlers are ordered by ascending priority; equal priorities keep
// registration order. Subscribing an existing id for the same type replaces
// that entry in place.
//
//	bus.Subscribe(event.TypeError, event.HandlerFunc(func(ev event.Event) error {
//	    return nil
//	}), event.WithID("ui"), event.WithSubscriberPriority(event.PriorityCritical))
//
// # Publishing
//
// PublishImmediate dispatches on the caller's goroutine. Publish appends to a
// bounded FIFO queue; Drain dispatches queued events, normally once per tick.
// A full queue drops the event and counts the drop; publishers are never
// blocked or failed.
//
// Dispatch works on a snapshot of the subscriber list, so a handler may
// subscribe, unsubscribe or publish freely. Such changes apply to the next
// dispatch. A handler error or panic is recovered, logged and counted, and
// the remaining handlers still run.
package event
