package event

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dshills/memento/internal/event/dispatch"
)

// Bus routes events to subscribers.
//
// PublishImmediate dispatches on the caller's goroutine. Publish and
// PublishBatch append to a bounded FIFO queue that the owner empties with
// Drain, normally once per engine tick. The subscriber registry and the
// queue are guarded independently so publishers on other goroutines never
// contend with dispatch.
type Bus struct {
	registry *registry
	filters  allowList
	executor *dispatch.Executor

	queueMu sync.Mutex
	queue   *queue

	draining atomic.Bool
	debug    atomic.Bool

	histogram *histogram

	published        atomic.Uint64
	dispatched       atomic.Uint64
	dropped          atomic.Uint64
	filtered         atomic.Uint64
	handlersExecuted atomic.Uint64
	handlerErrors    atomic.Uint64
	handlerPanics    atomic.Uint64

	faultHandler atomic.Pointer[FaultHandler]

	logger  *slog.Logger
	metrics *busMetrics
}

// NewBus creates a new event bus with the given options.
func NewBus(opts ...BusOption) *Bus {
	config := defaultBusConfig()
	for _, opt := range opts {
		opt(&config)
	}

	b := &Bus{
		registry:  newRegistry(),
		executor:  dispatch.NewExecutor(),
		queue:     newQueue(config.maxQueueSize),
		histogram: newHistogram(),
		logger:    config.logger.With("component", "event.bus"),
		metrics:   newBusMetrics(config.registerer),
	}
	b.debug.Store(config.debug)
	b.filters.add(config.filters...)
	if config.faultHandler != nil {
		b.SetFaultHandler(config.faultHandler)
	}

	return b
}

// Subscribe registers h for events of type t and returns the subscriber id.
//
// A nil handler or empty type is logged and ignored; the returned id is then
// empty. Without WithID an id of the form "<type>_<n>" is generated.
// Subscribing an id that already exists for t replaces that entry in place.
func (b *Bus) Subscribe(t Type, h Handler, opts ...SubscriptionOption) string {
	if t == "" {
		b.logger.Warn("subscribe ignored", "error", ErrInvalidType)
		return ""
	}
	if isNilHandler(h) {
		b.logger.Warn("subscribe ignored", "type", t, "error", ErrNilHandler)
		return ""
	}

	config := DefaultSubscriptionConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.ID == "" {
		config.ID = generateSubscriberID(t)
	}

	replaced := b.registry.Add(&subscription{
		id:       config.ID,
		typ:      t,
		handler:  h,
		priority: config.Priority,
		active:   true,
	})

	if b.debug.Load() {
		b.logger.Debug("subscribed",
			"type", t,
			"subscriber", config.ID,
			"priority", int(config.Priority),
			"replaced", replaced,
		)
	}

	return config.ID
}

// SubscribeFunc is Subscribe for a function with no error return.
func (b *Bus) SubscribeFunc(t Type, fn func(ev Event), opts ...SubscriptionOption) string {
	return b.Subscribe(t, Callback(fn), opts...)
}

// Unsubscribe removes subscriber id from type t.
// Returns true if an entry was removed.
func (b *Bus) Unsubscribe(t Type, id string) bool {
	removed := b.registry.Remove(t, id)
	if b.debug.Load() {
		b.logger.Debug("unsubscribed", "type", t, "subscriber", id, "removed", removed)
	}
	return removed
}

// UnsubscribeAll removes subscriber id from every type and returns the number
// of subscriptions removed.
func (b *Bus) UnsubscribeAll(id string) int {
	removed := b.registry.RemoveAll(id)
	if b.debug.Load() && removed > 0 {
		b.logger.Debug("unsubscribed from all types", "subscriber", id, "count", removed)
	}
	return removed
}

// SetActive toggles delivery to subscriber id without removing it.
// Returns the number of subscriptions updated.
func (b *Bus) SetActive(id string, active bool) int {
	updated := b.registry.SetActive(id, active)
	if b.debug.Load() {
		b.logger.Debug("subscriber active changed", "subscriber", id, "active", active, "count", updated)
	}
	return updated
}

// PublishImmediate dispatches ev to every active subscriber of its type on
// the calling goroutine and returns when all handlers have run.
func (b *Bus) PublishImmediate(ev Event) {
	if ev.IsZero() {
		b.logger.Error("publish ignored", "error", ErrInvalidEvent)
		return
	}

	b.published.Add(1)
	b.metrics.recordPublished(ev.typ, "immediate")
	if b.debug.Load() {
		b.logEvent(ev, "publish immediate")
	}

	b.dispatch(ev)
}

// Publish queues ev for the next Drain. When the queue is full the event is
// dropped and counted; the caller is never blocked or failed.
// Returns true if the event was queued.
func (b *Bus) Publish(ev Event) bool {
	if ev.IsZero() {
		b.logger.Error("publish ignored", "error", ErrInvalidEvent)
		return false
	}

	b.queueMu.Lock()
	ok := b.queue.push(ev)
	depth := b.queue.len()
	b.queueMu.Unlock()

	b.metrics.setQueueDepth(depth)

	if !ok {
		b.recordDrop(ev.typ, 1)
		b.logger.Warn("event dropped",
			"type", ev.typ,
			"id", ev.id,
			"error", ErrQueueFull,
		)
		return false
	}

	b.published.Add(1)
	b.metrics.recordPublished(ev.typ, "queued")
	if b.debug.Load() {
		b.logEvent(ev, "publish queued")
	}
	return true
}

// PublishBatch queues as many of evs as fit and drops the rest the same way
// Publish does. Returns the number queued.
func (b *Bus) PublishBatch(evs []Event) int {
	if len(evs) == 0 {
		return 0
	}

	accepted := make([]Type, 0, len(evs))
	var dropped []Type

	b.queueMu.Lock()
	for _, ev := range evs {
		if ev.IsZero() {
			continue
		}
		if b.queue.push(ev) {
			accepted = append(accepted, ev.typ)
		} else {
			dropped = append(dropped, ev.typ)
		}
	}
	depth := b.queue.len()
	b.queueMu.Unlock()

	b.metrics.setQueueDepth(depth)
	b.published.Add(uint64(len(accepted)))
	for _, t := range accepted {
		b.metrics.recordPublished(t, "queued")
	}

	if len(dropped) > 0 {
		for _, t := range dropped {
			b.recordDrop(t, 1)
		}
		b.logger.Warn("batch overflow, events dropped",
			"queued", len(accepted),
			"dropped", len(dropped),
			"error", ErrQueueFull,
		)
	}

	if b.debug.Load() {
		b.logger.Debug("publish batch", "size", len(evs), "queued", len(accepted))
	}

	return len(accepted)
}

// Drain dispatches up to maxEvents queued events in FIFO order and returns
// the number processed. maxEvents <= 0 drains until the queue is empty.
//
// Drain is not reentrant: a call made while another drain is running, for
// example from inside a handler, returns 0 without dispatching.
func (b *Bus) Drain(maxEvents int) int {
	if !b.draining.CompareAndSwap(false, true) {
		b.logger.Warn("drain already in progress, skipping nested drain")
		return 0
	}
	defer b.draining.Store(false)

	processed := 0
	for maxEvents <= 0 || processed < maxEvents {
		b.queueMu.Lock()
		ev, ok := b.queue.pop()
		depth := b.queue.len()
		b.queueMu.Unlock()

		if !ok {
			break
		}
		b.metrics.setQueueDepth(depth)

		if b.debug.Load() {
			b.logEvent(ev, "drain")
		}
		b.dispatch(ev)
		processed++
	}

	if b.debug.Load() && processed > 0 {
		b.logger.Debug("drained events", "count", processed)
	}

	return processed
}

// ClearQueue discards all queued events and returns how many were discarded.
// Cleared events are not counted as drops.
func (b *Bus) ClearQueue() int {
	b.queueMu.Lock()
	n := b.queue.clear()
	b.queueMu.Unlock()

	b.metrics.setQueueDepth(0)
	if b.debug.Load() && n > 0 {
		b.logger.Debug("queue cleared", "discarded", n)
	}
	return n
}

// QueueSize returns the number of queued events.
func (b *Bus) QueueSize() int {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	return b.queue.len()
}

// MaxQueueSize returns the queue capacity.
func (b *Bus) MaxQueueSize() int {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	return b.queue.capacity
}

// SetMaxQueueSize changes the queue capacity. Shrinking below the current
// length discards the newest events, which are counted as drops.
func (b *Bus) SetMaxQueueSize(size int) {
	if size < 1 {
		b.logger.Warn("invalid max queue size ignored", "size", size)
		return
	}

	b.queueMu.Lock()
	trimmed := b.queue.resize(size)
	depth := b.queue.len()
	b.queueMu.Unlock()

	b.metrics.setQueueDepth(depth)
	if trimmed > 0 {
		b.dropped.Add(uint64(trimmed))
		b.metrics.recordDropped("", "resize", trimmed)
	}
	b.logger.Info("max queue size set", "size", size, "trimmed", trimmed)
}

// SubscriberCount returns the number of subscriptions for t, or the total
// across all types when t is empty.
func (b *Bus) SubscriberCount(t Type) int {
	return b.registry.Count(t)
}

// HasSubscribers reports whether t has any subscription.
func (b *Bus) HasSubscribers(t Type) bool {
	return b.registry.Has(t)
}

// Subscribers describes the subscriptions for t in dispatch order.
func (b *Bus) Subscribers(t Type) []SubscriptionInfo {
	return b.registry.List(t)
}

// Types returns every event type with at least one subscription.
func (b *Bus) Types() []Type {
	return b.registry.Types()
}

// AddFilter adds types to the allow-list. While the list is non-empty only
// listed types are dispatched.
func (b *Bus) AddFilter(types ...Type) {
	b.filters.add(types...)
	if b.debug.Load() {
		b.logger.Debug("filter added", "types", types)
	}
}

// RemoveFilter removes t from the allow-list.
func (b *Bus) RemoveFilter(t Type) bool {
	removed := b.filters.remove(t)
	if b.debug.Load() && removed {
		b.logger.Debug("filter removed", "type", t)
	}
	return removed
}

// SetFilters replaces the allow-list with types. Readers see either the old
// list or the new one. No types clears the list.
func (b *Bus) SetFilters(types ...Type) {
	b.filters.replace(types...)
	if b.debug.Load() {
		b.logger.Debug("filters set", "types", types)
	}
}

// ClearFilters empties the allow-list so every type is dispatched.
func (b *Bus) ClearFilters() {
	b.filters.clear()
	if b.debug.Load() {
		b.logger.Debug("filters cleared")
	}
}

// Filters returns the allow-list.
func (b *Bus) Filters() []Type {
	return b.filters.list()
}

// SetDebugMode toggles per-event debug logging.
func (b *Bus) SetDebugMode(enabled bool) {
	b.debug.Store(enabled)
	b.logger.Info("debug mode set", "enabled", enabled)
}

// DebugMode reports whether per-event debug logging is on.
func (b *Bus) DebugMode() bool {
	return b.debug.Load()
}

// SetFaultHandler replaces the handler fault callback. Nil removes it.
func (b *Bus) SetFaultHandler(h FaultHandler) {
	if h == nil {
		b.faultHandler.Store(nil)
		return
	}
	b.faultHandler.Store(&h)
}

// Statistics returns the number of events processed per type since the last reset.
func (b *Bus) Statistics() map[Type]uint64 {
	return b.histogram.snapshot()
}

// ResetStatistics clears the per-type histogram and the counters.
func (b *Bus) ResetStatistics() {
	b.histogram.reset()
	b.published.Store(0)
	b.dispatched.Store(0)
	b.dropped.Store(0)
	b.filtered.Store(0)
	b.handlersExecuted.Store(0)
	b.handlerErrors.Store(0)
	b.handlerPanics.Store(0)
	if b.debug.Load() {
		b.logger.Debug("statistics reset")
	}
}

// Stats returns a snapshot of the bus counters.
func (b *Bus) Stats() Stats {
	b.queueMu.Lock()
	size, capacity := b.queue.len(), b.queue.capacity
	b.queueMu.Unlock()

	return Stats{
		Published:        b.published.Load(),
		Dispatched:       b.dispatched.Load(),
		Dropped:          b.dropped.Load(),
		Filtered:         b.filtered.Load(),
		HandlersExecuted: b.handlersExecuted.Load(),
		HandlerErrors:    b.handlerErrors.Load(),
		HandlerPanics:    b.handlerPanics.Load(),
		QueueSize:        size,
		MaxQueueSize:     capacity,
		Subscribers:      b.registry.Count(""),
	}
}

// dispatch runs the subscribers of ev against a snapshot of the registry.
// Registry changes made by handlers take effect on the next dispatch.
func (b *Bus) dispatch(ev Event) {
	b.histogram.inc(ev.typ)

	if !b.filters.allows(ev.typ) {
		b.filtered.Add(1)
		b.metrics.recordDropped(ev.typ, "filtered", 1)
		if b.debug.Load() {
			b.logger.Debug("event filtered", "type", ev.typ, "error", ErrFiltered)
		}
		return
	}

	b.dispatched.Add(1)
	b.metrics.recordDispatched(ev.typ)

	subs := b.registry.Snapshot(ev.typ)
	if len(subs) == 0 {
		if b.debug.Load() {
			b.logger.Debug("no subscribers", "type", ev.typ)
		}
		return
	}

	for _, sub := range subs {
		if !sub.active {
			continue
		}
		b.invoke(sub, ev)
	}
}

// invoke runs one handler, recovering and reporting any fault.
func (b *Bus) invoke(sub *subscription, ev Event) {
	result := b.executor.Execute(sub.id, func() error {
		return sub.handler.Handle(ev)
	})
	b.handlersExecuted.Add(1)

	var fault error
	switch {
	case result.Panicked:
		b.handlerPanics.Add(1)
		b.metrics.recordFault(ev.typ, "panic")
		fault = &PanicError{
			SubscriberID: sub.id,
			Type:         ev.typ,
			Value:        result.PanicValue,
			Stack:        string(result.PanicStack),
		}
		b.logger.Error("handler panicked",
			"type", ev.typ,
			"subscriber", sub.id,
			"panic", fmt.Sprint(result.PanicValue),
		)
	case result.Error != nil:
		b.handlerErrors.Add(1)
		b.metrics.recordFault(ev.typ, "error")
		fault = &HandlerError{
			SubscriberID: sub.id,
			Type:         ev.typ,
			Err:          result.Error,
		}
		b.logger.Warn("handler failed",
			"type", ev.typ,
			"subscriber", sub.id,
			"error", result.Error,
		)
	}

	if fault == nil {
		return
	}
	if h := b.faultHandler.Load(); h != nil {
		b.executor.Run("fault-handler", func() { (*h)(fault) })
	}
}

func (b *Bus) recordDrop(t Type, n int) {
	b.dropped.Add(uint64(n))
	b.metrics.recordDropped(t, "queue_full", n)
}

func (b *Bus) logEvent(ev Event, action string) {
	b.logger.Debug(action,
		"type", ev.typ,
		"id", ev.id,
		"priority", int(ev.priority),
		"cancellable", ev.cancellable,
		"source", ev.source,
	)
}

// isNilHandler reports whether h is nil or wraps a nil function.
func isNilHandler(h Handler) bool {
	if h == nil {
		return true
	}
	if f, ok := h.(HandlerFunc); ok && f == nil {
		return true
	}
	return false
}
