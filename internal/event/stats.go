package event

import (
	"maps"
	"sync"
)

// Stats contains runtime counters for the bus.
type Stats struct {
	// Published is the number of events accepted by Publish, PublishBatch or PublishImmediate.
	Published uint64

	// Dispatched is the number of events taken through subscriber dispatch.
	Dispatched uint64

	// Dropped is the number of queued events discarded at capacity or by a resize.
	Dropped uint64

	// Filtered is the number of events rejected by the allow-list.
	Filtered uint64

	// HandlersExecuted is the number of handler invocations.
	HandlersExecuted uint64

	// HandlerErrors is the number of handlers that returned an error.
	HandlerErrors uint64

	// HandlerPanics is the number of handlers that panicked.
	HandlerPanics uint64

	// QueueSize is the number of events currently queued.
	QueueSize int

	// MaxQueueSize is the queue capacity.
	MaxQueueSize int

	// Subscribers is the total number of subscriptions.
	Subscribers int
}

// DropRate returns the fraction of queued publishes that were dropped.
func (s Stats) DropRate() float64 {
	total := s.Published + s.Dropped
	if total == 0 {
		return 0
	}
	return float64(s.Dropped) / float64(total)
}

// histogram counts dispatched events per type.
type histogram struct {
	mu     sync.Mutex
	counts map[Type]uint64
}

func newHistogram() *histogram {
	return &histogram{counts: make(map[Type]uint64)}
}

func (h *histogram) inc(t Type) {
	h.mu.Lock()
	h.counts[t]++
	h.mu.Unlock()
}

func (h *histogram) snapshot() map[Type]uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return maps.Clone(h.counts)
}

func (h *histogram) reset() {
	h.mu.Lock()
	h.counts = make(map[Type]uint64)
	h.mu.Unlock()
}
