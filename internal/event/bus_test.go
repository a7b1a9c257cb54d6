package event

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects the order handlers are called in.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) handler(name string) Handler {
	return HandlerFunc(func(Event) error {
		r.mu.Lock()
		r.calls = append(r.calls, name)
		r.mu.Unlock()
		return nil
	})
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

func TestBus_PriorityOrder(t *testing.T) {
	bus := NewBus()
	rec := &recorder{}

	bus.Subscribe("X", rec.handler("A"), WithID("A"), WithSubscriberPriority(5))
	bus.Subscribe("X", rec.handler("B"), WithID("B"), WithSubscriberPriority(1))

	bus.PublishImmediate(New("X"))

	assert.Equal(t, []string{"B", "A"}, rec.got())
}

func TestBus_EqualPriorityKeepsRegistrationOrder(t *testing.T) {
	bus := NewBus()
	rec := &recorder{}

	bus.Subscribe("X", rec.handler("first"), WithSubscriberPriority(3))
	bus.Subscribe("X", rec.handler("late"), WithSubscriberPriority(9))
	bus.Subscribe("X", rec.handler("second"), WithSubscriberPriority(3))
	bus.Subscribe("X", rec.handler("early"), WithSubscriberPriority(0))
	bus.Subscribe("X", rec.handler("third"), WithSubscriberPriority(3))

	bus.PublishImmediate(New("X"))

	assert.Equal(t, []string{"early", "first", "second", "third", "late"}, rec.got())
}

func TestBus_ResubscribeReplaces(t *testing.T) {
	bus := NewBus()
	rec := &recorder{}

	bus.Subscribe("X", rec.handler("old"), WithID("ui"), WithSubscriberPriority(5))
	bus.Subscribe("X", rec.handler("other"), WithID("audio"), WithSubscriberPriority(3))
	require.Equal(t, 2, bus.SubscriberCount("X"))

	bus.Subscribe("X", rec.handler("new"), WithID("ui"), WithSubscriberPriority(1))

	assert.Equal(t, 2, bus.SubscriberCount("X"))
	bus.PublishImmediate(New("X"))
	assert.Equal(t, []string{"new", "other"}, rec.got())
}

func TestBus_GeneratedIDs(t *testing.T) {
	bus := NewBus()

	id1 := bus.SubscribeFunc("Tick", func(Event) {})
	id2 := bus.SubscribeFunc("Tick", func(Event) {})

	assert.Regexp(t, `^Tick_\d+$`, id1)
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, 2, bus.SubscriberCount("Tick"))
}

func TestBus_NilHandlerIgnored(t *testing.T) {
	bus := NewBus()

	assert.Empty(t, bus.Subscribe("X", nil))
	assert.Empty(t, bus.Subscribe("X", HandlerFunc(nil)))
	assert.Empty(t, bus.SubscribeFunc("X", nil))
	assert.Empty(t, bus.Subscribe("", Callback(func(Event) {})))
	assert.Equal(t, 0, bus.SubscriberCount(""))
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	bus.SubscribeFunc("X", func(Event) {}, WithID("a"))
	bus.SubscribeFunc("X", func(Event) {}, WithID("b"))

	assert.True(t, bus.Unsubscribe("X", "a"))
	assert.False(t, bus.Unsubscribe("X", "a"))
	assert.False(t, bus.Unsubscribe("Y", "b"))
	assert.True(t, bus.HasSubscribers("X"))

	assert.True(t, bus.Unsubscribe("X", "b"))
	assert.False(t, bus.HasSubscribers("X"))
	assert.NotContains(t, bus.Types(), Type("X"))
}

func TestBus_UnsubscribeAll(t *testing.T) {
	bus := NewBus()
	bus.SubscribeFunc("X", func(Event) {}, WithID("ui"))
	bus.SubscribeFunc("Y", func(Event) {}, WithID("ui"))
	bus.SubscribeFunc("Y", func(Event) {}, WithID("audio"))

	assert.Equal(t, 2, bus.UnsubscribeAll("ui"))
	assert.Equal(t, 0, bus.SubscriberCount("X"))
	assert.Equal(t, 1, bus.SubscriberCount("Y"))
	assert.Equal(t, 1, bus.SubscriberCount(""))
}

func TestBus_SetActive(t *testing.T) {
	bus := NewBus()
	rec := &recorder{}
	bus.Subscribe("X", rec.handler("ui"), WithID("ui"))
	bus.Subscribe("X", rec.handler("audio"), WithID("audio"))

	assert.Equal(t, 1, bus.SetActive("ui", false))
	bus.PublishImmediate(New("X"))
	assert.Equal(t, []string{"audio"}, rec.got())
	assert.Equal(t, 2, bus.SubscriberCount("X"))

	bus.SetActive("ui", true)
	bus.PublishImmediate(New("X"))
	assert.Equal(t, []string{"audio", "ui", "audio"}, rec.got())
}

func TestBus_FailingHandlerDoesNotStopDispatch(t *testing.T) {
	var faults []error
	bus := NewBus(WithFaultHandler(func(err error) { faults = append(faults, err) }))
	rec := &recorder{}

	bus.Subscribe("X", HandlerFunc(func(Event) error { panic("boom") }), WithID("bad"), WithSubscriberPriority(1))
	bus.Subscribe("X", HandlerFunc(func(Event) error { return errors.New("nope") }), WithID("err"), WithSubscriberPriority(2))
	bus.Subscribe("X", rec.handler("good"), WithID("good"), WithSubscriberPriority(3))

	require.NotPanics(t, func() { bus.PublishImmediate(New("X")) })

	assert.Equal(t, []string{"good"}, rec.got())
	require.Len(t, faults, 2)
	assert.ErrorIs(t, faults[0], ErrHandlerPanic)
	var perr *PanicError
	require.ErrorAs(t, faults[0], &perr)
	assert.Equal(t, "bad", perr.SubscriberID)
	var herr *HandlerError
	require.ErrorAs(t, faults[1], &herr)
	assert.Equal(t, Type("X"), herr.Type)

	stats := bus.Stats()
	assert.Equal(t, uint64(1), stats.HandlerPanics)
	assert.Equal(t, uint64(1), stats.HandlerErrors)
	assert.Equal(t, uint64(3), stats.HandlersExecuted)
}

func TestBus_QueueCapacity(t *testing.T) {
	bus := NewBus(WithMaxQueueSize(2))

	assert.True(t, bus.Publish(New("Y")))
	assert.True(t, bus.Publish(New("Y")))
	assert.NotPanics(t, func() { assert.False(t, bus.Publish(New("Y"))) })

	assert.Equal(t, 2, bus.QueueSize())
	assert.Equal(t, uint64(1), bus.Stats().Dropped)
}

func TestBus_PublishBatch(t *testing.T) {
	bus := NewBus(WithMaxQueueSize(3))

	n := bus.PublishBatch([]Event{New("A"), New("B"), {}, New("C"), New("D"), New("E")})

	assert.Equal(t, 3, n)
	assert.Equal(t, 3, bus.QueueSize())
	assert.Equal(t, uint64(2), bus.Stats().Dropped)
	assert.Equal(t, 0, bus.PublishBatch(nil))
}

func TestBus_DrainFIFOAndBudget(t *testing.T) {
	bus := NewBus()
	var order []Type
	for _, typ := range []Type{"A", "B", "C"} {
		bus.SubscribeFunc(typ, func(ev Event) { order = append(order, ev.Type()) })
	}

	bus.Publish(New("C", WithPriority(9)))
	bus.Publish(New("A", WithPriority(0)))
	bus.Publish(New("B"))

	assert.Equal(t, 2, bus.Drain(2))
	assert.Equal(t, []Type{"C", "A"}, order)
	assert.Equal(t, 1, bus.QueueSize())

	assert.Equal(t, 1, bus.Drain(0))
	assert.Equal(t, []Type{"C", "A", "B"}, order)
	assert.Equal(t, 0, bus.Drain(0))
}

func TestBus_DrainIsNotReentrant(t *testing.T) {
	bus := NewBus()
	nested := -1
	bus.SubscribeFunc("X", func(Event) {
		nested = bus.Drain(0)
	})

	bus.Publish(New("X"))
	bus.Publish(New("X"))

	assert.Equal(t, 2, bus.Drain(0))
	assert.Equal(t, 0, nested)
}

func TestBus_HandlerMayPublishDuringDrain(t *testing.T) {
	bus := NewBus()
	var seen []Type
	bus.SubscribeFunc("first", func(Event) {
		bus.Publish(New("second"))
	})
	bus.SubscribeFunc("second", func(ev Event) { seen = append(seen, ev.Type()) })

	bus.Publish(New("first"))

	assert.Equal(t, 1, bus.Drain(1))
	assert.Equal(t, 1, bus.QueueSize())
	assert.Equal(t, 1, bus.Drain(0))
	assert.Equal(t, []Type{"second"}, seen)
}

func TestBus_SnapshotDispatch(t *testing.T) {
	bus := NewBus()
	rec := &recorder{}

	bus.Subscribe("X", HandlerFunc(func(Event) error {
		bus.Unsubscribe("X", "victim")
		bus.Subscribe("X", rec.handler("late"), WithID("late"))
		return nil
	}), WithID("killer"), WithSubscriberPriority(0))
	bus.Subscribe("X", rec.handler("victim"), WithID("victim"), WithSubscriberPriority(5))

	bus.PublishImmediate(New("X"))
	assert.Equal(t, []string{"victim"}, rec.got())

	bus.PublishImmediate(New("X"))
	assert.Equal(t, []string{"victim", "late"}, rec.got())
}

func TestBus_Filters(t *testing.T) {
	bus := NewBus()
	rec := &recorder{}
	bus.Subscribe("A", rec.handler("A"))
	bus.Subscribe("B", rec.handler("B"))

	bus.AddFilter("A")
	bus.PublishImmediate(New("A"))
	bus.PublishImmediate(New("B"))
	assert.Equal(t, []string{"A"}, rec.got())
	assert.Equal(t, uint64(1), bus.Stats().Filtered)
	assert.Equal(t, []Type{"A"}, bus.Filters())

	assert.True(t, bus.RemoveFilter("A"))
	assert.False(t, bus.RemoveFilter("A"))
	bus.PublishImmediate(New("B"))
	assert.Equal(t, []string{"A", "B"}, rec.got())

	bus.AddFilter("Z")
	bus.ClearFilters()
	bus.PublishImmediate(New("B"))
	assert.Equal(t, []string{"A", "B", "B"}, rec.got())
}

func TestBus_SetFiltersSwapsAtomically(t *testing.T) {
	bus := NewBus()
	bus.SetFilters("A")

	var leaked atomic.Bool
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if bus.filters.allows("B") {
				leaked.Store(true)
			}
		}
	}()

	for i := range 1000 {
		if i%2 == 0 {
			bus.SetFilters("A", "C")
		} else {
			bus.SetFilters("A")
		}
	}
	close(stop)
	<-done

	assert.False(t, leaked.Load())
	assert.Equal(t, []Type{"A"}, bus.Filters())

	bus.SetFilters()
	assert.Empty(t, bus.Filters())
	assert.True(t, bus.filters.allows("B"))
}

func TestBus_Statistics(t *testing.T) {
	bus := NewBus()

	bus.PublishImmediate(New("A"))
	bus.PublishImmediate(New("A"))
	bus.Publish(New("B"))
	bus.Drain(0)

	assert.Equal(t, map[Type]uint64{"A": 2, "B": 1}, bus.Statistics())
	assert.Equal(t, uint64(3), bus.Stats().Published)

	bus.ResetStatistics()
	assert.Empty(t, bus.Statistics())
	assert.Zero(t, bus.Stats().Published)
}

func TestStats_DropRate(t *testing.T) {
	assert.Zero(t, Stats{}.DropRate())

	bus := NewBus(WithMaxQueueSize(3))
	for range 4 {
		bus.Publish(New("A"))
	}
	stats := bus.Stats()
	assert.Equal(t, uint64(3), stats.Published)
	assert.Equal(t, uint64(1), stats.Dropped)
	assert.InDelta(t, 0.25, stats.DropRate(), 1e-9)
}

func TestBus_ClearQueue(t *testing.T) {
	bus := NewBus()
	bus.Publish(New("A"))
	bus.Publish(New("B"))

	assert.Equal(t, 2, bus.ClearQueue())
	assert.Equal(t, 0, bus.QueueSize())
	assert.Zero(t, bus.Stats().Dropped)
}

func TestBus_SetMaxQueueSize(t *testing.T) {
	bus := NewBus(WithMaxQueueSize(4))
	var seen []string
	bus.SubscribeFunc("X", func(ev Event) { seen = append(seen, ev.Source()) })
	for _, src := range []string{"1", "2", "3", "4"} {
		bus.Publish(New("X", WithSource(src)))
	}

	bus.SetMaxQueueSize(2)

	assert.Equal(t, 2, bus.QueueSize())
	assert.Equal(t, 2, bus.MaxQueueSize())
	assert.Equal(t, uint64(2), bus.Stats().Dropped)
	bus.Drain(0)
	assert.Equal(t, []string{"1", "2"}, seen)

	bus.SetMaxQueueSize(0)
	assert.Equal(t, 2, bus.MaxQueueSize())
}

func TestBus_ZeroEventIgnored(t *testing.T) {
	bus := NewBus()

	assert.False(t, bus.Publish(Event{}))
	bus.PublishImmediate(Event{})

	assert.Zero(t, bus.Stats().Published)
	assert.Equal(t, 0, bus.QueueSize())
}

func TestBus_ConcurrentPublish(t *testing.T) {
	const (
		publishers = 8
		perWorker  = 200
		capacity   = 500
	)
	bus := NewBus(WithMaxQueueSize(capacity))

	var wg sync.WaitGroup
	for range publishers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				bus.Publish(New("load"))
				assert.LessOrEqual(t, bus.QueueSize(), capacity)
			}
		}()
	}
	wg.Wait()

	stats := bus.Stats()
	assert.Equal(t, capacity, stats.QueueSize)
	assert.Equal(t, uint64(publishers*perWorker-capacity), stats.Dropped)
	assert.Equal(t, capacity, bus.Drain(0))
}

func TestBus_DebugMode(t *testing.T) {
	bus := NewBus(WithDebug(true))
	assert.True(t, bus.DebugMode())

	bus.SetDebugMode(false)
	assert.False(t, bus.DebugMode())
}
