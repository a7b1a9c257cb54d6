package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/memento/internal/event"
	"github.com/dshills/memento/internal/state"
)

// scriptedState records what the loop does to it.
type scriptedState struct {
	state.Base

	mu      sync.Mutex
	calls   []string
	inputs  []string
	exits   int
	onInput func(string)
	panicIn string
}

func newScripted(name string) *scriptedState {
	return &scriptedState{Base: state.NewBase(name)}
}

func (s *scriptedState) record(what string) {
	s.mu.Lock()
	s.calls = append(s.calls, what)
	s.mu.Unlock()
	if s.panicIn == what {
		panic(what + " failed")
	}
}

func (s *scriptedState) Update(time.Duration) { s.record("update") }
func (s *scriptedState) Render()              { s.record("render") }
func (s *scriptedState) Exit()                { s.exits++ }

func (s *scriptedState) HandleInput(in string) {
	s.mu.Lock()
	s.inputs = append(s.inputs, in)
	s.mu.Unlock()
	if s.onInput != nil {
		s.onInput(in)
	}
	s.record("input")
}

func (s *scriptedState) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

func newTestEngine(t *testing.T, opts Options) (*Engine, *event.Bus, *state.Manager) {
	t.Helper()
	bus := event.NewBus()
	states := state.NewManager()
	e := New(bus, states, opts)
	require.NoError(t, e.Initialize())
	return e, bus, states
}

func errorCodes(bus *event.Bus) *[]string {
	var (
		mu    sync.Mutex
		codes []string
	)
	bus.Subscribe(event.TypeError, event.PayloadHandler(func(_ event.Event, p event.Error) error {
		mu.Lock()
		codes = append(codes, p.Code)
		mu.Unlock()
		return nil
	}), event.WithID("test-errors"), event.WithSubscriberPriority(event.PriorityLow))
	return &codes
}

func TestEngine_TickOrder(t *testing.T) {
	e, bus, states := newTestEngine(t, Options{})
	s := newScripted("Exploring")
	require.NoError(t, states.SetInitialState(s))

	var drainedDuringTick []string
	bus.SubscribeFunc("Ping", func(event.Event) {
		drainedDuringTick = append(drainedDuringTick, "drain")
		s.record("drain")
	})

	require.True(t, e.Submit("look"))
	bus.Publish(event.New("Ping"))

	e.Tick(context.Background(), 16*time.Millisecond)

	assert.Equal(t, []string{"input", "drain", "update", "render"}, s.snapshot())
	assert.Equal(t, []string{"look"}, s.inputs)
	assert.Len(t, drainedDuringTick, 1)

	snap := e.Snapshot()
	assert.Equal(t, uint64(1), snap.TickCount)
	assert.Equal(t, uint64(1), snap.InputCount)
	assert.Equal(t, uint64(1), snap.EventsDrained)
	assert.Zero(t, snap.FailedTicks)
}

func TestEngine_EventBudget(t *testing.T) {
	e, bus, states := newTestEngine(t, Options{EventBudget: 2})
	require.NoError(t, states.SetInitialState(newScripted("S")))

	for range 5 {
		bus.Publish(event.New("Ping"))
	}

	e.Tick(context.Background(), time.Millisecond)
	assert.Equal(t, 3, bus.QueueSize())
	e.Tick(context.Background(), time.Millisecond)
	assert.Equal(t, 1, bus.QueueSize())
}

func TestEngine_SubscribesAsGameEngine(t *testing.T) {
	_, bus, _ := newTestEngine(t, Options{})

	gsc := bus.Subscribers(event.TypeGameStateChanged)
	require.Len(t, gsc, 1)
	assert.Equal(t, SubscriberID, gsc[0].ID)
	assert.Equal(t, event.PriorityHigh, gsc[0].Priority)

	errs := bus.Subscribers(event.TypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, SubscriberID, errs[0].ID)
	assert.Equal(t, event.PriorityCritical, errs[0].Priority)
}

func TestEngine_InitializeTwice(t *testing.T) {
	e, _, _ := newTestEngine(t, Options{})
	assert.ErrorIs(t, e.Initialize(), ErrAlreadyInitialized)
}

func TestEngine_StateFaultPublishesError(t *testing.T) {
	e, bus, states := newTestEngine(t, Options{})
	codes := errorCodes(bus)
	s := newScripted("S")
	s.panicIn = "update"
	require.NoError(t, states.SetInitialState(s))

	require.NotPanics(t, func() {
		e.Tick(context.Background(), time.Millisecond)
	})

	assert.Equal(t, []string{CodeUpdateError}, *codes)
	assert.Contains(t, s.snapshot(), "render")
	assert.Equal(t, uint64(1), e.Snapshot().FailedTicks)
	assert.Equal(t, uint64(1), e.Snapshot().ErrorEvents)
}

func TestEngine_HandlerFaultPublishesError(t *testing.T) {
	e, bus, states := newTestEngine(t, Options{})
	codes := errorCodes(bus)
	require.NoError(t, states.SetInitialState(newScripted("S")))
	bus.SubscribeFunc("Ping", func(event.Event) { panic("bad handler") })

	bus.Publish(event.New("Ping"))
	e.Tick(context.Background(), time.Millisecond)

	assert.Equal(t, []string{CodeHandlerPanic}, *codes)
}

func TestEngine_ErrorHandlerFaultIsNotRepublished(t *testing.T) {
	e, bus, states := newTestEngine(t, Options{})
	require.NoError(t, states.SetInitialState(newScripted("S")))
	calls := 0
	bus.SubscribeFunc(event.TypeError, func(event.Event) {
		calls++
		panic("broken error handler")
	})

	bus.Publish(event.Of(event.Error{Code: "X"}))
	require.NotPanics(t, func() {
		e.Tick(context.Background(), time.Millisecond)
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, uint64(1), e.Snapshot().FailedTicks)
}

func TestEngine_TransitionsAreCounted(t *testing.T) {
	e, _, states := newTestEngine(t, Options{})
	require.NoError(t, states.SetInitialState(newScripted("A")))
	require.NoError(t, states.PushState(newScripted("B")))

	e.Tick(context.Background(), time.Millisecond)

	assert.Equal(t, "B", states.CurrentStateName())
	assert.Equal(t, uint64(2), e.Snapshot().Transitions)
}

func TestEngine_SubmitDropsWhenFull(t *testing.T) {
	e, _, _ := newTestEngine(t, Options{InputBuffer: 1})

	assert.True(t, e.Submit("a"))
	assert.False(t, e.Submit("b"))
	assert.Equal(t, uint64(1), e.Snapshot().InputDropped)
}

func TestEngine_InputCanRequestTransition(t *testing.T) {
	e, _, states := newTestEngine(t, Options{})
	explore := newScripted("Exploring")
	pause := newScripted("Pause")
	explore.onInput = func(in string) {
		if in == "pause" {
			_ = states.PushState(pause)
		}
	}
	require.NoError(t, states.SetInitialState(explore))

	e.Submit("pause")
	e.Tick(context.Background(), time.Millisecond)

	assert.Equal(t, "Pause", states.CurrentStateName())
	assert.Equal(t, []string{"update", "render"}, pause.snapshot())
	assert.Equal(t, []string{"input"}, explore.snapshot())
}

func TestEngine_RunStopsOnRequest(t *testing.T) {
	e, _, states := newTestEngine(t, Options{TargetFPS: 1000})
	s := newScripted("S")
	require.NoError(t, states.SetInitialState(s))

	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(context.Background()) }()

	require.Eventually(t, func() bool { return e.Snapshot().TickCount >= 3 }, time.Second, time.Millisecond)
	assert.True(t, e.IsRunning())
	e.RequestShutdown()
	e.RequestShutdown()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}

	e.Shutdown()
	e.Shutdown()
	assert.Equal(t, 1, s.exits)
	assert.False(t, states.HasCurrentState())
	assert.Equal(t, 0, e.Bus().SubscriberCount(""))
}

func TestEngine_RunStopsOnContext(t *testing.T) {
	e, _, states := newTestEngine(t, Options{TargetFPS: 1000})
	require.NoError(t, states.SetInitialState(newScripted("S")))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()

	require.Eventually(t, e.IsRunning, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestEngine_RunWithoutStateFails(t *testing.T) {
	e, _, _ := newTestEngine(t, Options{})
	assert.ErrorIs(t, e.Run(context.Background()), ErrNoInitialState)
}

func TestEngine_FatalErrorEventStopsLoop(t *testing.T) {
	e, bus, states := newTestEngine(t, Options{TargetFPS: 1000})
	require.NoError(t, states.SetInitialState(newScripted("S")))

	bus.Publish(event.Of(event.Error{Code: FatalCodePrefix + "DISK", Message: "disk gone"}))

	err := e.Run(context.Background())
	assert.ErrorIs(t, err, ErrFatal)
}

func TestEngine_TooManyFailures(t *testing.T) {
	e, bus, states := newTestEngine(t, Options{TargetFPS: 1000, MaxConsecutiveFailures: 3})
	codes := errorCodes(bus)
	s := newScripted("S")
	s.panicIn = "render"
	require.NoError(t, states.SetInitialState(s))

	err := e.Run(context.Background())

	assert.ErrorIs(t, err, ErrTooManyFailures)
	assert.Contains(t, *codes, CodeFatalFailures)
	assert.GreaterOrEqual(t, e.Snapshot().FailedTicks, uint64(3))
}

func TestEngine_RunTwice(t *testing.T) {
	e, _, states := newTestEngine(t, Options{TargetFPS: 1000})
	require.NoError(t, states.SetInitialState(newScripted("S")))

	go func() { _ = e.Run(context.Background()) }()
	require.Eventually(t, e.IsRunning, time.Second, time.Millisecond)

	assert.ErrorIs(t, e.Run(context.Background()), ErrAlreadyRunning)
	e.Shutdown()
}

func TestEngine_SetTargetFPS(t *testing.T) {
	e, _, _ := newTestEngine(t, Options{})
	assert.Equal(t, time.Second/60, e.FrameTime())

	e.SetTargetFPS(30)
	assert.Equal(t, time.Second/30, e.FrameTime())

	e.SetTargetFPS(0)
	assert.Equal(t, time.Second/30, e.FrameTime())
}

func TestEngine_PrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	e, _, states := newTestEngine(t, Options{Registerer: reg})
	require.NoError(t, states.SetInitialState(newScripted("S")))

	e.Tick(context.Background(), time.Millisecond)
	e.Submit("x")
	e.Tick(context.Background(), time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(e.metrics.prom.ticks.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.prom.inputs.WithLabelValues("delivered")))
}

func TestMetricsSnapshot_Rates(t *testing.T) {
	s := MetricsSnapshot{TickCount: 4, FailedTicks: 1, AvgTickNs: int64(time.Millisecond)}

	assert.InDelta(t, 1000.0, s.AvgTPS(), 0.001)
	assert.InDelta(t, 25.0, s.FailureRate(), 0.001)
	assert.Zero(t, MetricsSnapshot{}.AvgTPS())
	assert.Zero(t, MetricsSnapshot{}.FailureRate())
}
