package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/memento/internal/event"
	"github.com/dshills/memento/internal/event/dispatch"
	"github.com/dshills/memento/internal/state"
)

const tracerName = "github.com/dshills/memento/internal/engine"

// Engine ties the event bus and the state manager together once per tick.
type Engine struct {
	bus    *event.Bus
	states *state.Manager
	opts   Options

	inbox chan string

	running     atomic.Bool
	initialized atomic.Bool
	frameNs     atomic.Int64

	done      chan struct{}
	closeOnce sync.Once
	stopErr   atomic.Pointer[error]

	shutdownOnce sync.Once

	// Loop goroutine only.
	tickFailed          atomic.Bool
	consecutiveFailures int

	subscriber *event.Subscriber
	exec       *dispatch.Executor
	metrics    *Metrics
	tracer     trace.Tracer
	logger     *slog.Logger
}

// New creates an engine over bus and states.
func New(bus *event.Bus, states *state.Manager, opts Options) *Engine {
	opts = opts.withDefaults()

	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	e := &Engine{
		bus:        bus,
		states:     states,
		opts:       opts,
		inbox:      make(chan string, opts.InputBuffer),
		done:       make(chan struct{}),
		subscriber: event.NewSubscriber(bus, SubscriberID),
		exec:       dispatch.NewExecutor(),
		metrics:    NewMetrics(opts.Registerer),
		tracer:     tracer,
		logger:     opts.Logger.With("component", "engine"),
	}
	e.frameNs.Store(int64(time.Second / time.Duration(opts.TargetFPS)))
	return e
}

// Initialize wires the engine into the bus and the state manager.
// It subscribes to GameStateChanged and Error, routes handler and state
// faults into Error events, and makes the manager announce transitions.
func (e *Engine) Initialize() error {
	if !e.initialized.CompareAndSwap(false, true) {
		return ErrAlreadyInitialized
	}

	if err := e.subscriber.Subscribe(event.TypeGameStateChanged,
		event.PayloadHandler(e.onStateChanged), event.PriorityHigh); err != nil {
		return fmt.Errorf("subscribe %s: %w", event.TypeGameStateChanged, err)
	}
	if err := e.subscriber.Subscribe(event.TypeError,
		event.PayloadHandler(e.onError), event.PriorityCritical); err != nil {
		return fmt.Errorf("subscribe %s: %w", event.TypeError, err)
	}

	e.bus.SetFaultHandler(e.onHandlerFault)
	e.states.SetFaultHandler(e.onStateFault)
	e.states.SetNotifier(e.bus)

	e.logger.Info("engine initialized",
		"target_fps", e.opts.TargetFPS,
		"event_budget", e.opts.EventBudget,
	)
	return nil
}

// Bus returns the engine's event bus.
func (e *Engine) Bus() *event.Bus {
	return e.bus
}

// States returns the engine's state manager.
func (e *Engine) States() *state.Manager {
	return e.states
}

// Metrics returns the engine metrics.
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// Snapshot returns the current engine metrics.
func (e *Engine) Snapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// IsRunning reports whether Run is executing.
func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

// SetTargetFPS changes the tick rate. It may be called while running.
func (e *Engine) SetTargetFPS(fps int) {
	if fps <= 0 {
		e.logger.Warn("invalid target fps ignored", "fps", fps)
		return
	}
	e.frameNs.Store(int64(time.Second / time.Duration(fps)))
	e.logger.Info("target fps set", "fps", fps)
}

// FrameTime returns the current tick interval.
func (e *Engine) FrameTime() time.Duration {
	return time.Duration(e.frameNs.Load())
}

// Submit hands raw transport input to the loop. It never blocks; when the
// inbox is full the input is dropped and false is returned.
// Safe to call from any goroutine.
func (e *Engine) Submit(input string) bool {
	select {
	case e.inbox <- input:
		return true
	default:
		e.metrics.RecordInputDropped()
		e.logger.Warn("input dropped, inbox full", "capacity", cap(e.inbox))
		return false
	}
}

// RequestShutdown asks the loop to stop after the current tick.
// Safe to call from any goroutine and more than once.
func (e *Engine) RequestShutdown() {
	e.stop(nil)
}

// Done is closed once shutdown has been requested.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Run ticks at the target rate until ctx is cancelled or shutdown is
// requested. A clean stop returns nil; a fatal stop returns ErrFatal or
// ErrTooManyFailures.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer e.running.Store(false)

	if !e.initialized.Load() {
		if err := e.Initialize(); err != nil {
			return err
		}
	}
	if !e.states.HasCurrentState() && e.states.Pending().IsNone() {
		return ErrNoInitialState
	}

	frame := e.FrameTime()
	ticker := time.NewTicker(frame)
	defer ticker.Stop()

	e.logger.Info("engine loop started", "state", e.states.CurrentStateName())
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine loop stopped", "reason", ctx.Err())
			return nil

		case <-e.done:
			err := e.stopError()
			e.logger.Info("engine loop stopped", "reason", "shutdown requested", "error", err)
			return err

		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now

			e.Tick(ctx, dt)

			if next := e.FrameTime(); next != frame {
				frame = next
				ticker.Reset(frame)
			}
		}
	}
}

// Tick runs one iteration of the loop: input, drain, update, render.
// It is exported so tests and embedders can drive the loop manually.
func (e *Engine) Tick(ctx context.Context, dt time.Duration) {
	start := time.Now()
	e.tickFailed.Store(false)

	ctx, span := e.tracer.Start(ctx, "engine.tick",
		trace.WithAttributes(attribute.Int64("dt_us", dt.Microseconds())))
	defer span.End()

	e.stage(ctx, "input", e.processInput)
	e.stage(ctx, "drain", func(ctx context.Context) {
		n := e.bus.Drain(e.opts.EventBudget)
		e.metrics.RecordDrain(n)
		trace.SpanFromContext(ctx).SetAttributes(attribute.Int("events", n))
	})
	e.stage(ctx, "update", func(context.Context) {
		e.states.Update(dt)
	})
	e.stage(ctx, "render", func(context.Context) {
		renderStart := time.Now()
		e.states.Render()
		e.metrics.RecordRender(time.Since(renderStart))
	})

	failed := e.tickFailed.Load()
	e.metrics.RecordTick(time.Since(start), failed)
	span.SetAttributes(attribute.Bool("failed", failed))

	if !failed {
		e.consecutiveFailures = 0
		return
	}

	e.consecutiveFailures++
	if limit := e.opts.MaxConsecutiveFailures; limit > 0 && e.consecutiveFailures >= limit {
		e.logger.Error("too many consecutive failing ticks, shutting down",
			"failures", e.consecutiveFailures,
		)
		e.stop(ErrTooManyFailures)
		e.report(CodeFatalFailures,
			fmt.Sprintf("%d consecutive failing ticks", e.consecutiveFailures), "engine")
	}
}

// Shutdown stops the loop if needed, exits every state, and removes the
// engine's subscriptions. Safe to call more than once.
func (e *Engine) Shutdown() {
	e.shutdownOnce.Do(func() {
		e.RequestShutdown()

		e.states.Shutdown()
		e.subscriber.Close()
		e.bus.SetFaultHandler(nil)
		e.states.SetFaultHandler(nil)

		discarded := e.bus.ClearQueue()
		stats := e.bus.Stats()
		snap := e.metrics.Snapshot()
		e.logger.Info("engine shut down",
			"ticks", snap.TickCount,
			"failed_ticks", snap.FailedTicks,
			"events_drained", snap.EventsDrained,
			"events_dropped", stats.Dropped,
			"queue_discarded", discarded,
		)
	})
}

// stage runs one tick stage, turning an escaped panic into an Error event.
func (e *Engine) stage(ctx context.Context, name string, fn func(context.Context)) {
	ctx, span := e.tracer.Start(ctx, "engine."+name)
	defer span.End()

	result := e.exec.Run("engine."+name, func() { fn(ctx) })
	if !result.Panicked {
		return
	}

	err := &StageError{Stage: name, Value: result.PanicValue}
	span.RecordError(err)
	e.logger.Error("tick stage panicked", "stage", name, "panic", fmt.Sprint(result.PanicValue))
	e.report(CodeTickPanic, fmt.Sprintf("%s: %v", err.Error(), result.PanicValue), "engine."+name)
}

// processInput hands buffered input to the active state, at most one
// inbox's worth per tick.
func (e *Engine) processInput(context.Context) {
	for range cap(e.inbox) {
		select {
		case in := <-e.inbox:
			e.metrics.RecordInput()
			e.states.HandleInput(in)
		default:
			return
		}
	}
}

// report marks the tick failed and publishes an Error event immediately.
func (e *Engine) report(code, message, source string) {
	e.tickFailed.Store(true)
	e.bus.PublishImmediate(event.Of(event.Error{
		Code:    code,
		Message: message,
		Source:  source,
	}, event.WithSource("engine")))
}

// onHandlerFault republishes subscriber faults. Faults raised while
// dispatching Error events are only logged, so a broken Error handler
// cannot feed itself.
func (e *Engine) onHandlerFault(err error) {
	var (
		herr *event.HandlerError
		perr *event.PanicError
	)
	switch {
	case errors.As(err, &perr):
		if perr.Type == event.TypeError {
			e.tickFailed.Store(true)
			return
		}
		e.report(CodeHandlerPanic, perr.Error(), perr.SubscriberID)
	case errors.As(err, &herr):
		if herr.Type == event.TypeError {
			e.tickFailed.Store(true)
			return
		}
		e.report(CodeHandlerError, herr.Error(), herr.SubscriberID)
	}
}

// onStateFault republishes state hook panics.
func (e *Engine) onStateFault(err error) {
	var fe *state.FaultError
	if !errors.As(err, &fe) {
		e.report(CodeStateError, err.Error(), "state")
		return
	}

	code := CodeStateError
	switch fe.Stage {
	case state.StageUpdate, state.StageNextState:
		code = CodeUpdateError
	case state.StageRender:
		code = CodeRenderError
	case state.StageHandleInput:
		code = CodeInputError
	}
	e.report(code, fmt.Sprintf("%s: %v", fe.Error(), fe.Value), fe.State)
}

func (e *Engine) onStateChanged(_ event.Event, p event.GameStateChanged) error {
	e.metrics.RecordTransition()
	e.logger.Debug("game state changed", "from", p.From, "to", p.To, "trigger", p.Trigger)
	return nil
}

func (e *Engine) onError(_ event.Event, p event.Error) error {
	e.metrics.RecordError()
	e.logger.Error("error event",
		"code", p.Code,
		"message", p.Message,
		"source", p.Source,
	)

	if strings.HasPrefix(p.Code, FatalCodePrefix) {
		e.stop(ErrFatal)
	}
	return nil
}

// stop closes done once, remembering the first reason.
func (e *Engine) stop(err error) {
	e.closeOnce.Do(func() {
		if err != nil {
			e.stopErr.Store(&err)
		}
		close(e.done)
	})
}

func (e *Engine) stopError() error {
	if p := e.stopErr.Load(); p != nil {
		return *p
	}
	return nil
}
