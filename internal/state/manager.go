package state

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/dshills/memento/internal/event"
	"github.com/dshills/memento/internal/event/dispatch"
)

// Notifier receives GameStateChanged events for applied transitions.
// *event.Bus satisfies it.
type Notifier interface {
	PublishImmediate(ev event.Event)
}

// FaultHandler is called with a *FaultError whenever a state hook panics.
type FaultHandler func(err error)

// ChangeCallback is called after a transition has been applied.
type ChangeCallback func(from, to GameState, kind TransitionKind)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used by the manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithNotifier publishes a GameStateChanged event for every applied transition.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) {
		m.notifier = n
	}
}

// WithFaultHandler sets the callback for recovered hook panics.
func WithFaultHandler(h FaultHandler) Option {
	return func(m *Manager) {
		m.onFault = h
	}
}

// Manager owns the active state, the stack of suspended states and the
// pending transition.
type Manager struct {
	mu sync.Mutex

	// current is the active state, or nil.
	current GameState

	// stack holds suspended states; the last element is the top.
	stack []GameState

	// pending is the transition applied at the start of the next Update.
	pending Transition

	// callbacks are notified after transitions.
	callbacks map[int]ChangeCallback
	nextCB    int

	notifier Notifier
	onFault  FaultHandler
	exec     *dispatch.Executor
	logger   *slog.Logger
}

// NewManager creates a manager with no active state.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		stack:     make([]GameState, 0, 4),
		callbacks: make(map[int]ChangeCallback),
		exec:      dispatch.NewExecutor(),
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "state.manager")
	return m
}

// SetFaultHandler replaces the fault callback.
func (m *Manager) SetFaultHandler(h FaultHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFault = h
}

// SetNotifier replaces the GameStateChanged notifier.
func (m *Manager) SetNotifier(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifier = n
}

// OnChange registers a callback invoked after each applied transition.
// Returns a function that unregisters it.
func (m *Manager) OnChange(cb ChangeCallback) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextCB
	m.nextCB++
	m.callbacks[id] = cb

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.callbacks, id)
	}
}

// SetInitialState activates s immediately. It is only legal while no state
// is active; otherwise it is a no-op.
func (m *Manager) SetInitialState(s GameState) error {
	if s == nil {
		m.logger.Warn("initial state rejected", "error", ErrNilState)
		return ErrNilState
	}

	m.mu.Lock()
	if m.current != nil {
		active := m.current.Name()
		m.mu.Unlock()
		m.logger.Warn("initial state rejected", "state", s.Name(), "active", active, "error", ErrStateActive)
		return ErrStateActive
	}
	m.current = s
	m.mu.Unlock()

	m.call(s, StageEnter, s.Enter)
	m.logger.Info("initial state set", "state", s.Name())
	m.notify(nil, s, TransitionChange, TriggerInitial)
	return nil
}

// ChangeState requests replacing the active state with s on the next Update.
// The request is rejected when the active state's CanTransition is false.
func (m *Manager) ChangeState(s GameState) error {
	return m.requestChange(s, TriggerChange)
}

// PushState requests suspending the active state under s on the next Update.
func (m *Manager) PushState(s GameState) error {
	if s == nil {
		m.logger.Warn("push rejected", "error", ErrNilState)
		return ErrNilState
	}
	if m.owns(s) {
		m.logger.Warn("push rejected", "state", s.Name(), "error", ErrStateOwned)
		return ErrStateOwned
	}

	m.setPending(Transition{Kind: TransitionPush, Target: s, Trigger: TriggerPush})
	m.logger.Debug("push requested", "state", s.Name())
	return nil
}

// PopState requests discarding the active state in favor of the top of the
// stack on the next Update. The request is rejected when the stack is empty.
func (m *Manager) PopState() error {
	m.mu.Lock()
	depth := len(m.stack)
	m.mu.Unlock()

	if depth == 0 {
		m.logger.Warn("pop rejected", "error", ErrStackEmpty)
		return ErrStackEmpty
	}

	m.setPending(Transition{Kind: TransitionPop, Trigger: TriggerPop})
	m.logger.Debug("pop requested", "depth", depth)
	return nil
}

// Update applies the pending transition, updates the active state, and
// queues a change for the next Update if the state asks for one.
func (m *Manager) Update(dt time.Duration) {
	m.applyPending()

	cur := m.Current()
	if cur == nil {
		return
	}

	m.call(cur, StageUpdate, func() { cur.Update(dt) })

	var next GameState
	m.call(cur, StageNextState, func() { next = cur.NextState() })
	if next != nil {
		_ = m.requestChange(next, TriggerAuto)
	}
}

// Render forwards to the active state only.
func (m *Manager) Render() {
	if cur := m.Current(); cur != nil {
		m.call(cur, StageRender, cur.Render)
	}
}

// HandleInput forwards input to the active state only.
func (m *Manager) HandleInput(input string) {
	cur := m.Current()
	if cur == nil {
		m.logger.Debug("input ignored", "error", ErrNoActiveState)
		return
	}
	m.call(cur, StageHandleInput, func() { cur.HandleInput(input) })
}

// Shutdown exits the active state and then every suspended state from the
// top of the stack down. Each Exit is recovered independently. Any pending
// transition is discarded. The manager is empty afterwards.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	cur := m.current
	stack := m.stack
	m.current = nil
	m.stack = make([]GameState, 0, 4)
	m.pending = Transition{}
	m.mu.Unlock()

	if cur != nil {
		m.call(cur, StageExit, cur.Exit)
	}
	for i := len(stack) - 1; i >= 0; i-- {
		s := stack[i]
		m.call(s, StageExit, s.Exit)
	}

	if cur != nil || len(stack) > 0 {
		m.logger.Info("state manager shut down", "exited", len(stack)+boolToInt(cur != nil))
	}
}

// Current returns the active state, or nil.
func (m *Manager) Current() GameState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// CurrentStateName returns the active state's name, or "None".
func (m *Manager) CurrentStateName() string {
	return nameOf(m.Current())
}

// HasCurrentState reports whether a state is active.
func (m *Manager) HasCurrentState() bool {
	return m.Current() != nil
}

// StackDepth returns the number of suspended states.
func (m *Manager) StackDepth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stack)
}

// StackNames returns the suspended state names from bottom to top.
func (m *Manager) StackNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, len(m.stack))
	for i, s := range m.stack {
		names[i] = s.Name()
	}
	return names
}

// Pending returns the transition that the next Update will apply.
func (m *Manager) Pending() Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

func (m *Manager) requestChange(s GameState, trigger string) error {
	if s == nil {
		m.logger.Warn("change rejected", "error", ErrNilState)
		return ErrNilState
	}
	if m.owns(s) {
		m.logger.Warn("change rejected", "state", s.Name(), "trigger", trigger, "error", ErrStateOwned)
		return ErrStateOwned
	}

	if cur := m.Current(); cur != nil {
		allowed := false
		res := m.call(cur, StageCanTransition, func() { allowed = cur.CanTransition() })
		if !res || !allowed {
			m.logger.Warn("change rejected",
				"from", cur.Name(),
				"to", s.Name(),
				"trigger", trigger,
				"error", ErrTransitionBlocked,
			)
			return ErrTransitionBlocked
		}
	}

	m.setPending(Transition{Kind: TransitionChange, Target: s, Trigger: trigger})
	m.logger.Debug("change requested", "state", s.Name(), "trigger", trigger)
	return nil
}

func (m *Manager) setPending(t Transition) {
	m.mu.Lock()
	prev := m.pending
	m.pending = t
	m.mu.Unlock()

	if !prev.IsNone() {
		m.logger.Debug("pending transition replaced", "previous", prev.Kind.String(), "next", t.Kind.String())
	}
}

// applyPending applies and clears the pending transition. Hooks run without
// the lock held so they may issue new requests.
func (m *Manager) applyPending() {
	m.mu.Lock()
	t := m.pending
	m.pending = Transition{}
	m.mu.Unlock()

	switch t.Kind {
	case TransitionNone:
		return

	case TransitionChange:
		m.mu.Lock()
		if m.ownsLocked(t.Target) {
			m.mu.Unlock()
			m.logger.Warn("change skipped", "state", t.Target.Name(), "error", ErrStateOwned)
			return
		}
		old := m.current
		m.current = t.Target
		m.mu.Unlock()

		if old != nil {
			m.call(old, StageExit, old.Exit)
		}
		m.call(t.Target, StageEnter, t.Target.Enter)
		m.notify(old, t.Target, t.Kind, t.Trigger)

	case TransitionPush:
		m.mu.Lock()
		if m.ownsLocked(t.Target) {
			m.mu.Unlock()
			m.logger.Warn("push skipped", "state", t.Target.Name(), "error", ErrStateOwned)
			return
		}
		old := m.current
		if old != nil {
			m.stack = append(m.stack, old)
		}
		m.current = t.Target
		m.mu.Unlock()

		m.call(t.Target, StageEnter, t.Target.Enter)
		m.notify(old, t.Target, t.Kind, t.Trigger)

	case TransitionPop:
		m.mu.Lock()
		if len(m.stack) == 0 {
			m.mu.Unlock()
			m.logger.Warn("pop skipped", "error", ErrStackEmpty)
			return
		}
		old := m.current
		top := m.stack[len(m.stack)-1]
		m.stack[len(m.stack)-1] = nil
		m.stack = m.stack[:len(m.stack)-1]
		m.current = top
		m.mu.Unlock()

		if old != nil {
			m.call(old, StageExit, old.Exit)
		}
		m.notify(old, top, t.Kind, t.Trigger)
	}
}

// owns reports whether s is the active state or on the stack.
func (m *Manager) owns(s GameState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ownsLocked(s)
}

func (m *Manager) ownsLocked(s GameState) bool {
	if sameState(m.current, s) {
		return true
	}
	for _, held := range m.stack {
		if sameState(held, s) {
			return true
		}
	}
	return false
}

// sameState compares by identity. Values of non-comparable types never match.
func sameState(a, b GameState) bool {
	if a == nil || b == nil {
		return false
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}

// notify publishes GameStateChanged and runs change callbacks.
func (m *Manager) notify(from, to GameState, kind TransitionKind, trigger string) {
	m.mu.Lock()
	notifier := m.notifier
	callbacks := make([]ChangeCallback, 0, len(m.callbacks))
	for i := 0; i < m.nextCB; i++ {
		if cb, ok := m.callbacks[i]; ok {
			callbacks = append(callbacks, cb)
		}
	}
	m.mu.Unlock()

	m.logger.Info("state changed",
		"from", nameOf(from),
		"to", nameOf(to),
		"kind", kind.String(),
		"trigger", trigger,
	)

	if notifier != nil {
		notifier.PublishImmediate(event.Of(event.GameStateChanged{
			From:    nameOf(from),
			To:      nameOf(to),
			Trigger: trigger,
		}, event.WithSource("state")))
	}

	for _, cb := range callbacks {
		m.exec.Run("state.onChange", func() { cb(from, to, kind) })
	}
}

// call runs a hook of s, recovering and reporting any panic.
// Returns false if the hook panicked.
func (m *Manager) call(s GameState, stage Stage, hook func()) bool {
	result := m.exec.Run(s.Name()+"."+string(stage), hook)
	if !result.Panicked {
		return true
	}

	fault := &FaultError{
		State: s.Name(),
		Stage: stage,
		Value: result.PanicValue,
		Stack: string(result.PanicStack),
	}
	m.logger.Error("state hook panicked",
		"state", fault.State,
		"stage", string(stage),
		"panic", fmt.Sprint(result.PanicValue),
	)

	m.mu.Lock()
	onFault := m.onFault
	m.mu.Unlock()
	if onFault != nil {
		m.exec.Run("state.onFault", func() { onFault(fault) })
	}
	return false
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
