package state

import "errors"

// Sentinel errors for the state manager.
var (
	// ErrNilState is returned when a nil state is passed to a request.
	ErrNilState = errors.New("state cannot be nil")

	// ErrStateActive is returned by SetInitialState when a state is already active.
	ErrStateActive = errors.New("a state is already active")

	// ErrNoActiveState is returned when an operation needs an active state.
	ErrNoActiveState = errors.New("no active state")

	// ErrStackEmpty is returned by PopState when nothing is suspended.
	ErrStackEmpty = errors.New("state stack is empty")

	// ErrTransitionBlocked is returned when the active state refuses replacement.
	ErrTransitionBlocked = errors.New("active state cannot transition")

	// ErrStateOwned is returned when the target is already active or suspended.
	ErrStateOwned = errors.New("state is already active or suspended")

	// ErrStatePanic matches any FaultError caused by a panic.
	ErrStatePanic = errors.New("state hook panicked")
)

// FaultError reports a state hook that panicked.
type FaultError struct {
	// State is the name of the faulting state.
	State string

	// Stage is the hook that faulted.
	Stage Stage

	// Value is the value passed to panic().
	Value any

	// Stack is the stack trace at the time of the panic.
	Stack string
}

// Error implements the error interface.
func (e *FaultError) Error() string {
	return "state " + e.State + " faulted in " + string(e.Stage)
}

// Is allows errors.Is to match FaultError with ErrStatePanic.
func (e *FaultError) Is(target error) bool {
	return target == ErrStatePanic
}
