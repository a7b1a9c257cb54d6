package engine

import "errors"

// Engine errors.
var (
	// ErrAlreadyRunning indicates Run was called on a running engine.
	ErrAlreadyRunning = errors.New("engine already running")

	// ErrAlreadyInitialized indicates Initialize was called twice.
	ErrAlreadyInitialized = errors.New("engine already initialized")

	// ErrNoInitialState indicates Run was called before any state was active.
	ErrNoInitialState = errors.New("no initial state")

	// ErrTooManyFailures indicates the loop stopped after consecutive failing ticks.
	ErrTooManyFailures = errors.New("too many consecutive tick failures")

	// ErrFatal indicates the loop stopped on a fatal Error event.
	ErrFatal = errors.New("fatal error reported")
)

// Error codes published in Error events.
const (
	CodeUpdateError   = "UPDATE_ERROR"
	CodeRenderError   = "RENDER_ERROR"
	CodeInputError    = "INPUT_ERROR"
	CodeStateError    = "STATE_ERROR"
	CodeHandlerError  = "HANDLER_ERROR"
	CodeHandlerPanic  = "HANDLER_PANIC"
	CodeTickPanic     = "TICK_PANIC"
	CodeInputDropped  = "INPUT_DROPPED"
	FatalCodePrefix   = "FATAL_"
	CodeFatalFailures = FatalCodePrefix + "TICK_FAILURES"
)

// StageError reports a panic that escaped a tick stage.
type StageError struct {
	Stage string // Stage name (e.g. "drain", "update")
	Value any    // Value passed to panic()
}

func (e *StageError) Error() string {
	return "engine stage " + e.Stage + " panicked"
}
