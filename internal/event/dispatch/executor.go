package dispatch

import (
	"runtime/debug"
	"time"
)

// Result represents the outcome of a single call.
type Result struct {
	// Success is true if the call completed without error or panic.
	Success bool

	// Error is the error returned by the call, if any.
	Error error

	// Panicked is true if the call panicked.
	Panicked bool

	// PanicValue is the value passed to panic().
	PanicValue any

	// PanicStack is the stack trace captured at the time of the panic.
	PanicStack []byte

	// Duration is how long the call took.
	Duration time.Duration
}

// IsSuccess returns true if the call completed successfully.
func (r Result) IsSuccess() bool {
	return r.Success && !r.Panicked && r.Error == nil
}

// IsError returns true if the call returned an error without panicking.
func (r Result) IsError() bool {
	return r.Error != nil && !r.Panicked
}

// IsPanic returns true if the call panicked.
func (r Result) IsPanic() bool {
	return r.Panicked
}

// PanicHandler is called when a call panics. Label identifies the call site.
type PanicHandler func(label string, panicValue any, stack []byte)

// Executor runs calls with panic recovery and timing.
type Executor struct {
	panicHandler PanicHandler
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithPanicHandler sets the panic handler for the executor.
func WithPanicHandler(h PanicHandler) ExecutorOption {
	return func(e *Executor) {
		e.panicHandler = h
	}
}

// NewExecutor creates a new executor with the given options.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs call and returns the result. It never panics.
func (e *Executor) Execute(label string, call func() error) (result Result) {
	start := time.Now()

	defer func() {
		result.Duration = time.Since(start)

		if r := recover(); r != nil {
			stack := debug.Stack()

			result.Success = false
			result.Panicked = true
			result.PanicValue = r
			result.PanicStack = stack

			// A panicking panic handler must not escape either.
			if e != nil && e.panicHandler != nil {
				func() {
					defer func() {
						_ = recover()
					}()
					e.panicHandler(label, r, stack)
				}()
			}
		}
	}()

	if err := call(); err != nil {
		result.Error = err
		return result
	}

	result.Success = true
	return result
}

// Run is Execute for calls that return nothing.
func (e *Executor) Run(label string, call func()) Result {
	return e.Execute(label, func() error {
		call()
		return nil
	})
}
