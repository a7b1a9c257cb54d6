package transport

import "errors"

// Transport errors.
var (
	// ErrInvalidCommand indicates an inbound message could not be turned into a command.
	ErrInvalidCommand = errors.New("invalid command")

	// ErrInputRejected indicates the engine inbox refused a command.
	ErrInputRejected = errors.New("input rejected")

	// ErrServerRunning indicates Run was called twice.
	ErrServerRunning = errors.New("server already running")
)
