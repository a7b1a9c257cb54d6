package script

import (
	"errors"
	"fmt"
)

// Script errors.
var (
	// ErrClosed indicates the Lua state has been closed.
	ErrClosed = errors.New("script state closed")

	// ErrEmptyScript indicates no source was given.
	ErrEmptyScript = errors.New("empty script")
)

// HookError reports a Lua error raised inside a hook.
type HookError struct {
	State string
	Hook  string
	Err   error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("script %s: %s: %v", e.State, e.Hook, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}
