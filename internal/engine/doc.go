// Package engine drives the game loop.
//
// Each tick runs, in order: buffered transport input is handed to the active
// state, up to EventBudget queued events are drained from the bus, the state
// manager updates (applying any pending transition first), and the active
// state renders. A failure in any stage is published immediately as an Error
// event and the loop carries on with the next tick.
//
// The engine is the only component that decides to stop the process. It
// stops when RequestShutdown is called, when the Run context is cancelled,
// when an Error event with a FATAL_ code is published, or when more ticks in
// a row fail than Options.MaxConsecutiveFailures allows.
package engine
