// Package state manages the single active game state and a stack of
// suspended ones.
//
// Transitions are deferred. ChangeState, PushState and PopState only record
// a pending transition; Manager.Update applies it at the start of the next
// tick, before the active state updates. A state therefore never sees itself
// replaced in the middle of its own Update, and Enter/Exit are never called
// reentrantly. At most one transition is pending; a newer request replaces
// an older unapplied one.
//
// A pushed-over state is suspended: it is not exited when covered and not
// re-entered when it resurfaces after a pop. Every state that was entered
// receives exactly one Exit, including the states still on the stack when
// Shutdown is called.
//
// Only the loop goroutine may call Update, Render, HandleInput and Shutdown.
// Transition requests may come from any goroutine.
package state
