package state

import "time"

// GameState is one unit of game behavior, such as exploring or a dialogue.
type GameState interface {
	// Name identifies the state in logs and GameStateChanged events.
	Name() string

	// Enter is called once when the state becomes active.
	Enter()

	// HandleInput receives a raw command from the transport.
	HandleInput(input string)

	// Update advances the state by dt.
	Update(dt time.Duration)

	// Render pushes the state's view to whatever sink it owns.
	Render()

	// Exit is called once when the state is discarded.
	Exit()

	// CanTransition reports whether the state may be replaced right now.
	CanTransition() bool

	// NextState returns a state to change to automatically, or nil.
	NextState() GameState
}

// Base is an embeddable GameState with no-op hooks.
type Base struct {
	StateName string
}

// NewBase returns a Base named name.
func NewBase(name string) Base {
	return Base{StateName: name}
}

// Name returns the state name.
func (b Base) Name() string { return b.StateName }

// Enter does nothing.
func (Base) Enter() {}

// HandleInput does nothing.
func (Base) HandleInput(string) {}

// Update does nothing.
func (Base) Update(time.Duration) {}

// Render does nothing.
func (Base) Render() {}

// Exit does nothing.
func (Base) Exit() {}

// CanTransition always allows replacement.
func (Base) CanTransition() bool { return true }

// NextState never requests an automatic change.
func (Base) NextState() GameState { return nil }

// nameOf returns s.Name(), or NoneName for nil.
func nameOf(s GameState) string {
	if s == nil {
		return NoneName
	}
	return s.Name()
}
