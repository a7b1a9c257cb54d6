package state

// NoneName is reported as the current state name when no state is active.
const NoneName = "None"

// TransitionKind identifies a pending transition.
type TransitionKind int

const (
	// TransitionNone means nothing is pending.
	TransitionNone TransitionKind = iota

	// TransitionChange replaces the active state.
	TransitionChange

	// TransitionPush suspends the active state under a new one.
	TransitionPush

	// TransitionPop discards the active state and resumes the stack top.
	TransitionPop
)

// String returns a human-readable kind name.
func (k TransitionKind) String() string {
	switch k {
	case TransitionNone:
		return "none"
	case TransitionChange:
		return "change"
	case TransitionPush:
		return "push"
	case TransitionPop:
		return "pop"
	default:
		return "unknown"
	}
}

// Triggers recorded in GameStateChanged events.
const (
	TriggerInitial = "initial"
	TriggerChange  = "change"
	TriggerPush    = "push"
	TriggerPop     = "pop"
	TriggerAuto    = "auto"
)

// Transition is the single pending-transition slot.
type Transition struct {
	Kind TransitionKind

	// Target is the incoming state for change and push; nil for pop.
	Target GameState

	// Trigger explains the request and is published with the change.
	Trigger string
}

// IsNone reports whether nothing is pending.
func (t Transition) IsNone() bool {
	return t.Kind == TransitionNone
}

// Stage names the hook that faulted.
type Stage string

// Hook stages reported in FaultError.
const (
	StageEnter         Stage = "enter"
	StageExit          Stage = "exit"
	StageUpdate        Stage = "update"
	StageRender        Stage = "render"
	StageHandleInput   Stage = "handleInput"
	StageCanTransition Stage = "canTransition"
	StageNextState     Stage = "nextState"
)
