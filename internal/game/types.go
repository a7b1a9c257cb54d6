package game

// StateType names a kind of game state. The value is used as the state's
// Name and appears in GameStateChanged events.
type StateType string

const (
	MainMenu  StateType = "MainMenu"
	Exploring StateType = "Exploring"
	Dialogue  StateType = "Dialogue"
	Journal   StateType = "Journal"
	Inventory StateType = "Inventory"
	PauseMenu StateType = "PauseMenu"
	Settings  StateType = "Settings"
)

// String returns the state name.
func (t StateType) String() string { return string(t) }

// Player attributes.
const (
	AttrObservation   = "observation"
	AttrCommunication = "communication"
	AttrAction        = "action"
	AttrEmpathy       = "empathy"
)

// DefaultLocation is where a new session starts.
const DefaultLocation = "bookstore"

// DefaultSaveSlot is used by save without an argument.
const DefaultSaveSlot = "quicksave"
