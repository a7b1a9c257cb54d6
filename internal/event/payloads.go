package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Payload is the closed set of event payloads. Every implementation lives in
// this file; the unexported marker keeps the set closed.
type Payload interface {
	// EventType returns the type tag events carrying this payload use.
	EventType() Type
	isPayload()
}

// AttributeChanged reports a player attribute moving from OldValue to NewValue.
type AttributeChanged struct {
	Attribute string `json:"attribute"`
	OldValue  int    `json:"oldValue"`
	NewValue  int    `json:"newValue"`
	Reason    string `json:"reason,omitempty"`
}

// Delta returns NewValue - OldValue.
func (p AttributeChanged) Delta() int { return p.NewValue - p.OldValue }

// IsImprovement reports whether the attribute increased.
func (p AttributeChanged) IsImprovement() bool { return p.NewValue > p.OldValue }

// ItemAcquired reports an item entering the inventory.
type ItemAcquired struct {
	ItemID   string `json:"itemId"`
	ItemName string `json:"itemName"`
	ItemType string `json:"itemType,omitempty"`
	Source   string `json:"source,omitempty"`
}

// ItemLost reports an item leaving the inventory.
type ItemLost struct {
	ItemID   string `json:"itemId"`
	ItemName string `json:"itemName"`
	Reason   string `json:"reason,omitempty"`
}

// LocationChanged reports a scene change.
type LocationChanged struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Transition string `json:"transition,omitempty"`
}

// ObjectExamined reports the player inspecting an object.
type ObjectExamined struct {
	ObjectID   string `json:"objectId"`
	ObjectName string `json:"objectName"`
	Location   string `json:"location"`
	FirstTime  bool   `json:"firstTime"`
}

// DialogueStarted reports a conversation opening.
type DialogueStarted struct {
	CharacterID   string `json:"characterId"`
	CharacterName string `json:"characterName"`
	DialogueID    string `json:"dialogueId"`
}

// DialogueChoice reports the player picking a dialogue option.
type DialogueChoice struct {
	DialogueID   string   `json:"dialogueId"`
	ChoiceID     string   `json:"choiceId"`
	ChoiceText   string   `json:"choiceText,omitempty"`
	Requirements []string `json:"requirements,omitempty"`
}

// DialogueEnded reports a conversation closing.
type DialogueEnded struct {
	CharacterID string `json:"characterId"`
	DialogueID  string `json:"dialogueId"`
	EndReason   string `json:"endReason"`
}

// InsightGained reports a story insight being unlocked.
type InsightGained struct {
	InsightID   string `json:"insightId"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
	Trigger     string `json:"trigger,omitempty"`
}

// PuzzleSolved reports a solved puzzle.
type PuzzleSolved struct {
	PuzzleID   string `json:"puzzleId"`
	PuzzleName string `json:"puzzleName"`
	Solution   string `json:"solution,omitempty"`
	Attempts   int    `json:"attempts"`
}

// GameStateChanged reports an applied state transition. It is never cancellable.
type GameStateChanged struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Trigger string `json:"trigger,omitempty"`
}

// GameSaved reports a completed save.
type GameSaved struct {
	SaveSlot string    `json:"saveSlot"`
	SaveTime time.Time `json:"saveTime"`
	AutoSave bool      `json:"autoSave"`
}

// Error reports a fault. It is never cancellable and dispatches first.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Source  string `json:"source,omitempty"`
}

// Custom carries free-form fields for types outside the canonical vocabulary,
// such as events raised from scripts.
type Custom struct {
	Kind   Type           `json:"kind"`
	Fields map[string]any `json:"fields,omitempty"`
}

func (AttributeChanged) EventType() Type { return TypeAttributeChanged }
func (ItemAcquired) EventType() Type     { return TypeItemAcquired }
func (ItemLost) EventType() Type         { return TypeItemLost }
func (LocationChanged) EventType() Type  { return TypeLocationChanged }
func (ObjectExamined) EventType() Type   { return TypeObjectExamined }
func (DialogueStarted) EventType() Type  { return TypeDialogueStarted }
func (DialogueChoice) EventType() Type   { return TypeDialogueChoice }
func (DialogueEnded) EventType() Type    { return TypeDialogueEnded }
func (InsightGained) EventType() Type    { return TypeInsightGained }
func (PuzzleSolved) EventType() Type     { return TypePuzzleSolved }
func (GameStateChanged) EventType() Type { return TypeGameStateChanged }
func (GameSaved) EventType() Type        { return TypeGameSaved }
func (Error) EventType() Type            { return TypeError }
func (c Custom) EventType() Type         { return c.Kind }

func (AttributeChanged) isPayload() {}
func (ItemAcquired) isPayload()     {}
func (ItemLost) isPayload()         {}
func (LocationChanged) isPayload()  {}
func (ObjectExamined) isPayload()   {}
func (DialogueStarted) isPayload()  {}
func (DialogueChoice) isPayload()   {}
func (DialogueEnded) isPayload()    {}
func (InsightGained) isPayload()    {}
func (PuzzleSolved) isPayload()     {}
func (GameStateChanged) isPayload() {}
func (GameSaved) isPayload()        {}
func (Error) isPayload()            {}
func (Custom) isPayload()           {}

// DecodePayload decodes JSON fields into the payload for t. Canonical types
// decode into their own payload; any other type becomes a Custom.
func DecodePayload(t Type, raw []byte) (Payload, error) {
	if t == "" {
		return nil, ErrInvalidType
	}
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	switch t {
	case TypeAttributeChanged:
		return decode[AttributeChanged](raw)
	case TypeItemAcquired:
		return decode[ItemAcquired](raw)
	case TypeItemLost:
		return decode[ItemLost](raw)
	case TypeLocationChanged:
		return decode[LocationChanged](raw)
	case TypeObjectExamined:
		return decode[ObjectExamined](raw)
	case TypeDialogueStarted:
		return decode[DialogueStarted](raw)
	case TypeDialogueChoice:
		return decode[DialogueChoice](raw)
	case TypeDialogueEnded:
		return decode[DialogueEnded](raw)
	case TypeInsightGained:
		return decode[InsightGained](raw)
	case TypePuzzleSolved:
		return decode[PuzzleSolved](raw)
	case TypeGameStateChanged:
		return decode[GameStateChanged](raw)
	case TypeGameSaved:
		return decode[GameSaved](raw)
	case TypeError:
		return decode[Error](raw)
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode %s: %w", t, err)
	}
	return Custom{Kind: t, Fields: fields}, nil
}

func decode[T Payload](raw []byte) (Payload, error) {
	var p T
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", p.EventType(), err)
	}
	return p, nil
}
