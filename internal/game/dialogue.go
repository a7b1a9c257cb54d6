package game

import (
	"github.com/dshills/memento/internal/event"
	"github.com/dshills/memento/internal/state"
	"github.com/dshills/memento/internal/transport"
)

// conversation is the fixed content of one dialogue.
type conversation struct {
	id      string
	speaker string
	text    string
	options []transport.DialogueOption

	// effects maps an option id to the attribute it raises.
	effects map[string]string
}

var conversations = map[string]conversation{
	"owner": {
		id:      "owner_intro",
		speaker: "Bookstore Owner",
		text:    "Welcome to Time Corner, young one. You seem to be searching for something special.",
		options: []transport.DialogueOption{
			{ID: "opt1", Text: "Tell me about this city's past."},
			{ID: "opt2", Text: "[Observe] Notice the sadness in his eyes."},
		},
		effects: map[string]string{
			"opt1": AttrCommunication,
			"opt2": AttrEmpathy,
		},
	},
}

// conversationFor returns the dialogue for character, or a silent one.
func conversationFor(character string) conversation {
	if c, ok := conversations[character]; ok {
		return c
	}
	return conversation{
		id:      character + "_intro",
		speaker: displayName(character),
		text:    "They have nothing to say.",
	}
}

// dialogueState runs one conversation and pops itself when it ends.
type dialogueState struct {
	state.Base
	g         *Game
	character string
	conv      conversation

	// resolving is set from a choice until Exit and blocks ChangeState.
	resolving bool
}

func newDialogueState(g *Game, character string) *dialogueState {
	return &dialogueState{
		Base:      state.NewBase(Dialogue.String()),
		g:         g,
		character: character,
		conv:      conversationFor(character),
	}
}

func (s *dialogueState) HandleInput(input string) {
	if s.resolving {
		return
	}
	g := s.g
	verb, arg := splitCommand(input)

	switch verb {
	case "choose":
		opt, ok := s.option(arg)
		if !ok {
			g.reply("Invalid dialogue option")
			return
		}
		s.resolving = true
		g.pub.Emit(event.DialogueChoice{
			DialogueID: s.conv.id,
			ChoiceID:   opt.ID,
			ChoiceText: opt.Text,
		})
		if attr, ok := s.conv.effects[opt.ID]; ok {
			g.raise(attr, "dialogue "+s.conv.id)
		}
		s.end("completed")

	case "leave":
		s.resolving = true
		s.end("left")

	default:
		g.reply("unknown command: " + verb)
	}
}

func (s *dialogueState) Exit() {
	s.resolving = false
}

func (s *dialogueState) CanTransition() bool {
	return !s.resolving
}

func (s *dialogueState) Render() {
	options := s.conv.options
	if options == nil {
		options = []transport.DialogueOption{}
	}
	s.g.sink.Send(s.g.frame(transport.KindDialogue, s.Name()).
		Set("speaker", s.conv.speaker).
		Set("text", s.conv.text).
		Set("options", options).
		JSON())
}

func (s *dialogueState) option(id string) (transport.DialogueOption, bool) {
	for _, o := range s.conv.options {
		if o.ID == id {
			return o, true
		}
	}
	return transport.DialogueOption{}, false
}

func (s *dialogueState) end(reason string) {
	s.g.pub.Emit(event.DialogueEnded{
		CharacterID: s.character,
		DialogueID:  s.conv.id,
		EndReason:   reason,
	})
	if err := s.g.states.PopState(); err != nil {
		s.g.logger.Warn("dialogue could not pop", "character", s.character, "error", err)
	}
}
