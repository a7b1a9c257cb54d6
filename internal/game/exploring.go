package game

import (
	"github.com/dshills/memento/internal/event"
	"github.com/dshills/memento/internal/state"
	"github.com/dshills/memento/internal/transport"
)

// exploringState is the free-roaming state at the bottom of the stack.
type exploringState struct {
	state.Base
	g *Game
}

func (s *exploringState) HandleInput(input string) {
	g := s.g
	verb, arg := splitCommand(input)

	switch verb {
	case "move":
		if arg == "" {
			g.reply("move where?")
			return
		}
		g.pub.Emit(event.LocationChanged{
			From:       g.session.Location(),
			To:         arg,
			Transition: "walk",
		})

	case "examine":
		if arg == "" {
			g.reply("examine what?")
			return
		}
		first := g.session.MarkExamined(arg)
		g.pub.Emit(event.ObjectExamined{
			ObjectID:   arg,
			ObjectName: displayName(arg),
			Location:   g.session.Location(),
			FirstTime:  first,
		})
		if first {
			g.raise(AttrObservation, "examined "+arg)
		}

	case "talk":
		if arg == "" {
			g.reply("talk to whom?")
			return
		}
		d := newDialogueState(g, arg)
		g.pub.Emit(event.DialogueStarted{
			CharacterID:   arg,
			CharacterName: d.conv.speaker,
			DialogueID:    d.conv.id,
		})
		if err := g.states.PushState(d); err != nil {
			g.reply(err.Error())
		}

	case "pause":
		if err := g.states.PushState(g.newPause()); err != nil {
			g.reply(err.Error())
		}

	case "open":
		next := g.build(arg)
		if next == nil {
			g.reply("nothing to open: " + arg)
			return
		}
		if err := g.states.PushState(next); err != nil {
			g.reply(err.Error())
		}

	default:
		g.reply("unknown command: " + verb)
	}
}

func (s *exploringState) Render() {
	s.g.sink.Send(s.g.frame(transport.KindGameState, s.Name()).
		Set("inventory", s.g.session.Inventory()).
		JSON())
}
