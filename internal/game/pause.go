package game

import (
	"github.com/dshills/memento/internal/event"
	"github.com/dshills/memento/internal/state"
	"github.com/dshills/memento/internal/transport"
)

// pauseState is the pause menu pushed over Exploring.
type pauseState struct {
	state.Base
	g *Game
}

func (s *pauseState) HandleInput(input string) {
	g := s.g
	verb, arg := splitCommand(input)

	switch verb {
	case "resume":
		if err := g.states.PopState(); err != nil {
			g.reply(err.Error())
		}

	case "save":
		slot := arg
		if slot == "" {
			slot = DefaultSaveSlot
		}
		g.pub.Emit(event.GameSaved{
			SaveSlot: slot,
			SaveTime: g.now().UTC(),
		})

	case "quit":
		if g.quit == nil {
			g.reply("quit is not available")
			return
		}
		g.logger.Info("quit requested")
		g.quit()

	default:
		g.reply("unknown command: " + verb)
	}
}

func (s *pauseState) Render() {
	s.g.sink.Send(s.g.frame(transport.KindGameState, s.Name()).JSON())
}
