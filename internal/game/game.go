package game

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dshills/memento/internal/event"
	"github.com/dshills/memento/internal/state"
	"github.com/dshills/memento/internal/transport"
)

// Option configures a Game.
type Option func(*Game)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Game) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithSink sets where rendered frames and command errors are sent.
func WithSink(sink transport.Sink) Option {
	return func(g *Game) {
		if sink != nil {
			g.sink = sink
		}
	}
}

// WithQuit sets the function run by the pause menu's quit command.
func WithQuit(fn func()) Option {
	return func(g *Game) {
		g.quit = fn
	}
}

// Factory builds a fresh state each time one is entered.
type Factory func() state.GameState

// Game owns the session and the built-in states.
type Game struct {
	bus     *event.Bus
	states  *state.Manager
	pub     *event.Publisher
	session *Session
	sink    transport.Sink
	quit    func()
	now     func() time.Time

	mu        sync.RWMutex
	factories map[string]Factory

	logger *slog.Logger
}

// New creates a game over bus and states. Call Start to enter Exploring.
func New(bus *event.Bus, states *state.Manager, opts ...Option) *Game {
	g := &Game{
		bus:       bus,
		states:    states,
		pub:       event.NewPublisher(bus, "game"),
		session:   NewSession(),
		sink:      discardSink{},
		now:       time.Now,
		factories: make(map[string]Factory),
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "game")
	return g
}

// Session returns the player model.
func (g *Game) Session() *Session {
	return g.session
}

// Register adds a state that "open <name>" and Resolve can reach, such as a
// scripted Journal. It replaces any factory registered under the same name.
func (g *Game) Register(name string, f Factory) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.factories[name] = f
}

// Resolve builds a new state for name, or returns nil. Dialogue is never
// resolvable because it needs a character.
func (g *Game) Resolve(name string) state.GameState {
	switch StateType(name) {
	case Exploring:
		return g.newExploring()
	case PauseMenu:
		return g.newPause()
	}
	return g.build(name)
}

// build runs the registered factory for name.
func (g *Game) build(name string) state.GameState {
	g.mu.RLock()
	f, ok := g.factories[name]
	g.mu.RUnlock()
	if !ok || f == nil {
		return nil
	}
	s := f()
	if s == nil {
		g.logger.Warn("state factory returned nil", "state", name)
		return nil
	}
	return s
}

func (g *Game) newExploring() *exploringState {
	return &exploringState{Base: state.NewBase(Exploring.String()), g: g}
}

func (g *Game) newPause() *pauseState {
	return &pauseState{Base: state.NewBase(PauseMenu.String()), g: g}
}

// Start attaches the session to the bus and enters Exploring.
func (g *Game) Start() error {
	if err := g.session.Attach(g.bus); err != nil {
		return fmt.Errorf("attach session: %w", err)
	}
	if err := g.states.SetInitialState(g.newExploring()); err != nil {
		g.session.Detach()
		return err
	}
	g.logger.Info("game started", "location", g.session.Location())
	return nil
}

// Close detaches the session.
func (g *Game) Close() {
	g.session.Detach()
}

// reply sends a command error to the sink.
func (g *Game) reply(message string) {
	g.sink.Send(transport.ErrorResponse(message, 400))
}

// raise publishes an AttributeChanged that adds one to attr.
func (g *Game) raise(attr, reason string) {
	cur := g.session.Attribute(attr)
	g.pub.Emit(event.AttributeChanged{
		Attribute: attr,
		OldValue:  cur,
		NewValue:  cur + 1,
		Reason:    reason,
	})
}

// frame builds the common part of every rendered view.
func (g *Game) frame(kind, name string) *transport.Response {
	return transport.NewResponse(kind).
		Set("state", name).
		Set("location", g.session.Location()).
		Set("attributes", g.session.Attributes()).
		Set("stackDepth", g.states.StackDepth())
}

// splitCommand splits input into a lowercased verb and the remaining text.
func splitCommand(input string) (verb, arg string) {
	verb, arg, _ = strings.Cut(strings.TrimSpace(input), " ")
	return strings.ToLower(verb), strings.TrimSpace(arg)
}

// displayName turns an id like "old_diary" into "Old Diary".
func displayName(id string) string {
	words := strings.FieldsFunc(id, func(r rune) bool { return r == '_' || r == '-' || r == ' ' })
	// A Caser keeps state and cannot be shared between goroutines.
	return cases.Title(language.Und).String(strings.Join(words, " "))
}

type discardSink struct{}

func (discardSink) Send([]byte) {}
