package game

import (
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/dshills/memento/internal/event"
	"github.com/dshills/memento/internal/state"
)

type recordSink struct {
	mu     sync.Mutex
	frames [][]byte
}

func (s *recordSink) Send(msg []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, msg)
}

func (s *recordSink) last() gjson.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return gjson.Result{}
	}
	return gjson.ParseBytes(s.frames[len(s.frames)-1])
}

type harness struct {
	game   *Game
	bus    *event.Bus
	states *state.Manager
	sink   *recordSink
	seen   *[]event.Event
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	bus := event.NewBus()
	states := state.NewManager()
	states.SetNotifier(bus)
	sink := &recordSink{}

	var (
		mu   sync.Mutex
		seen []event.Event
	)
	for _, typ := range []event.Type{
		event.TypeLocationChanged,
		event.TypeObjectExamined,
		event.TypeAttributeChanged,
		event.TypeDialogueStarted,
		event.TypeDialogueChoice,
		event.TypeDialogueEnded,
		event.TypeGameSaved,
	} {
		bus.SubscribeFunc(typ, func(ev event.Event) {
			mu.Lock()
			seen = append(seen, ev)
			mu.Unlock()
		}, event.WithID("test-recorder"), event.WithSubscriberPriority(event.PriorityLow))
	}

	g := New(bus, states, append([]Option{WithSink(sink)}, opts...)...)
	require.NoError(t, g.Start())
	t.Cleanup(g.Close)

	return &harness{game: g, bus: bus, states: states, sink: sink, seen: &seen}
}

// tick runs one loop iteration the way the engine does.
func (h *harness) tick(inputs ...string) {
	for _, in := range inputs {
		h.states.HandleInput(in)
	}
	h.bus.Drain(0)
	h.states.Update(16 * time.Millisecond)
	h.states.Render()
}

func (h *harness) types() []event.Type {
	out := make([]event.Type, 0, len(*h.seen))
	for _, ev := range *h.seen {
		out = append(out, ev.Type())
	}
	return out
}

func TestStateType_Names(t *testing.T) {
	assert.Equal(t, "MainMenu", MainMenu.String())
	assert.Equal(t, "PauseMenu", PauseMenu.String())
	assert.Equal(t, "Journal", string(Journal))
}

func TestGame_StartsExploring(t *testing.T) {
	h := newHarness(t)
	h.tick()

	assert.Equal(t, "Exploring", h.states.CurrentStateName())
	frame := h.sink.last()
	assert.Equal(t, "gameState", frame.Get("type").String())
	assert.Equal(t, "Exploring", frame.Get("data.state").String())
	assert.Equal(t, "bookstore", frame.Get("data.location").String())
	assert.Equal(t, int64(1), frame.Get("data.attributes.empathy").Int())
	assert.Equal(t, int64(0), frame.Get("data.stackDepth").Int())
}

func TestGame_Move(t *testing.T) {
	h := newHarness(t)
	h.tick("move street")

	assert.Equal(t, "street", h.game.Session().Location())
	assert.Equal(t, "street", h.sink.last().Get("data.location").String())

	lc, ok := event.As[event.LocationChanged]((*h.seen)[0])
	require.True(t, ok)
	assert.Equal(t, "bookstore", lc.From)
	assert.Equal(t, "game", (*h.seen)[0].Source())
}

func TestGame_ExamineRaisesObservationOnce(t *testing.T) {
	h := newHarness(t)
	h.tick("examine bookshelf")
	h.tick("examine bookshelf")

	assert.Equal(t, 2, h.game.Session().Attribute(AttrObservation))
	assert.Equal(t, []event.Type{
		event.TypeObjectExamined,
		event.TypeAttributeChanged,
		event.TypeObjectExamined,
	}, h.types())

	first, _ := event.As[event.ObjectExamined]((*h.seen)[0])
	second, _ := event.As[event.ObjectExamined]((*h.seen)[2])
	assert.True(t, first.FirstTime)
	assert.False(t, second.FirstTime)
	assert.Equal(t, "Bookshelf", first.ObjectName)
}

func TestGame_DialogueChoice(t *testing.T) {
	h := newHarness(t)

	h.tick("talk owner")
	assert.Equal(t, "Dialogue", h.states.CurrentStateName())
	frame := h.sink.last()
	assert.Equal(t, "dialogue", frame.Get("type").String())
	assert.Equal(t, "Bookstore Owner", frame.Get("data.speaker").String())
	assert.Equal(t, int64(2), frame.Get("data.options.#").Int())
	assert.Equal(t, int64(1), frame.Get("data.stackDepth").Int())

	h.tick("choose opt2")
	assert.Equal(t, "Exploring", h.states.CurrentStateName())
	assert.Equal(t, 2, h.game.Session().Attribute(AttrEmpathy))
	assert.Equal(t, 1, h.game.Session().Attribute(AttrCommunication))

	assert.Equal(t, []event.Type{
		event.TypeDialogueStarted,
		event.TypeDialogueChoice,
		event.TypeAttributeChanged,
		event.TypeDialogueEnded,
	}, h.types())
	ended, _ := event.As[event.DialogueEnded]((*h.seen)[3])
	assert.Equal(t, "completed", ended.EndReason)
	assert.Equal(t, "owner", ended.CharacterID)
}

func TestGame_DialogueBlocksChangeWhileResolving(t *testing.T) {
	h := newHarness(t)
	h.tick("talk owner")

	h.states.HandleInput("choose opt1")
	assert.ErrorIs(t, h.states.ChangeState(state.NewBase("Elsewhere")), state.ErrTransitionBlocked)

	h.tick()
	assert.Equal(t, "Exploring", h.states.CurrentStateName())
	assert.Equal(t, 2, h.game.Session().Attribute(AttrCommunication))
}

func TestGame_DialogueLeave(t *testing.T) {
	h := newHarness(t)
	h.tick("talk stranger")
	assert.Equal(t, "Stranger", h.sink.last().Get("data.speaker").String())
	assert.Equal(t, int64(0), h.sink.last().Get("data.options.#").Int())

	h.tick("leave")
	assert.Equal(t, "Exploring", h.states.CurrentStateName())
	ended, ok := event.As[event.DialogueEnded]((*h.seen)[len(*h.seen)-1])
	require.True(t, ok)
	assert.Equal(t, "left", ended.EndReason)
}

func TestGame_InvalidDialogueOption(t *testing.T) {
	h := newHarness(t)
	h.tick("talk owner")
	h.states.HandleInput("choose opt9")

	frame := h.sink.last()
	assert.Equal(t, "error", frame.Get("type").String())
	assert.Equal(t, "Invalid dialogue option", frame.Get("data.message").String())
	assert.Equal(t, "Dialogue", h.states.CurrentStateName())
}

func TestGame_PauseSaveResume(t *testing.T) {
	h := newHarness(t)
	h.game.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	h.tick("pause")
	assert.Equal(t, "PauseMenu", h.states.CurrentStateName())

	h.tick("save")
	h.tick("save slot2")
	saves := []event.GameSaved{}
	for _, ev := range *h.seen {
		if p, ok := event.As[event.GameSaved](ev); ok {
			saves = append(saves, p)
		}
	}
	require.Len(t, saves, 2)
	assert.Equal(t, DefaultSaveSlot, saves[0].SaveSlot)
	assert.Equal(t, "slot2", saves[1].SaveSlot)
	assert.Equal(t, 2024, saves[0].SaveTime.Year())

	h.tick("resume")
	assert.Equal(t, "Exploring", h.states.CurrentStateName())
}

func TestGame_Quit(t *testing.T) {
	quit := 0
	h := newHarness(t, WithQuit(func() { quit++ }))
	h.tick("pause")
	h.tick("quit")
	assert.Equal(t, 1, quit)
}

func TestGame_UnknownCommand(t *testing.T) {
	h := newHarness(t)
	h.states.HandleInput("dance wildly")
	assert.Equal(t, "unknown command: dance", h.sink.last().Get("data.message").String())

	h.states.HandleInput("move")
	assert.Equal(t, "move where?", h.sink.last().Get("data.message").String())
}

// lifecycleState pops itself on "close" and counts its hooks.
type lifecycleState struct {
	state.Base
	states        *state.Manager
	enters, exits int
}

func (s *lifecycleState) Enter() { s.enters++ }
func (s *lifecycleState) Exit()  { s.exits++ }

func (s *lifecycleState) HandleInput(in string) {
	if in == "close" {
		_ = s.states.PopState()
	}
}

func TestGame_OpenRegisteredState(t *testing.T) {
	h := newHarness(t)
	var built []*lifecycleState
	h.game.Register(Journal.String(), func() state.GameState {
		s := &lifecycleState{Base: state.NewBase(Journal.String()), states: h.states}
		built = append(built, s)
		return s
	})

	h.tick("open Journal")
	assert.Equal(t, "Journal", h.states.CurrentStateName())
	assert.Equal(t, []string{"Exploring"}, h.states.StackNames())

	h.tick("close")
	h.tick("open Journal")
	h.tick("close")

	require.Len(t, built, 2)
	assert.NotSame(t, built[0], built[1])
	for _, s := range built {
		assert.Equal(t, 1, s.enters)
		assert.Equal(t, 1, s.exits)
	}
	assert.Equal(t, "Exploring", h.states.CurrentStateName())

	assert.NotNil(t, h.game.Resolve("PauseMenu"))
	assert.Nil(t, h.game.Resolve("Dialogue"))
	assert.Nil(t, h.game.Resolve("Settings"))
}

func TestGame_OpenNilFactory(t *testing.T) {
	h := newHarness(t)
	h.game.Register(Journal.String(), func() state.GameState { return nil })

	h.tick("open Journal")
	assert.Equal(t, "Exploring", h.states.CurrentStateName())
	assert.Equal(t, "nothing to open: Journal", h.sink.last().Get("data.message").String())
}

func TestGame_PauseBuildsFreshMenu(t *testing.T) {
	h := newHarness(t)

	h.tick("pause")
	first := h.states.Current()
	h.tick("resume")
	h.tick("pause")
	second := h.states.Current()

	assert.Equal(t, "PauseMenu", h.states.CurrentStateName())
	assert.NotSame(t, first, second)
	assert.NotSame(t, h.game.Resolve("Exploring"), h.game.Resolve("Exploring"))
}

func TestSession_AppliesEvents(t *testing.T) {
	bus := event.NewBus()
	s := NewSession()
	require.NoError(t, s.Attach(bus))
	require.NoError(t, s.Attach(bus))

	bus.PublishImmediate(event.Of(event.ItemAcquired{ItemID: "old_diary"}))
	bus.PublishImmediate(event.Of(event.ItemAcquired{ItemID: "old_diary"}))
	bus.PublishImmediate(event.Of(event.ItemAcquired{ItemID: "mysterious_key"}))
	bus.PublishImmediate(event.Of(event.ItemLost{ItemID: "old_diary"}))
	bus.PublishImmediate(event.Of(event.AttributeChanged{Attribute: AttrAction, OldValue: 1, NewValue: 3}))
	bus.PublishImmediate(event.Of(event.AttributeChanged{Attribute: AttrAction, OldValue: 1, NewValue: 2}))

	assert.Equal(t, []string{"mysterious_key"}, s.Inventory())
	assert.Equal(t, 4, s.Attribute(AttrAction))

	s.Detach()
	bus.PublishImmediate(event.Of(event.LocationChanged{From: "bookstore", To: "street"}))
	assert.Equal(t, DefaultLocation, s.Location())
	assert.False(t, bus.HasSubscribers(event.TypeLocationChanged))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Old Diary", displayName("old_diary"))
	assert.Equal(t, "Owner", displayName("owner"))
	assert.Equal(t, "", displayName(""))

	for id, want := range map[string]string{
		"élan_vital": "Élan Vital",
		"书_架":        "书 架",
		"ünter-den":  "Ünter Den",
	} {
		got := displayName(id)
		assert.Equal(t, want, got, id)
		assert.True(t, utf8.ValidString(got), id)
	}
}

func TestGame_ExamineMultibyteObject(t *testing.T) {
	h := newHarness(t)
	h.tick("examine élan_vital")

	var examined []event.ObjectExamined
	for _, ev := range *h.seen {
		if p, ok := event.As[event.ObjectExamined](ev); ok {
			examined = append(examined, p)
		}
	}
	require.Len(t, examined, 1)
	assert.Equal(t, "Élan Vital", examined[0].ObjectName)
}
