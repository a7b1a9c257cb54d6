package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriber_Lifecycle(t *testing.T) {
	bus := NewBus()
	sub := NewSubscriber(bus, "GameEngine")
	calls := 0
	h := Callback(func(Event) { calls++ })

	require.NoError(t, sub.Subscribe(TypeGameStateChanged, h, PriorityHigh))
	require.NoError(t, sub.Subscribe(TypeError, h, PriorityCritical))
	assert.Equal(t, []Type{TypeGameStateChanged, TypeError}, sub.Types())
	assert.Equal(t, "GameEngine", bus.Subscribers(TypeError)[0].ID)

	sub.Pause()
	bus.PublishImmediate(Of(Error{Code: "X"}))
	assert.Equal(t, 0, calls)

	sub.Resume()
	bus.PublishImmediate(Of(Error{Code: "X"}))
	assert.Equal(t, 1, calls)

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, bus.SubscriberCount(""))
	assert.ErrorIs(t, sub.Subscribe(TypeError, h, 0), ErrSubscriberClosed)
}

func TestSubscriber_Validation(t *testing.T) {
	sub := NewSubscriber(NewBus(), "x")

	assert.ErrorIs(t, sub.Subscribe(TypeError, nil, 0), ErrNilHandler)
	assert.ErrorIs(t, sub.Subscribe("", Callback(func(Event) {}), 0), ErrInvalidType)
}

func TestPublisher(t *testing.T) {
	bus := NewBus()
	pub := NewPublisher(bus, "game")
	var got []Event
	bus.SubscribeFunc(TypeItemAcquired, func(ev Event) { got = append(got, ev) })
	bus.SubscribeFunc(TypeError, func(ev Event) { got = append(got, ev) })

	assert.True(t, pub.Emit(ItemAcquired{ItemID: "watch"}))
	assert.Empty(t, got)
	bus.Drain(0)
	require.Len(t, got, 1)
	assert.Equal(t, "game", got[0].Source())

	pub.Error("BAD", "went wrong")
	require.Len(t, got, 2)
	p, ok := As[Error](got[1])
	require.True(t, ok)
	assert.Equal(t, "game", p.Source)
	assert.Equal(t, "game", pub.Source())
}
