package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSub(id string, typ Type, p Priority) *subscription {
	return &subscription{
		id:       id,
		typ:      typ,
		handler:  Callback(func(Event) {}),
		priority: p,
		active:   true,
	}
}

func ids(subs []*subscription) []string {
	out := make([]string, len(subs))
	for i, s := range subs {
		out[i] = s.id
	}
	return out
}

func TestRegistry_AddSorted(t *testing.T) {
	r := newRegistry()
	r.Add(newSub("c", "X", 7))
	r.Add(newSub("a", "X", 1))
	r.Add(newSub("b", "X", 7))

	assert.Equal(t, []string{"a", "c", "b"}, ids(r.Snapshot("X")))
}

func TestRegistry_ReplaceKeepsSlot(t *testing.T) {
	r := newRegistry()
	r.Add(newSub("a", "X", 5))
	r.Add(newSub("b", "X", 5))
	r.Add(newSub("c", "X", 5))

	replaced := r.Add(newSub("a", "X", 5))

	assert.True(t, replaced)
	assert.Equal(t, []string{"a", "b", "c"}, ids(r.Snapshot("X")))
	assert.Equal(t, 3, r.Count("X"))
}

func TestRegistry_SnapshotIsStable(t *testing.T) {
	r := newRegistry()
	r.Add(newSub("a", "X", 1))
	r.Add(newSub("b", "X", 2))

	snap := r.Snapshot("X")
	r.Remove("X", "a")
	r.SetActive("b", false)
	r.Add(newSub("c", "X", 0))

	require.Len(t, snap, 2)
	assert.Equal(t, []string{"a", "b"}, ids(snap))
	assert.True(t, snap[1].active)

	infos := r.List("X")
	require.Len(t, infos, 2)
	assert.Equal(t, "c", infos[0].ID)
	assert.False(t, infos[1].Active)
}

func TestRegistry_RemoveDeletesEmptyType(t *testing.T) {
	r := newRegistry()
	r.Add(newSub("a", "X", 1))

	assert.True(t, r.Remove("X", "a"))
	assert.False(t, r.Has("X"))
	assert.Empty(t, r.Types())
}

func TestRegistry_RemoveAllAndCount(t *testing.T) {
	r := newRegistry()
	r.Add(newSub("ui", "X", 1))
	r.Add(newSub("ui", "Y", 1))
	r.Add(newSub("audio", "Y", 1))

	assert.Equal(t, 3, r.Count(""))
	assert.Equal(t, 2, r.RemoveAll("ui"))
	assert.Equal(t, []Type{"Y"}, r.Types())
	assert.Equal(t, 0, r.RemoveAll("ui"))
	assert.Equal(t, 1, r.Count(""))
}
