package event

import (
	"slices"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
)

// subscriberSeq makes generated subscriber ids process-unique.
var subscriberSeq atomic.Uint64

// generateSubscriberID returns "<type>_<n>".
func generateSubscriberID(t Type) string {
	return string(t) + "_" + strconv.FormatUint(subscriberSeq.Add(1), 10)
}

// registry manages subscriptions organized by event type.
// It is safe for concurrent use.
//
// Per-type lists are copy-on-write: every mutation installs a fresh slice, so
// a slice returned by Snapshot stays valid and unchanged after the lock is
// released.
type registry struct {
	mu   sync.RWMutex
	subs map[Type][]*subscription
}

func newRegistry() *registry {
	return &registry{
		subs: make(map[Type][]*subscription),
	}
}

// Add registers sub. An existing entry with the same id for the same type is
// replaced in its slot. The list is then stably sorted by priority.
// Returns true if an entry was replaced.
func (r *registry) Add(sub *subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := slices.Clone(r.subs[sub.typ])

	replaced := false
	for i, s := range subs {
		if s.id == sub.id {
			subs[i] = sub
			replaced = true
			break
		}
	}
	if !replaced {
		subs = append(subs, sub)
	}

	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].priority < subs[j].priority
	})

	r.subs[sub.typ] = subs
	return replaced
}

// Remove removes the subscription id from type t.
// An emptied type entry is deleted.
func (r *registry) Remove(t Type, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.removeLocked(t, id)
}

func (r *registry) removeLocked(t Type, id string) bool {
	subs, ok := r.subs[t]
	if !ok {
		return false
	}

	idx := slices.IndexFunc(subs, func(s *subscription) bool { return s.id == id })
	if idx < 0 {
		return false
	}

	if len(subs) == 1 {
		delete(r.subs, t)
		return true
	}

	r.subs[t] = slices.Delete(slices.Clone(subs), idx, idx+1)
	return true
}

// RemoveAll removes id from every type and returns the number of entries removed.
func (r *registry) RemoveAll(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for t := range r.subs {
		if r.removeLocked(t, id) {
			removed++
		}
	}
	return removed
}

// SetActive toggles delivery for id across all types and returns the number
// of entries updated.
func (r *registry) SetActive(id string, active bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	updated := 0
	for t, subs := range r.subs {
		idx := slices.IndexFunc(subs, func(s *subscription) bool { return s.id == id })
		if idx < 0 {
			continue
		}
		next := slices.Clone(subs)
		next[idx] = subs[idx].withActive(active)
		r.subs[t] = next
		updated++
	}
	return updated
}

// Snapshot returns the current subscriber list for t in dispatch order.
// The returned slice must not be modified.
func (r *registry) Snapshot(t Type) []*subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.subs[t]
}

// Count returns the number of subscriptions for t, or across all types when t is empty.
func (r *registry) Count(t Type) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if t != "" {
		return len(r.subs[t])
	}

	total := 0
	for _, subs := range r.subs {
		total += len(subs)
	}
	return total
}

// Has reports whether t has at least one subscription.
func (r *registry) Has(t Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.subs[t]) > 0
}

// Types returns all event types with subscriptions, sorted by name.
func (r *registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]Type, 0, len(r.subs))
	for t := range r.subs {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// List describes the subscriptions for t in dispatch order.
func (r *registry) List(t Type) []SubscriptionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := r.subs[t]
	infos := make([]SubscriptionInfo, len(subs))
	for i, s := range subs {
		infos[i] = s.info()
	}
	return infos
}
