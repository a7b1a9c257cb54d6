package event

import (
	"slices"
	"sync"
	"sync/atomic"
)

// allowList is the bus's event-type filter. An empty list allows everything.
// Reads are lock-free; writers install a fresh set.
type allowList struct {
	mu  sync.Mutex
	set atomic.Pointer[map[Type]struct{}]
}

// allows reports whether events of type t pass the filter.
func (a *allowList) allows(t Type) bool {
	set := a.set.Load()
	if set == nil || len(*set) == 0 {
		return true
	}
	_, ok := (*set)[t]
	return ok
}

func (a *allowList) add(types ...Type) {
	a.update(func(m map[Type]struct{}) {
		for _, t := range types {
			if t != "" {
				m[t] = struct{}{}
			}
		}
	})
}

func (a *allowList) remove(t Type) bool {
	removed := false
	a.update(func(m map[Type]struct{}) {
		if _, ok := m[t]; ok {
			delete(m, t)
			removed = true
		}
	})
	return removed
}

// replace installs exactly types in one store.
func (a *allowList) replace(types ...Type) {
	next := make(map[Type]struct{}, len(types))
	for _, t := range types {
		if t != "" {
			next[t] = struct{}{}
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(next) == 0 {
		a.set.Store(nil)
		return
	}
	a.set.Store(&next)
}

func (a *allowList) clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.set.Store(nil)
}

// list returns the allowed types sorted by name.
func (a *allowList) list() []Type {
	set := a.set.Load()
	if set == nil {
		return nil
	}
	types := make([]Type, 0, len(*set))
	for t := range *set {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

func (a *allowList) update(fn func(map[Type]struct{})) {
	a.mu.Lock()
	defer a.mu.Unlock()

	next := make(map[Type]struct{})
	if cur := a.set.Load(); cur != nil {
		for t := range *cur {
			next[t] = struct{}{}
		}
	}
	fn(next)
	a.set.Store(&next)
}
