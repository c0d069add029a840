package trcsock

import (
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the default number of distinct threads which can be
// registered over the lifetime of a tracer.
const DefaultCapacity = 255

// registry maps thread identities to contexts. It's a fixed-size table of
// slots, each claimed at most once and never released. Once a slot is
// published, it's immutable, so lookups of registered threads take no locks.
type registry struct {
	mtx      sync.Mutex // serializes claims
	slots    []atomic.Pointer[Context]
	claimed  atomic.Int64
	fallback *Context
	misses   atomic.Uint64
	create   func(ThreadID) *Context
}

func newRegistry(capacity int, create func(ThreadID) *Context) *registry {
	return &registry{
		slots:    make([]atomic.Pointer[Context], capacity),
		fallback: create(FallbackThreadID),
		create:   create,
	}
}

// resolve returns the context for id, creating it if necessary. If ok is
// false, or the registry is full, it returns the shared fallback context.
func (r *registry) resolve(id ThreadID, ok bool) *Context {
	if !ok {
		r.misses.Add(1)
		return r.fallback
	}

	for i := range r.slots {
		slot := &r.slots[i]

		c := slot.Load()
		if c == nil {
			// Another thread may claim the slot between the check and the
			// lock, possibly with the same identity, so claim returns
			// whichever context ends up in the slot.
			c = r.claim(slot, id)
		}

		if c.id == id {
			return c
		}
	}

	r.misses.Add(1)
	return r.fallback
}

// claim stores a new context for id in slot, unless the slot is already
// occupied, and returns the occupant.
func (r *registry) claim(slot *atomic.Pointer[Context], id ThreadID) *Context {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if occupant := slot.Load(); occupant != nil {
		return occupant
	}

	c := r.create(id)
	slot.Store(c)
	r.claimed.Add(1)
	return c
}

// threads returns the identities of every registered thread, in slot order.
func (r *registry) threads() []ThreadID {
	ids := make([]ThreadID, 0, r.claimed.Load())
	for i := range r.slots {
		c := r.slots[i].Load()
		if c == nil {
			continue // claims aren't ordered, so keep going
		}
		ids = append(ids, c.id)
	}
	return ids
}
