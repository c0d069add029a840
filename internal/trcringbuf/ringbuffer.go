// Package trcringbuf keeps the most recent values of a stream, for replay to
// observers which connect late.
package trcringbuf

import (
	"sync"
)

// RingBuffer holds up to a fixed number of the most recently added values.
type RingBuffer[T any] struct {
	mtx   sync.Mutex
	buf   []T
	next  int    // write position
	count int    // values held, at most len(buf)
	added uint64 // values ever added
}

// NewRingBuffer returns an empty ring buffer with the given capacity.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &RingBuffer[T]{
		buf: make([]T, capacity),
	}
}

// Add val to the ring buffer. If that evicts the oldest value, it's returned,
// with true.
func (rb *RingBuffer[T]) Add(val T) (evicted T, ok bool) {
	rb.mtx.Lock()
	defer rb.mtx.Unlock()

	rb.added++

	if len(rb.buf) == 0 {
		return evicted, false
	}

	if rb.count == len(rb.buf) {
		evicted, ok = rb.buf[rb.next], true
	} else {
		rb.count++
	}

	rb.buf[rb.next] = val
	rb.next = (rb.next + 1) % len(rb.buf)

	return evicted, ok
}

// Values returns a copy of the values, oldest first.
func (rb *RingBuffer[T]) Values() []T {
	rb.mtx.Lock()
	defer rb.mtx.Unlock()
	return rb.values()
}

func (rb *RingBuffer[T]) values() []T {
	vals := make([]T, rb.count)
	for i := range vals {
		vals[i] = rb.buf[rb.index(i)]
	}
	return vals
}

// index returns the buffer index of the i'th oldest value.
func (rb *RingBuffer[T]) index(i int) int {
	return (rb.next - rb.count + i + len(rb.buf)) % len(rb.buf)
}

// Stats describe a ring buffer.
type Stats struct {
	Len   int    `json:"len"`
	Cap   int    `json:"cap"`
	Added uint64 `json:"added"`
}

// Stats returns current stats for the ring buffer.
func (rb *RingBuffer[T]) Stats() Stats {
	rb.mtx.Lock()
	defer rb.mtx.Unlock()
	return Stats{Len: rb.count, Cap: len(rb.buf), Added: rb.added}
}

//
//
//

// RingBuffers is a set of ring buffers by key, all with the same capacity.
type RingBuffers[T any] struct {
	mtx      sync.Mutex
	capacity int
	bufs     map[string]*RingBuffer[T]
}

// NewRingBuffers returns an empty set, where each ring buffer will have the
// given capacity.
func NewRingBuffers[T any](capacity int) *RingBuffers[T] {
	return &RingBuffers[T]{
		capacity: capacity,
		bufs:     map[string]*RingBuffer[T]{},
	}
}

// GetOrCreate returns the ring buffer for key, creating it if necessary.
func (rbs *RingBuffers[T]) GetOrCreate(key string) *RingBuffer[T] {
	rbs.mtx.Lock()
	defer rbs.mtx.Unlock()

	rb, ok := rbs.bufs[key]
	if !ok {
		rb = NewRingBuffer[T](rbs.capacity)
		rbs.bufs[key] = rb
	}

	return rb
}

// Values returns a copy of the values in every ring buffer, by key.
func (rbs *RingBuffers[T]) Values() map[string][]T {
	rbs.mtx.Lock()
	bufs := make(map[string]*RingBuffer[T], len(rbs.bufs))
	for key, rb := range rbs.bufs {
		bufs[key] = rb
	}
	rbs.mtx.Unlock()

	vals := make(map[string][]T, len(bufs))
	for key, rb := range bufs {
		vals[key] = rb.Values()
	}
	return vals
}
