// Package trcdebug has counters for the internals of the tracer, which aren't
// part of any public stats type.
package trcdebug

import "sync/atomic"

// PoolCounters track operations on a sync.Pool for a specific type.
type PoolCounters struct {
	Get   atomic.Uint64
	Alloc atomic.Uint64
	Put   atomic.Uint64
	Lost  atomic.Uint64 // not returned to the pool, because they grew too big
}

// ReusePercent returns the percent (0..100) of gets which didn't allocate.
func (pc *PoolCounters) ReusePercent() float64 {
	var (
		get   = pc.Get.Load()
		alloc = pc.Alloc.Load()
	)
	if get <= 0 || alloc >= get {
		return 0.0
	}
	return 100 * float64(get-alloc) / float64(get)
}

// Values returns the current values of the counters.
func (pc *PoolCounters) Values() (get, alloc, put, lost uint64, reuse float64) {
	var (
		g = pc.Get.Load()
		a = pc.Alloc.Load()
		p = pc.Put.Load()
		l = pc.Lost.Load()
		r = pc.ReusePercent()
	)
	return g, a, p, l, r
}

// RecordBufferCounters tracks the pool of buffers used to encode records.
var RecordBufferCounters PoolCounters
