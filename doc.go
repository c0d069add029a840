// Package trcsock streams nested execution traces from many concurrently
// running goroutines (or OS threads) to a remote observer, in real time.
//
// The basic idea is that instrumented code asks for "my" trace context, from
// any point, without registering itself first. Each execution identity gets
// a private [Context] which tracks a nesting level. Code opens a [Scope] on
// entry to an interesting region, sends messages, and ends the scope on exit.
// Every message is encoded with a timestamp, the thread identity, and the
// current level, and written to a single shared sink, which gives the
// observer a total order over all threads.
//
//	func itemGet(name string, value int) {
//	    tc := tracer.Current()
//	    defer tc.Scope("pmdm::itemGet").End()
//	    tc.Sendf("args:\nname=%s\nvalue=%d", name, value)
//	    ...
//	}
//
// Tracing is strictly best-effort. Nothing in this package returns an error to
// instrumented code, or panics on its behalf: if the observer is unreachable,
// records are dropped; if the clock fails, the timestamp is zero; if a
// formatted message is too large, it's dropped.
//
// Contexts are stored in a fixed-capacity registry, and are never released.
// When the registry is full, or when the calling identity can't be
// determined, a single shared fallback context is returned. The fallback is
// used concurrently by every such caller, so its nesting levels, and the
// relative order of its messages, may be mixed between unrelated threads.
//
// Most applications should use [github.com/peterbourgon/trcsock/eztrcsock],
// which manages a single process-wide tracer.
package trcsock
