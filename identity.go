package trcsock

import (
	"github.com/petermattis/goid"
)

// ThreadID identifies an execution context, typically a goroutine or an OS
// thread. It's obtained from the runtime, and is expected to be stable for as
// long as the identified thread is alive.
type ThreadID uint64

// FallbackThreadID is the thread ID of the shared fallback context.
const FallbackThreadID ThreadID = 0

// IdentityFunc returns the identity of the calling thread. If the identity
// can't be determined, it should return false.
type IdentityFunc func() (ThreadID, bool)

// GoroutineID identifies the calling goroutine. Goroutine IDs are never
// reused, so each short-lived goroutine which traces anything permanently
// claims a registry slot. Prefer long-lived worker goroutines.
func GoroutineID() (ThreadID, bool) {
	id := goid.Get()
	if id <= 0 {
		return 0, false
	}
	return ThreadID(id), true
}

// NoIdentity never identifies the caller, which means every caller gets the
// shared fallback context.
func NoIdentity() (ThreadID, bool) {
	return 0, false
}
