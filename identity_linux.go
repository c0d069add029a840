package trcsock

import (
	"golang.org/x/sys/unix"
)

// OSThreadID identifies the calling OS thread. Goroutines may migrate between
// threads, so callers should use runtime.LockOSThread for accurate nesting.
func OSThreadID() (ThreadID, bool) {
	tid := unix.Gettid()
	if tid <= 0 {
		return 0, false
	}
	return ThreadID(tid), true
}
