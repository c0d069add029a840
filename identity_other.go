//go:build !linux

package trcsock

// OSThreadID is only supported on Linux. Elsewhere it never identifies the
// caller, which means every caller gets the shared fallback context.
func OSThreadID() (ThreadID, bool) {
	return 0, false
}
