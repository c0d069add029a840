// Package eztrcsock provides a process-wide tracer, for programs which don't
// want to pass a [trcsock.Tracer] around.
//
// Init must be called once, early in main, before any goroutine traces
// anything. Until then, every context traces to a discarding tracer.
package eztrcsock

import (
	"sync"
	"sync/atomic"

	"github.com/peterbourgon/trcsock"
	"github.com/peterbourgon/trcsock/trcsink"
)

var (
	initOnce sync.Once
	tracer   atomic.Pointer[trcsock.Tracer]
	discard  = trcsock.NewTracer(trcsock.Config{Sink: trcsink.Discard, Capacity: 1, Identity: trcsock.NoIdentity})
)

// Init installs the process-wide tracer. Only the first call has any effect;
// it reports whether this call was the one which installed the tracer.
func Init(cfg trcsock.Config) bool {
	var installed bool
	initOnce.Do(func() {
		tracer.Store(trcsock.NewTracer(cfg))
		installed = true
	})
	return installed
}

// InitEndpoint is Init with a connection sink to the given endpoint. In dial
// mode the process connects to a listening observer, in listen mode the
// observer connects to the process. The connection is established lazily, on
// the first send.
func InitEndpoint(endpoint string, mode trcsink.Mode) bool {
	return Init(trcsock.Config{
		Sink: trcsink.NewConn(trcsink.Config{Endpoint: endpoint, Mode: mode}),
	})
}

// Tracer returns the process-wide tracer, or a discarding tracer if Init
// hasn't been called.
func Tracer() *trcsock.Tracer {
	if t := tracer.Load(); t != nil {
		return t
	}
	return discard
}

// Current returns the context for the calling goroutine.
func Current() *trcsock.Context {
	return Tracer().Current()
}

// Send a message on the calling goroutine's context.
func Send(msg string) {
	Current().Send(msg)
}

// Sendf formats and sends a message on the calling goroutine's context.
func Sendf(format string, args ...any) {
	Current().Sendf(format, args...)
}

// Scope opens a scope on the calling goroutine's context.
//
//	defer eztrcsock.Scope("handleRequest").End()
func Scope(name string) trcsock.Scope {
	return Current().Scope(name)
}

// Stats returns stats for the process-wide tracer.
func Stats() trcsock.Stats {
	return Tracer().Stats()
}
