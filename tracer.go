package trcsock

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/peterbourgon/trcsock/internal/trcclock"
	"github.com/peterbourgon/trcsock/internal/trcdebug"
	"github.com/peterbourgon/trcsock/trcsink"
	"github.com/peterbourgon/trcsock/trcwire"
)

// Clock supplies record timestamps. See [SystemClock].
type Clock = trcclock.Clock

// SystemClock reads the wall clock.
var SystemClock Clock = trcclock.System{}

// Config for a tracer.
type Config struct {
	// Sink receives every encoded record. Default trcsink.Discard.
	Sink trcsink.Sink

	// Capacity is the maximum number of distinct threads which will be given
	// their own context. Default DefaultCapacity.
	Capacity int

	// Identity identifies the calling thread in Current. Default GoroutineID.
	Identity IdentityFunc

	// Clock supplies timestamps. Default SystemClock.
	Clock Clock
}

// Tracer owns the thread registry and the path from contexts to the sink.
// Construct it once, before any tracing, and share it with instrumented code.
type Tracer struct {
	sink     trcsink.Sink
	identify IdentityFunc
	clock    Clock
	registry *registry

	sent        atomic.Uint64
	formatDrops atomic.Uint64
}

// NewTracer constructs a tracer from the config. This is the single point of
// initialization for the tracer's shared state; there's no teardown.
func NewTracer(cfg Config) *Tracer {
	if cfg.Sink == nil {
		cfg.Sink = trcsink.Discard
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Identity == nil {
		cfg.Identity = GoroutineID
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock
	}

	t := &Tracer{
		sink:     cfg.Sink,
		identify: cfg.Identity,
		clock:    cfg.Clock,
	}
	t.registry = newRegistry(cfg.Capacity, t.newContext)
	return t
}

func (t *Tracer) newContext(id ThreadID) *Context {
	return &Context{id: id, tracer: t}
}

// Current returns the context for the calling thread, creating it if
// necessary. It's safe to call from any goroutine, at any point, including
// reentrantly from within instrumented code.
func (t *Tracer) Current() *Context {
	return t.registry.resolve(t.identify())
}

// Resolve returns the context for the given thread, creating it if necessary.
// Repeated calls with the same ID return the same context.
func (t *Tracer) Resolve(id ThreadID) *Context {
	return t.registry.resolve(id, true)
}

// Fallback returns the shared context used when a thread can't be identified,
// or the registry is full.
func (t *Tracer) Fallback() *Context {
	return t.registry.fallback
}

// Threads returns the IDs of all registered threads, in registration slot
// order.
func (t *Tracer) Threads() []ThreadID {
	return t.registry.threads()
}

// Stats describe the state of a tracer.
type Stats struct {
	Threads     int    `json:"threads"`
	Capacity    int    `json:"capacity"`
	Fallbacks   uint64 `json:"fallbacks"`
	Sent        uint64 `json:"sent"`
	FormatDrops uint64 `json:"format_drops"`
}

// String implements fmt.Stringer.
func (s Stats) String() string {
	return fmt.Sprintf("threads=%d/%d fallbacks=%d sent=%d format_drops=%d", s.Threads, s.Capacity, s.Fallbacks, s.Sent, s.FormatDrops)
}

// Stats returns current stats for the tracer.
func (t *Tracer) Stats() Stats {
	return Stats{
		Threads:     int(t.registry.claimed.Load()),
		Capacity:    len(t.registry.slots),
		Fallbacks:   t.registry.misses.Load(),
		Sent:        t.sent.Load(),
		FormatDrops: t.formatDrops.Load(),
	}
}

func (t *Tracer) emit(id ThreadID, level uint64, msg string) {
	bufp := getRecordBuffer()
	defer putRecordBuffer(bufp)

	*bufp = trcwire.AppendRecord((*bufp)[:0], trcwire.Record{
		Timestamp: trcclock.Stamp(t.clock),
		ThreadID:  uint64(id),
		Level:     level,
		Message:   msg,
	})

	t.sink.Send(*bufp)
	t.sent.Add(1)
}

var recordBufferPool = sync.Pool{
	New: func() any {
		trcdebug.RecordBufferCounters.Alloc.Add(1)
		buf := make([]byte, 0, trcwire.MaxRecordSize)
		return &buf
	},
}

func getRecordBuffer() *[]byte {
	trcdebug.RecordBufferCounters.Get.Add(1)
	return recordBufferPool.Get().(*[]byte)
}

func putRecordBuffer(bufp *[]byte) {
	if cap(*bufp) > 2*trcwire.MaxRecordSize {
		trcdebug.RecordBufferCounters.Lost.Add(1)
		return
	}
	trcdebug.RecordBufferCounters.Put.Add(1)
	recordBufferPool.Put(bufp)
}
