// Package trcsink delivers encoded trace records to an observer.
//
// Sinks are best-effort. They never return errors to the caller and never
// panic: if the underlying transport isn't available, or breaks, records are
// silently dropped. Each call to Send is atomic with respect to every other
// call on the same sink, so records from concurrent producers never
// interleave at the byte level.
package trcsink

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// Sink accepts complete, already-encoded records. Implementations must not
// retain p after Send returns.
type Sink interface {
	Send(p []byte)
}

// Stats are counters describing the activity of a sink.
type Stats struct {
	Sent      uint64 `json:"sent"`
	Dropped   uint64 `json:"dropped"`
	Failures  uint64 `json:"failures"`
	Connected bool   `json:"connected"`
}

// String implements fmt.Stringer.
func (s Stats) String() string {
	return fmt.Sprintf("sent=%d dropped=%d failures=%d connected=%v", s.Sent, s.Dropped, s.Failures, s.Connected)
}

type counters struct {
	sent     atomic.Uint64
	dropped  atomic.Uint64
	failures atomic.Uint64
}

//
//
//

// Discard is a sink which drops every record.
var Discard Sink = discard{}

type discard struct{}

func (discard) Send([]byte) {}

//
//
//

// Writer is a sink wrapping an io.Writer, such as a file or stderr. After the
// first write error, all subsequent sends are dropped.
type Writer struct {
	mtx    sync.Mutex
	w      io.Writer
	failed bool
	counters
}

var _ Sink = (*Writer)(nil)

// NewWriter returns a sink writing to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Send implements Sink.
func (s *Writer) Send(p []byte) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.failed || s.w == nil {
		s.dropped.Add(1)
		return
	}

	if _, err := s.w.Write(p); err != nil {
		s.failed = true
		s.failures.Add(1)
		s.dropped.Add(1)
		return
	}

	s.sent.Add(1)
}

// Stats returns current counters for the sink.
func (s *Writer) Stats() Stats {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return Stats{
		Sent:      s.sent.Load(),
		Dropped:   s.dropped.Load(),
		Failures:  s.failures.Load(),
		Connected: !s.failed && s.w != nil,
	}
}
