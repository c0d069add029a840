// Package trcweb serves the records received by an observer over HTTP, as a
// live stream of server-sent events, and as snapshots of the session.
package trcweb

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/peterbourgon/trcsock/internal/trcpubsub"
	"github.com/peterbourgon/trcsock/internal/trcringbuf"
	"github.com/peterbourgon/trcsock/trcview"
	"github.com/peterbourgon/trcsock/trcwire"
)

// Entry is a record as received by an observer.
type Entry struct {
	// Seq is assigned by the hub, and increases by one for every entry.
	Seq uint64 `json:"seq"`

	// Session identifies the connection the record arrived on.
	Session string `json:"session,omitempty"`

	// Thread is the thread name of the record, per trcwire.ThreadName.
	Thread string `json:"thread_name"`

	trcwire.Record
}

// DefaultBacklog is the default number of recent entries kept per thread.
const DefaultBacklog = 100

// Hub is where an observer publishes the records it receives. It assembles
// them into a session, keeps a backlog of recent entries per thread, and fans
// entries out to subscribers.
type Hub struct {
	mtx     sync.Mutex // serializes publishes
	seq     uint64
	session *trcview.Session
	backlog *trcringbuf.RingBuffers[Entry]
	broker  *trcpubsub.Broker[Entry]

	published atomic.Uint64
	rejected  atomic.Uint64
}

// NewHub returns a hub keeping up to backlog recent entries per thread. If
// backlog is zero, DefaultBacklog is used. A negative backlog disables it.
func NewHub(backlog int) *Hub {
	switch {
	case backlog == 0:
		backlog = DefaultBacklog
	case backlog < 0:
		backlog = 0
	}
	return &Hub{
		session: trcview.NewSession(),
		backlog: trcringbuf.NewRingBuffers[Entry](backlog),
		broker:  trcpubsub.NewBroker[Entry](),
	}
}

// Publish a record received on the given session. The record is always
// published to subscribers and the backlog. An error means it couldn't be
// placed in the session tree for its thread.
func (h *Hub) Publish(session string, r trcwire.Record) error {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	h.seq++
	e := Entry{
		Seq:     h.seq,
		Session: session,
		Thread:  trcwire.ThreadName(r.ThreadID),
		Record:  r,
	}

	h.backlog.GetOrCreate(e.Thread).Add(e)
	h.broker.Publish(e)
	h.published.Add(1)

	if err := h.session.Add(r); err != nil {
		h.rejected.Add(1)
		return err
	}

	return nil
}

// Session returns the session assembled from every published record.
func (h *Hub) Session() *trcview.Session {
	return h.session
}

// Backlog returns the recent entries accepted by allow, oldest first.
func (h *Hub) Backlog(allow func(Entry) bool) []Entry {
	var entries []Entry
	for _, thread := range h.backlog.Values() {
		for _, e := range thread {
			if allow == nil || allow(e) {
				entries = append(entries, e)
			}
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })
	return entries
}

// HubStats describe a hub.
type HubStats struct {
	Published   uint64               `json:"published"`
	Rejected    uint64               `json:"rejected"`
	Subscribers int                  `json:"subscribers"`
	Session     trcview.SessionStats `json:"session"`
}

// String implements fmt.Stringer.
func (s HubStats) String() string {
	return fmt.Sprintf("published=%d rejected=%d subscribers=%d %s", s.Published, s.Rejected, s.Subscribers, s.Session)
}

// Stats returns current stats for the hub.
func (h *Hub) Stats() HubStats {
	return HubStats{
		Published:   h.published.Load(),
		Rejected:    h.rejected.Load(),
		Subscribers: h.broker.Subscribers(),
		Session:     h.session.Stats(),
	}
}

//
//
//

// Filter selects entries for a stream. The zero value selects everything.
type Filter struct {
	Threads []string `json:"threads,omitempty"`
	Session string   `json:"session,omitempty"`
}

// Allow returns true if the entry should be included.
func (f Filter) Allow(e Entry) bool {
	if f.Session != "" && e.Session != f.Session {
		return false
	}
	if len(f.Threads) > 0 {
		var found bool
		for _, thread := range f.Threads {
			if thread == e.Thread {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer.
func (f Filter) String() string {
	return fmt.Sprintf("threads=%v session=%q", f.Threads, f.Session)
}

func (h *Hub) register(allow func(Entry) bool, ch chan<- Entry) error {
	return h.broker.Register(allow, ch)
}

func (h *Hub) unregister(ch chan<- Entry) (trcpubsub.Stats, error) {
	return h.broker.Unregister(ch)
}

func (h *Hub) subscriptionStats(ch chan<- Entry) (trcpubsub.Stats, error) {
	return h.broker.Stats(ch)
}
