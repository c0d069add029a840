package trcview

import (
	"fmt"
	"sort"
	"sync"

	"github.com/peterbourgon/trcsock/trcwire"
)

// Session collects records from any number of threads into one tree per
// thread. Threads are named by [trcwire.ThreadName]. It's safe for concurrent
// use.
type Session struct {
	mtx      sync.Mutex
	trees    map[string]*Tree
	records  int
	rejected int
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{trees: map[string]*Tree{}}
}

// NewSessionFromEvents returns a session with the given events, e.g. from a
// dump file.
func NewSessionFromEvents(events map[string][]Event) (*Session, error) {
	s := NewSession()
	for name, evs := range events {
		tree, err := NewTree(evs)
		if err != nil {
			return nil, fmt.Errorf("thread %s: %w", name, err)
		}
		s.trees[name] = tree
		s.records += tree.Len()
	}
	return s, nil
}

// Add the record to the tree for its thread. Records which can't be placed in
// the tree are rejected, and counted.
func (s *Session) Add(r trcwire.Record) error {
	name := trcwire.ThreadName(r.ThreadID)
	event := Event{Timestamp: r.Timestamp, Level: r.Level, Message: r.Message}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	tree, ok := s.trees[name]
	if !ok {
		tree = &Tree{}
		s.trees[name] = tree
	}

	if err := tree.Add(event); err != nil {
		s.rejected++
		return fmt.Errorf("thread %s: %w", name, err)
	}

	s.records++
	return nil
}

// ThreadSummary describes one thread in a session.
type ThreadSummary struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Threads returns a summary of every thread, ordered by number of events,
// most first. Threads with the same number of events are ordered by name.
func (s *Session) Threads() []ThreadSummary {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	summaries := make([]ThreadSummary, 0, len(s.trees))
	for name, tree := range s.trees {
		if tree.Len() == 0 {
			continue
		}
		summaries = append(summaries, ThreadSummary{Name: name, Count: tree.Len()})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Count != summaries[j].Count {
			return summaries[i].Count > summaries[j].Count
		}
		return summaries[i].Name < summaries[j].Name
	})
	return summaries
}

// Tree returns a copy of the tree for the named thread.
func (s *Session) Tree(name string) (*Tree, bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	tree, ok := s.trees[name]
	if !ok || tree.Len() == 0 {
		return nil, false
	}
	return tree.Clone(), true
}

// Events returns the events of every thread, keyed by thread name. This is the
// form which is written to dump files.
func (s *Session) Events() map[string][]Event {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	events := make(map[string][]Event, len(s.trees))
	for name, tree := range s.trees {
		if tree.Len() == 0 {
			continue
		}
		events[name] = tree.Events()
	}
	return events
}

// SessionStats describe the contents of a session.
type SessionStats struct {
	Threads  int `json:"threads"`
	Records  int `json:"records"`
	Rejected int `json:"rejected"`
}

// String implements fmt.Stringer.
func (s SessionStats) String() string {
	return fmt.Sprintf("threads=%d records=%d rejected=%d", s.Threads, s.Records, s.Rejected)
}

// Stats returns current stats for the session.
func (s *Session) Stats() SessionStats {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var threads int
	for _, tree := range s.trees {
		if tree.Len() > 0 {
			threads++
		}
	}

	return SessionStats{
		Threads:  threads,
		Records:  s.records,
		Rejected: s.rejected,
	}
}
