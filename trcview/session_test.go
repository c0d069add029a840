package trcview_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/peterbourgon/trcsock/trcview"
	"github.com/peterbourgon/trcsock/trcwire"
)

func TestSession(t *testing.T) {
	t.Parallel()

	s := trcview.NewSession()
	for _, r := range []trcwire.Record{
		{Timestamp: 1, ThreadID: 0xa, Level: 0, Message: "a1"},
		{Timestamp: 1, ThreadID: 0xb, Level: 0, Message: "b1"},
		{Timestamp: 2, ThreadID: 0xa, Level: 1, Message: "a2"},
		{Timestamp: 2, ThreadID: 0xb, Level: 0, Message: "b2"},
		{Timestamp: 3, ThreadID: 0xb, Level: 0, Message: "b3"},
		{Timestamp: 3, ThreadID: 0xc, Level: 0, Message: "c1"},
	} {
		if err := s.Add(r); err != nil {
			t.Fatal(err)
		}
	}

	assertEqual(t, s.Threads(), []trcview.ThreadSummary{
		{Name: "0xb", Count: 3},
		{Name: "0xa", Count: 2},
		{Name: "0xc", Count: 1},
	})

	tree, ok := s.Tree("0xa")
	if !ok {
		t.Fatal("thread 0xa: missing")
	}
	assertEqual(t, tree.Events(), []trcview.Event{
		{Timestamp: 1, Level: 0, Message: "a1"},
		{Timestamp: 2, Level: 1, Message: "a2"},
	})

	if _, ok := s.Tree("0xd"); ok {
		t.Error("thread 0xd: unexpectedly present")
	}

	assertEqual(t, s.Stats(), trcview.SessionStats{Threads: 3, Records: 6})
}

func TestSessionRejects(t *testing.T) {
	t.Parallel()

	s := trcview.NewSession()
	if err := s.Add(trcwire.Record{ThreadID: 1, Level: 2}); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(trcwire.Record{ThreadID: 1, Level: 1}); !errors.Is(err, trcview.ErrInvalidLevel) {
		t.Fatalf("want ErrInvalidLevel, have %v", err)
	}
	assertEqual(t, s.Stats(), trcview.SessionStats{Threads: 1, Records: 1, Rejected: 1})
}

func TestSessionConcurrent(t *testing.T) {
	t.Parallel()

	const (
		threads = 8
		count   = 500
	)

	s := trcview.NewSession()

	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			for j := 0; j < count; j++ {
				s.Add(trcwire.Record{ThreadID: id, Level: uint64(j % 2), Message: fmt.Sprint(j)})
			}
		}(uint64(i + 1))
	}
	for i := 0; i < 10; i++ {
		s.Threads()
		s.Events()
	}
	wg.Wait()

	assertEqual(t, s.Stats(), trcview.SessionStats{Threads: threads, Records: threads * count})
	for _, summary := range s.Threads() {
		assertEqual(t, summary.Count, count)
	}
}

func TestNewSessionFromEvents(t *testing.T) {
	t.Parallel()

	s, err := trcview.NewSessionFromEvents(map[string][]trcview.Event{
		"0x1": {{Level: 0}, {Level: 1}},
	})
	if err != nil {
		t.Fatal(err)
	}
	assertEqual(t, s.Stats(), trcview.SessionStats{Threads: 1, Records: 2})

	// Records added later extend the loaded tree.
	if err := s.Add(trcwire.Record{ThreadID: 1, Level: 2}); err != nil {
		t.Fatal(err)
	}
	tree, _ := s.Tree("0x1")
	assertEqual(t, tree.Context(2, 10), []int{0, 1})

	if _, err := trcview.NewSessionFromEvents(map[string][]trcview.Event{
		"0x2": {{Level: 1}, {Level: 0}},
	}); !errors.Is(err, trcview.ErrInvalidLevel) {
		t.Fatalf("want ErrInvalidLevel, have %v", err)
	}
}
