package trcsink_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/peterbourgon/trcsock/trcsink"
	"github.com/peterbourgon/trcsock/trcwire"
)

func assertEqual[T any](t *testing.T, have, want T) {
	t.Helper()
	if !cmp.Equal(have, want) {
		t.Fatal(cmp.Diff(have, want))
	}
}

func TestWriterConcurrentSends(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := trcsink.NewWriter(&buf)

	const perThread = 1000
	var wg sync.WaitGroup
	for tid, msg := range map[uint64]string{1: "m1", 2: "m2"} {
		wg.Add(1)
		go func(tid uint64, msg string) {
			defer wg.Done()
			for i := 0; i < perThread; i++ {
				sink.Send(trcwire.Encode(trcwire.Record{ThreadID: tid, Message: msg}))
			}
		}(tid, msg)
	}
	wg.Wait()

	counts := map[string]int{}
	rd := trcwire.NewReader(&buf)
	for {
		r, err := rd.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("corrupted stream: %v", err)
		}
		if want := fmt.Sprintf("m%d", r.ThreadID); r.Message != want {
			t.Fatalf("thread %d: message %q, want %q", r.ThreadID, r.Message, want)
		}
		counts[r.Message]++
	}

	assertEqual(t, counts, map[string]int{"m1": perThread, "m2": perThread})
	assertEqual(t, sink.Stats().Sent, uint64(2*perThread))
}

type failingWriter struct{ calls int }

func (w *failingWriter) Write(p []byte) (int, error) {
	w.calls++
	return 0, errors.New("broken pipe")
}

func TestWriterFailureDisablesSink(t *testing.T) {
	t.Parallel()

	w := &failingWriter{}
	sink := trcsink.NewWriter(w)
	sink.Send([]byte("{{0 0 0 a}}"))
	sink.Send([]byte("{{0 0 0 b}}"))
	sink.Send([]byte("{{0 0 0 c}}"))

	assertEqual(t, w.calls, 1)
	stats := sink.Stats()
	assertEqual(t, stats.Dropped, uint64(3))
	assertEqual(t, stats.Failures, uint64(1))
	assertEqual(t, stats.Connected, false)
}

func TestDiscard(t *testing.T) {
	t.Parallel()

	trcsink.Discard.Send([]byte("anything")) // must not panic
}

func TestParseEndpoint(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		endpoint string
		network  string
		address  string
		wantErr  bool
	}{
		{"localhost:5001", "tcp", "localhost:5001", false},
		{"tcp://10.0.0.2:5001", "tcp", "10.0.0.2:5001", false},
		{"tcp6://[::1]:5001", "tcp6", "[::1]:5001", false},
		{"unix:///tmp/trace.sock", "unix", "/tmp/trace.sock", false},
		{"", "", "", true},
		{"unix://", "", "", true},
		{"udp://localhost:1", "", "", true},
	} {
		network, address, err := trcsink.ParseEndpoint(tc.endpoint)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%q: want error, have none", tc.endpoint)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: %v", tc.endpoint, err)
			continue
		}
		assertEqual(t, network, tc.network)
		assertEqual(t, address, tc.address)
	}
}

func TestConnDial(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	received := make(chan []trcwire.Record, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			received <- nil
			return
		}
		defer conn.Close()
		var records []trcwire.Record
		rd := trcwire.NewReader(conn)
		for {
			r, err := rd.Read()
			if err != nil {
				break
			}
			records = append(records, r)
		}
		received <- records
	}()

	sink := trcsink.NewConn(trcsink.Config{Endpoint: "tcp://" + ln.Addr().String()})

	const perThread = 1000
	var wg sync.WaitGroup
	for _, tid := range []uint64{1, 2} {
		wg.Add(1)
		go func(tid uint64) {
			defer wg.Done()
			for i := 0; i < perThread; i++ {
				sink.Send(trcwire.Encode(trcwire.Record{ThreadID: tid, Message: fmt.Sprintf("m%d", tid)}))
			}
		}(tid)
	}
	wg.Wait()

	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	records := <-received
	assertEqual(t, len(records), 2*perThread)
	for _, r := range records {
		if want := fmt.Sprintf("m%d", r.ThreadID); r.Message != want {
			t.Fatalf("garbled record %+v", r)
		}
	}

	sink.Send([]byte("{{0 0 0 after close}}"))
	stats := sink.Stats()
	assertEqual(t, stats.Sent, uint64(2*perThread))
	assertEqual(t, stats.Dropped, uint64(1))
}

func TestConnDialFailureIsSilent(t *testing.T) {
	t.Parallel()

	// Grab a free port, then close it so the dial is refused.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	sink := trcsink.NewConn(trcsink.Config{Endpoint: addr})
	for i := 0; i < 10; i++ {
		sink.Send([]byte("{{0 0 0 dropped}}"))
	}

	stats := sink.Stats()
	assertEqual(t, stats.Sent, uint64(0))
	assertEqual(t, stats.Dropped, uint64(10))
	assertEqual(t, stats.Failures, uint64(1)) // established exactly once
	assertEqual(t, stats.Connected, false)
}

func TestConnInvalidEndpoint(t *testing.T) {
	t.Parallel()

	sink := trcsink.NewConn(trcsink.Config{Endpoint: "bogus://nowhere"})
	sink.Send([]byte("{{0 0 0 x}}"))
	assertEqual(t, sink.Stats().Dropped, uint64(1))
	if addr := sink.Addr(); addr != nil {
		t.Errorf("want nil addr, have %v", addr)
	}
}

func TestConnListen(t *testing.T) {
	t.Parallel()

	sink := trcsink.NewConn(trcsink.Config{Endpoint: "127.0.0.1:0", Mode: trcsink.ModeListen})
	defer sink.Close()

	// Nobody is connected yet, so this is dropped.
	sink.Send(trcwire.Encode(trcwire.Record{Message: "early"}))

	addr := sink.Addr()
	if addr == nil {
		t.Fatal("listener not established")
	}

	conn, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sink.WaitConnected(ctx); err != nil {
		t.Fatalf("wait connected: %v", err)
	}

	sink.Send(trcwire.Encode(trcwire.Record{ThreadID: 7, Level: 1, Message: "hello"}))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	r, err := trcwire.NewReader(conn).Read()
	if err != nil {
		t.Fatal(err)
	}
	assertEqual(t, r, trcwire.Record{ThreadID: 7, Level: 1, Message: "hello"})

	stats := sink.Stats()
	assertEqual(t, stats.Sent, uint64(1))
	assertEqual(t, stats.Dropped, uint64(1))
}
