package trcweb_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/peterbourgon/trcsock/trcview"
	"github.com/peterbourgon/trcsock/trcweb"
	"github.com/peterbourgon/trcsock/trcwire"
)

func newTestServer(t *testing.T, hub *trcweb.Hub) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(trcweb.NewHandler(hub, trcweb.NewStreamServer(hub, nil)))
	t.Cleanup(server.Close)
	return server
}

func recv(t *testing.T, ch <-chan trcweb.Entry) trcweb.Entry {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for entry")
		return trcweb.Entry{}
	}
}

func TestStream(t *testing.T) {
	t.Parallel()

	hub := trcweb.NewHub(10)
	hub.Publish("s1", trcwire.Record{ThreadID: 1, Level: 0, Message: "backlog 1"})
	hub.Publish("s1", trcwire.Record{ThreadID: 2, Level: 0, Message: "other thread"})
	hub.Publish("s1", trcwire.Record{ThreadID: 1, Level: 1, Message: "backlog 2"})

	server := newTestServer(t, hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &trcweb.StreamClient{
		URI:        server.URL,
		Filter:     trcweb.Filter{Threads: []string{"0x1"}},
		Backlog:    true,
		SendBuffer: 10,
	}

	var (
		entryc = make(chan trcweb.Entry, 10)
		donec  = make(chan error, 1)
	)
	go func() { donec <- client.Stream(ctx, entryc) }()

	assertEqual(t, recv(t, entryc).Message, "backlog 1")
	assertEqual(t, recv(t, entryc).Message, "backlog 2")

	// The backlog is only sent after the stream is subscribed, so everything
	// published from here on is received.
	hub.Publish("s2", trcwire.Record{ThreadID: 2, Message: "filtered"})
	hub.Publish("s2", trcwire.Record{ThreadID: 1, Level: 1, Message: "live"})

	e := recv(t, entryc)
	assertEqual(t, e.Message, "live")
	assertEqual(t, e.Session, "s2")
	assertEqual(t, e.Thread, "0x1")
	assertEqual(t, e.Seq, uint64(5))

	cancel()
	select {
	case <-donec:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for stream to stop")
	}
}

func TestStreamRequiresEventStream(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, trcweb.NewHub(0))

	resp, err := http.Get(server.URL + "/stream")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	assertEqual(t, resp.StatusCode, http.StatusBadRequest)
}

func TestSnapshot(t *testing.T) {
	t.Parallel()

	hub := trcweb.NewHub(0)
	for _, r := range []trcwire.Record{
		{Timestamp: 1, ThreadID: 1, Level: 0, Message: "outer"},
		{Timestamp: 2, ThreadID: 1, Level: 1, Message: "inner"},
		{Timestamp: 3, ThreadID: 3, Level: 0, Message: "other"},
	} {
		if err := hub.Publish("s", r); err != nil {
			t.Fatal(err)
		}
	}

	server := newTestServer(t, hub)
	ctx := context.Background()

	for _, opts := range []trcview.DumpOptions{
		{},
		{Format: trcview.FormatCBOR, Compression: trcview.CompressionZstd},
		{Format: trcview.FormatJSON, Compression: trcview.CompressionLZ4},
	} {
		client := &trcweb.StreamClient{URI: server.URL}
		session, err := client.Snapshot(ctx, opts)
		if err != nil {
			t.Fatalf("%+v: %v", opts, err)
		}
		assertEqual(t, session.Events(), hub.Session().Events())
	}

	client := &trcweb.StreamClient{URI: server.URL, Filter: trcweb.Filter{Threads: []string{"0x3"}}}
	session, err := client.Snapshot(ctx, trcview.DumpOptions{})
	if err != nil {
		t.Fatal(err)
	}
	assertEqual(t, session.Threads(), []trcview.ThreadSummary{{Name: "0x3", Count: 1}})

	if _, err := client.Snapshot(ctx, trcview.DumpOptions{Format: "xml"}); err == nil {
		t.Fatal("want error for unknown format, have none")
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	hub := trcweb.NewHub(0)
	hub.Publish("s", trcwire.Record{ThreadID: 1, Message: "a"})
	hub.Publish("s", trcwire.Record{ThreadID: 1, Message: "b"})

	rec := httptest.NewRecorder()
	trcweb.NewStatsHandler(hub).ServeHTTP(rec, httptest.NewRequest("GET", "/stats", nil))
	assertEqual(t, rec.Code, http.StatusOK)

	var res struct {
		Stats   trcweb.HubStats         `json:"stats"`
		Threads []trcview.ThreadSummary `json:"threads"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	assertEqual(t, res.Stats.Published, uint64(2))
	assertEqual(t, res.Threads, []trcview.ThreadSummary{{Name: "0x1", Count: 2}})
}

func TestStreamBacklogPrecedesLive(t *testing.T) {
	t.Parallel()

	hub := trcweb.NewHub(10)
	hub.Publish("s", trcwire.Record{ThreadID: 1, Level: 0, Message: "backlog 1"})
	hub.Publish("s", trcwire.Record{ThreadID: 1, Level: 1, Message: "backlog 2"})

	server := newTestServer(t, hub)

	publishing, stop := context.WithCancel(context.Background())
	defer stop()
	go func() {
		for publishing.Err() == nil {
			hub.Publish("s", trcwire.Record{ThreadID: 2, Level: 0, Message: "live"})
		}
	}()

	for i := 0; i < 50; i++ {
		events := readEvents(t, server.URL+"/stream", 3)
		assertEqual(t, events[0].typ, trcweb.EventInit)
		assertEqual(t, events[1].typ, trcweb.EventRecord)
		assertEqual(t, events[1].id, "1")
		assertEqual(t, events[2].typ, trcweb.EventRecord)
		assertEqual(t, events[2].id, "2")
	}
}

type streamEvent struct {
	typ string
	id  string
}

// readEvents reads the first n server-sent events from the URL.
func readEvents(t *testing.T, url string, n int) []streamEvent {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var (
		events  []streamEvent
		current streamEvent
		scanner = bufio.NewScanner(resp.Body)
	)
	for len(events) < n && scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if current.typ != "" {
				events = append(events, current)
			}
			current = streamEvent{}
		case strings.HasPrefix(line, "event:"):
			current.typ = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "id:"):
			current.id = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
		}
	}
	if len(events) < n {
		t.Fatalf("read %d event(s), want %d (%v)", len(events), n, scanner.Err())
	}
	return events
}
