package trcweb

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/peterbourgon/trcsock/trcview"
)

// SnapshotHandler serves the events of the hub's session, in the same form as
// a dump file, so a snapshot can be saved and later viewed. Query parameters
// format (json, cbor) and compression (none, zstd, lz4) select the encoding;
// thread (repeatable) restricts the snapshot to some threads.
type SnapshotHandler struct {
	hub *Hub
}

// NewSnapshotHandler returns a snapshot handler for the hub.
func NewSnapshotHandler(hub *Hub) *SnapshotHandler {
	return &SnapshotHandler{hub: hub}
}

// ServeHTTP implements http.Handler.
func (h *SnapshotHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	format, err := trcview.ParseFormat(parseDefault(query.Get("format"), nonEmpty, string(trcview.FormatJSON)))
	if err != nil {
		respondError(w, err, http.StatusBadRequest)
		return
	}

	compression, err := trcview.ParseCompression(query.Get("compression"))
	if err != nil {
		respondError(w, err, http.StatusBadRequest)
		return
	}

	events := h.hub.Session().Events()
	if threads := query["thread"]; len(threads) > 0 {
		selected := make(map[string][]trcview.Event, len(threads))
		for _, thread := range threads {
			if evs, ok := events[thread]; ok {
				selected[thread] = evs
			}
		}
		events = selected
	}

	// Dump to a buffer first, so encoding errors can still be reported.
	var buf bytes.Buffer
	if err := trcview.Dump(&buf, events, trcview.DumpOptions{Format: format, Compression: compression}); err != nil {
		respondError(w, fmt.Errorf("dump session: %w", err), http.StatusInternalServerError)
		return
	}

	switch {
	case compression != trcview.CompressionNone:
		w.Header().Set("content-type", "application/octet-stream")
	case format == trcview.FormatCBOR:
		w.Header().Set("content-type", "application/cbor")
	default:
		w.Header().Set("content-type", "application/json; charset=utf-8")
	}
	w.Write(buf.Bytes())
}

func nonEmpty(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("empty")
	}
	return s, nil
}

// StatsHandler serves hub stats and a summary of threads as JSON.
type StatsHandler struct {
	hub *Hub
}

// NewStatsHandler returns a stats handler for the hub.
func NewStatsHandler(hub *Hub) *StatsHandler {
	return &StatsHandler{hub: hub}
}

// ServeHTTP implements http.Handler.
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, struct {
		Stats   HubStats                `json:"stats"`
		Threads []trcview.ThreadSummary `json:"threads"`
	}{
		Stats:   h.hub.Stats(),
		Threads: h.hub.Session().Threads(),
	})
}

// NewHandler returns an http.Handler serving the stream at /stream, snapshots
// at /snapshot, and stats at /stats.
func NewHandler(hub *Hub, stream *StreamServer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/stream", stream)
	mux.Handle("/snapshot", NewSnapshotHandler(hub))
	mux.Handle("/stats", NewStatsHandler(hub))
	return mux
}
