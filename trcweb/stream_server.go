package trcweb

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/bernerdschaefer/eventsource"
	"github.com/oklog/ulid/v2"
)

// Event types sent by the stream server.
const (
	EventInit   = "init"
	EventRecord = "record"
	EventStats  = "stats"
)

// StreamServer streams entries published to a hub as server-sent events.
//
// Each stream begins with an init event, followed by the backlog of recent
// entries which match the stream filter, followed by live entries as they're
// published. Stats events are sent periodically. Query parameters:
//
//	thread=0x1a   only entries from this thread (repeatable)
//	session=ID    only entries from this session
//	backlog=false skip the backlog
//	sendbuf=N     subscription buffer size, min 0, default 100, max 100000
//	stats=10s     interval between stats events
type StreamServer struct {
	hub    *Hub
	logger *log.Logger
}

// NewStreamServer returns a stream server for the hub. The logger is optional.
func NewStreamServer(hub *Hub, logger *log.Logger) *StreamServer {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &StreamServer{
		hub:    hub,
		logger: logger,
	}
}

// StreamInit is the data of the init event.
type StreamInit struct {
	ID      string `json:"id"`
	Filter  Filter `json:"filter"`
	SendBuf int    `json:"sendbuf"`
	Backlog int    `json:"backlog"`
}

// StreamStats is the data of stats events.
type StreamStats struct {
	Sends uint64   `json:"sends"`
	Skips uint64   `json:"skips"`
	Drops uint64   `json:"drops"`
	Hub   HubStats `json:"hub"`
}

// String implements fmt.Stringer.
func (s StreamStats) String() string {
	return fmt.Sprintf("sends=%d skips=%d drops=%d (%s)", s.Sends, s.Skips, s.Drops, s.Hub)
}

// ServeHTTP implements http.Handler. Requests must Accept: text/event-stream.
func (s *StreamServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, fmt.Errorf("method %s not allowed", r.Method), http.StatusMethodNotAllowed)
		return
	}

	if !requestExplicitlyAccepts(r, "text/event-stream") {
		respondError(w, fmt.Errorf("invalid request Accept header (%s)", r.Header.Get("accept")), http.StatusBadRequest)
		return
	}

	var (
		query    = r.URL.Query()
		f        = parseFilter(r)
		id       = ulid.Make().String()
		interval = parseDefault(query.Get("stats"), time.ParseDuration, 10*time.Second)
		sendbuf  = parseRange(query.Get("sendbuf"), strconv.Atoi, 0, 100, 100000)
		backlog  = parseDefault(query.Get("backlog"), strconv.ParseBool, true)
		entryc   = make(chan Entry, sendbuf)
	)

	if interval <= 0 {
		interval = 10 * time.Second
	}

	// Register before taking the backlog, so nothing is missed between the
	// two. Entries in both are deduplicated by sequence number.
	if err := s.hub.register(f.Allow, entryc); err != nil {
		respondError(w, fmt.Errorf("subscribe: %w", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		stats, err := s.hub.unregister(entryc)
		s.logger.Printf("stream %s: done, %s, error=%v", id, stats, err)
	}()

	var replay []Entry
	if backlog {
		replay = s.hub.Backlog(f.Allow)
	}

	s.logger.Printf("stream %s: started, filter %s, sendbuf %d, backlog %d", id, f, sendbuf, len(replay))

	eventsource.Handler(func(lastId string, encoder *eventsource.Encoder, stop <-chan bool) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last uint64 // highest sequence number sent

		// Reconnecting clients provide the last ID they saw.
		if seq, err := strconv.ParseUint(lastId, 10, 64); err == nil {
			last = seq
			s.logger.Printf("stream %s: resuming after %d", id, seq)
		}

		send := func(e Entry) error {
			if e.Seq <= last {
				return nil
			}
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("JSON marshal entry: %w", err)
			}
			if err := encoder.Encode(eventsource.Event{
				Type: EventRecord,
				ID:   strconv.FormatUint(e.Seq, 10),
				Data: data,
			}); err != nil {
				return fmt.Errorf("encode entry: %w", err)
			}
			last = e.Seq
			return nil
		}

		// The init event and the backlog always precede live entries.
		{
			data, err := json.Marshal(StreamInit{
				ID:      id,
				Filter:  f,
				SendBuf: cap(entryc),
				Backlog: len(replay),
			})
			if err != nil {
				s.logger.Printf("stream %s: JSON marshal init: %v", id, err)
				return
			}

			if err := encoder.Encode(eventsource.Event{
				Type: EventInit,
				Data: data,
			}); err != nil {
				s.logger.Printf("stream %s: encode init: %v", id, err)
				return
			}

			for _, e := range replay {
				if err := send(e); err != nil {
					s.logger.Printf("stream %s: backlog: %v", id, err)
					return
				}
			}
		}

		for {
			select {
			case <-ticker.C:
				sub, err := s.hub.subscriptionStats(entryc)
				if err != nil {
					s.logger.Printf("stream %s: get stats: %v", id, err)
					continue
				}

				data, err := json.Marshal(StreamStats{
					Sends: sub.Sends,
					Skips: sub.Skips,
					Drops: sub.Drops,
					Hub:   s.hub.Stats(),
				})
				if err != nil {
					s.logger.Printf("stream %s: JSON marshal stats: %v", id, err)
					continue
				}

				if err := encoder.Encode(eventsource.Event{
					Type: EventStats,
					Data: data,
				}); err != nil {
					s.logger.Printf("stream %s: encode stats: %v", id, err)
					return
				}

			case e := <-entryc:
				if err := send(e); err != nil {
					s.logger.Printf("stream %s: %v", id, err)
					return
				}

			case <-stop:
				s.logger.Printf("stream %s: stopping: client went away", id)
				return

			case <-r.Context().Done():
				s.logger.Printf("stream %s: stopping: %v", id, r.Context().Err())
				return
			}
		}
	}).ServeHTTP(w, r)
}
