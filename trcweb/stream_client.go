package trcweb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bernerdschaefer/eventsource"
	"github.com/peterbourgon/trcsock/trcview"
	"github.com/peterbourgon/unixtransport"
)

// NewHTTPClient returns an HTTP client which supports unix socket URIs, as
// well as regular HTTP URIs.
func NewHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	unixtransport.Register(transport)
	return &http.Client{Transport: transport}
}

// RegisterDefaultTransport adds unix socket support to http.DefaultTransport.
// Streams always use the default client, so this is required to stream from
// an observer listening on a unix socket.
func RegisterDefaultTransport() {
	if transport, ok := http.DefaultTransport.(*http.Transport); ok {
		unixtransport.Register(transport)
	}
}

// StreamClient reads entries from a remote observer.
type StreamClient struct {
	// HTTPClient is used for snapshots. Default NewHTTPClient.
	HTTPClient *http.Client

	// URI of the remote observer, e.g. http://localhost:8080. Required.
	URI string

	// Filter is applied by the server.
	Filter Filter

	// Backlog requests the server's recent entries before live ones.
	Backlog bool

	// SendBuffer used by the remote stream server. Min 0, max 100k.
	SendBuffer int

	// RetryInterval between reconnect attempts. Default 3s, min 1s, max 60s.
	RetryInterval time.Duration

	// StatsInterval for stream stats updates. Default 10s, min 1s, max 60s.
	StatsInterval time.Duration

	// OnStats is called for each stats event. Optional.
	OnStats func(StreamStats)

	// Logger receives diagnostic messages. Optional.
	Logger *log.Logger
}

func (c *StreamClient) initialize() {
	if c.HTTPClient == nil {
		c.HTTPClient = NewHTTPClient()
	}

	if c.URI != "" && !strings.Contains(c.URI, "://") {
		c.URI = "http://" + c.URI
	}
	c.URI = strings.TrimSuffix(c.URI, "/")

	if min, max := 0, 100000; c.SendBuffer < min {
		c.SendBuffer = min
	} else if c.SendBuffer > max {
		c.SendBuffer = max
	}

	if def, min, max := 3*time.Second, 1*time.Second, 60*time.Second; c.RetryInterval == 0 {
		c.RetryInterval = def
	} else if c.RetryInterval < min {
		c.RetryInterval = min
	} else if c.RetryInterval > max {
		c.RetryInterval = max
	}

	if def, min, max := 10*time.Second, 1*time.Second, 60*time.Second; c.StatsInterval == 0 {
		c.StatsInterval = def
	} else if c.StatsInterval < min {
		c.StatsInterval = min
	} else if c.StatsInterval > max {
		c.StatsInterval = max
	}

	if c.OnStats == nil {
		c.OnStats = func(StreamStats) {}
	}

	if c.Logger == nil {
		c.Logger = log.New(io.Discard, "", 0)
	}
}

// Stream entries from the remote observer to ch. The stream reconnects after
// errors, resuming after the last received entry, and stops when the context
// is canceled, or a non-recoverable error occurs.
func (c *StreamClient) Stream(ctx context.Context, ch chan<- Entry) error {
	c.initialize()

	// The request is deliberately created without the context: EventSource
	// treats cancelation as a recoverable error, and would wait out a retry
	// interval before returning. It also reuses the request over reconnects,
	// so the filter has to be in the URL.
	uri, err := url.Parse(c.URI + "/stream")
	if err != nil {
		return fmt.Errorf("parse URI: %w", err)
	}

	query := uri.Query()
	encodeFilter(c.Filter, query)
	query.Set("backlog", strconv.FormatBool(c.Backlog))
	query.Set("sendbuf", strconv.Itoa(c.SendBuffer))
	query.Set("stats", c.StatsInterval.String())
	uri.RawQuery = query.Encode()

	req, err := http.NewRequest(http.MethodGet, uri.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	es := eventsource.New(req, c.RetryInterval)
	go func() {
		<-ctx.Done()
		es.Close()
	}()

	for {
		ev, err := es.Read()
		if errors.Is(err, eventsource.ErrClosed) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read server-sent event: %w", err)
		}

		switch ev.Type {
		case EventInit:
			var init StreamInit
			if err := json.Unmarshal(ev.Data, &init); err != nil {
				return fmt.Errorf("decode init event: %w", err)
			}
			c.Logger.Printf("stream %s: filter %s, sendbuf %d, backlog %d", init.ID, init.Filter, init.SendBuf, init.Backlog)

		case EventRecord:
			var e Entry
			if err := json.Unmarshal(ev.Data, &e); err != nil {
				return fmt.Errorf("decode record event: %w", err)
			}
			select {
			case <-ctx.Done():
				return nil
			case ch <- e:
			}

		case EventStats:
			var stats StreamStats
			if err := json.Unmarshal(ev.Data, &stats); err != nil {
				return fmt.Errorf("decode stats event: %w", err)
			}
			c.Logger.Printf("stats: %s", stats)
			c.OnStats(stats)

		default:
			c.Logger.Printf("unknown event type %q", ev.Type)
		}
	}
}

// Snapshot fetches the current session of the remote observer.
func (c *StreamClient) Snapshot(ctx context.Context, opts trcview.DumpOptions) (*trcview.Session, error) {
	c.initialize()

	uri, err := url.Parse(c.URI + "/snapshot")
	if err != nil {
		return nil, fmt.Errorf("parse URI: %w", err)
	}

	query := uri.Query()
	encodeFilter(Filter{Threads: c.Filter.Threads}, query)
	if opts.Format != "" {
		query.Set("format", string(opts.Format))
	}
	if opts.Compression != "" {
		query.Set("compression", string(opts.Compression))
	}
	uri.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("snapshot: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	events, err := trcview.Load(resp.Body, opts)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	return trcview.NewSessionFromEvents(events)
}
