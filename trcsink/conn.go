package trcsink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"sync"
	"time"
)

// Mode selects how a Conn establishes its connection.
type Mode string

const (
	// ModeDial connects to an observer which is listening.
	ModeDial Mode = "dial"

	// ModeListen listens for observers to connect. One observer is served at
	// a time; a newly accepted connection replaces the previous one.
	ModeListen Mode = "listen"
)

// Config for a Conn sink.
type Config struct {
	// Endpoint of the observer, or the local listen address. Accepts
	// tcp://host:port, unix:///path/to/socket, or host:port. Required.
	Endpoint string

	// Mode is either ModeDial or ModeListen. Default ModeDial.
	Mode Mode

	// WriteTimeout bounds each write, if positive. By default writes have no
	// timeout, which means a stalled observer stalls every sender.
	WriteTimeout time.Duration

	// Logger receives diagnostic messages about the connection. Optional.
	Logger *log.Logger
}

// Conn is a sink backed by a network connection to an observer. The
// connection is established at most once, lazily, on the first Send, or
// eagerly via Establish. If establishment fails, or the connection later
// breaks, sends become no-ops. There is no retry and no buffering.
type Conn struct {
	cfg  Config
	once sync.Once

	mtx    sync.Mutex // serializes all writes
	conn   net.Conn
	ln     net.Listener
	closed bool

	counters
}

var _ Sink = (*Conn)(nil)

// NewConn returns a connection sink for the config. No connection is made
// until the first Send or Establish.
func NewConn(cfg Config) *Conn {
	if cfg.Mode == "" {
		cfg.Mode = ModeDial
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	return &Conn{cfg: cfg}
}

// Establish the connection, or start listening, if that hasn't already been
// done. It's safe to call multiple times.
func (c *Conn) Establish() {
	c.once.Do(c.establish)
}

func (c *Conn) establish() {
	network, address, err := ParseEndpoint(c.cfg.Endpoint)
	if err != nil {
		c.cfg.Logger.Printf("trcsink: %v", err)
		return
	}

	switch c.cfg.Mode {
	case ModeDial:
		conn, err := net.Dial(network, address)
		if err != nil {
			c.failures.Add(1)
			c.cfg.Logger.Printf("trcsink: dial %s: %v", c.cfg.Endpoint, err)
			return
		}
		c.mtx.Lock()
		defer c.mtx.Unlock()
		if c.closed {
			conn.Close()
			return
		}
		c.conn = conn
		c.cfg.Logger.Printf("trcsink: connected to %s", conn.RemoteAddr())

	case ModeListen:
		ln, err := net.Listen(network, address)
		if err != nil {
			c.failures.Add(1)
			c.cfg.Logger.Printf("trcsink: listen %s: %v", c.cfg.Endpoint, err)
			return
		}
		c.mtx.Lock()
		defer c.mtx.Unlock()
		if c.closed {
			ln.Close()
			return
		}
		c.ln = ln
		c.cfg.Logger.Printf("trcsink: listening on %s", ln.Addr())
		go c.acceptLoop(ln)

	default:
		c.cfg.Logger.Printf("trcsink: invalid mode %q", c.cfg.Mode)
	}
}

func (c *Conn) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				c.cfg.Logger.Printf("trcsink: accept: %v", err)
			}
			return
		}

		c.mtx.Lock()
		if c.closed {
			c.mtx.Unlock()
			conn.Close()
			return
		}
		if c.conn != nil {
			c.conn.Close()
		}
		c.conn = conn
		c.mtx.Unlock()

		c.cfg.Logger.Printf("trcsink: observer connected from %s", conn.RemoteAddr())
	}
}

// Send implements Sink.
func (c *Conn) Send(p []byte) {
	c.Establish()

	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.conn == nil {
		c.dropped.Add(1)
		return
	}

	if c.cfg.WriteTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}

	if _, err := c.conn.Write(p); err != nil {
		c.cfg.Logger.Printf("trcsink: write: %v (dropping connection)", err)
		c.conn.Close()
		c.conn = nil
		c.failures.Add(1)
		c.dropped.Add(1)
		return
	}

	c.sent.Add(1)
}

// Addr returns the local listen address in ModeListen, or the remote address
// in ModeDial. It returns nil if there's no listener or connection.
func (c *Conn) Addr() net.Addr {
	c.Establish()

	c.mtx.Lock()
	defer c.mtx.Unlock()

	switch {
	case c.ln != nil:
		return c.ln.Addr()
	case c.conn != nil:
		return c.conn.RemoteAddr()
	default:
		return nil
	}
}

// Connected returns true if there's a live connection to an observer.
func (c *Conn) Connected() bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.conn != nil
}

// WaitConnected blocks until an observer is connected, or the context is
// canceled. Useful in ModeListen, to avoid dropping the first records.
func (c *Conn) WaitConnected(ctx context.Context) error {
	c.Establish()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for !c.Connected() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Stats returns current counters for the sink.
func (c *Conn) Stats() Stats {
	return Stats{
		Sent:      c.sent.Load(),
		Dropped:   c.dropped.Load(),
		Failures:  c.failures.Load(),
		Connected: c.Connected(),
	}
}

// Close the connection and any listener. Subsequent sends are dropped.
func (c *Conn) Close() error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	c.closed = true

	var errs []error
	if c.ln != nil {
		errs = append(errs, c.ln.Close())
		c.ln = nil
	}
	if c.conn != nil {
		errs = append(errs, c.conn.Close())
		c.conn = nil
	}
	return errors.Join(errs...)
}

// ParseEndpoint splits an endpoint into a network and address suitable for
// net.Dial or net.Listen. Endpoints without a scheme are TCP.
func ParseEndpoint(endpoint string) (network, address string, err error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", "", fmt.Errorf("empty endpoint")
	}

	scheme, rest, ok := strings.Cut(endpoint, "://")
	if !ok {
		return "tcp", endpoint, nil
	}

	switch scheme {
	case "tcp", "tcp4", "tcp6":
		if rest == "" {
			return "", "", fmt.Errorf("%s: missing address", endpoint)
		}
		return scheme, rest, nil
	case "unix":
		if rest == "" {
			return "", "", fmt.Errorf("%s: missing socket path", endpoint)
		}
		return "unix", rest, nil
	default:
		return "", "", fmt.Errorf("%s: unsupported scheme %q", endpoint, scheme)
	}
}
