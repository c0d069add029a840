package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/oklog/ulid/v2"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"
	"github.com/peterbourgon/trcsock/internal/trcutil"
	"github.com/peterbourgon/trcsock/trcview"
	"github.com/peterbourgon/trcsock/trcweb"
	"github.com/peterbourgon/trcsock/trcwire"
	"github.com/peterbourgon/unixtransport/unixproxy"
	"gopkg.in/natefinch/lumberjack.v2"
)

// consoleConfig is shared by listen and connect, which differ only in how
// they get connections to instrumented processes.
type consoleConfig struct {
	*rootConfig

	endpoint        string
	httpAddr        string
	dumpPath        string
	backlog         int
	capturePath     string
	captureMaxSize  int
	captureBackups  int
	captureCompress bool
	quiet           bool
}

func (cfg *consoleConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{ShortName: 'e', LongName: "endpoint" /*         */, Value: ffval.NewValueDefault(&cfg.endpoint, defaultEndpoint) /* */, Usage: "endpoint, e.g. host:port, tcp://host:port, unix:///path"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "http" /*             */, Value: ffval.NewValue(&cfg.httpAddr) /*                         */, Usage: "if set, serve the web stream on this address (host:port or unix:///path)", Placeholder: "ADDR"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "dump" /*             */, Value: ffval.NewValue(&cfg.dumpPath) /*                         */, Usage: "if set, dump the session to this file on exit (.json, .cbor, optional .zst or .lz4)", Placeholder: "FILE"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "backlog" /*          */, Value: ffval.NewValueDefault(&cfg.backlog, trcweb.DefaultBacklog) /* */, Usage: "recent records per thread replayed to web stream subscribers"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "capture" /*          */, Value: ffval.NewValue(&cfg.capturePath) /*                      */, Usage: "if set, append every record in wire format to this rotating file", Placeholder: "FILE"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "capture-max-size" /* */, Value: ffval.NewValueDefault(&cfg.captureMaxSize, 100) /*       */, Usage: "capture file size in megabytes before rotation"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "capture-backups" /*  */, Value: ffval.NewValueDefault(&cfg.captureBackups, 3) /*        */, Usage: "rotated capture files to keep"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "capture-compress" /* */, Value: ffval.NewValue(&cfg.captureCompress) /*                  */, Usage: "gzip rotated capture files", NoDefault: true})
	fs.AddFlag(ff.FlagConfig{ShortName: 'q', LongName: "quiet" /*            */, Value: ffval.NewValue(&cfg.quiet) /*                            */, Usage: "don't print records", NoDefault: true})
}

// run the console: serve connections until the context is canceled or a
// signal is received, then dump the session if requested.
func (cfg *consoleConfig) run(ctx context.Context, serve func(context.Context, *console) error) error {
	c := &console{
		hub:   trcweb.NewHub(cfg.backlog),
		info:  cfg.info,
		debug: cfg.debug,
	}

	if !cfg.quiet {
		c.printer = cfg.newPrinter()
	}

	if cfg.capturePath != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.capturePath,
			MaxSize:    cfg.captureMaxSize,
			MaxBackups: cfg.captureBackups,
			Compress:   cfg.captureCompress,
		}
		defer lj.Close()
		c.capture = lj
		cfg.info.Printf("capturing to %s", cfg.capturePath)
	}

	var g run.Group

	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return serve(ctx, c)
		}, func(error) {
			cancel()
		})
	}

	if cfg.httpAddr != "" {
		ln, err := unixproxy.ListenURI(ctx, cfg.httpAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.httpAddr, err)
		}

		cfg.info.Printf("serving web stream on %s", cfg.httpAddr)

		server := &http.Server{
			Handler:  trcweb.NewHandler(c.hub, trcweb.NewStreamServer(c.hub, cfg.debug)),
			ErrorLog: cfg.debug,
		}
		g.Add(func() error {
			return server.Serve(ln)
		}, func(error) {
			server.Close()
		})
	}

	{
		g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))
	}

	err := g.Run()

	cfg.info.Printf("%s", c.hub.Stats())
	if n := c.malformed.Load(); n > 0 {
		cfg.info.Printf("skipped %d malformed record(s)", n)
	}

	if cfg.dumpPath != "" {
		if err := trcview.DumpFile(cfg.dumpPath, c.hub.Session()); err != nil {
			return fmt.Errorf("dump session: %w", err)
		}
		cfg.info.Printf("dumped session to %s", cfg.dumpPath)
	}

	return err
}

type console struct {
	hub     *trcweb.Hub
	printer *printer  // nil when quiet
	capture io.Writer // nil when not capturing
	info    *log.Logger
	debug   *log.Logger

	malformed atomic.Uint64
}

// handle reads records from conn until it's closed or the context is canceled.
// Every connection is a new session, identified by a ULID.
func (c *console) handle(ctx context.Context, conn net.Conn) error {
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	var (
		session = ulid.Make().String()
		begin   = time.Now()
		src     = &countingReader{r: conn}
		rd      = trcwire.NewReader(src)
		count   uint64
	)

	c.info.Printf("%s: connected %s", session, remoteName(conn))
	defer func() {
		c.info.Printf("%s: disconnected after %s, %d record(s), %s",
			session,
			trcutil.HumanizeDuration(time.Since(begin)),
			count,
			trcutil.HumanizeBytes(src.n),
		)
	}()

	for {
		r, err := rd.Read()
		switch {
		case err == nil:
			// ok
		case isRecoverable(err):
			c.malformed.Add(1)
			c.debug.Printf("%s: skipping record: %v", session, err)
			continue
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed), ctx.Err() != nil:
			return nil
		default:
			return fmt.Errorf("%s: read: %w", session, err)
		}

		count++

		if err := c.hub.Publish(session, r); err != nil {
			c.debug.Printf("%s: %s: %v", session, trcwire.ThreadName(r.ThreadID), err)
		}

		if c.capture != nil {
			if _, err := c.capture.Write(trcwire.Encode(r)); err != nil {
				c.debug.Printf("capture: %v", err)
			}
		}

		if c.printer != nil {
			if err := c.printer.print(r); err != nil {
				return fmt.Errorf("print: %w", err)
			}
		}
	}
}

func isRecoverable(err error) bool {
	for _, target := range []error{
		trcwire.ErrMalformed,
		trcwire.ErrTooLong,
		trcwire.ErrTimestamp,
		trcwire.ErrThread,
		trcwire.ErrLevel,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

type countingReader struct {
	r io.Reader
	n uint64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += uint64(n)
	return n, err
}

func remoteName(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil && addr.String() != "" {
		return addr.String()
	}
	return conn.LocalAddr().String()
}
