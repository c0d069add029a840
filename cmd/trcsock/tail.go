package main

import (
	"context"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"
	"github.com/peterbourgon/trcsock/trcweb"
)

type tailConfig struct {
	*rootConfig

	uri           string
	threads       []string
	session       string
	backlog       bool
	sendBuf       int
	recvBuf       int
	statsInterval time.Duration
	retryInterval time.Duration
}

func (cfg *tailConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{ShortName: 'u', LongName: "uri" /*            */, Value: ffval.NewValueDefault(&cfg.uri, "localhost:8080") /*          */, Usage: "web endpoint of the console, e.g. localhost:8080 or http+unix:///tmp/trcsock.sock", Placeholder: "URI"})
	fs.AddFlag(ff.FlagConfig{ShortName: 'r', LongName: "thread" /*         */, Value: ffval.NewUniqueList(&cfg.threads) /*                       */, Usage: "only stream this thread, e.g. 0x1a (repeatable)", Placeholder: "NAME"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "session" /*        */, Value: ffval.NewValue(&cfg.session) /*                            */, Usage: "only stream this connection session ID", Placeholder: "ULID"})
	fs.AddFlag(ff.FlagConfig{ShortName: 'b', LongName: "backlog" /*        */, Value: ffval.NewValue(&cfg.backlog) /*                            */, Usage: "start with the console's recent records", NoDefault: true})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "send-buffer" /*    */, Value: ffval.NewValueDefault(&cfg.sendBuf, 100) /*                  */, Usage: "remote send buffer size"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "recv-buffer" /*    */, Value: ffval.NewValueDefault(&cfg.recvBuf, 100) /*                  */, Usage: "local receive buffer size"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "stats-interval" /* */, Value: ffval.NewValueDefault(&cfg.statsInterval, 10*time.Second) /* */, Usage: "stats reporting interval"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "retry-interval" /* */, Value: ffval.NewValueDefault(&cfg.retryInterval, 1*time.Second) /*  */, Usage: "connection retry interval"})
}

func (cfg *tailConfig) Exec(ctx context.Context, args []string) error {
	uri, err := normalizeURI(cfg.uri)
	if err != nil {
		return err
	}

	// Streams read via the default HTTP client.
	trcweb.RegisterDefaultTransport()

	filter := trcweb.Filter{
		Threads: cfg.threads,
		Session: cfg.session,
	}

	{
		cfg.info.Printf("streaming from %s", uri)
		cfg.info.Printf("filter: %s", filter)
		cfg.debug.Printf("send buffer: %d", cfg.sendBuf)
		cfg.debug.Printf("recv buffer: %d", cfg.recvBuf)
		cfg.debug.Printf("stats interval: %s", cfg.statsInterval)
		cfg.debug.Printf("retry interval: %s", cfg.retryInterval)
	}

	var (
		entries = make(chan trcweb.Entry, cfg.recvBuf)
		printer = cfg.newPrinter()
	)

	sc := &trcweb.StreamClient{
		URI:           uri,
		Filter:        filter,
		Backlog:       cfg.backlog,
		SendBuffer:    cfg.sendBuf,
		RetryInterval: cfg.retryInterval,
		StatsInterval: cfg.statsInterval,
		OnStats: func(stats trcweb.StreamStats) {
			if stats.Drops > 0 {
				cfg.info.Printf("%s: %d record(s) dropped by the console", uri, stats.Drops)
			}
		},
		Logger: cfg.debug,
	}

	var g run.Group

	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			for ctx.Err() == nil {
				subctx, cancel := context.WithCancel(ctx)          // per-iteration sub-context
				errc := make(chan error, 1)                        // per-iteration stream result
				go func() { errc <- sc.Stream(subctx, entries) }() // returns only on terminal errors

				select {
				case <-subctx.Done():
					cfg.debug.Printf("%s: stream done", uri)
					cancel()
					<-errc
					return ctx.Err()

				case err := <-errc:
					cfg.info.Printf("%s: stream error, will retry (%v)", uri, err)
					cancel()
					contextSleep(ctx, cfg.retryInterval)
				}
			}
			return ctx.Err()
		}, func(error) {
			cancel()
		})
	}

	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case e := <-entries:
					if err := printer.print(e.Record); err != nil {
						return err
					}
				}
			}
		}, func(error) {
			cancel()
		})
	}

	{
		g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))
	}

	return g.Run()
}
