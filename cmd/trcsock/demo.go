package main

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"
	"github.com/peterbourgon/trcsock"
	"github.com/peterbourgon/trcsock/internal/trcdebug"
	"github.com/peterbourgon/trcsock/trclogr"
	"github.com/peterbourgon/trcsock/trcsink"
)

type demoConfig struct {
	*rootConfig

	endpoint   string
	mode       string
	workers    int
	iterations int
	depth      int
	interval   time.Duration
	identity   string
	verbosity  int
}

func (cfg *demoConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{ShortName: 'e', LongName: "endpoint" /*   */, Value: ffval.NewValueDefault(&cfg.endpoint, defaultEndpoint) /*        */, Usage: "console endpoint"})
	fs.AddFlag(ff.FlagConfig{ShortName: 'm', LongName: "mode" /*       */, Value: ffval.NewEnum(&cfg.mode, "dial", "listen") /*                   */, Usage: "dial a listening console, or listen for a connecting console"})
	fs.AddFlag(ff.FlagConfig{ShortName: 'w', LongName: "workers" /*    */, Value: ffval.NewValueDefault(&cfg.workers, 4) /*                       */, Usage: "concurrent worker goroutines"})
	fs.AddFlag(ff.FlagConfig{ShortName: 'n', LongName: "iterations" /* */, Value: ffval.NewValueDefault(&cfg.iterations, 10) /*                   */, Usage: "requests per worker, 0 for unlimited"})
	fs.AddFlag(ff.FlagConfig{ShortName: 'd', LongName: "depth" /*      */, Value: ffval.NewValueDefault(&cfg.depth, 3) /*                         */, Usage: "maximum scope nesting per request"})
	fs.AddFlag(ff.FlagConfig{ShortName: 'i', LongName: "interval" /*   */, Value: ffval.NewValueDefault(&cfg.interval, 100*time.Millisecond) /*   */, Usage: "delay between requests"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "identity" /*   */, Value: ffval.NewEnum(&cfg.identity, "goroutine", "thread") /*         */, Usage: "thread identity: goroutine ID, or OS thread ID with locked threads"})
	fs.AddFlag(ff.FlagConfig{ShortName: 'v', LongName: "verbosity" /*  */, Value: ffval.NewValueDefault(&cfg.verbosity, 1) /*                     */, Usage: "logr verbosity for demo log lines"})
}

func (cfg *demoConfig) Exec(ctx context.Context, args []string) error {
	sink := trcsink.NewConn(trcsink.Config{
		Endpoint: cfg.endpoint,
		Mode:     trcsink.Mode(cfg.mode),
		Logger:   cfg.debug,
	})
	defer sink.Close()

	var (
		identity trcsock.IdentityFunc = trcsock.GoroutineID
		lockOS   bool
	)
	if cfg.identity == "thread" {
		identity, lockOS = trcsock.OSThreadID, true
	}

	tracer := trcsock.NewTracer(trcsock.Config{
		Sink:     sink,
		Identity: identity,
	})

	if trcsink.Mode(cfg.mode) == trcsink.ModeListen {
		sink.Establish()
		if addr := sink.Addr(); addr != nil {
			cfg.info.Printf("waiting for a console on %s", addr)
		}
		if err := sink.WaitConnected(ctx); err != nil {
			return err
		}
	}

	cfg.info.Printf("running %d worker(s) against %s", cfg.workers, cfg.endpoint)

	var g run.Group

	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			w := &demoWorkload{
				tracer:     tracer,
				logger:     trclogr.New(tracer, cfg.verbosity).WithName("demo"),
				depth:      cfg.depth,
				iterations: cfg.iterations,
				interval:   cfg.interval,
				lockOS:     lockOS,
			}
			return w.run(ctx, cfg.workers)
		}, func(error) {
			cancel()
		})
	}

	{
		g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))
	}

	err := g.Run()

	cfg.info.Printf("tracer: %s", tracer.Stats())
	cfg.info.Printf("sink: %s", sink.Stats())
	{
		get, alloc, put, lost, reuse := trcdebug.RecordBufferCounters.Values()
		cfg.debug.Printf("record buffers: get=%d alloc=%d put=%d lost=%d reuse=%.1f%%", get, alloc, put, lost, reuse)
	}

	return err
}

type demoWorkload struct {
	tracer     *trcsock.Tracer
	logger     logr.Logger
	depth      int
	iterations int
	interval   time.Duration
	lockOS     bool
}

// run workers until they've done their iterations, or the context is
// canceled.
func (w *demoWorkload) run(ctx context.Context, workers int) error {
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			w.worker(ctx, worker)
		}(i)
	}
	wg.Wait()
	return nil
}

func (w *demoWorkload) worker(ctx context.Context, worker int) {
	if w.lockOS {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	rng := rand.New(rand.NewSource(int64(worker)))
	for i := 0; w.iterations <= 0 || i < w.iterations; i++ {
		if ctx.Err() != nil {
			return
		}
		w.request(worker, i, rng)
		contextSleep(ctx, w.interval)
	}
}

func (w *demoWorkload) request(worker, id int, rng *rand.Rand) {
	c := w.tracer.Current()
	w.lock(c)
	defer c.Scopef("request %d.%d", worker, id).End()

	c.Sendf("args:\n  worker=%d\n  id=%d", worker, id)
	w.logger.V(1).Info("handling request", "worker", worker, "id", id)

	w.step(c, rng, 1)

	if rng.Intn(10) == 0 {
		w.logger.Error(fmt.Errorf("request %d failed", id), "request failed", "worker", worker)
	}
	c.Send("done")
}

func (w *demoWorkload) step(c *trcsock.Context, rng *rand.Rand, depth int) {
	defer c.ScopeCaller().End()

	w.lock(c)

	if depth >= w.depth {
		c.Sendf("leaf at depth %d", depth)
		return
	}

	for i, n := 0, 1+rng.Intn(2); i < n; i++ {
		w.step(c, rng, depth+1)
	}
}

// lock is traced only outside of requests, as lock traffic within a request
// is noise.
func (w *demoWorkload) lock(c *trcsock.Context) {
	if !c.IsTop() {
		return
	}
	defer c.Scope("lock").End()
	c.Send("acquired")
}
