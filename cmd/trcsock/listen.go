package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"
	"github.com/peterbourgon/trcsock/trcsink"
)

type listenConfig struct {
	*consoleConfig
}

func (cfg *listenConfig) register(fs *ff.FlagSet) {
	cfg.consoleConfig.register(fs)
}

func (cfg *listenConfig) Exec(ctx context.Context, args []string) error {
	network, address, err := trcsink.ParseEndpoint(cfg.endpoint)
	if err != nil {
		return err
	}

	ln, err := net.Listen(network, address)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer ln.Close()

	cfg.info.Printf("listening on %s://%s", network, ln.Addr())

	return cfg.run(ctx, func(ctx context.Context, c *console) error {
		return serveListener(ctx, ln, c)
	})
}

// serveListener handles every accepted connection concurrently, and returns
// after the context is canceled and every connection is done.
func serveListener(ctx context.Context, ln net.Listener, c *console) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return ctx.Err()
			}
			return fmt.Errorf("accept: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.handle(ctx, conn); err != nil {
				c.info.Printf("%v", err)
			}
		}()
	}
}

type connectConfig struct {
	*consoleConfig

	retryInterval time.Duration
}

func (cfg *connectConfig) register(fs *ff.FlagSet) {
	cfg.consoleConfig.register(fs)
	fs.AddFlag(ff.FlagConfig{LongName: "retry-interval", Value: ffval.NewValueDefault(&cfg.retryInterval, 3*time.Second), Usage: "connection retry interval"})
}

func (cfg *connectConfig) Exec(ctx context.Context, args []string) error {
	network, address, err := trcsink.ParseEndpoint(cfg.endpoint)
	if err != nil {
		return err
	}

	return cfg.run(ctx, func(ctx context.Context, c *console) error {
		return dialLoop(ctx, network, address, cfg.retryInterval, c)
	})
}

// dialLoop connects to the instrumented process, and reconnects after every
// failure or disconnect, until the context is canceled.
func dialLoop(ctx context.Context, network, address string, retry time.Duration, c *console) error {
	var dialer net.Dialer
	for ctx.Err() == nil {
		c.debug.Printf("connecting to %s://%s", network, address)

		conn, err := dialer.DialContext(ctx, network, address)
		if err != nil {
			c.info.Printf("connect failed, retrying in %s (%v)", retry, err)
			contextSleep(ctx, retry)
			continue
		}

		if err := c.handle(ctx, conn); err != nil {
			c.info.Printf("%v", err)
		}

		contextSleep(ctx, retry)
	}
	return ctx.Err()
}
