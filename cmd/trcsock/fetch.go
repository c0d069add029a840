package main

import (
	"context"
	"fmt"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"
	"github.com/peterbourgon/trcsock/trcview"
	"github.com/peterbourgon/trcsock/trcweb"
)

type fetchConfig struct {
	*rootConfig

	uri         string
	threads     []string
	format      string
	compression string
	output      string
	depth       int
	summary     bool
}

func (cfg *fetchConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{ShortName: 'u', LongName: "uri" /*         */, Value: ffval.NewValueDefault(&cfg.uri, "localhost:8080") /*               */, Usage: "web endpoint of the console", Placeholder: "URI"})
	fs.AddFlag(ff.FlagConfig{ShortName: 'r', LongName: "thread" /*      */, Value: ffval.NewUniqueList(&cfg.threads) /*                            */, Usage: "only fetch this thread (repeatable)", Placeholder: "NAME"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "format" /*      */, Value: ffval.NewEnum(&cfg.format, "cbor", "json") /*                    */, Usage: "transfer format: cbor, json"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "compression" /* */, Value: ffval.NewEnum(&cfg.compression, "zstd", "lz4", "none") /*        */, Usage: "transfer compression: zstd, lz4, none"})
	fs.AddFlag(ff.FlagConfig{ShortName: 'o', LongName: "output" /*      */, Value: ffval.NewValue(&cfg.output) /*                                  */, Usage: "if set, write the session to this dump file instead of rendering it", Placeholder: "FILE"})
	fs.AddFlag(ff.FlagConfig{ShortName: 'd', LongName: "depth" /*       */, Value: ffval.NewValue(&cfg.depth) /*                                   */, Usage: "hide nodes deeper than this, if positive"})
	fs.AddFlag(ff.FlagConfig{ShortName: 's', LongName: "summary" /*     */, Value: ffval.NewValue(&cfg.summary) /*                                 */, Usage: "only list threads and their event counts", NoDefault: true})
}

func (cfg *fetchConfig) Exec(ctx context.Context, args []string) error {
	uri, err := normalizeURI(cfg.uri)
	if err != nil {
		return err
	}

	format, err := trcview.ParseFormat(cfg.format)
	if err != nil {
		return err
	}

	compression, err := trcview.ParseCompression(cfg.compression)
	if err != nil {
		return err
	}

	sc := &trcweb.StreamClient{
		HTTPClient: trcweb.NewHTTPClient(),
		URI:        uri,
		Filter:     trcweb.Filter{Threads: cfg.threads},
		Logger:     cfg.debug,
	}

	session, err := sc.Snapshot(ctx, trcview.DumpOptions{Format: format, Compression: compression})
	if err != nil {
		return err
	}

	cfg.info.Printf("%s: %s", uri, session.Stats())

	if cfg.output != "" {
		if err := trcview.DumpFile(cfg.output, session); err != nil {
			return fmt.Errorf("write %s: %w", cfg.output, err)
		}
		cfg.info.Printf("wrote %s", cfg.output)
		return nil
	}

	return renderSession(cfg.stdout, session, nil, cfg.summary, trcview.RenderOptions{
		MaxDepth: cfg.depth,
	})
}
