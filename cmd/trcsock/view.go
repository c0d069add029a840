package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"
	"github.com/peterbourgon/trcsock/trcview"
	"github.com/peterbourgon/trcsock/trcwire"
)

type viewConfig struct {
	*rootConfig

	threads    []string
	depth      int
	timestamps bool
	raw        bool
	summary    bool
	match      string
	ancestors  int
}

func (cfg *viewConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{ShortName: 'r', LongName: "thread" /*     */, Value: ffval.NewUniqueList(&cfg.threads) /* */, Usage: "only render this thread, e.g. 0x1a (repeatable)", Placeholder: "NAME"})
	fs.AddFlag(ff.FlagConfig{ShortName: 'd', LongName: "depth" /*      */, Value: ffval.NewValue(&cfg.depth) /*         */, Usage: "hide nodes deeper than this, if positive"})
	fs.AddFlag(ff.FlagConfig{ShortName: 't', LongName: "timestamps" /* */, Value: ffval.NewValue(&cfg.timestamps) /*    */, Usage: "prefix nodes with their timestamp", NoDefault: true})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "raw" /*        */, Value: ffval.NewValue(&cfg.raw) /*           */, Usage: "file is a raw capture in wire format, not a dump", NoDefault: true})
	fs.AddFlag(ff.FlagConfig{ShortName: 's', LongName: "summary" /*    */, Value: ffval.NewValue(&cfg.summary) /*       */, Usage: "only list threads and their event counts", NoDefault: true})
	fs.AddFlag(ff.FlagConfig{ShortName: 'g', LongName: "grep" /*       */, Value: ffval.NewValue(&cfg.match) /*         */, Usage: "only render nodes whose message contains this text", Placeholder: "TEXT"})
	fs.AddFlag(ff.FlagConfig{ShortName: 'C', LongName: "context" /*    */, Value: ffval.NewValue(&cfg.ancestors) /*     */, Usage: "with --grep, also render this many enclosing scopes", Placeholder: "N"})
}

func (cfg *viewConfig) Exec(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("exactly one file is required")
	}
	filename := args[0]

	var (
		session *trcview.Session
		err     error
	)
	if cfg.raw {
		session, err = loadCapture(filename, cfg.debug.Printf)
	} else {
		session, err = trcview.LoadFile(filename)
	}
	if err != nil {
		return err
	}

	cfg.debug.Printf("%s: %s", filename, session.Stats())

	return renderSession(cfg.stdout, session, cfg.threads, cfg.summary, trcview.RenderOptions{
		Indent:     cfg.indent,
		Timestamps: cfg.timestamps,
		MaxDepth:   cfg.depth,
		Match:      cfg.match,
		Context:    cfg.ancestors,
	})
}

// loadCapture reads a raw capture file, skipping malformed records.
func loadCapture(filename string, logf func(string, ...any)) (*trcview.Session, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()

	return readSession(f, logf)
}

func readSession(r io.Reader, logf func(string, ...any)) (*trcview.Session, error) {
	var (
		session = trcview.NewSession()
		rd      = trcwire.NewReader(r)
	)
	for {
		rec, err := rd.Read()
		switch {
		case err == nil:
			if err := session.Add(rec); err != nil {
				logf("%s: %v", trcwire.ThreadName(rec.ThreadID), err)
			}
		case isRecoverable(err):
			logf("skipping record: %v", err)
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return session, nil
		default:
			return nil, fmt.Errorf("read capture: %w", err)
		}
	}
}

// renderSession writes each selected thread's tree, in the order of
// Session.Threads, or only the thread list if summary is true.
func renderSession(w io.Writer, session *trcview.Session, threads []string, summary bool, opts trcview.RenderOptions) error {
	selected := map[string]bool{}
	for _, name := range threads {
		selected[name] = true
	}

	for _, thread := range session.Threads() {
		if len(selected) > 0 && !selected[thread.Name] {
			continue
		}

		if summary {
			fmt.Fprintf(w, "%s (%d)\n", thread.Name, thread.Count)
			continue
		}

		tree, ok := session.Tree(thread.Name)
		if !ok {
			continue
		}

		fmt.Fprintf(w, "== %s (%d) ==\n", thread.Name, thread.Count)
		if err := trcview.Render(w, tree, opts); err != nil {
			return fmt.Errorf("render %s: %w", thread.Name, err)
		}
		fmt.Fprintln(w)
	}

	return nil
}
