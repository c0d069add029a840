// trcsock is the observer console for processes instrumented with trcsock.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
)

func main() {
	var (
		ctx    = context.Background()
		stdin  = os.Stdin
		stdout = os.Stdout
		stderr = os.Stderr
		args   = os.Args[1:]
	)
	err := exec(ctx, stdin, stdout, stderr, args)
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.As(err, &(run.SignalError{})):
		os.Exit(0)
	case err != nil:
		fmt.Fprintf(stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func exec(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) (err error) {
	rootConfig := &rootConfig{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}

	rootFlags := ff.NewFlagSet("trcsock")
	rootConfig.register(rootFlags)

	rootCommand := &ff.Command{
		Name:      "trcsock",
		ShortHelp: "observe processes instrumented with trcsock",
		Flags:     rootFlags,
	}

	printFlags := ff.NewFlagSet("print").SetParent(rootFlags)
	rootConfig.registerPrintFlags(printFlags)

	// Config for `trcsock listen`.
	listenConfig := &listenConfig{consoleConfig: &consoleConfig{rootConfig: rootConfig}}
	listenFlags := ff.NewFlagSet("listen").SetParent(printFlags)
	listenConfig.register(listenFlags)
	listenCommand := &ff.Command{
		Name:      "listen",
		ShortHelp: "accept connections from instrumented processes",
		LongHelp:  "Listen on the endpoint for instrumented processes running in dial mode, and print their records.",
		Flags:     listenFlags,
		Exec:      listenConfig.Exec,
	}
	rootCommand.Subcommands = append(rootCommand.Subcommands, listenCommand)

	// Config for `trcsock connect`.
	connectConfig := &connectConfig{consoleConfig: &consoleConfig{rootConfig: rootConfig}}
	connectFlags := ff.NewFlagSet("connect").SetParent(printFlags)
	connectConfig.register(connectFlags)
	connectCommand := &ff.Command{
		Name:      "connect",
		ShortHelp: "connect to an instrumented process",
		LongHelp:  "Connect to an instrumented process running in listen mode, and print its records. Reconnects when the connection is lost.",
		Flags:     connectFlags,
		Exec:      connectConfig.Exec,
	}
	rootCommand.Subcommands = append(rootCommand.Subcommands, connectCommand)

	// Config for `trcsock view`.
	viewConfig := &viewConfig{rootConfig: rootConfig}
	viewFlags := ff.NewFlagSet("view").SetParent(rootFlags)
	viewConfig.register(viewFlags)
	viewCommand := &ff.Command{
		Name:      "view",
		ShortHelp: "render a dump or capture file",
		LongHelp:  "Load a session dump, or a raw capture with --raw, and render each thread as an indented tree.",
		Flags:     viewFlags,
		Exec:      viewConfig.Exec,
	}
	rootCommand.Subcommands = append(rootCommand.Subcommands, viewCommand)

	// Config for `trcsock tail`.
	tailConfig := &tailConfig{rootConfig: rootConfig}
	tailFlags := ff.NewFlagSet("tail").SetParent(printFlags)
	tailConfig.register(tailFlags)
	tailCommand := &ff.Command{
		Name:      "tail",
		ShortHelp: "stream records from another console",
		LongHelp:  "Stream records from the web endpoint of a console started with --http.",
		Flags:     tailFlags,
		Exec:      tailConfig.Exec,
	}
	rootCommand.Subcommands = append(rootCommand.Subcommands, tailCommand)

	// Config for `trcsock fetch`.
	fetchConfig := &fetchConfig{rootConfig: rootConfig}
	fetchFlags := ff.NewFlagSet("fetch").SetParent(rootFlags)
	fetchConfig.register(fetchFlags)
	fetchCommand := &ff.Command{
		Name:      "fetch",
		ShortHelp: "fetch the session of another console",
		LongHelp:  "Fetch the current session from the web endpoint of a console, and render it or write it to a dump file.",
		Flags:     fetchFlags,
		Exec:      fetchConfig.Exec,
	}
	rootCommand.Subcommands = append(rootCommand.Subcommands, fetchCommand)

	// Config for `trcsock demo`.
	demoConfig := &demoConfig{rootConfig: rootConfig}
	demoFlags := ff.NewFlagSet("demo").SetParent(rootFlags)
	demoConfig.register(demoFlags)
	demoCommand := &ff.Command{
		Name:      "demo",
		ShortHelp: "run an instrumented workload",
		LongHelp:  "Run worker goroutines which trace nested scopes to the endpoint, for trying out a console.",
		Flags:     demoFlags,
		Exec:      demoConfig.Exec,
	}
	rootCommand.Subcommands = append(rootCommand.Subcommands, demoCommand)

	// Print help when appropriate.
	showHelp := true
	defer func() {
		errHelp := errors.Is(err, ff.ErrHelp) || errors.Is(err, ff.ErrNoExec)
		if showHelp || errHelp {
			fmt.Fprintf(stderr, "\n%s\n", ffhelp.Command(rootCommand))
		}
		if errHelp {
			err = nil
		}
	}()

	// Initial parsing.
	if err := rootCommand.Parse(args,
		ff.WithEnvVarPrefix("TRCSOCK"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	); err != nil {
		return err
	}

	// Validation and set-up.
	{
		var infodst, debugdst io.Writer
		switch rootConfig.logLevel {
		case "n", "none":
			infodst, debugdst = io.Discard, io.Discard
		case "i", "info":
			infodst, debugdst = stderr, io.Discard
		case "d", "debug":
			infodst, debugdst = stderr, stderr
		default:
			return fmt.Errorf("invalid log level %q", rootConfig.logLevel)
		}
		rootConfig.info = log.New(infodst, "", 0)
		rootConfig.debug = log.New(debugdst, "[DEBUG] ", log.Lmsgprefix)
	}

	// Run errors shouldn't show help by default.
	showHelp = false

	// Run the selected command.
	return rootCommand.Run(ctx)
}
