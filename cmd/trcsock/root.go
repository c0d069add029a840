package main

import (
	"io"
	"log"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"
)

const defaultEndpoint = "localhost:7777"

type rootConfig struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	logLevel   string
	configFile string

	timestamps bool
	threadTag  bool
	indent     string

	info, debug *log.Logger
}

func (cfg *rootConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{
		ShortName:   'l',
		LongName:    "log",
		Value:       ffval.NewEnum(&cfg.logLevel, "info", "i", "debug", "d", "none", "n"),
		Usage:       "log level: i/info, d/debug, n/none",
		Placeholder: "LEVEL",
	})
	fs.AddFlag(ff.FlagConfig{
		LongName:    "config",
		Value:       ffval.NewValue(&cfg.configFile),
		Usage:       "config file in plain format, one flag per line",
		Placeholder: "FILE",
	})
}

func (cfg *rootConfig) registerPrintFlags(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{ShortName: 't', LongName: "timestamps" /* */, Value: ffval.NewValue(&cfg.timestamps) /*             */, Usage: "prefix records with their timestamp", NoDefault: true})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "thread-tag" /* */, Value: ffval.NewValueDefault(&cfg.threadTag, true) /* */, Usage: "prefix records with their thread name"})
	fs.AddFlag(ff.FlagConfig{ShortName: 0x0, LongName: "indent" /*     */, Value: ffval.NewValueDefault(&cfg.indent, "  ") /*   */, Usage: "indent per scope level"})
}

func (cfg *rootConfig) newPrinter() *printer {
	return &printer{
		w:          cfg.stdout,
		indent:     cfg.indent,
		timestamps: cfg.timestamps,
		threadTag:  cfg.threadTag,
	}
}
