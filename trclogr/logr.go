// Package trclogr sends logr log lines as trace records, on the context of
// the calling thread, so they appear nested inside the scopes around them.
package trclogr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"github.com/peterbourgon/trcsock"
)

// New returns a logger which sends to the tracer. Lines with a V level above
// verbosity are discarded.
func New(tracer *trcsock.Tracer, verbosity int) logr.Logger {
	return logr.New(NewLogSink(tracer, verbosity))
}

// NewLogSink returns a logr.LogSink which sends to the tracer. Lines with a V
// level above verbosity are discarded.
func NewLogSink(tracer *trcsock.Tracer, verbosity int) logr.LogSink {
	return &logSink{
		tracer:    tracer,
		verbosity: verbosity,
	}
}

type logSink struct {
	tracer    *trcsock.Tracer
	verbosity int
	name      string
	values    []any
}

var _ logr.LogSink = (*logSink)(nil)

func (s *logSink) Init(logr.RuntimeInfo) {}

func (s *logSink) Enabled(level int) bool {
	return level <= s.verbosity
}

func (s *logSink) Info(level int, msg string, keysAndValues ...any) {
	s.send(msg, nil, keysAndValues)
}

func (s *logSink) Error(err error, msg string, keysAndValues ...any) {
	s.send(msg, err, keysAndValues)
}

func (s *logSink) WithValues(keysAndValues ...any) logr.LogSink {
	clone := *s
	clone.values = append(append(make([]any, 0, len(s.values)+len(keysAndValues)), s.values...), keysAndValues...)
	return &clone
}

func (s *logSink) WithName(name string) logr.LogSink {
	clone := *s
	if clone.name == "" {
		clone.name = name
	} else {
		clone.name = clone.name + "/" + name
	}
	return &clone
}

func (s *logSink) send(msg string, err error, keysAndValues []any) {
	var sb strings.Builder
	if s.name != "" {
		sb.WriteString(s.name)
		sb.WriteString(": ")
	}
	sb.WriteString(msg)
	if err != nil {
		writePair(&sb, "error", err)
	}
	writePairs(&sb, s.values)
	writePairs(&sb, keysAndValues)

	s.tracer.Current().Send(sb.String())
}

func writePairs(sb *strings.Builder, kvs []any) {
	for i := 0; i < len(kvs); i += 2 {
		var val any = "(MISSING)"
		if i+1 < len(kvs) {
			val = kvs[i+1]
		}
		writePair(sb, fmt.Sprint(kvs[i]), val)
	}
}

func writePair(sb *strings.Builder, key string, val any) {
	sb.WriteByte(' ')
	sb.WriteString(key)
	sb.WriteByte('=')
	str := fmt.Sprint(val)
	if str == "" || strings.ContainsAny(str, " =\"\n") {
		str = strconv.Quote(str)
	}
	sb.WriteString(str)
}
