package main

import (
	"bytes"
	"io"
	"strings"
	"sync"

	"github.com/peterbourgon/trcsock/trcview"
	"github.com/peterbourgon/trcsock/trcwire"
)

// Records with absurd levels would otherwise print screens of whitespace.
const maxPrintDepth = 32

type printer struct {
	mtx        sync.Mutex
	w          io.Writer
	buf        bytes.Buffer
	indent     string
	timestamps bool
	threadTag  bool
}

func (p *printer) print(r trcwire.Record) error {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	p.buf.Reset()
	formatRecord(&p.buf, r, p.indent, p.timestamps, p.threadTag)
	_, err := p.w.Write(p.buf.Bytes())
	return err
}

// formatRecord writes one line per line of the message. Continuation lines
// are aligned under the start of the message.
func formatRecord(buf *bytes.Buffer, r trcwire.Record, indent string, timestamps, threadTag bool) {
	var prefix strings.Builder
	if threadTag {
		prefix.WriteString("[")
		prefix.WriteString(trcwire.ThreadName(r.ThreadID))
		prefix.WriteString("] ")
	}
	if timestamps {
		prefix.WriteString(trcview.FormatTimestamp(r.Timestamp))
		prefix.WriteString(" ")
	}

	depth := int(min(r.Level, maxPrintDepth))
	head := prefix.String() + strings.Repeat(indent, depth)

	lines := strings.Split(r.Message, "\n")
	buf.WriteString(head)
	buf.WriteString(lines[0])
	buf.WriteString("\n")

	if len(lines) > 1 {
		cont := strings.Repeat(" ", len(head)+len(indent))
		for _, line := range lines[1:] {
			buf.WriteString(cont)
			buf.WriteString(line)
			buf.WriteString("\n")
		}
	}
}
