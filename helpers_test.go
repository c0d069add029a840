package trcsock_test

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/peterbourgon/trcsock/trcwire"
)

func assertEqual[T any](t *testing.T, have, want T) {
	t.Helper()
	if !cmp.Equal(have, want) {
		t.Fatal(cmp.Diff(have, want))
	}
}

// recordSink collects sent records, decoding them from their wire form to
// make sure every record is well formed.
type recordSink struct {
	mtx sync.Mutex
	buf bytes.Buffer
}

func (s *recordSink) Send(p []byte) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.buf.Write(p)
}

func (s *recordSink) records(t *testing.T) []trcwire.Record {
	t.Helper()

	s.mtx.Lock()
	defer s.mtx.Unlock()

	var (
		records []trcwire.Record
		rd      = trcwire.NewReader(bytes.NewReader(s.buf.Bytes()))
	)
	for {
		r, err := rd.Read()
		if errors.Is(err, io.EOF) {
			return records
		}
		if err != nil {
			t.Fatalf("read record %d: %v", len(records), err)
		}
		records = append(records, r)
	}
}

func messages(records []trcwire.Record) []string {
	msgs := make([]string, len(records))
	for i, r := range records {
		msgs[i] = r.Message
	}
	return msgs
}

func levels(records []trcwire.Record) []uint64 {
	lvls := make([]uint64, len(records))
	for i, r := range records {
		lvls[i] = r.Level
	}
	return lvls
}
