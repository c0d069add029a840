package eztrcsock_test

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/peterbourgon/trcsock"
	"github.com/peterbourgon/trcsock/eztrcsock"
	"github.com/peterbourgon/trcsock/trcsink"
)

type syncBuffer struct {
	mtx sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.buf.String()
}

// The process-wide tracer can only be initialized once, so everything is in
// one test.
func TestInit(t *testing.T) {
	// Before Init, tracing is safe and goes nowhere.
	eztrcsock.Send("before")
	if eztrcsock.Current() == nil {
		t.Fatal("nil context before Init")
	}
	if n := eztrcsock.Stats().Threads; n != 0 {
		t.Errorf("discard tracer registered %d threads", n)
	}

	var first, second syncBuffer
	if !eztrcsock.Init(trcsock.Config{Sink: trcsink.NewWriter(&first)}) {
		t.Fatal("first Init wasn't installed")
	}
	if eztrcsock.Init(trcsock.Config{Sink: trcsink.NewWriter(&second)}) {
		t.Fatal("second Init was installed")
	}
	if eztrcsock.InitEndpoint("localhost:1", trcsink.ModeDial) {
		t.Fatal("InitEndpoint after Init was installed")
	}

	func() {
		defer eztrcsock.Scope("outer").End()
		eztrcsock.Sendf("inner %d", 1)
	}()
	eztrcsock.Send("after")

	out := first.String()
	for _, want := range []string{" 0 outer}}", " 1 inner 1}}", " 0 after}}"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q: missing %q", out, want)
		}
	}
	if strings.Contains(out, "before") {
		t.Errorf("output %q: contains record sent before Init", out)
	}
	if second.String() != "" {
		t.Errorf("second tracer received %q", second.String())
	}
	if n := eztrcsock.Stats().Sent; n != 3 {
		t.Errorf("sent: want 3, have %d", n)
	}
}
