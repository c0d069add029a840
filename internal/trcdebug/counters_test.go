package trcdebug_test

import (
	"testing"

	"github.com/peterbourgon/trcsock/internal/trcdebug"
)

func TestPoolCounters(t *testing.T) {
	t.Parallel()

	var pc trcdebug.PoolCounters
	if want, have := 0.0, pc.ReusePercent(); want != have {
		t.Errorf("empty: want %v, have %v", want, have)
	}

	pc.Get.Add(10)
	pc.Alloc.Add(2)
	pc.Put.Add(9)
	pc.Lost.Add(1)

	get, alloc, put, lost, reuse := pc.Values()
	if get != 10 || alloc != 2 || put != 9 || lost != 1 {
		t.Errorf("values: have get=%d alloc=%d put=%d lost=%d", get, alloc, put, lost)
	}
	if want, have := 80.0, reuse; want != have {
		t.Errorf("reuse: want %v, have %v", want, have)
	}
}
