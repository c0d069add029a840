package trcsock

import (
	"sync"
	"testing"
	"time"
)

func TestResolveRacingClaim(t *testing.T) {
	t.Parallel()

	var (
		entered = make(chan struct{})
		release = make(chan struct{})
		once    sync.Once
	)
	create := func(id ThreadID) *Context {
		if id == 42 {
			once.Do(func() {
				close(entered)
				<-release
			})
		}
		return &Context{id: id}
	}
	r := newRegistry(4, create)

	firstc := make(chan *Context, 1)
	go func() { firstc <- r.resolve(42, true) }()
	<-entered

	// The first resolver holds the lock with slot 0 still empty, so the second
	// resolver sees an empty slot and waits on the lock.
	secondc := make(chan *Context, 1)
	go func() { secondc <- r.resolve(42, true) }()
	time.Sleep(50 * time.Millisecond)
	close(release)

	first, second := <-firstc, <-secondc
	if first != second {
		t.Errorf("concurrent resolves of the same ID returned different contexts")
	}
	if first == r.fallback {
		t.Errorf("got fallback context below capacity")
	}
	if threads := r.threads(); len(threads) != 1 || threads[0] != 42 {
		t.Errorf("threads: want [42], have %v", threads)
	}
	if claimed := r.claimed.Load(); claimed != 1 {
		t.Errorf("claimed: want 1, have %d", claimed)
	}
}

func TestResolveRacingClaimOtherID(t *testing.T) {
	t.Parallel()

	var (
		entered = make(chan struct{})
		release = make(chan struct{})
		once    sync.Once
	)
	create := func(id ThreadID) *Context {
		if id == 1 {
			once.Do(func() {
				close(entered)
				<-release
			})
		}
		return &Context{id: id}
	}
	r := newRegistry(4, create)

	firstc := make(chan *Context, 1)
	go func() { firstc <- r.resolve(1, true) }()
	<-entered

	secondc := make(chan *Context, 1)
	go func() { secondc <- r.resolve(2, true) }()
	time.Sleep(50 * time.Millisecond)
	close(release)

	first, second := <-firstc, <-secondc
	if first.id != 1 || second.id != 2 {
		t.Errorf("want contexts for 1 and 2, have %d and %d", first.id, second.id)
	}
	if threads := r.threads(); len(threads) != 2 || threads[0] != 1 || threads[1] != 2 {
		t.Errorf("threads: want [1 2], have %v", threads)
	}
}
