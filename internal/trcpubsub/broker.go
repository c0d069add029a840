// Package trcpubsub fans values out to subscribers without ever blocking the
// publisher.
package trcpubsub

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrAlreadySubscribed is returned when a channel subscribes twice.
var ErrAlreadySubscribed = errors.New("already subscribed")

// ErrNotSubscribed is returned for stats of an unknown channel.
var ErrNotSubscribed = errors.New("not subscribed")

// Broker publishes values to every subscriber whose allow func accepts them.
// Subscribers which can't keep up lose values; publishers never wait.
type Broker[T any] struct {
	mtx         sync.Mutex
	subscribers map[chan<- T]*subscriber[T]
	active      atomic.Bool
}

type subscriber[T any] struct {
	allow func(T) bool
	ch    chan<- T
	stats Stats
}

// NewBroker returns a broker with no subscribers.
func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{
		subscribers: map[chan<- T]*subscriber[T]{},
	}
}

// Publish val to every interested subscriber, without blocking.
func (b *Broker[T]) Publish(val T) {
	if !b.active.Load() { // fast path
		return
	}

	b.mtx.Lock()
	defer b.mtx.Unlock()

	for _, sub := range b.subscribers {
		if sub.allow != nil && !sub.allow(val) {
			sub.stats.Skips++
			continue
		}
		select {
		case sub.ch <- val:
			sub.stats.Sends++
		default:
			sub.stats.Drops++
		}
	}
}

// Register ch to receive published values accepted by allow, or all values if
// allow is nil, until it's unregistered. The subscription is active when
// Register returns.
func (b *Broker[T]) Register(allow func(T) bool, ch chan<- T) error {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	if _, ok := b.subscribers[ch]; ok {
		return ErrAlreadySubscribed
	}

	b.subscribers[ch] = &subscriber[T]{allow: allow, ch: ch}
	b.active.Store(true)
	return nil
}

// Unregister ch, and return the final stats for its subscription.
func (b *Broker[T]) Unregister(ch chan<- T) (Stats, error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	sub, ok := b.subscribers[ch]
	if !ok {
		return Stats{}, ErrNotSubscribed
	}

	delete(b.subscribers, ch)
	b.active.Store(len(b.subscribers) > 0)

	return sub.stats, nil
}

// Stats returns the current stats for the subscription of ch.
func (b *Broker[T]) Stats(ch chan<- T) (Stats, error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	sub, ok := b.subscribers[ch]
	if !ok {
		return Stats{}, ErrNotSubscribed
	}

	return sub.stats, nil
}

// Subscribers returns the number of active subscriptions.
func (b *Broker[T]) Subscribers() int {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return len(b.subscribers)
}

// Stats count what happened to published values, for one subscriber.
type Stats struct {
	Skips uint64 `json:"skips"`
	Sends uint64 `json:"sends"`
	Drops uint64 `json:"drops"`
}

// String implements fmt.Stringer.
func (s Stats) String() string {
	return fmt.Sprintf("skips=%d sends=%d drops=%d", s.Skips, s.Sends, s.Drops)
}
