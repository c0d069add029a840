// Package trcclock provides timestamps for trace records.
package trcclock

import (
	"errors"
	"sync"
	"time"
)

// Clock reads the current time. Implementations may fail, e.g. if the
// underlying time source is unavailable.
type Clock interface {
	Now() (time.Time, error)
}

// ErrBeforeEpoch is returned by System when the wall clock reads a time before
// the Unix epoch, which can't be represented in a record.
var ErrBeforeEpoch = errors.New("time before Unix epoch")

// System reads the wall clock. It isn't monotonic: the system time may be
// adjusted at any point.
type System struct{}

// Now implements Clock.
func (System) Now() (time.Time, error) {
	now := time.Now()
	if now.Unix() < 0 {
		return now, ErrBeforeEpoch
	}
	return now, nil
}

// Sentinel is the timestamp used when the clock can't be read.
const Sentinel uint64 = 0

// Stamp returns the current time from c as Unix seconds, or Sentinel if c
// returns an error or a time before the epoch.
func Stamp(c Clock) uint64 {
	if c == nil {
		return Sentinel
	}
	now, err := c.Now()
	if err != nil {
		return Sentinel
	}
	sec := now.Unix()
	if sec < 0 {
		return Sentinel
	}
	return uint64(sec)
}

// Fake is a Clock for tests. Its time stands still until Set or Advance.
type Fake struct {
	mtx sync.Mutex
	now time.Time
	err error
}

// NewFake returns a fake clock reading the given time.
func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

// Now implements Clock.
func (f *Fake) Now() (time.Time, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.now, f.err
}

// Set the current time.
func (f *Fake) Set(now time.Time) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.now = now
}

// Advance the current time by d.
func (f *Fake) Advance(d time.Duration) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.now = f.now.Add(d)
}

// Fail makes subsequent reads return err. A nil err restores normal reads.
func (f *Fake) Fail(err error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.err = err
}
