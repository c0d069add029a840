// Package trcutil has formatting helpers for console output.
package trcutil

import (
	"fmt"
	"strings"
	"time"
)

// TruncateDuration truncates the duration to a precision which depends on its
// magnitude. A duration over 1s is truncated at 100ms, over 1m at 1s, and so
// on.
func TruncateDuration(d time.Duration) time.Duration {
	switch {
	case d >= 24*time.Hour:
		return d.Truncate(time.Hour)
	case d >= time.Hour:
		return d.Truncate(time.Minute)
	case d >= time.Minute:
		return d.Truncate(time.Second)
	case d >= time.Second:
		return d.Truncate(100 * time.Millisecond)
	case d >= time.Millisecond:
		return d.Truncate(100 * time.Microsecond)
	default:
		return d.Truncate(time.Microsecond)
	}
}

// HumanizeDuration truncates the duration and renders it without trailing
// zero units, e.g. "1h2m" rather than "1h2m0s".
func HumanizeDuration(d time.Duration) string {
	dd := TruncateDuration(d)
	ds := dd.String()

	if dd >= time.Minute && strings.HasSuffix(ds, "m0s") {
		ds = strings.TrimSuffix(ds, "0s")
	}
	if dd >= time.Hour && strings.HasSuffix(ds, "h0m") {
		ds = strings.TrimSuffix(ds, "0m")
	}

	return ds
}

// HumanizeBytes renders n, a number of bytes, with KB for 1024 bytes and MB
// for 1048576 bytes. Larger units aren't used.
func HumanizeBytes[T interface {
	~int | ~uint | ~int64 | ~uint64
}](n T) string {
	var (
		kib = float64(1024)
		mib = float64(1024 * kib)
		fn  = float64(n)
	)
	switch {
	case fn < 1*kib:
		return fmt.Sprintf("%.0fB", fn)
	case fn < 100*kib:
		return fmt.Sprintf("%.1fKB", fn/kib)
	case fn < 1*mib:
		return fmt.Sprintf("%.0fKB", fn/kib)
	case fn < 100*mib:
		return fmt.Sprintf("%.1fMB", fn/mib)
	default:
		return fmt.Sprintf("%.0fMB", fn/mib)
	}
}
