// Package scheduler drives the two long-running loops of the signal engine:
// the clock-aligned scan loop that runs the detector over the asset x
// timeframe matrix, and the fixed-interval alert loop that runs the matcher.
// Both loops survive panics and errors in a single iteration.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"time"
)

// NextAligned returns the first instant strictly after now that sits on an
// interval boundary plus settle. Boundaries follow time.Truncate, so any
// interval that divides a day lands on wall-clock marks in UTC: with 15m
// they are :00, :15, :30 and :45.
func NextAligned(now time.Time, interval, settle time.Duration) time.Time {
	if interval <= 0 {
		return now.Add(settle)
	}
	mark := now.UTC().Truncate(interval)
	if !mark.Add(settle).After(now) {
		mark = mark.Add(interval)
	}
	return mark.Add(settle)
}

// ClampAlertInterval keeps the alert loop between 10s and 60s.
func ClampAlertInterval(d time.Duration) time.Duration {
	switch {
	case d < 10*time.Second:
		return 10 * time.Second
	case d > time.Minute:
		return time.Minute
	}
	return d
}

// guard runs fn and converts a panic into an error.
func guard(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[scheduler] %s panicked: %v\n%s", name, r, debug.Stack())
			err = fmt.Errorf("%s: panic: %v", name, r)
		}
	}()
	return fn()
}

// sleepCtx waits for d or until ctx is done. It reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
