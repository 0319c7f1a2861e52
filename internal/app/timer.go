package app

import (
	"context"
	"time"
)

// runCountdown calls tick once per interval until tick returns false or ctx is done.
// Wake-ups follow a fixed schedule (start + k*interval) measured on the monotonic
// clock, so a slow tick does not push later ticks back.
func runCountdown(ctx context.Context, interval time.Duration, tick func() bool) {
	next := time.Now().Add(interval)
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if ctx.Err() != nil || !tick() {
			return
		}
		next = next.Add(interval)
		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}
