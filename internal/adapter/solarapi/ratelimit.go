package solarapi

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// limiter spaces out upstream dispatches to a minimum fixed interval. Callers
// are served in the order they arrive: each one reserves the next free slot
// under the lock, then sleeps until its slot comes up.
type limiter struct {
	clock    clockwork.Clock
	interval time.Duration

	mu   sync.Mutex
	next time.Time
}

func newLimiter(clock clockwork.Clock, interval time.Duration) *limiter {
	return &limiter{clock: clock, interval: interval}
}

// wait blocks until this caller's slot and returns how long it was queued.
func (l *limiter) wait(ctx context.Context) (time.Duration, error) {
	if l.interval <= 0 {
		return 0, nil
	}

	l.mu.Lock()
	now := l.clock.Now()
	slot := l.next
	if slot.Before(now) {
		slot = now
	}
	l.next = slot.Add(l.interval)
	l.mu.Unlock()

	d := slot.Sub(now)
	if d <= 0 {
		return 0, nil
	}
	select {
	case <-ctx.Done():
		return d, ctx.Err()
	case <-l.clock.After(d):
		return d, nil
	}
}
