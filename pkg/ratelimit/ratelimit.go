package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Limiter spaces operations at a fixed rate with optional jitter. Each Wait
// reserves the next free slot, so concurrent callers queue fairly. It is safe
// for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	jitter   float64
	next     time.Time
	now      func() time.Time
}

// NewLimiter creates a limiter allowing rps operations per second. jitter in
// [0, 1] delays each slot by up to jitter*interval. rps <= 0 disables limiting.
func NewLimiter(rps float64, jitter float64) *Limiter {
	l := &Limiter{now: time.Now}
	if rps <= 0 {
		return l
	}
	l.interval = time.Duration(float64(time.Second) / rps)
	l.jitter = min(max(jitter, 0), 1)
	return l
}

// Interval returns the spacing between slots, zero when unlimited.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Wait blocks until the caller's slot arrives or ctx is done. A cancelled
// caller still consumes its slot.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.interval == 0 {
		return ctx.Err()
	}

	delay := l.reserve()
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (l *Limiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	slot := l.next
	if slot.Before(now) {
		slot = now
	}
	l.next = slot.Add(l.interval)

	if l.jitter > 0 {
		slot = slot.Add(time.Duration(rand.Float64() * l.jitter * float64(l.interval)))
	}
	return slot.Sub(now)
}

// Stop is kept for callers that tear limiters down; the limiter holds no
// background resources.
func (l *Limiter) Stop() {}
