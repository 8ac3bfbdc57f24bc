package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter spaces operations at a fixed average rate with optional jitter.
// It is safe for concurrent use; callers are admitted in the order they
// reserve a slot.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	jitter   float64 // 0.0 to 1.0
	next     time.Time
}

// NewLimiter creates a limiter admitting rps operations per second. Jitter
// moves each slot by up to +/- jitter*interval. If rps is <= 0 the limiter
// never blocks.
func NewLimiter(rps float64, jitter float64) *Limiter {
	if jitter < 0 {
		jitter = 0
	} else if jitter > 1 {
		jitter = 1
	}
	l := &Limiter{jitter: jitter}
	if rps > 0 {
		l.interval = time.Duration(float64(time.Second) / rps)
	}
	return l
}

// reserve claims the next slot and returns how long the caller must wait.
func (l *Limiter) reserve(now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot := l.next
	if slot.Before(now) {
		slot = now
	}
	step := l.interval
	if l.jitter > 0 {
		step += time.Duration(float64(l.interval) * l.jitter * (rand.Float64()*2 - 1))
	}
	l.next = slot.Add(step)
	return slot.Sub(now)
}

// Wait blocks until the caller's slot arrives or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.interval <= 0 {
		return ctx.Err()
	}

	d := l.reserve(time.Now())
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Interval is the average spacing between slots; zero when unlimited.
func (l *Limiter) Interval() time.Duration {
	if l == nil {
		return 0
	}
	return l.interval
}
