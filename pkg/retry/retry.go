package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy is a bounded exponential backoff schedule.
type Policy struct {
	// MaxAttempts counts the first try. Values below 1 mean a single attempt.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter spreads each delay by +/- Jitter*delay (0.0 to 1.0).
	Jitter float64
}

// Default returns the policy used when none is configured: 3 attempts,
// 1s, 2s between them.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    8 * time.Second,
		Jitter:      0.2,
	}
}

// Delay returns the wait before attempt n (n starts at 1 for the first retry).
func (p Policy) Delay(n int) time.Duration {
	if n < 1 || p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay << uint(n-1)
	if d <= 0 || (p.MaxDelay > 0 && d > p.MaxDelay) {
		d = p.MaxDelay
	}
	if p.Jitter > 0 {
		j := p.Jitter
		if j > 1 {
			j = 1
		}
		d += time.Duration(float64(d) * j * (rand.Float64()*2 - 1))
	}
	return d
}

// Do runs fn until it succeeds, returns an error for which retryable is false,
// or the attempts run out. before is consulted ahead of every attempt and can
// veto it by returning an error, which Do returns unchanged. The last error
// from fn is returned otherwise.
func (p Policy) Do(ctx context.Context, retryable func(error) bool, before func(attempt int) error, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			t := time.NewTimer(p.Delay(attempt - 1))
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		if before != nil {
			if verr := before(attempt); verr != nil {
				return verr
			}
		}
		err = fn(ctx)
		if err == nil || !retryable(err) {
			return err
		}
	}
	return err
}
