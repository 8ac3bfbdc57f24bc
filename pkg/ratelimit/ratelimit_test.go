package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLimiter_NoBlockWhenZeroRPS(t *testing.T) {
	limiter := NewLimiter(0, 0.5)

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := limiter.Wait(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if time.Since(start) > 10*time.Millisecond {
		t.Errorf("limiter with 0 RPS should not block")
	}
}

func TestLimiter_NilIsUnlimited(t *testing.T) {
	var limiter *Limiter
	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if limiter.Interval() != 0 {
		t.Errorf("expected zero interval")
	}
}

func TestLimiter_Wait(t *testing.T) {
	limiter := NewLimiter(10, 0) // 100ms interval
	ctx := context.Background()

	// First slot is immediate.
	start := time.Now()
	_ = limiter.Wait(ctx)
	if time.Since(start) > 20*time.Millisecond {
		t.Errorf("first wait should be immediate, took %v", time.Since(start))
	}

	start = time.Now()
	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	duration := time.Since(start)
	if duration < 50*time.Millisecond || duration > 150*time.Millisecond {
		t.Errorf("expected wait around 100ms, took %v", duration)
	}
}

func TestLimiter_ConcurrentCallersAreSpaced(t *testing.T) {
	limiter := NewLimiter(20, 0) // 50ms interval
	ctx := context.Background()

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = limiter.Wait(ctx)
		}()
	}
	wg.Wait()

	// Four slots: 0, 50, 100, 150ms.
	if d := time.Since(start); d < 120*time.Millisecond {
		t.Errorf("expected callers to be spaced out, all admitted in %v", d)
	}
}

func TestLimiter_ContextCancellation(t *testing.T) {
	limiter := NewLimiter(1, 0) // 1 second interval
	_ = limiter.Wait(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := limiter.Wait(ctx); err == nil {
		t.Fatalf("expected context canceled error")
	}
}

func TestLimiter_Jitter(t *testing.T) {
	limiter := NewLimiter(10, 0.5) // 100ms +/- 50ms
	ctx := context.Background()

	_ = limiter.Wait(ctx)

	start := time.Now()
	_ = limiter.Wait(ctx)
	duration := time.Since(start)

	// Allow some slack for goroutine scheduling.
	if duration < 40*time.Millisecond || duration > 250*time.Millisecond {
		t.Errorf("expected jittered wait roughly between 50ms and 150ms, took %v", duration)
	}
}
