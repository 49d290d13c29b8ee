package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_NoBlockWhenZeroRPS(t *testing.T) {
	limiter := NewLimiter(0, 0.5)

	start := time.Now()
	for range 5 {
		if err := limiter.Wait(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Errorf("limiter with 0 RPS should not block")
	}
	if limiter.Interval() != 0 {
		t.Errorf("expected zero interval, got %v", limiter.Interval())
	}
}

func TestLimiter_Wait(t *testing.T) {
	limiter := NewLimiter(10, 0) // 100ms interval
	defer limiter.Stop()
	ctx := context.Background()

	// The first slot is immediate.
	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) > 30*time.Millisecond {
		t.Errorf("first wait should not block, took %v", time.Since(start))
	}

	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("expected second wait to be spaced ~100ms, got %v", elapsed)
	}
}

func TestLimiter_ReserveSpacing(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewLimiter(4, 0) // 250ms interval
	limiter.now = func() time.Time { return now }

	want := []time.Duration{0, 250 * time.Millisecond, 500 * time.Millisecond}
	for i, w := range want {
		if got := limiter.reserve(); got != w {
			t.Errorf("reservation %d: expected %v, got %v", i, w, got)
		}
	}

	// After idling past the booked slots, the next slot is immediate again.
	now = now.Add(time.Second)
	if got := limiter.reserve(); got != 0 {
		t.Errorf("expected immediate slot after idle, got %v", got)
	}
}

func TestLimiter_JitterBounds(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewLimiter(10, 1.5) // jitter clamped to 1
	limiter.now = func() time.Time { return now }

	for range 20 {
		now = now.Add(time.Second)
		d := limiter.reserve()
		if d < 0 || d > 100*time.Millisecond {
			t.Fatalf("jittered delay %v outside [0, 100ms]", d)
		}
	}
}

func TestLimiter_ContextCancel(t *testing.T) {
	limiter := NewLimiter(1, 0)
	_ = limiter.Wait(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx); err == nil {
		t.Fatal("expected context error")
	}
}
