package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryRateLimiterWindows(t *testing.T) {
	c := newClock()
	r := NewMemoryRateLimiter()
	r.now = c.now
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := r.CheckAndIncrement(ctx, "user-1", 3, time.Minute); err != nil {
			t.Fatalf("issue #%d: %v", i+1, err)
		}
	}
	if err := r.CheckAndIncrement(ctx, "user-1", 3, time.Minute); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded, got %v", err)
	}
	if err := r.CheckAndIncrement(ctx, "user-2", 3, time.Minute); err != nil {
		t.Fatalf("limits must be per user: %v", err)
	}

	c.advance(time.Minute)
	if err := r.CheckAndIncrement(ctx, "user-1", 3, time.Minute); err != nil {
		t.Fatalf("expected a fresh window, got %v", err)
	}
	if _, ok := r.windows["user-2"]; ok {
		t.Fatalf("expected closed window for user-2 to be swept")
	}
}
