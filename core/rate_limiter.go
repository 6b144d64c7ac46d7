package core

import (
	"context"
	"time"
)

// RateLimiter throttles token issuance per user within a fixed window.
type RateLimiter interface {
	CheckAndIncrement(ctx context.Context, userID string, limit int, window time.Duration) error
}
