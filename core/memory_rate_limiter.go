package core

import (
	"context"
	"sync"
	"time"
)

type MemoryRateLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	windows map[string]*issueWindow
}

type issueWindow struct {
	count int
	ends  time.Time
}

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{
		now:     time.Now,
		windows: make(map[string]*issueWindow),
	}
}

func (r *MemoryRateLimiter) CheckAndIncrement(_ context.Context, userID string, limit int, window time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	w, ok := r.windows[userID]
	if !ok || !now.Before(w.ends) {
		r.windows[userID] = &issueWindow{count: 1, ends: now.Add(window)}
		r.sweep(now)
		return nil
	}
	if w.count >= limit {
		return ErrRateLimitExceeded
	}
	w.count++
	return nil
}

// sweep drops closed windows so idle users do not accumulate.
func (r *MemoryRateLimiter) sweep(now time.Time) {
	for id, w := range r.windows {
		if !now.Before(w.ends) {
			delete(r.windows, id)
		}
	}
}
