package core

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRateKeyPrefix = "card-token-rate:"

type RedisRateLimiter struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisRateLimiter(client *redis.Client, keyPrefix string) *RedisRateLimiter {
	if keyPrefix == "" {
		keyPrefix = defaultRateKeyPrefix
	}
	return &RedisRateLimiter{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (r *RedisRateLimiter) key(userID string) string {
	return fmt.Sprintf("%s%s", r.keyPrefix, userID)
}

// The window starts at the first issue and is not extended by later ones.
var issueScript = redis.NewScript(`
local count = tonumber(redis.call("GET", KEYS[1]) or "0")
if count >= tonumber(ARGV[1]) then
	return 0
end
count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 1
`)

func (r *RedisRateLimiter) CheckAndIncrement(ctx context.Context, userID string, limit int, window time.Duration) error {
	ok, err := issueScript.Run(ctx, r.client, []string{r.key(userID)}, limit, window.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if ok == 0 {
		return ErrRateLimitExceeded
	}
	return nil
}
