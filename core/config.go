package core

import (
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenizerOptions builds a tokenizer backed by Redis when RedisAddr is set and
// by process memory otherwise.
type TokenizerOptions struct {
	RedisAddr      string
	RedisKeyPrefix string
	RateLimit      int
	RateWindow     time.Duration
	AccessLog      *AccessLog
	Logger         *slog.Logger
}

func NewTokenizerWithOptions(opts TokenizerOptions) (*Tokenizer, error) {
	var store TokenStore
	var rateLimiter RateLimiter

	if opts.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr: opts.RedisAddr,
		})
		keyPrefix := opts.RedisKeyPrefix
		if keyPrefix == "" {
			keyPrefix = defaultTokenKeyPrefix
		}
		store = NewRedisTokenStore(client, keyPrefix)
		if opts.RateLimit > 0 {
			rateLimiter = NewRedisRateLimiter(client, keyPrefix+"rate:")
		}
	} else {
		store = NewMemoryTokenStore()
		if opts.RateLimit > 0 {
			rateLimiter = NewMemoryRateLimiter()
		}
	}

	rateWindow := opts.RateWindow
	if rateWindow == 0 && opts.RateLimit > 0 {
		rateWindow = 1 * time.Hour
	}

	return NewTokenizer(TokenizerConfig{
		Store:       store,
		AccessLog:   opts.AccessLog,
		Logger:      opts.Logger,
		RateLimiter: rateLimiter,
		RateLimit:   opts.RateLimit,
		RateWindow:  rateWindow,
	})
}
