package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type config struct {
	Port           int
	JWTSecret      string
	RedisAddr      string
	RedisKeyPrefix string
	DatabaseURL    string
	RailTimezone   string

	RegistryURL     string
	RegistrySecret  string
	RegistryTimeout time.Duration

	TokenizeRateLimit  int
	TokenizeRateWindow time.Duration

	RequestRateLimit  int
	RequestRateWindow time.Duration

	Logging loggingConfig
}

type loggingConfig struct {
	Level         string
	Format        string // text|json
	IncludeCaller bool
}

func loadConfig() (config, error) {
	cfg := config{
		JWTSecret:      envOr("JWT_SECRET", "dev-jwt-secret-change-me"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisKeyPrefix: envOr("REDIS_KEY_PREFIX", "card-token:"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RailTimezone:   envOr("RAIL_TIMEZONE", "Europe/London"),
		RegistryURL:    os.Getenv("COP_REGISTRY_URL"),
		RegistrySecret: os.Getenv("COP_REGISTRY_SECRET"),
		Logging: loggingConfig{
			Level:         envOr("LOG_LEVEL", "info"),
			Format:        envOr("LOG_FORMAT", "text"),
			IncludeCaller: envBool("LOG_INCLUDE_CALLER", false),
		},
	}

	var err error
	if cfg.Port, err = envInt("PORT", 8080); err != nil {
		return config{}, err
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return config{}, fmt.Errorf("port %d is out of range", cfg.Port)
	}
	if cfg.TokenizeRateLimit, err = envInt("TOKENIZE_RATE_LIMIT", 20); err != nil {
		return config{}, err
	}
	if cfg.RequestRateLimit, err = envInt("REQUEST_RATE_LIMIT", 120); err != nil {
		return config{}, err
	}
	if cfg.TokenizeRateWindow, err = envDuration("TOKENIZE_RATE_WINDOW", time.Hour); err != nil {
		return config{}, err
	}
	if cfg.RequestRateWindow, err = envDuration("REQUEST_RATE_WINDOW", time.Minute); err != nil {
		return config{}, err
	}
	if cfg.RegistryTimeout, err = envDuration("COP_REGISTRY_TIMEOUT", 5*time.Second); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	return n, nil
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func newLogger(cfg loggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.IncludeCaller,
	}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
