package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/tunaaoguzhann/payrail/core"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("load .env", "error", err)
	}
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, audit, err := build(ctx, cfg, logger)
	if err != nil {
		logger.Error("init service", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           srv.routes(cfg.JWTSecret, cfg.RequestRateLimit, cfg.RequestRateWindow),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", httpServer.Addr, "redis", cfg.RedisAddr != "", "postgres", cfg.DatabaseURL != "")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	audit.Wait()
}

type stores struct {
	payees       core.PayeeStore
	configs      core.CoolingConfigStore
	transactions core.TransactionStore
	accessLog    core.AccessLogSink
	tokens       core.TokenStore
}

func buildStores(ctx context.Context, cfg config, logger *slog.Logger) (stores, error) {
	if cfg.DatabaseURL == "" {
		logger.Info("using in-memory stores")
		mem := core.NewMemoryStore()
		mem.SetCoolingConfig(core.CoolingConfig{Rail: core.RailFPS, CoolingHours: 24, IsActive: true})
		mem.SetCoolingConfig(core.CoolingConfig{Rail: core.RailCHAPS, CoolingHours: 24, IsActive: true})
		return stores{
			payees:       mem,
			configs:      mem,
			transactions: mem,
			accessLog:    core.NewMemoryAccessLogSink(),
		}, nil
	}

	db, err := core.OpenPostgres(ctx, cfg.DatabaseURL, 5)
	if err != nil {
		return stores{}, err
	}
	if err := core.RunMigrations(ctx, db); err != nil {
		return stores{}, err
	}
	logger.Info("using postgres stores")
	pg := core.NewPostgresStore(db)
	st := stores{
		payees:       pg,
		configs:      pg,
		transactions: pg,
		accessLog:    pg,
	}
	if cfg.RedisAddr == "" {
		st.tokens = pg
	}
	return st, nil
}

func build(ctx context.Context, cfg config, logger *slog.Logger) (*server, *core.AccessLog, error) {
	st, err := buildStores(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	var registry core.PayeeRegistry
	if cfg.RegistryURL != "" {
		registry, err = core.NewHTTPRegistry(core.HTTPRegistryConfig{
			BaseURL: cfg.RegistryURL,
			Secret:  cfg.RegistrySecret,
			Timeout: cfg.RegistryTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
	} else {
		logger.Warn("no payee registry configured; name checks will report unavailable")
	}

	audit := core.NewAccessLog(core.AccessLogConfig{Sink: st.accessLog, Logger: logger})

	var tokenizer *core.Tokenizer
	if st.tokens != nil {
		var limiter core.RateLimiter
		if cfg.TokenizeRateLimit > 0 {
			limiter = core.NewMemoryRateLimiter()
		}
		tokenizer, err = core.NewTokenizer(core.TokenizerConfig{
			Store:       st.tokens,
			AccessLog:   audit,
			Logger:      logger,
			RateLimiter: limiter,
			RateLimit:   cfg.TokenizeRateLimit,
			RateWindow:  cfg.TokenizeRateWindow,
		})
	} else {
		tokenizer, err = core.NewTokenizerWithOptions(core.TokenizerOptions{
			RedisAddr:      cfg.RedisAddr,
			RedisKeyPrefix: cfg.RedisKeyPrefix,
			RateLimit:      cfg.TokenizeRateLimit,
			RateWindow:     cfg.TokenizeRateWindow,
			AccessLog:      audit,
			Logger:         logger,
		})
	}
	if err != nil {
		return nil, nil, err
	}

	loc, err := time.LoadLocation(cfg.RailTimezone)
	if err != nil {
		return nil, nil, err
	}
	cooling := core.NewCoolingGate(st.payees, st.configs, nil)
	cop := core.NewCoPChecker(registry, logger)
	payments, err := core.NewPaymentService(core.PaymentServiceConfig{
		Payees:       st.payees,
		Transactions: st.transactions,
		CoP:          cop,
		Cooling:      cooling,
		Location:     loc,
		Logger:       logger,
	})
	if err != nil {
		return nil, nil, err
	}

	return &server{
		payments:  payments,
		cop:       cop,
		tokenizer: tokenizer,
		location:  loc,
		logger:    logger,
		now:       time.Now,
	}, audit, nil
}
