package core

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type AccessType string

const (
	AccessTokenize       AccessType = "tokenize"
	AccessTokenizeFailed AccessType = "tokenize_failed"
	AccessDetokenize     AccessType = "detokenize"
	AccessRevoke         AccessType = "revoke"
	AccessView           AccessType = "view"
)

// AccessLogEntry is one row of the PCI card-data audit trail.
type AccessLogEntry struct {
	ID         uuid.UUID  `json:"id"`
	ActorID    string     `json:"actor_id"`
	CardID     string     `json:"card_id,omitempty"`
	TokenID    *uuid.UUID `json:"token_id,omitempty"`
	AccessType AccessType `json:"access_type"`
	Reason     string     `json:"reason,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type AccessLogSink interface {
	Append(ctx context.Context, priv Privilege, entry AccessLogEntry) error
}

// AccessLog writes audit entries without ever failing the caller. Each entry
// is dispatched on its own goroutine once the caller's result is settled.
type AccessLog struct {
	sink     AccessLogSink
	logger   *slog.Logger
	now      func() time.Time
	errs     chan<- error
	wg       sync.WaitGroup
	failures atomic.Int64
}

type AccessLogConfig struct {
	Sink   AccessLogSink
	Logger *slog.Logger
	Now    func() time.Time
	// Errors, when set, receives write failures. Sends never block.
	Errors chan<- error
}

func NewAccessLog(cfg AccessLogConfig) *AccessLog {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	return &AccessLog{sink: cfg.Sink, logger: logger, now: nowFn, errs: cfg.Errors}
}

func (a *AccessLog) Record(ctx context.Context, priv Privilege, entry AccessLogEntry) {
	if a == nil || a.sink == nil {
		return
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.ActorID == "" {
		entry.ActorID = priv.Actor()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = a.now()
	}

	ctx = context.WithoutCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		err := a.sink.Append(ctx, priv, entry)
		if err == nil {
			return
		}
		a.failures.Add(1)
		a.logger.Warn("access log write failed",
			"access_type", entry.AccessType,
			"actor_id", entry.ActorID,
			"error", err,
		)
		if a.errs != nil {
			select {
			case a.errs <- err:
			default:
			}
		}
	}()
}

// Wait blocks until every dispatched write has returned.
func (a *AccessLog) Wait() {
	if a == nil {
		return
	}
	a.wg.Wait()
}

func (a *AccessLog) Failures() int64 {
	if a == nil {
		return 0
	}
	return a.failures.Load()
}

type MemoryAccessLogSink struct {
	mu      sync.RWMutex
	entries []AccessLogEntry
}

func NewMemoryAccessLogSink() *MemoryAccessLogSink {
	return &MemoryAccessLogSink{}
}

func (s *MemoryAccessLogSink) Append(_ context.Context, priv Privilege, entry AccessLogEntry) error {
	if err := priv.require(ScopePCIAudit); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *MemoryAccessLogSink) Entries() []AccessLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AccessLogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}
