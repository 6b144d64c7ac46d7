package core

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type flakySink struct {
	err   error
	calls atomic.Int32
	block chan struct{}
}

func (f *flakySink) Append(context.Context, Privilege, AccessLogEntry) error {
	if f.block != nil {
		<-f.block
	}
	f.calls.Add(1)
	return f.err
}

func TestAccessLogSwallowsSinkFailures(t *testing.T) {
	errs := make(chan error, 1)
	sink := &flakySink{err: errors.New("insert failed")}
	log := NewAccessLog(AccessLogConfig{Sink: sink, Errors: errs})

	for i := 0; i < 3; i++ {
		log.Record(context.Background(), NewPrivilege("ops", ScopePCIAudit), AccessLogEntry{AccessType: AccessView})
	}
	log.Wait()

	if got := log.Failures(); got != 3 {
		t.Fatalf("expected 3 failures, got %d", got)
	}
	select {
	case err := <-errs:
		if err.Error() != "insert failed" {
			t.Fatalf("unexpected error %v", err)
		}
	default:
		t.Fatalf("expected a failure on the error channel")
	}
}

func TestAccessLogDoesNotBlockCaller(t *testing.T) {
	sink := &flakySink{block: make(chan struct{})}
	log := NewAccessLog(AccessLogConfig{Sink: sink})

	done := make(chan struct{})
	go func() {
		log.Record(context.Background(), NewPrivilege("ops", ScopePCIAudit), AccessLogEntry{AccessType: AccessView})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Record blocked on the sink")
	}
	close(sink.block)
	log.Wait()
	if sink.calls.Load() != 1 {
		t.Fatalf("expected the write to complete after unblocking")
	}
}

func TestAccessLogOutlivesCancelledContext(t *testing.T) {
	sink := NewMemoryAccessLogSink()
	log := NewAccessLog(AccessLogConfig{Sink: sink})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	log.Record(ctx, NewPrivilege("ops", ScopePCIAudit), AccessLogEntry{CardID: "card-1", AccessType: AccessView, Reason: "support call"})
	log.Wait()

	entries := sink.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.ActorID != "ops" || e.Reason != "support call" || e.CreatedAt.IsZero() {
		t.Fatalf("entry not filled in: %+v", e)
	}
}

func TestMemorySinkRequiresAuditScope(t *testing.T) {
	sink := NewMemoryAccessLogSink()
	log := NewAccessLog(AccessLogConfig{Sink: sink})
	log.Record(context.Background(), NewPrivilege("user-1", ScopeCardTokens), AccessLogEntry{AccessType: AccessView})
	log.Wait()
	if len(sink.Entries()) != 0 || log.Failures() != 1 {
		t.Fatalf("expected the write to be refused and counted")
	}
}

func TestNilAccessLogIsNoop(t *testing.T) {
	var log *AccessLog
	log.Record(context.Background(), Privilege{}, AccessLogEntry{})
	log.Wait()
	if log.Failures() != 0 {
		t.Fatalf("nil log should report no failures")
	}
}

func TestPrivilege(t *testing.T) {
	p := NewPrivilege("ops", ScopePCIAudit)
	if !p.Allows(ScopePCIAudit) || p.Allows(ScopeCardTokens) {
		t.Fatalf("unexpected scopes on %+v", p)
	}
	if NewPrivilege("", ScopePCIAudit).Allows(ScopePCIAudit) {
		t.Fatalf("a privilege without an actor must not allow anything")
	}
}
