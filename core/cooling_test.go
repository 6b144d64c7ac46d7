package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

type failingConfigs struct{ err error }

func (f failingConfigs) GetCoolingConfig(context.Context, Rail) (*CoolingConfig, error) {
	return nil, f.err
}

func newCoolingFixture(t *testing.T, cfg *CoolingConfig, createdAgo time.Duration) (*CoolingGate, *MemoryStore, uuid.UUID, *time.Time) {
	t.Helper()
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	clock := &now
	store := NewMemoryStore()
	if cfg != nil {
		store.SetCoolingConfig(*cfg)
	}
	id := uuid.New()
	if err := store.SavePayee(context.Background(), Payee{
		ID:            id,
		Name:          "Jane Smith",
		SortCode:      "12-34-56",
		AccountNumber: "12345678",
		CreatedAt:     now.Add(-createdAgo),
	}); err != nil {
		t.Fatalf("save payee: %v", err)
	}
	gate := NewCoolingGate(store, store, func() time.Time { return *clock })
	return gate, store, id, clock
}

func TestCheckCoolingPeriodBlocksNewPayee(t *testing.T) {
	gate, _, id, _ := newCoolingFixture(t, &CoolingConfig{Rail: RailFPS, CoolingHours: 24, IsActive: true}, 10*time.Hour)

	res, err := gate.CheckCoolingPeriod(context.Background(), id, RailFPS)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Allowed {
		t.Fatalf("expected payee to be blocked")
	}
	if res.HoursRemaining != 14 {
		t.Fatalf("expected 14 hours remaining, got %d", res.HoursRemaining)
	}
	if !strings.Contains(res.Reason, "24-hour") || !strings.Contains(res.Reason, "14 hours") {
		t.Fatalf("unexpected reason %q", res.Reason)
	}
}

func TestCheckCoolingPeriodRoundsUpAndUsesSingular(t *testing.T) {
	gate, _, id, _ := newCoolingFixture(t, &CoolingConfig{Rail: RailFPS, CoolingHours: 2, IsActive: true}, 90*time.Minute)

	res, err := gate.CheckCoolingPeriod(context.Background(), id, RailFPS)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Allowed || res.HoursRemaining != 1 {
		t.Fatalf("expected 1 hour remaining, got %+v", res)
	}
	if !strings.Contains(res.Reason, "1 hour.") {
		t.Fatalf("expected singular wording, got %q", res.Reason)
	}
}

func TestCheckCoolingPeriodAllows(t *testing.T) {
	cases := []struct {
		name       string
		cfg        *CoolingConfig
		createdAgo time.Duration
	}{
		{"no config", nil, 0},
		{"inactive config", &CoolingConfig{Rail: RailFPS, CoolingHours: 24, IsActive: false}, 0},
		{"zero hours", &CoolingConfig{Rail: RailFPS, CoolingHours: 0, IsActive: true}, 0},
		{"window elapsed", &CoolingConfig{Rail: RailFPS, CoolingHours: 24, IsActive: true}, 24 * time.Hour},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gate, _, id, _ := newCoolingFixture(t, tc.cfg, tc.createdAgo)
			res, err := gate.CheckCoolingPeriod(context.Background(), id, RailFPS)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !res.Allowed {
				t.Fatalf("expected allowed, got %+v", res)
			}
		})
	}
}

func TestCheckCoolingPeriodUnknownPayee(t *testing.T) {
	gate, _, _, _ := newCoolingFixture(t, &CoolingConfig{Rail: RailFPS, CoolingHours: 24, IsActive: true}, 0)
	res, err := gate.CheckCoolingPeriod(context.Background(), uuid.New(), RailFPS)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Allowed || res.Reason != "Payee not found" {
		t.Fatalf("expected payee not found, got %+v", res)
	}
}

func TestCheckCoolingPeriodConfigError(t *testing.T) {
	store := NewMemoryStore()
	boom := errors.New("connection reset")
	gate := NewCoolingGate(store, failingConfigs{err: boom}, nil)
	if _, err := gate.CheckCoolingPeriod(context.Background(), uuid.New(), RailFPS); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestMarkPayeeFirstUsedLiftsCoolingForGood(t *testing.T) {
	gate, store, id, clock := newCoolingFixture(t, &CoolingConfig{Rail: RailFPS, CoolingHours: 24, IsActive: true}, time.Hour)
	priv := NewPrivilege("ops", ScopePayeeWrite)

	if err := gate.MarkPayeeFirstUsed(context.Background(), priv, id); err != nil {
		t.Fatalf("mark first used: %v", err)
	}
	first, _ := store.GetPayee(context.Background(), id)
	if first.FirstUsedAt == nil {
		t.Fatalf("expected first_used_at to be set")
	}
	stamped := *first.FirstUsedAt

	*clock = clock.Add(time.Hour)
	if err := gate.MarkPayeeFirstUsed(context.Background(), priv, id); err != nil {
		t.Fatalf("second mark: %v", err)
	}
	again, _ := store.GetPayee(context.Background(), id)
	if !again.FirstUsedAt.Equal(stamped) {
		t.Fatalf("first_used_at changed from %s to %s", stamped, again.FirstUsedAt)
	}

	res, err := gate.CheckCoolingPeriod(context.Background(), id, RailFPS)
	if err != nil || !res.Allowed {
		t.Fatalf("expected allowed after first use, got %+v, %v", res, err)
	}
}

func TestMarkPayeeFirstUsedNeedsPrivilege(t *testing.T) {
	gate, _, id, _ := newCoolingFixture(t, nil, 0)
	err := gate.MarkPayeeFirstUsed(context.Background(), NewPrivilege("ops"), id)
	if !errors.Is(err, ErrPrivilegeRequired) {
		t.Fatalf("expected ErrPrivilegeRequired, got %v", err)
	}
}
