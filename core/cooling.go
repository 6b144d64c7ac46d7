package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

type CoolingResult struct {
	Allowed        bool       `json:"allowed"`
	Reason         string     `json:"reason,omitempty"`
	HoursRemaining int        `json:"hours_remaining,omitempty"`
	CoolingEndsAt  *time.Time `json:"cooling_ends_at,omitempty"`
}

// CoolingGate holds back the first payment to a newly added payee until the
// rail's cooling window has passed.
type CoolingGate struct {
	payees  PayeeStore
	configs CoolingConfigStore
	now     func() time.Time
}

func NewCoolingGate(payees PayeeStore, configs CoolingConfigStore, now func() time.Time) *CoolingGate {
	if now == nil {
		now = time.Now
	}
	return &CoolingGate{payees: payees, configs: configs, now: now}
}

func (g *CoolingGate) CheckCoolingPeriod(ctx context.Context, payeeID uuid.UUID, rail Rail) (CoolingResult, error) {
	cfg, err := g.configs.GetCoolingConfig(ctx, rail)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return CoolingResult{}, fmt.Errorf("load cooling config: %w", err)
	}
	if cfg == nil || !cfg.IsActive || cfg.CoolingHours <= 0 {
		return CoolingResult{Allowed: true}, nil
	}

	payee, err := g.payees.GetPayee(ctx, payeeID)
	if errors.Is(err, ErrNotFound) {
		return CoolingResult{Allowed: false, Reason: "Payee not found"}, nil
	}
	if err != nil {
		return CoolingResult{}, fmt.Errorf("load payee: %w", err)
	}
	if payee.FirstUsedAt != nil {
		return CoolingResult{Allowed: true}, nil
	}

	ends := payee.CreatedAt.Add(time.Duration(cfg.CoolingHours) * time.Hour)
	now := g.now()
	if !now.Before(ends) {
		return CoolingResult{Allowed: true}, nil
	}

	remaining := int(math.Ceil(ends.Sub(now).Hours()))
	unit := "hours"
	if remaining == 1 {
		unit = "hour"
	}
	return CoolingResult{
		Allowed:        false,
		HoursRemaining: remaining,
		CoolingEndsAt:  &ends,
		Reason: fmt.Sprintf("New payees have a %d-hour cooling period for your security. You can send your first payment in %d %s.",
			cfg.CoolingHours, remaining, unit),
	}, nil
}

// MarkPayeeFirstUsed records the first successful payment to a payee. Call it
// once settlement is confirmed, never before. Repeat calls leave the original
// timestamp in place.
func (g *CoolingGate) MarkPayeeFirstUsed(ctx context.Context, priv Privilege, payeeID uuid.UUID) error {
	if err := priv.require(ScopePayeeWrite); err != nil {
		return err
	}
	if err := g.payees.MarkFirstUsed(ctx, payeeID, g.now()); err != nil {
		return fmt.Errorf("mark payee first used: %w", err)
	}
	return nil
}
