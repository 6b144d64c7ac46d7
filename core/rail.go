package core

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	chapsOnlyThreshold  = decimal.NewFromInt(1_000_000)
	highValueThreshold  = decimal.NewFromInt(250_000)
	chapsFee            = decimal.NewFromInt(25)
	chapsCutoffHour     = 14
	chapsCutoffMinute   = 30
	defaultRailLocation = LoadRailLocation("Europe/London")
)

type RailOptions struct {
	IsInternal bool `json:"is_internal"`
	IsUrgent   bool `json:"is_urgent"`
	IsBulk     bool `json:"is_bulk"`
}

// RailSelection is recomputed on every submission; the CHAPS cutoff depends on
// the wall clock so results must not be cached.
type RailSelection struct {
	Rail          Rail            `json:"rail"`
	DisplayName   string          `json:"display_name"`
	EstimatedTime string          `json:"estimated_time"`
	Fee           decimal.Decimal `json:"fee"`
	Reason        string          `json:"reason"`
}

// LoadRailLocation falls back to the process zone when tzdata is missing.
func LoadRailLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Local
	}
	return loc
}

// SelectPaymentRail evaluates the CHAPS cutoff against UK wall-clock time.
func SelectPaymentRail(amount decimal.Decimal, opts RailOptions) RailSelection {
	return SelectPaymentRailAt(amount, opts, time.Now().In(defaultRailLocation))
}

// WithinCHAPSCutoff reports whether now is a weekday before 14:30 in now's location.
func WithinCHAPSCutoff(now time.Time) bool {
	switch now.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	h, m := now.Hour(), now.Minute()
	return h < chapsCutoffHour || (h == chapsCutoffHour && m < chapsCutoffMinute)
}

// SelectPaymentRailAt applies the rules in order; the first match wins.
// Urgent and high-value routing is evaluated before the bulk rule and must
// stay that way: a bulk flag never downgrades an urgent payment to BACS while
// CHAPS or FPS can still take it.
func SelectPaymentRailAt(amount decimal.Decimal, opts RailOptions, now time.Time) RailSelection {
	if opts.IsInternal {
		return RailSelection{
			Rail:          RailInternal,
			DisplayName:   "Internal Transfer",
			EstimatedTime: "Instant",
			Fee:           decimal.Zero,
			Reason:        "Transfer between your own accounts",
		}
	}

	if amount.GreaterThan(chapsOnlyThreshold) {
		return RailSelection{
			Rail:          RailCHAPS,
			DisplayName:   "CHAPS",
			EstimatedTime: "Same day (by 16:30)",
			Fee:           chapsFee,
			Reason:        "Amounts over £1,000,000 must be sent via CHAPS",
		}
	}

	if opts.IsUrgent || amount.GreaterThan(highValueThreshold) {
		if WithinCHAPSCutoff(now) {
			reason := "High-value payment routed via CHAPS for same-day settlement"
			if opts.IsUrgent {
				reason = "Urgent payment sent via CHAPS for same-day settlement"
			}
			return RailSelection{
				Rail:          RailCHAPS,
				DisplayName:   "CHAPS",
				EstimatedTime: "Same day (by 16:30)",
				Fee:           chapsFee,
				Reason:        reason,
			}
		}
		// Amounts over the CHAPS-only threshold never get here. If they did,
		// they would fall through to the bulk and default rules below.
		if !amount.GreaterThan(chapsOnlyThreshold) {
			return RailSelection{
				Rail:          RailFPS,
				DisplayName:   "Faster Payments",
				EstimatedTime: "Usually within 2 hours",
				Fee:           decimal.Zero,
				Reason:        "CHAPS cutoff (14:30) has passed. Sending via Faster Payments instead",
			}
		}
	}

	if opts.IsBulk {
		return RailSelection{
			Rail:          RailBACS,
			DisplayName:   "BACS",
			EstimatedTime: "3 working days",
			Fee:           decimal.Zero,
			Reason:        "Bulk payment processed via BACS",
		}
	}

	return RailSelection{
		Rail:          RailFPS,
		DisplayName:   "Faster Payments",
		EstimatedTime: "Usually within 2 hours",
		Fee:           decimal.Zero,
		Reason:        "Standard payment via Faster Payments",
	}
}
