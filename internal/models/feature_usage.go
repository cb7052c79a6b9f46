package models

import (
	"time"

	"github.com/google/uuid"
)

// UnlimitedUsage is the Remaining sentinel when no limit is configured.
const UnlimitedUsage int64 = -1

// FeatureUsage is the per-tenant, per-feature entitlement counter. One row
// exists per (tenant, feature code); the increment/decrement arithmetic runs
// as a single conditional UPDATE in the repository so the limit invariant
// holds under concurrency.
type FeatureUsage struct {
	ID            uuid.UUID   `json:"id"`
	TenantID      uuid.UUID   `json:"tenant_id"`
	FeatureCode   string      `json:"feature_code"`
	CurrentUsage  int64       `json:"current_usage"`
	UsageLimit    *int64      `json:"usage_limit,omitempty"`
	ResetPeriod   ResetPeriod `json:"reset_period"`
	LastResetDate *time.Time  `json:"last_reset_date,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// ShouldReset reports whether the counter is due for its periodic reset. It
// is a pure function of the reset period and the last reset date; the worker
// sweep owns the actual reset.
func (f *FeatureUsage) ShouldReset(now time.Time) bool {
	if f.ResetPeriod == ResetPeriodNever {
		return false
	}
	last := f.CreatedAt
	if f.LastResetDate != nil {
		last = *f.LastResetDate
	}
	switch f.ResetPeriod {
	case ResetPeriodDaily:
		ly, lm, ld := last.Date()
		ny, nm, nd := now.Date()
		return ly != ny || lm != nm || ld != nd
	case ResetPeriodMonthly:
		return last.Year() != now.Year() || last.Month() != now.Month()
	case ResetPeriodAnnual:
		return last.Year() != now.Year()
	default:
		return false
	}
}

// Remaining returns how much quota is left, or UnlimitedUsage when no limit
// is configured.
func (f *FeatureUsage) Remaining() int64 {
	if f.UsageLimit == nil {
		return UnlimitedUsage
	}
	remaining := *f.UsageLimit - f.CurrentUsage
	if remaining < 0 {
		return 0
	}
	return remaining
}

// UsagePercentage returns consumption as a percentage of the limit; zero when
// unlimited.
func (f *FeatureUsage) UsagePercentage() float64 {
	if f.UsageLimit == nil || *f.UsageLimit == 0 {
		return 0
	}
	return float64(f.CurrentUsage) / float64(*f.UsageLimit) * 100
}
