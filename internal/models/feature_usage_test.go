package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func usageWith(period ResetPeriod, lastReset time.Time) *FeatureUsage {
	return &FeatureUsage{
		ResetPeriod:   period,
		LastResetDate: &lastReset,
		CreatedAt:     lastReset.AddDate(0, -1, 0),
	}
}

func TestShouldReset(t *testing.T) {
	base := time.Date(2025, 6, 15, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		period ResetPeriod
		last   time.Time
		now    time.Time
		want   bool
	}{
		{"never", ResetPeriodNever, base, base.AddDate(5, 0, 0), false},
		{"daily same day", ResetPeriodDaily, base, base.Add(10 * time.Hour), false},
		{"daily next day", ResetPeriodDaily, base, base.AddDate(0, 0, 1), true},
		{"monthly same month", ResetPeriodMonthly, base, base.AddDate(0, 0, 10), false},
		{"monthly next month", ResetPeriodMonthly, base, base.AddDate(0, 1, 0), true},
		{"monthly same month next year", ResetPeriodMonthly, base, base.AddDate(1, 0, 0), true},
		{"annual same year", ResetPeriodAnnual, base, base.AddDate(0, 5, 0), false},
		{"annual next year", ResetPeriodAnnual, base, base.AddDate(1, 0, 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			usage := usageWith(tt.period, tt.last)
			assert.Equal(t, tt.want, usage.ShouldReset(tt.now))
		})
	}
}

func TestShouldResetFallsBackToCreatedAt(t *testing.T) {
	created := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	usage := &FeatureUsage{ResetPeriod: ResetPeriodMonthly, CreatedAt: created}

	assert.False(t, usage.ShouldReset(created.AddDate(0, 0, 20)))
	assert.True(t, usage.ShouldReset(created.AddDate(0, 1, 0)))
}

func TestRemaining(t *testing.T) {
	limit := int64(100)

	unlimited := &FeatureUsage{CurrentUsage: 42}
	assert.Equal(t, UnlimitedUsage, unlimited.Remaining())

	partial := &FeatureUsage{CurrentUsage: 30, UsageLimit: &limit}
	assert.Equal(t, int64(70), partial.Remaining())

	exhausted := &FeatureUsage{CurrentUsage: 100, UsageLimit: &limit}
	assert.Equal(t, int64(0), exhausted.Remaining())
}

func TestUsagePercentage(t *testing.T) {
	limit := int64(200)

	unlimited := &FeatureUsage{CurrentUsage: 42}
	assert.Zero(t, unlimited.UsagePercentage())

	half := &FeatureUsage{CurrentUsage: 100, UsageLimit: &limit}
	assert.InDelta(t, 50.0, half.UsagePercentage(), 0.001)
}
