package models

import (
	"time"

	"github.com/google/uuid"
)

type Plan struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       float64   `json:"price"`
	TrialDays   int       `json:"trial_days"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Feature struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Code        string    `json:"code"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PlanFeature declares a feature grant on a plan, optionally bounded by a
// usage limit with a reset period. Subscribing seeds a FeatureUsage row from
// each limited grant.
type PlanFeature struct {
	PlanID      uuid.UUID   `json:"plan_id"`
	FeatureCode string      `json:"feature_code"`
	UsageLimit  *int64      `json:"usage_limit,omitempty"`
	ResetPeriod ResetPeriod `json:"reset_period"`
}
