package models

// SubscriptionStatus enumerates the subscription state machine states.
type SubscriptionStatus string

const (
	SubscriptionStatusTrial     SubscriptionStatus = "trial"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusSuspended SubscriptionStatus = "suspended"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// IsTerminal reports whether no further transitions are legal from s.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusCancelled || s == SubscriptionStatusExpired
}

// BillingCycle enumerates the supported billing periods.
type BillingCycle string

const (
	BillingCycleMonthly    BillingCycle = "monthly"
	BillingCycleQuarterly  BillingCycle = "quarterly"
	BillingCycleSemiannual BillingCycle = "semiannual"
	BillingCycleAnnual     BillingCycle = "annual"
)

// Months returns the cycle length; defaults to monthly for unknown values.
func (b BillingCycle) Months() int {
	switch b {
	case BillingCycleQuarterly:
		return 3
	case BillingCycleSemiannual:
		return 6
	case BillingCycleAnnual:
		return 12
	default:
		return 1
	}
}

// ResetPeriod controls when a feature usage counter rolls back to zero.
type ResetPeriod string

const (
	ResetPeriodDaily   ResetPeriod = "daily"
	ResetPeriodMonthly ResetPeriod = "monthly"
	ResetPeriodAnnual  ResetPeriod = "annual"
	ResetPeriodNever   ResetPeriod = "never"
)

// TenantStatus enumerates tenant lifecycle states.
type TenantStatus string

const (
	TenantStatusProvisioning TenantStatus = "provisioning"
	TenantStatusActive       TenantStatus = "active"
	TenantStatusSuspended    TenantStatus = "suspended"
)

// InspectionStatus enumerates inspection workflow states.
type InspectionStatus string

const (
	InspectionStatusDraft     InspectionStatus = "draft"
	InspectionStatusScheduled InspectionStatus = "scheduled"
	InspectionStatusCompleted InspectionStatus = "completed"
)
