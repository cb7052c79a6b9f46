package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ops-management-api/internal/apperr"
)

// GracePeriod is the window after suspension during which a tenant keeps
// access pending resolution.
const GracePeriod = 7 * 24 * time.Hour

// Subscription is the per-tenant billing aggregate. At most one subscription
// per tenant is in trial or active at a time; all mutations go through the
// transition methods below, which enforce the state machine.
type Subscription struct {
	ID                 uuid.UUID          `json:"id"`
	TenantID           uuid.UUID          `json:"tenant_id"`
	PlanID             uuid.UUID          `json:"plan_id"`
	BillingCycle       BillingCycle       `json:"billing_cycle"`
	Status             SubscriptionStatus `json:"status"`
	StartDate          time.Time          `json:"start_date"`
	EndDate            time.Time          `json:"end_date"`
	TrialEndDate       *time.Time         `json:"trial_end_date,omitempty"`
	NextBillingDate    *time.Time         `json:"next_billing_date,omitempty"`
	CancellationDate   *time.Time         `json:"cancellation_date,omitempty"`
	CancellationReason string             `json:"cancellation_reason,omitempty"`
	GracePeriodEndDate *time.Time         `json:"grace_period_end_date,omitempty"`
	AutoRenew          bool               `json:"auto_renew"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// NewTrialSubscription starts a subscription in trial for the given number of days.
func NewTrialSubscription(tenantID, planID uuid.UUID, cycle BillingCycle, trialDays int, now time.Time) *Subscription {
	trialEnd := now.AddDate(0, 0, trialDays)
	return &Subscription{
		ID:           uuid.New(),
		TenantID:     tenantID,
		PlanID:       planID,
		BillingCycle: cycle,
		Status:       SubscriptionStatusTrial,
		StartDate:    now,
		EndDate:      trialEnd,
		TrialEndDate: &trialEnd,
		AutoRenew:    true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewActiveSubscription starts a subscription immediately, for tenants created
// with an upfront payment.
func NewActiveSubscription(tenantID, planID uuid.UUID, cycle BillingCycle, now time.Time) *Subscription {
	end := now.AddDate(0, cycle.Months(), 0)
	return &Subscription{
		ID:              uuid.New(),
		TenantID:        tenantID,
		PlanID:          planID,
		BillingCycle:    cycle,
		Status:          SubscriptionStatusActive,
		StartDate:       now,
		EndDate:         end,
		NextBillingDate: &end,
		AutoRenew:       true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (s *Subscription) guardNotTerminal(transition string) error {
	if s.Status.IsTerminal() {
		return apperr.BusinessRule("subscription_terminal",
			"subscription is "+string(s.Status)+" and cannot "+transition).
			WithDetail("status", string(s.Status))
	}
	return nil
}

// Activate converts a trial into a paid subscription after a successful payment.
func (s *Subscription) Activate(now time.Time) error {
	if s.Status != SubscriptionStatusTrial {
		return apperr.BusinessRule("subscription_not_trial",
			"only a trial subscription can be activated").
			WithDetail("status", string(s.Status))
	}
	end := now.AddDate(0, s.BillingCycle.Months(), 0)
	s.Status = SubscriptionStatusActive
	s.StartDate = now
	s.EndDate = end
	s.NextBillingDate = &end
	s.UpdatedAt = now
	return nil
}

// Renew advances the billing period after a successful payment. Renewing a
// suspended subscription clears the grace period and restores active status.
func (s *Subscription) Renew(now time.Time) error {
	if s.Status != SubscriptionStatusActive && s.Status != SubscriptionStatusSuspended {
		return apperr.BusinessRule("subscription_not_renewable",
			"subscription must be active or suspended to renew").
			WithDetail("status", string(s.Status))
	}
	end := s.EndDate.AddDate(0, s.BillingCycle.Months(), 0)
	if s.EndDate.Before(now) {
		end = now.AddDate(0, s.BillingCycle.Months(), 0)
	}
	s.Status = SubscriptionStatusActive
	s.EndDate = end
	s.NextBillingDate = &end
	s.GracePeriodEndDate = nil
	s.UpdatedAt = now
	return nil
}

// Suspend puts an active subscription into the grace window. A reason is
// mandatory for the audit trail.
func (s *Subscription) Suspend(reason string, now time.Time) error {
	if err := s.guardNotTerminal("be suspended"); err != nil {
		return err
	}
	if reason == "" {
		return apperr.BusinessRule("suspend_reason_required", "a suspension reason is required")
	}
	if s.Status != SubscriptionStatusActive {
		return apperr.BusinessRule("subscription_not_active",
			"only an active subscription can be suspended").
			WithDetail("status", string(s.Status))
	}
	graceEnd := now.Add(GracePeriod)
	s.Status = SubscriptionStatusSuspended
	s.GracePeriodEndDate = &graceEnd
	s.UpdatedAt = now
	return nil
}

// Expire moves a suspended subscription into the terminal expired state. It
// is illegal while the grace period is still running.
func (s *Subscription) Expire(now time.Time) error {
	if err := s.guardNotTerminal("expire"); err != nil {
		return err
	}
	if s.Status != SubscriptionStatusSuspended {
		return apperr.BusinessRule("subscription_not_suspended",
			"only a suspended subscription can expire").
			WithDetail("status", string(s.Status))
	}
	if s.GracePeriodEndDate != nil && now.Before(*s.GracePeriodEndDate) {
		return apperr.BusinessRule("grace_period_active",
			"subscription is still within its grace period").
			WithDetail("grace_period_end", s.GracePeriodEndDate)
	}
	s.Status = SubscriptionStatusExpired
	s.UpdatedAt = now
	return nil
}

// Cancel terminates the subscription and turns off auto-renew.
func (s *Subscription) Cancel(reason string, now time.Time) error {
	if err := s.guardNotTerminal("be cancelled"); err != nil {
		return err
	}
	if reason == "" {
		return apperr.BusinessRule("cancel_reason_required", "a cancellation reason is required")
	}
	if s.Status != SubscriptionStatusActive && s.Status != SubscriptionStatusSuspended {
		return apperr.BusinessRule("subscription_not_cancellable",
			"subscription must be active or suspended to cancel").
			WithDetail("status", string(s.Status))
	}
	s.Status = SubscriptionStatusCancelled
	s.CancellationDate = &now
	s.CancellationReason = reason
	s.AutoRenew = false
	s.UpdatedAt = now
	return nil
}

// ChangePlan switches plans without touching the status. Legal only while active.
func (s *Subscription) ChangePlan(planID uuid.UUID, now time.Time) error {
	if s.Status != SubscriptionStatusActive {
		return apperr.BusinessRule("subscription_not_active",
			"plan can only change on an active subscription").
			WithDetail("status", string(s.Status))
	}
	s.PlanID = planID
	s.UpdatedAt = now
	return nil
}

// CanAccess reports whether the tenant may transact: trial and active always
// may, suspended only while still inside the grace window.
func (s *Subscription) CanAccess(now time.Time) bool {
	switch s.Status {
	case SubscriptionStatusTrial, SubscriptionStatusActive:
		return true
	case SubscriptionStatusSuspended:
		return s.GracePeriodEndDate != nil && now.Before(*s.GracePeriodEndDate)
	default:
		return false
	}
}

// DaysRemaining returns the days until grace end while suspended, otherwise
// until the period end, floored at zero.
func (s *Subscription) DaysRemaining(now time.Time) int {
	deadline := s.EndDate
	if s.Status == SubscriptionStatusSuspended && s.GracePeriodEndDate != nil {
		deadline = *s.GracePeriodEndDate
	}
	days := int(deadline.Sub(now).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
