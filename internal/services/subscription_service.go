package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ops-management-api/internal/apperr"
	"github.com/ops-management-api/internal/models"
	"github.com/ops-management-api/internal/pipeline"
	"github.com/ops-management-api/internal/repository"
)

// SubscribeTenantCommand creates the tenant's subscription: a trial when the
// plan grants trial days and no payment accompanies the request, active
// otherwise.
type SubscribeTenantCommand struct {
	TenantID         *uuid.UUID          `json:"tenant_id,omitempty"`
	PlanID           uuid.UUID           `json:"plan_id"`
	BillingCycle     models.BillingCycle `json:"billing_cycle"`
	PaymentReference string              `json:"payment_reference,omitempty"`
}

func (SubscribeTenantCommand) Name() string        { return "SubscribeTenantCommand" }
func (SubscribeTenantCommand) Kind() pipeline.Kind { return pipeline.KindCommand }
func (SubscribeTenantCommand) AuthSpec() pipeline.AuthSpec {
	return pipeline.AuthSpec{RequireAuth: true, Roles: []string{"owner"}}
}

type ActivateSubscriptionCommand struct {
	SubscriptionID   uuid.UUID `json:"subscription_id"`
	PaymentReference string    `json:"payment_reference"`
}

func (ActivateSubscriptionCommand) Name() string        { return "ActivateSubscriptionCommand" }
func (ActivateSubscriptionCommand) Kind() pipeline.Kind { return pipeline.KindCommand }
func (ActivateSubscriptionCommand) AuthSpec() pipeline.AuthSpec {
	return pipeline.AuthSpec{RequireAuth: true, Roles: []string{"owner"}}
}
func (c ActivateSubscriptionCommand) EntityID() uuid.UUID { return c.SubscriptionID }

type RenewSubscriptionCommand struct {
	SubscriptionID   uuid.UUID `json:"subscription_id"`
	PaymentReference string    `json:"payment_reference"`
}

func (RenewSubscriptionCommand) Name() string        { return "RenewSubscriptionCommand" }
func (RenewSubscriptionCommand) Kind() pipeline.Kind { return pipeline.KindCommand }
func (RenewSubscriptionCommand) AuthSpec() pipeline.AuthSpec {
	return pipeline.AuthSpec{RequireAuth: true, Roles: []string{"owner"}}
}
func (c RenewSubscriptionCommand) EntityID() uuid.UUID { return c.SubscriptionID }

type SuspendSubscriptionCommand struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	Reason         string    `json:"reason"`
}

func (SuspendSubscriptionCommand) Name() string        { return "SuspendSubscriptionCommand" }
func (SuspendSubscriptionCommand) Kind() pipeline.Kind { return pipeline.KindCommand }
func (SuspendSubscriptionCommand) AuthSpec() pipeline.AuthSpec {
	return pipeline.AuthSpec{RequireAuth: true, Permissions: []string{"subscriptions.suspend"}}
}
func (c SuspendSubscriptionCommand) EntityID() uuid.UUID { return c.SubscriptionID }

type CancelSubscriptionCommand struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	Reason         string    `json:"reason"`
}

func (CancelSubscriptionCommand) Name() string        { return "CancelSubscriptionCommand" }
func (CancelSubscriptionCommand) Kind() pipeline.Kind { return pipeline.KindCommand }
func (CancelSubscriptionCommand) AuthSpec() pipeline.AuthSpec {
	return pipeline.AuthSpec{RequireAuth: true, Roles: []string{"owner"}}
}
func (c CancelSubscriptionCommand) EntityID() uuid.UUID { return c.SubscriptionID }

type ChangePlanCommand struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	PlanID         uuid.UUID `json:"plan_id"`
}

func (ChangePlanCommand) Name() string        { return "ChangePlanCommand" }
func (ChangePlanCommand) Kind() pipeline.Kind { return pipeline.KindCommand }
func (ChangePlanCommand) AuthSpec() pipeline.AuthSpec {
	return pipeline.AuthSpec{RequireAuth: true, Roles: []string{"owner"}}
}
func (c ChangePlanCommand) EntityID() uuid.UUID { return c.SubscriptionID }

// GetSubscriptionQuery returns the tenant's current subscription. Deliberately
// uncached: access gating reads must see transitions immediately.
type GetSubscriptionQuery struct {
	TenantID *uuid.UUID `json:"tenant_id,omitempty"`
}

func (GetSubscriptionQuery) Name() string        { return "GetSubscriptionQuery" }
func (GetSubscriptionQuery) Kind() pipeline.Kind { return pipeline.KindQuery }
func (GetSubscriptionQuery) AuthSpec() pipeline.AuthSpec {
	return pipeline.AuthSpec{RequireAuth: true}
}

// SubscriptionService owns the subscription lifecycle. Repositories are
// constructed per call on the request's bound session so every write joins
// the pipeline transaction.
type SubscriptionService struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewSubscriptionService(logger *zap.Logger) *SubscriptionService {
	return &SubscriptionService{logger: logger, now: time.Now}
}

// RegisterHandlers binds the subscription requests to the executor.
func (s *SubscriptionService) RegisterHandlers(exec *pipeline.Executor) {
	exec.Register("SubscribeTenantCommand", func(ctx context.Context, sc *pipeline.Scope, req pipeline.Request) (any, error) {
		return s.Subscribe(ctx, sc, req.(SubscribeTenantCommand))
	})
	exec.Register("ActivateSubscriptionCommand", func(ctx context.Context, sc *pipeline.Scope, req pipeline.Request) (any, error) {
		return s.Activate(ctx, sc, req.(ActivateSubscriptionCommand))
	})
	exec.Register("RenewSubscriptionCommand", func(ctx context.Context, sc *pipeline.Scope, req pipeline.Request) (any, error) {
		return s.Renew(ctx, sc, req.(RenewSubscriptionCommand))
	})
	exec.Register("SuspendSubscriptionCommand", func(ctx context.Context, sc *pipeline.Scope, req pipeline.Request) (any, error) {
		return s.Suspend(ctx, sc, req.(SuspendSubscriptionCommand))
	})
	exec.Register("CancelSubscriptionCommand", func(ctx context.Context, sc *pipeline.Scope, req pipeline.Request) (any, error) {
		return s.Cancel(ctx, sc, req.(CancelSubscriptionCommand))
	})
	exec.Register("ChangePlanCommand", func(ctx context.Context, sc *pipeline.Scope, req pipeline.Request) (any, error) {
		return s.ChangePlan(ctx, sc, req.(ChangePlanCommand))
	})
	exec.Register("GetSubscriptionQuery", func(ctx context.Context, sc *pipeline.Scope, req pipeline.Request) (any, error) {
		return s.GetCurrent(ctx, sc, req.(GetSubscriptionQuery))
	})
}

// tenantFor resolves the tenant a subscription request targets: the explicit
// override for super admins, the principal's tenant for everyone else.
func tenantFor(sc *pipeline.Scope, override *uuid.UUID) (uuid.UUID, error) {
	if override != nil {
		if !sc.Principal.IsSuperAdmin && (sc.Principal.TenantID == nil || *sc.Principal.TenantID != *override) {
			return uuid.Nil, apperr.Forbidden("cannot act on another tenant")
		}
		return *override, nil
	}
	if sc.Principal.TenantID == nil {
		return uuid.Nil, apperr.Forbidden("no tenant bound to principal")
	}
	return *sc.Principal.TenantID, nil
}

// Subscribe creates the subscription and seeds a usage counter for every
// limited feature the plan declares.
func (s *SubscriptionService) Subscribe(ctx context.Context, sc *pipeline.Scope, cmd SubscribeTenantCommand) (*models.Subscription, error) {
	tenantID, err := tenantFor(sc, cmd.TenantID)
	if err != nil {
		return nil, err
	}

	plans := repository.NewPlanRepository(sc.DB())
	plan, err := plans.GetByID(ctx, cmd.PlanID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var sub *models.Subscription
	if plan.TrialDays > 0 && cmd.PaymentReference == "" {
		sub = models.NewTrialSubscription(tenantID, plan.ID, cmd.BillingCycle, plan.TrialDays, now)
	} else {
		if cmd.PaymentReference == "" {
			return nil, apperr.BusinessRule("payment_required",
				"plan has no trial; a payment reference is required")
		}
		sub = models.NewActiveSubscription(tenantID, plan.ID, cmd.BillingCycle, now)
	}

	subs := repository.NewSubscriptionRepository(sc.DB())
	if err := subs.Create(ctx, sub); err != nil {
		return nil, err
	}

	grants, err := plans.GetPlanFeatures(ctx, plan.ID)
	if err != nil {
		return nil, err
	}
	usage := repository.NewFeatureUsageRepository(sc.DB())
	for _, grant := range grants {
		if err := usage.Seed(ctx, tenantID, grant); err != nil {
			return nil, err
		}
	}

	s.logger.Info("tenant subscribed",
		zap.String("tenant_id", tenantID.String()),
		zap.String("plan_id", plan.ID.String()),
		zap.String("status", string(sub.Status)),
	)
	return sub, nil
}

func (s *SubscriptionService) transition(ctx context.Context, sc *pipeline.Scope, id uuid.UUID, apply func(*models.Subscription) error) (*models.Subscription, error) {
	subs := repository.NewSubscriptionRepository(sc.DB())
	sub, err := subs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := apply(sub); err != nil {
		return nil, err
	}
	if err := subs.Update(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *SubscriptionService) Activate(ctx context.Context, sc *pipeline.Scope, cmd ActivateSubscriptionCommand) (*models.Subscription, error) {
	if cmd.PaymentReference == "" {
		return nil, apperr.BusinessRule("payment_required", "activation requires a successful payment")
	}
	return s.transition(ctx, sc, cmd.SubscriptionID, func(sub *models.Subscription) error {
		return sub.Activate(s.now())
	})
}

func (s *SubscriptionService) Renew(ctx context.Context, sc *pipeline.Scope, cmd RenewSubscriptionCommand) (*models.Subscription, error) {
	if cmd.PaymentReference == "" {
		return nil, apperr.BusinessRule("payment_required", "renewal requires a successful payment")
	}
	return s.transition(ctx, sc, cmd.SubscriptionID, func(sub *models.Subscription) error {
		return sub.Renew(s.now())
	})
}

func (s *SubscriptionService) Suspend(ctx context.Context, sc *pipeline.Scope, cmd SuspendSubscriptionCommand) (*models.Subscription, error) {
	return s.transition(ctx, sc, cmd.SubscriptionID, func(sub *models.Subscription) error {
		return sub.Suspend(cmd.Reason, s.now())
	})
}

func (s *SubscriptionService) Cancel(ctx context.Context, sc *pipeline.Scope, cmd CancelSubscriptionCommand) (*models.Subscription, error) {
	return s.transition(ctx, sc, cmd.SubscriptionID, func(sub *models.Subscription) error {
		return sub.Cancel(cmd.Reason, s.now())
	})
}

func (s *SubscriptionService) ChangePlan(ctx context.Context, sc *pipeline.Scope, cmd ChangePlanCommand) (*models.Subscription, error) {
	plans := repository.NewPlanRepository(sc.DB())
	plan, err := plans.GetByID(ctx, cmd.PlanID)
	if err != nil {
		return nil, err
	}
	sub, err := s.transition(ctx, sc, cmd.SubscriptionID, func(sub *models.Subscription) error {
		return sub.ChangePlan(plan.ID, s.now())
	})
	if err != nil {
		return nil, err
	}

	// The new plan's limits replace the old ones on existing counters.
	grants, err := plans.GetPlanFeatures(ctx, plan.ID)
	if err != nil {
		return nil, err
	}
	usage := repository.NewFeatureUsageRepository(sc.DB())
	for _, grant := range grants {
		if err := usage.Seed(ctx, sub.TenantID, grant); err != nil {
			return nil, err
		}
	}
	return sub, nil
}

func (s *SubscriptionService) GetCurrent(ctx context.Context, sc *pipeline.Scope, q GetSubscriptionQuery) (*models.Subscription, error) {
	tenantID, err := tenantFor(sc, q.TenantID)
	if err != nil {
		return nil, err
	}
	subs := repository.NewSubscriptionRepository(sc.DB())
	return subs.GetCurrentByTenant(ctx, tenantID)
}

// EnsureTenantActive is the access gate domain commands call before mutating
// tenant data: trial and active pass, suspended passes only inside the grace
// window. Super-admin requests run unscoped and skip the check.
func (s *SubscriptionService) EnsureTenantActive(ctx context.Context, sc *pipeline.Scope) error {
	tenantID, scoped := sc.Session.TenantID()
	if !scoped {
		return nil
	}
	subs := repository.NewSubscriptionRepository(sc.DB())
	sub, err := subs.GetCurrentByTenant(ctx, tenantID)
	if apperr.IsNotFound(err) {
		return apperr.BusinessRule("subscription_required", "tenant has no subscription")
	}
	if err != nil {
		return err
	}
	if !sub.CanAccess(s.now()) {
		return apperr.BusinessRule("subscription_inactive", "subscription does not permit access").
			WithDetail("status", string(sub.Status))
	}
	return nil
}
