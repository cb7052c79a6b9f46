package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ops-management-api/internal/apperr"
	"github.com/ops-management-api/internal/pipeline"
	"github.com/ops-management-api/internal/repository"
)

// GetUsageQuery lists the tenant's feature counters with their limits.
type GetUsageQuery struct {
	TenantID *uuid.UUID `json:"tenant_id,omitempty"`
}

func (GetUsageQuery) Name() string        { return "GetUsageQuery" }
func (GetUsageQuery) Kind() pipeline.Kind { return pipeline.KindQuery }
func (GetUsageQuery) AuthSpec() pipeline.AuthSpec {
	return pipeline.AuthSpec{RequireAuth: true}
}

// FeatureUsageView is the API shape of one counter.
type FeatureUsageView struct {
	FeatureCode     string     `json:"feature_code"`
	CurrentUsage    int64      `json:"current_usage"`
	UsageLimit      *int64     `json:"usage_limit,omitempty"`
	Remaining       int64      `json:"remaining"`
	UsagePercentage float64    `json:"usage_percentage"`
	ResetPeriod     string     `json:"reset_period"`
	LastResetDate   *time.Time `json:"last_reset_date,omitempty"`
}

// EntitlementService fronts the usage counters. Consumption always goes
// through the repository's conditional update so concurrent requests cannot
// overshoot a limit.
type EntitlementService struct {
	logger *zap.Logger
}

func NewEntitlementService(logger *zap.Logger) *EntitlementService {
	return &EntitlementService{logger: logger}
}

func (s *EntitlementService) RegisterHandlers(exec *pipeline.Executor) {
	exec.Register("GetUsageQuery", func(ctx context.Context, sc *pipeline.Scope, req pipeline.Request) (any, error) {
		return s.GetUsage(ctx, sc, req.(GetUsageQuery))
	})
}

func (s *EntitlementService) GetUsage(ctx context.Context, sc *pipeline.Scope, q GetUsageQuery) ([]FeatureUsageView, error) {
	tenantID, err := tenantFor(sc, q.TenantID)
	if err != nil {
		return nil, err
	}

	usage := repository.NewFeatureUsageRepository(sc.DB())
	records, err := usage.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	views := make([]FeatureUsageView, 0, len(records))
	for _, rec := range records {
		views = append(views, FeatureUsageView{
			FeatureCode:     rec.FeatureCode,
			CurrentUsage:    rec.CurrentUsage,
			UsageLimit:      rec.UsageLimit,
			Remaining:       rec.Remaining(),
			UsagePercentage: rec.UsagePercentage(),
			ResetPeriod:     string(rec.ResetPeriod),
			LastResetDate:   rec.LastResetDate,
		})
	}
	return views, nil
}

// Consume spends amount units of a feature inside the caller's transaction
// and returns the new counter value. A tenant with no counter for the feature
// is not entitled to it at all.
func (s *EntitlementService) Consume(ctx context.Context, sc *pipeline.Scope, tenantID uuid.UUID, featureCode string, amount int64) (int64, error) {
	usage := repository.NewFeatureUsageRepository(sc.DB())
	current, err := usage.Increment(ctx, tenantID, featureCode, amount)
	if apperr.IsNotFound(err) {
		return 0, apperr.BusinessRule("feature_not_available", "plan does not include this feature").
			WithDetail("feature_code", featureCode)
	}
	if err != nil {
		return 0, err
	}
	return current, nil
}

// Release returns amount units, clamping is enforced by the repository.
func (s *EntitlementService) Release(ctx context.Context, sc *pipeline.Scope, tenantID uuid.UUID, featureCode string, amount int64) error {
	usage := repository.NewFeatureUsageRepository(sc.DB())
	_, err := usage.Decrement(ctx, tenantID, featureCode, amount)
	if apperr.IsNotFound(err) {
		// Counter was never seeded; nothing to release.
		s.logger.Warn("release on missing usage counter",
			zap.String("tenant_id", tenantID.String()),
			zap.String("feature_code", featureCode),
		)
		return nil
	}
	return err
}
