package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ops-management-api/internal/models"
	"github.com/ops-management-api/internal/pipeline"
	"github.com/ops-management-api/internal/repository"
)

// GetPlansQuery lists the plan catalog. The catalog is global, so the cache
// entry is shared across tenants.
type GetPlansQuery struct{}

func (GetPlansQuery) Name() string                { return "GetPlansQuery" }
func (GetPlansQuery) Kind() pipeline.Kind         { return pipeline.KindQuery }
func (GetPlansQuery) AuthSpec() pipeline.AuthSpec { return pipeline.AuthSpec{RequireAuth: true} }
func (GetPlansQuery) CachePolicy() pipeline.CachePolicy {
	return pipeline.CachePolicy{KeyPrefix: "plans", TTL: 5 * time.Minute}
}

type GetPlanQuery struct {
	PlanID uuid.UUID `json:"plan_id"`
}

func (GetPlanQuery) Name() string                { return "GetPlanQuery" }
func (GetPlanQuery) Kind() pipeline.Kind         { return pipeline.KindQuery }
func (GetPlanQuery) AuthSpec() pipeline.AuthSpec { return pipeline.AuthSpec{RequireAuth: true} }

// CreatePlanCommand adds a plan to the catalog together with its feature
// grants. Operator-only.
type CreatePlanCommand struct {
	Title       string             `json:"name" binding:"required"`
	Description string             `json:"description"`
	Price       float64            `json:"price"`
	TrialDays   int                `json:"trial_days"`
	Features    []PlanFeatureInput `json:"features"`
}

type PlanFeatureInput struct {
	FeatureCode string             `json:"feature_code"`
	UsageLimit  *int64             `json:"usage_limit,omitempty"`
	ResetPeriod models.ResetPeriod `json:"reset_period"`
}

func (CreatePlanCommand) Name() string        { return "CreatePlanCommand" }
func (CreatePlanCommand) Kind() pipeline.Kind { return pipeline.KindCommand }
func (CreatePlanCommand) AuthSpec() pipeline.AuthSpec {
	return pipeline.AuthSpec{RequireAuth: true, Permissions: []string{"plans.manage"}}
}

type PlanService struct {
	logger *zap.Logger
	cache  CacheInvalidator
}

// CacheInvalidator is the slice of the cache the service needs to drop stale
// catalog entries after a write.
type CacheInvalidator interface {
	RemoveByPattern(ctx context.Context, prefix string) error
}

func NewPlanService(logger *zap.Logger, cache CacheInvalidator) *PlanService {
	return &PlanService{logger: logger, cache: cache}
}

func (s *PlanService) RegisterHandlers(exec *pipeline.Executor) {
	exec.Register("GetPlansQuery", func(ctx context.Context, sc *pipeline.Scope, req pipeline.Request) (any, error) {
		return s.GetAll(ctx, sc)
	})
	exec.Register("GetPlanQuery", func(ctx context.Context, sc *pipeline.Scope, req pipeline.Request) (any, error) {
		return s.Get(ctx, sc, req.(GetPlanQuery))
	})
	exec.Register("CreatePlanCommand", func(ctx context.Context, sc *pipeline.Scope, req pipeline.Request) (any, error) {
		return s.Create(ctx, sc, req.(CreatePlanCommand))
	})
}

func (s *PlanService) GetAll(ctx context.Context, sc *pipeline.Scope) ([]models.Plan, error) {
	plans := repository.NewPlanRepository(sc.DB())
	return plans.GetAll(ctx)
}

func (s *PlanService) Get(ctx context.Context, sc *pipeline.Scope, q GetPlanQuery) (*models.Plan, error) {
	plans := repository.NewPlanRepository(sc.DB())
	return plans.GetByID(ctx, q.PlanID)
}

func (s *PlanService) Create(ctx context.Context, sc *pipeline.Scope, cmd CreatePlanCommand) (*models.Plan, error) {
	plans := repository.NewPlanRepository(sc.DB())

	plan, err := plans.Create(ctx, cmd.Title, cmd.Description, cmd.Price, cmd.TrialDays)
	if err != nil {
		return nil, err
	}

	grants := make([]models.PlanFeature, 0, len(cmd.Features))
	for _, f := range cmd.Features {
		grants = append(grants, models.PlanFeature{
			PlanID:      plan.ID,
			FeatureCode: f.FeatureCode,
			UsageLimit:  f.UsageLimit,
			ResetPeriod: f.ResetPeriod,
		})
	}
	if err := plans.SetPlanFeatures(ctx, plan.ID, grants); err != nil {
		return nil, err
	}

	if err := s.cache.RemoveByPattern(ctx, "plans"); err != nil {
		s.logger.Warn("failed to invalidate plan cache", zap.Error(err))
	}

	s.logger.Info("plan created", zap.String("plan_id", plan.ID.String()), zap.String("name", plan.Name))
	return plan, nil
}
