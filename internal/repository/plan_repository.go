package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ops-management-api/internal/apperr"
	"github.com/ops-management-api/internal/database"
	"github.com/ops-management-api/internal/models"
)

type PlanRepository struct {
	db database.Querier
}

func NewPlanRepository(db database.Querier) *PlanRepository {
	return &PlanRepository{db: db}
}

// GetAll returns the plan catalog.
func (r *PlanRepository) GetAll(ctx context.Context) ([]models.Plan, error) {
	query := `
		SELECT id, name, description, price, trial_days, created_at, updated_at
		FROM plans
		ORDER BY name ASC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	var plans []models.Plan
	for rows.Next() {
		var plan models.Plan
		if err := rows.Scan(
			&plan.ID,
			&plan.Name,
			&plan.Description,
			&plan.Price,
			&plan.TrialDays,
			&plan.CreatedAt,
			&plan.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plans: %w", err)
	}
	return plans, nil
}

// GetByID returns one plan.
func (r *PlanRepository) GetByID(ctx context.Context, planID uuid.UUID) (*models.Plan, error) {
	query := `
		SELECT id, name, description, price, trial_days, created_at, updated_at
		FROM plans
		WHERE id = $1
	`

	var plan models.Plan
	err := r.db.QueryRow(ctx, query, planID).Scan(
		&plan.ID,
		&plan.Name,
		&plan.Description,
		&plan.Price,
		&plan.TrialDays,
		&plan.CreatedAt,
		&plan.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("plan")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return &plan, nil
}

// Create inserts a plan.
func (r *PlanRepository) Create(ctx context.Context, name, description string, price float64, trialDays int) (*models.Plan, error) {
	query := `
		INSERT INTO plans (name, description, price, trial_days)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, description, price, trial_days, created_at, updated_at
	`

	var plan models.Plan
	err := r.db.QueryRow(ctx, query, name, description, price, trialDays).Scan(
		&plan.ID,
		&plan.Name,
		&plan.Description,
		&plan.Price,
		&plan.TrialDays,
		&plan.CreatedAt,
		&plan.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create plan: %w", err)
	}
	return &plan, nil
}

// GetPlanFeatures returns the feature grants of a plan, including usage
// limits and reset periods. These seed the tenant's usage counters on
// subscribe.
func (r *PlanRepository) GetPlanFeatures(ctx context.Context, planID uuid.UUID) ([]models.PlanFeature, error) {
	query := `
		SELECT pf.plan_id, pf.feature_code, pf.usage_limit, pf.reset_period
		FROM plan_features pf
		WHERE pf.plan_id = $1
		ORDER BY pf.feature_code ASC
	`

	rows, err := r.db.Query(ctx, query, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to query plan features: %w", err)
	}
	defer rows.Close()

	var grants []models.PlanFeature
	for rows.Next() {
		var grant models.PlanFeature
		if err := rows.Scan(
			&grant.PlanID,
			&grant.FeatureCode,
			&grant.UsageLimit,
			&grant.ResetPeriod,
		); err != nil {
			return nil, fmt.Errorf("failed to scan plan feature: %w", err)
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plan features: %w", err)
	}
	return grants, nil
}

// SetPlanFeatures replaces a plan's feature grants. Callers run this inside
// the pipeline's command transaction; the repository does not open its own.
func (r *PlanRepository) SetPlanFeatures(ctx context.Context, planID uuid.UUID, grants []models.PlanFeature) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM plan_features WHERE plan_id = $1`, planID); err != nil {
		return fmt.Errorf("failed to delete old plan features: %w", err)
	}

	insertQuery := `
		INSERT INTO plan_features (plan_id, feature_code, usage_limit, reset_period)
		VALUES ($1, $2, $3, $4)
	`
	for _, grant := range grants {
		if _, err := r.db.Exec(ctx, insertQuery, planID, grant.FeatureCode, grant.UsageLimit, grant.ResetPeriod); err != nil {
			return fmt.Errorf("failed to insert plan feature: %w", err)
		}
	}
	return nil
}
