package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ops-management-api/internal/apperr"
	"github.com/ops-management-api/internal/database"
	"github.com/ops-management-api/internal/models"
)

type FeatureUsageRepository struct {
	db database.Querier
}

func NewFeatureUsageRepository(db database.Querier) *FeatureUsageRepository {
	return &FeatureUsageRepository{db: db}
}

const featureUsageColumns = `id, tenant_id, feature_code, current_usage, usage_limit, reset_period, last_reset_date, created_at, updated_at`

func scanFeatureUsage(row pgx.Row) (*models.FeatureUsage, error) {
	usage := &models.FeatureUsage{}
	err := row.Scan(
		&usage.ID,
		&usage.TenantID,
		&usage.FeatureCode,
		&usage.CurrentUsage,
		&usage.UsageLimit,
		&usage.ResetPeriod,
		&usage.LastResetDate,
		&usage.CreatedAt,
		&usage.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return usage, nil
}

// Get returns the usage row for one (tenant, feature) pair.
func (r *FeatureUsageRepository) Get(ctx context.Context, tenantID uuid.UUID, featureCode string) (*models.FeatureUsage, error) {
	query := `
		SELECT ` + featureUsageColumns + `
		FROM feature_usage
		WHERE tenant_id = $1 AND feature_code = $2
	`

	usage, err := scanFeatureUsage(r.db.QueryRow(ctx, query, tenantID, featureCode))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("feature usage")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feature usage: %w", err)
	}
	return usage, nil
}

// ListByTenant returns every usage counter for a tenant.
func (r *FeatureUsageRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.FeatureUsage, error) {
	query := `
		SELECT ` + featureUsageColumns + `
		FROM feature_usage
		WHERE tenant_id = $1
		ORDER BY feature_code ASC
	`

	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query feature usage: %w", err)
	}
	defer rows.Close()

	var usages []models.FeatureUsage
	for rows.Next() {
		usage, err := scanFeatureUsage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feature usage: %w", err)
		}
		usages = append(usages, *usage)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feature usage: %w", err)
	}
	return usages, nil
}

// Increment atomically adds n to the counter. The limit check lives in the
// WHERE clause so two racing increments serialize on the row and the one that
// would overshoot matches nothing; no partial increment is ever visible.
func (r *FeatureUsageRepository) Increment(ctx context.Context, tenantID uuid.UUID, featureCode string, n int64) (int64, error) {
	if n <= 0 {
		return 0, apperr.BusinessRule("invalid_increment", "increment must be positive")
	}

	query := `
		UPDATE feature_usage
		SET current_usage = current_usage + $3, updated_at = NOW()
		WHERE tenant_id = $1 AND feature_code = $2
		  AND (usage_limit IS NULL OR current_usage + $3 <= usage_limit)
		RETURNING current_usage
	`

	var current int64
	err := r.db.QueryRow(ctx, query, tenantID, featureCode, n).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the row is missing or the limit blocked the update. The
		// re-read runs after the failed UPDATE, so the current_usage detail
		// below is advisory: a concurrent decrement may have moved the
		// counter since the rejection.
		usage, getErr := r.Get(ctx, tenantID, featureCode)
		if getErr != nil {
			return 0, getErr
		}
		e := apperr.BusinessRule("usage_limit_exceeded", "feature usage limit exceeded").
			WithDetail("feature_code", featureCode).
			WithDetail("current_usage", usage.CurrentUsage).
			WithDetail("requested", n)
		if usage.UsageLimit != nil {
			e.WithDetail("usage_limit", *usage.UsageLimit)
		}
		return 0, e
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment feature usage: %w", err)
	}
	return current, nil
}

// Decrement atomically subtracts n, rejecting any result below zero.
func (r *FeatureUsageRepository) Decrement(ctx context.Context, tenantID uuid.UUID, featureCode string, n int64) (int64, error) {
	if n <= 0 {
		return 0, apperr.BusinessRule("invalid_decrement", "decrement must be positive")
	}

	query := `
		UPDATE feature_usage
		SET current_usage = current_usage - $3, updated_at = NOW()
		WHERE tenant_id = $1 AND feature_code = $2
		  AND current_usage - $3 >= 0
		RETURNING current_usage
	`

	var current int64
	err := r.db.QueryRow(ctx, query, tenantID, featureCode, n).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		usage, getErr := r.Get(ctx, tenantID, featureCode)
		if getErr != nil {
			return 0, getErr
		}
		return 0, apperr.BusinessRule("usage_below_zero", "usage cannot go below zero").
			WithDetail("feature_code", featureCode).
			WithDetail("current_usage", usage.CurrentUsage).
			WithDetail("requested", n)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to decrement feature usage: %w", err)
	}
	return current, nil
}

// Seed creates the counter for a plan-declared feature limit. Subscribing
// twice to the same feature keeps the existing counter.
func (r *FeatureUsageRepository) Seed(ctx context.Context, tenantID uuid.UUID, grant models.PlanFeature) error {
	query := `
		INSERT INTO feature_usage (id, tenant_id, feature_code, current_usage, usage_limit, reset_period)
		VALUES ($1, $2, $3, 0, $4, $5)
		ON CONFLICT (tenant_id, feature_code) DO UPDATE
		SET usage_limit = EXCLUDED.usage_limit, reset_period = EXCLUDED.reset_period, updated_at = NOW()
	`

	if _, err := r.db.Exec(ctx, query, uuid.New(), tenantID, grant.FeatureCode, grant.UsageLimit, grant.ResetPeriod); err != nil {
		return fmt.Errorf("failed to seed feature usage: %w", err)
	}
	return nil
}

// ListResettable returns every counter with a periodic reset; the worker
// applies ShouldReset in memory and resets the due ones.
func (r *FeatureUsageRepository) ListResettable(ctx context.Context) ([]models.FeatureUsage, error) {
	query := `
		SELECT ` + featureUsageColumns + `
		FROM feature_usage
		WHERE reset_period <> 'never'
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query resettable usage: %w", err)
	}
	defer rows.Close()

	var usages []models.FeatureUsage
	for rows.Next() {
		usage, err := scanFeatureUsage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feature usage: %w", err)
		}
		usages = append(usages, *usage)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resettable usage: %w", err)
	}
	return usages, nil
}

// Reset zeroes a counter and stamps the reset time.
func (r *FeatureUsageRepository) Reset(ctx context.Context, tenantID uuid.UUID, featureCode string, now time.Time) error {
	query := `
		UPDATE feature_usage
		SET current_usage = 0, last_reset_date = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND feature_code = $2
	`

	tag, err := r.db.Exec(ctx, query, tenantID, featureCode, now)
	if err != nil {
		return fmt.Errorf("failed to reset feature usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("feature usage")
	}
	return nil
}
