package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ops-management-api/internal/apperr"
	"github.com/ops-management-api/internal/database"
	"github.com/ops-management-api/internal/models"
)

type SubscriptionRepository struct {
	db database.Querier
}

func NewSubscriptionRepository(db database.Querier) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `id, tenant_id, plan_id, billing_cycle, status, start_date, end_date,
		trial_end_date, next_billing_date, cancellation_date, cancellation_reason,
		grace_period_end_date, auto_renew, created_at, updated_at`

func scanSubscription(row pgx.Row) (*models.Subscription, error) {
	sub := &models.Subscription{}
	var reason *string
	err := row.Scan(
		&sub.ID,
		&sub.TenantID,
		&sub.PlanID,
		&sub.BillingCycle,
		&sub.Status,
		&sub.StartDate,
		&sub.EndDate,
		&sub.TrialEndDate,
		&sub.NextBillingDate,
		&sub.CancellationDate,
		&reason,
		&sub.GracePeriodEndDate,
		&sub.AutoRenew,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if reason != nil {
		sub.CancellationReason = *reason
	}
	return sub, nil
}

// Create inserts a new subscription. A partial unique index on
// (tenant_id) WHERE status IN ('trial','active') backs the one-live-
// subscription invariant; a violation surfaces as a business-rule error.
func (r *SubscriptionRepository) Create(ctx context.Context, sub *models.Subscription) error {
	query := `
		INSERT INTO subscriptions (id, tenant_id, plan_id, billing_cycle, status, start_date, end_date,
			trial_end_date, next_billing_date, auto_renew)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Exec(ctx, query,
		sub.ID,
		sub.TenantID,
		sub.PlanID,
		sub.BillingCycle,
		sub.Status,
		sub.StartDate,
		sub.EndDate,
		sub.TrialEndDate,
		sub.NextBillingDate,
		sub.AutoRenew,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperr.BusinessRule("subscription_exists",
				"tenant already has a trial or active subscription").
				WithDetail("tenant_id", sub.TenantID)
		}
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// GetByID returns one subscription.
func (r *SubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`

	sub, err := scanSubscription(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("subscription")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

// GetCurrentByTenant returns the tenant's live subscription (trial, active or
// suspended), newest first.
func (r *SubscriptionRepository) GetCurrentByTenant(ctx context.Context, tenantID uuid.UUID) (*models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE tenant_id = $1 AND status IN ('trial', 'active', 'suspended')
		ORDER BY created_at DESC
		LIMIT 1
	`

	sub, err := scanSubscription(r.db.QueryRow(ctx, query, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("subscription")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current subscription: %w", err)
	}
	return sub, nil
}

// Update persists every field the state machine mutates.
func (r *SubscriptionRepository) Update(ctx context.Context, sub *models.Subscription) error {
	query := `
		UPDATE subscriptions
		SET plan_id = $2, billing_cycle = $3, status = $4, start_date = $5, end_date = $6,
			trial_end_date = $7, next_billing_date = $8, cancellation_date = $9,
			cancellation_reason = $10, grace_period_end_date = $11, auto_renew = $12,
			updated_at = NOW()
		WHERE id = $1
	`

	var reason *string
	if sub.CancellationReason != "" {
		reason = &sub.CancellationReason
	}

	tag, err := r.db.Exec(ctx, query,
		sub.ID,
		sub.PlanID,
		sub.BillingCycle,
		sub.Status,
		sub.StartDate,
		sub.EndDate,
		sub.TrialEndDate,
		sub.NextBillingDate,
		sub.CancellationDate,
		reason,
		sub.GracePeriodEndDate,
		sub.AutoRenew,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("subscription")
	}
	return nil
}

// ListSuspendedPastGrace returns suspended subscriptions whose grace period
// has elapsed; the worker expires them.
func (r *SubscriptionRepository) ListSuspendedPastGrace(ctx context.Context, now time.Time) ([]models.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE status = 'suspended' AND grace_period_end_date IS NOT NULL AND grace_period_end_date <= $1
	`

	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query lapsed subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscriptions: %w", err)
	}
	return subs, nil
}
