package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ops-management-api/internal/apperr"
	"github.com/ops-management-api/internal/models"
)

func newSubscriptionMock(t *testing.T) (pgxmock.PgxPoolIface, *SubscriptionRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewSubscriptionRepository(mock)
}

func TestSubscriptionCreateDuplicateLive(t *testing.T) {
	mock, repo := newSubscriptionMock(t)

	sub := models.NewTrialSubscription(uuid.New(), uuid.New(), models.BillingCycleMonthly, 14, testNow)

	// Unique-violation on the partial (tenant_id, live status) index.
	mock.ExpectExec(`INSERT INTO subscriptions`).
		WithArgs(sub.ID, sub.TenantID, sub.PlanID, sub.BillingCycle, sub.Status,
			sub.StartDate, sub.EndDate, sub.TrialEndDate, sub.NextBillingDate, sub.AutoRenew).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "subscriptions_one_live_per_tenant"})

	err := repo.Create(context.Background(), sub)
	require.Error(t, err)
	assert.True(t, apperr.IsBusinessRule(err))

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "subscription_exists", appErr.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionGetCurrentByTenantNotFound(t *testing.T) {
	mock, repo := newSubscriptionMock(t)
	tenantID := uuid.New()

	mock.ExpectQuery(`FROM subscriptions`).
		WithArgs(tenantID).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetCurrentByTenant(context.Background(), tenantID)
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionUpdateMissingRow(t *testing.T) {
	mock, repo := newSubscriptionMock(t)

	sub := models.NewTrialSubscription(uuid.New(), uuid.New(), models.BillingCycleMonthly, 14, testNow)

	mock.ExpectExec(`UPDATE subscriptions`).
		WithArgs(sub.ID, sub.PlanID, sub.BillingCycle, sub.Status, sub.StartDate, sub.EndDate,
			sub.TrialEndDate, sub.NextBillingDate, sub.CancellationDate, (*string)(nil),
			sub.GracePeriodEndDate, sub.AutoRenew).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.Update(context.Background(), sub)
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}
