package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ops-management-api/internal/apperr"
	"github.com/ops-management-api/internal/models"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newUsageMock(t *testing.T) (pgxmock.PgxPoolIface, *FeatureUsageRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewFeatureUsageRepository(mock)
}

func usageRow(tenantID uuid.UUID, code string, current int64, limit *int64) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "tenant_id", "feature_code", "current_usage", "usage_limit",
		"reset_period", "last_reset_date", "created_at", "updated_at",
	}).AddRow(
		uuid.New(), tenantID, code, current, limit,
		models.ResetPeriodMonthly, nil, testNow, testNow,
	)
}

func TestFeatureUsageIncrement(t *testing.T) {
	mock, repo := newUsageMock(t)
	tenantID := uuid.New()

	mock.ExpectQuery(`UPDATE feature_usage`).
		WithArgs(tenantID, "max_documents", int64(2)).
		WillReturnRows(pgxmock.NewRows([]string{"current_usage"}).AddRow(int64(7)))

	current, err := repo.Increment(context.Background(), tenantID, "max_documents", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(7), current)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFeatureUsageIncrementBlockedByLimit(t *testing.T) {
	mock, repo := newUsageMock(t)
	tenantID := uuid.New()
	limit := int64(10)

	// The conditional UPDATE matches nothing, so the repository re-reads the
	// row to tell a missing counter apart from an exhausted one.
	mock.ExpectQuery(`UPDATE feature_usage`).
		WithArgs(tenantID, "max_documents", int64(3)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`FROM feature_usage`).
		WithArgs(tenantID, "max_documents").
		WillReturnRows(usageRow(tenantID, "max_documents", 9, &limit))

	_, err := repo.Increment(context.Background(), tenantID, "max_documents", 3)
	require.Error(t, err)
	assert.True(t, apperr.IsBusinessRule(err))

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "usage_limit_exceeded", appErr.Code)
	assert.Equal(t, int64(9), appErr.Details["current_usage"])
	assert.Equal(t, int64(10), appErr.Details["usage_limit"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFeatureUsageIncrementMissingCounter(t *testing.T) {
	mock, repo := newUsageMock(t)
	tenantID := uuid.New()

	mock.ExpectQuery(`UPDATE feature_usage`).
		WithArgs(tenantID, "max_documents", int64(1)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`FROM feature_usage`).
		WithArgs(tenantID, "max_documents").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.Increment(context.Background(), tenantID, "max_documents", 1)
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFeatureUsageIncrementRejectsNonPositive(t *testing.T) {
	_, repo := newUsageMock(t)

	_, err := repo.Increment(context.Background(), uuid.New(), "max_documents", 0)
	require.Error(t, err)
	assert.True(t, apperr.IsBusinessRule(err))
}

func TestFeatureUsageDecrementBelowZero(t *testing.T) {
	mock, repo := newUsageMock(t)
	tenantID := uuid.New()

	mock.ExpectQuery(`UPDATE feature_usage`).
		WithArgs(tenantID, "max_storage_mb", int64(5)).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`FROM feature_usage`).
		WithArgs(tenantID, "max_storage_mb").
		WillReturnRows(usageRow(tenantID, "max_storage_mb", 2, nil))

	_, err := repo.Decrement(context.Background(), tenantID, "max_storage_mb", 5)
	require.Error(t, err)

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "usage_below_zero", appErr.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFeatureUsageGetNotFound(t *testing.T) {
	mock, repo := newUsageMock(t)
	tenantID := uuid.New()

	mock.ExpectQuery(`FROM feature_usage`).
		WithArgs(tenantID, "max_documents").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.Get(context.Background(), tenantID, "max_documents")
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFeatureUsageResetMissingCounter(t *testing.T) {
	mock, repo := newUsageMock(t)
	tenantID := uuid.New()

	mock.ExpectExec(`UPDATE feature_usage`).
		WithArgs(tenantID, "max_documents", testNow).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.Reset(context.Background(), tenantID, "max_documents", testNow)
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}
