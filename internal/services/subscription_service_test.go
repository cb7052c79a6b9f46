package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ops-management-api/internal/apperr"
	"github.com/ops-management-api/internal/auth"
	"github.com/ops-management-api/internal/models"
	"github.com/ops-management-api/internal/pipeline"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

// stubSession satisfies the session contract over a pgxmock statement surface;
// the transaction methods are inert because these tests exercise service
// logic, not the pipeline's transaction gate.
type stubSession struct {
	pgxmock.PgxPoolIface
	tenantID uuid.UUID
	scoped   bool
}

func (s *stubSession) Begin(ctx context.Context) error    { return nil }
func (s *stubSession) Commit(ctx context.Context) error   { return nil }
func (s *stubSession) Rollback(ctx context.Context) error { return nil }
func (s *stubSession) InTx() bool                         { return false }
func (s *stubSession) Release()                           {}
func (s *stubSession) TenantID() (uuid.UUID, bool)        { return s.tenantID, s.scoped }

func ownerScope(t *testing.T, scoped bool) (*pipeline.Scope, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	tenantID := uuid.New()
	userID := uuid.New()
	return &pipeline.Scope{
		Principal: auth.Principal{
			TenantID:        &tenantID,
			UserID:          &userID,
			Roles:           []string{"owner"},
			IsAuthenticated: true,
		},
		Session: &stubSession{PgxPoolIface: mock, tenantID: tenantID, scoped: scoped},
	}, mock
}

func testSubscriptionService() *SubscriptionService {
	svc := NewSubscriptionService(zap.NewNop())
	svc.now = func() time.Time { return testNow }
	return svc
}

func planRow(planID uuid.UUID, trialDays int) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "name", "description", "price", "trial_days", "created_at", "updated_at",
	}).AddRow(planID, "Pro", "professional tier", 49.0, trialDays, testNow, testNow)
}

func TestSubscribeSeedsUsageCounters(t *testing.T) {
	sc, mock := ownerScope(t, true)
	svc := testSubscriptionService()

	planID := uuid.New()
	docLimit := int64(100)
	storageLimit := int64(1024)

	mock.ExpectQuery(`FROM plans`).
		WithArgs(planID).
		WillReturnRows(planRow(planID, 14))
	mock.ExpectExec(`INSERT INTO subscriptions`).
		WithArgs(pgxmock.AnyArg(), *sc.Principal.TenantID, planID, models.BillingCycleMonthly,
			models.SubscriptionStatusTrial, pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(`FROM plan_features`).
		WithArgs(planID).
		WillReturnRows(pgxmock.NewRows([]string{"plan_id", "feature_code", "usage_limit", "reset_period"}).
			AddRow(planID, "max_documents", &docLimit, models.ResetPeriodMonthly).
			AddRow(planID, "max_storage_mb", &storageLimit, models.ResetPeriodNever))
	mock.ExpectExec(`INSERT INTO feature_usage`).
		WithArgs(pgxmock.AnyArg(), *sc.Principal.TenantID, "max_documents", &docLimit, models.ResetPeriodMonthly).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO feature_usage`).
		WithArgs(pgxmock.AnyArg(), *sc.Principal.TenantID, "max_storage_mb", &storageLimit, models.ResetPeriodNever).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	sub, err := svc.Subscribe(context.Background(), sc, SubscribeTenantCommand{
		PlanID:       planID,
		BillingCycle: models.BillingCycleMonthly,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusTrial, sub.Status)
	require.NotNil(t, sub.TrialEndDate)
	assert.Equal(t, testNow.AddDate(0, 0, 14), *sub.TrialEndDate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscribeNoTrialRequiresPayment(t *testing.T) {
	sc, mock := ownerScope(t, true)
	svc := testSubscriptionService()

	planID := uuid.New()
	mock.ExpectQuery(`FROM plans`).
		WithArgs(planID).
		WillReturnRows(planRow(planID, 0))

	_, err := svc.Subscribe(context.Background(), sc, SubscribeTenantCommand{
		PlanID:       planID,
		BillingCycle: models.BillingCycleMonthly,
	})
	require.Error(t, err)

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "payment_required", appErr.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscribeRejectsForeignTenantOverride(t *testing.T) {
	sc, _ := ownerScope(t, true)
	svc := testSubscriptionService()

	other := uuid.New()
	_, err := svc.Subscribe(context.Background(), sc, SubscribeTenantCommand{
		TenantID: &other,
		PlanID:   uuid.New(),
	})
	require.Error(t, err)
	assert.True(t, apperr.IsForbidden(err))
}

func TestEnsureTenantActiveSkipsUnscopedSessions(t *testing.T) {
	sc, mock := ownerScope(t, false)
	svc := testSubscriptionService()

	require.NoError(t, svc.EnsureTenantActive(context.Background(), sc))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureTenantActiveWithoutSubscription(t *testing.T) {
	sc, mock := ownerScope(t, true)
	svc := testSubscriptionService()

	mock.ExpectQuery(`FROM subscriptions`).
		WithArgs(*sc.Principal.TenantID).
		WillReturnError(pgx.ErrNoRows)

	err := svc.EnsureTenantActive(context.Background(), sc)
	require.Error(t, err)

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "subscription_required", appErr.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureTenantActivePastGrace(t *testing.T) {
	sc, mock := ownerScope(t, true)
	svc := testSubscriptionService()

	tenantID := *sc.Principal.TenantID
	graceEnd := testNow.Add(-time.Hour)
	rows := pgxmock.NewRows([]string{
		"id", "tenant_id", "plan_id", "billing_cycle", "status", "start_date", "end_date",
		"trial_end_date", "next_billing_date", "cancellation_date", "cancellation_reason",
		"grace_period_end_date", "auto_renew", "created_at", "updated_at",
	}).AddRow(
		uuid.New(), tenantID, uuid.New(), models.BillingCycleMonthly,
		models.SubscriptionStatusSuspended, testNow.AddDate(0, -1, 0), testNow.AddDate(0, 0, -10),
		(*time.Time)(nil), (*time.Time)(nil), (*time.Time)(nil), (*string)(nil),
		&graceEnd, true, testNow, testNow,
	)

	mock.ExpectQuery(`FROM subscriptions`).
		WithArgs(tenantID).
		WillReturnRows(rows)

	err := svc.EnsureTenantActive(context.Background(), sc)
	require.Error(t, err)

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "subscription_inactive", appErr.Code)
	assert.Equal(t, string(models.SubscriptionStatusSuspended), appErr.Details["status"])
	require.NoError(t, mock.ExpectationsWereMet())
}
