package services

import (
	"context"
	"errors"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/google/uuid"

	"github.com/ops-management-api/internal/models"
)

type recordingInvalidator struct {
	prefixes []string
	err      error
}

func (r *recordingInvalidator) RemoveByPattern(ctx context.Context, prefix string) error {
	r.prefixes = append(r.prefixes, prefix)
	return r.err
}

func TestCreatePlanPersistsGrantsAndInvalidatesCatalog(t *testing.T) {
	sc, mock := ownerScope(t, true)
	inv := &recordingInvalidator{}
	svc := NewPlanService(zap.NewNop(), inv)

	planID := uuid.New()
	docLimit := int64(100)

	mock.ExpectQuery(`INSERT INTO plans`).
		WithArgs("Pro", "professional tier", 49.0, 14).
		WillReturnRows(planRow(planID, 14))
	mock.ExpectExec(`DELETE FROM plan_features`).
		WithArgs(planID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`INSERT INTO plan_features`).
		WithArgs(planID, "max_documents", &docLimit, models.ResetPeriodMonthly).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	plan, err := svc.Create(context.Background(), sc, CreatePlanCommand{
		Title:       "Pro",
		Description: "professional tier",
		Price:       49.0,
		TrialDays:   14,
		Features: []PlanFeatureInput{
			{FeatureCode: "max_documents", UsageLimit: &docLimit, ResetPeriod: models.ResetPeriodMonthly},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, planID, plan.ID)
	assert.Equal(t, "Pro", plan.Name)

	// Stale catalog entries are dropped after the write.
	assert.Equal(t, []string{"plans"}, inv.prefixes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePlanCacheInvalidationFailureIsNonFatal(t *testing.T) {
	sc, mock := ownerScope(t, true)
	inv := &recordingInvalidator{err: errors.New("connection refused")}
	svc := NewPlanService(zap.NewNop(), inv)

	planID := uuid.New()

	mock.ExpectQuery(`INSERT INTO plans`).
		WithArgs("Basic", "", 9.0, 0).
		WillReturnRows(planRow(planID, 0))
	mock.ExpectExec(`DELETE FROM plan_features`).
		WithArgs(planID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	plan, err := svc.Create(context.Background(), sc, CreatePlanCommand{
		Title: "Basic",
		Price: 9.0,
	})
	require.NoError(t, err)
	assert.Equal(t, planID, plan.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
