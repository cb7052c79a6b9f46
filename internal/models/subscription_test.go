package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ops-management-api/internal/apperr"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newActiveForTest() *Subscription {
	return NewActiveSubscription(uuid.New(), uuid.New(), BillingCycleMonthly, testNow)
}

func TestNewTrialSubscription(t *testing.T) {
	sub := NewTrialSubscription(uuid.New(), uuid.New(), BillingCycleMonthly, 14, testNow)

	assert.Equal(t, SubscriptionStatusTrial, sub.Status)
	require.NotNil(t, sub.TrialEndDate)
	assert.Equal(t, testNow.AddDate(0, 0, 14), *sub.TrialEndDate)
	assert.Equal(t, sub.EndDate, *sub.TrialEndDate)
	assert.True(t, sub.AutoRenew)
}

func TestActivate(t *testing.T) {
	t.Run("trial activates with a new billing period", func(t *testing.T) {
		sub := NewTrialSubscription(uuid.New(), uuid.New(), BillingCycleAnnual, 14, testNow)

		later := testNow.AddDate(0, 0, 7)
		require.NoError(t, sub.Activate(later))

		assert.Equal(t, SubscriptionStatusActive, sub.Status)
		assert.Equal(t, later.AddDate(0, 12, 0), sub.EndDate)
		require.NotNil(t, sub.NextBillingDate)
		assert.Equal(t, sub.EndDate, *sub.NextBillingDate)
	})

	t.Run("non-trial cannot activate", func(t *testing.T) {
		sub := newActiveForTest()
		err := sub.Activate(testNow)
		require.Error(t, err)
		assert.True(t, apperr.IsBusinessRule(err))
	})
}

func TestSuspendAndExpire(t *testing.T) {
	sub := newActiveForTest()

	t.Run("suspend requires a reason", func(t *testing.T) {
		err := sub.Suspend("", testNow)
		require.Error(t, err)
		assert.True(t, apperr.IsBusinessRule(err))
	})

	t.Run("suspend opens the grace window", func(t *testing.T) {
		require.NoError(t, sub.Suspend("payment failed", testNow))
		assert.Equal(t, SubscriptionStatusSuspended, sub.Status)
		require.NotNil(t, sub.GracePeriodEndDate)
		assert.Equal(t, testNow.Add(GracePeriod), *sub.GracePeriodEndDate)
	})

	t.Run("expire is illegal inside the grace window", func(t *testing.T) {
		err := sub.Expire(testNow.Add(GracePeriod - time.Hour))
		require.Error(t, err)
		assert.True(t, apperr.IsBusinessRule(err))
		assert.Equal(t, SubscriptionStatusSuspended, sub.Status)
	})

	t.Run("expire succeeds after the grace window", func(t *testing.T) {
		require.NoError(t, sub.Expire(testNow.Add(GracePeriod+time.Hour)))
		assert.Equal(t, SubscriptionStatusExpired, sub.Status)
	})

	t.Run("terminal state rejects further transitions", func(t *testing.T) {
		err := sub.Suspend("again", testNow)
		require.Error(t, err)
		assert.True(t, apperr.IsBusinessRule(err))
	})
}

func TestRenew(t *testing.T) {
	t.Run("active renewal extends from the current end date", func(t *testing.T) {
		sub := newActiveForTest()
		end := sub.EndDate

		require.NoError(t, sub.Renew(testNow.AddDate(0, 0, 5)))
		assert.Equal(t, end.AddDate(0, 1, 0), sub.EndDate)
	})

	t.Run("lapsed renewal extends from now", func(t *testing.T) {
		sub := newActiveForTest()
		later := sub.EndDate.AddDate(0, 0, 10)

		require.NoError(t, sub.Renew(later))
		assert.Equal(t, later.AddDate(0, 1, 0), sub.EndDate)
	})

	t.Run("suspended renewal restores active and clears the grace window", func(t *testing.T) {
		sub := newActiveForTest()
		require.NoError(t, sub.Suspend("payment failed", testNow))

		require.NoError(t, sub.Renew(testNow.AddDate(0, 0, 2)))
		assert.Equal(t, SubscriptionStatusActive, sub.Status)
		assert.Nil(t, sub.GracePeriodEndDate)
	})

	t.Run("trial cannot renew", func(t *testing.T) {
		sub := NewTrialSubscription(uuid.New(), uuid.New(), BillingCycleMonthly, 14, testNow)
		err := sub.Renew(testNow)
		require.Error(t, err)
		assert.True(t, apperr.IsBusinessRule(err))
	})
}

func TestCancel(t *testing.T) {
	sub := newActiveForTest()

	err := sub.Cancel("", testNow)
	require.Error(t, err)

	require.NoError(t, sub.Cancel("switching vendors", testNow))
	assert.Equal(t, SubscriptionStatusCancelled, sub.Status)
	assert.False(t, sub.AutoRenew)
	assert.Equal(t, "switching vendors", sub.CancellationReason)

	err = sub.Cancel("again", testNow)
	require.Error(t, err)
	assert.True(t, apperr.IsBusinessRule(err))
}

func TestChangePlan(t *testing.T) {
	sub := newActiveForTest()
	newPlan := uuid.New()

	require.NoError(t, sub.ChangePlan(newPlan, testNow))
	assert.Equal(t, newPlan, sub.PlanID)
	assert.Equal(t, SubscriptionStatusActive, sub.Status)

	require.NoError(t, sub.Suspend("payment failed", testNow))
	err := sub.ChangePlan(uuid.New(), testNow)
	require.Error(t, err)
	assert.True(t, apperr.IsBusinessRule(err))
}

func TestCanAccess(t *testing.T) {
	trial := NewTrialSubscription(uuid.New(), uuid.New(), BillingCycleMonthly, 14, testNow)
	assert.True(t, trial.CanAccess(testNow))

	active := newActiveForTest()
	assert.True(t, active.CanAccess(testNow))

	suspended := newActiveForTest()
	require.NoError(t, suspended.Suspend("payment failed", testNow))
	assert.True(t, suspended.CanAccess(testNow.Add(GracePeriod-time.Hour)))
	assert.False(t, suspended.CanAccess(testNow.Add(GracePeriod+time.Hour)))

	cancelled := newActiveForTest()
	require.NoError(t, cancelled.Cancel("done", testNow))
	assert.False(t, cancelled.CanAccess(testNow))
}

func TestDaysRemaining(t *testing.T) {
	sub := newActiveForTest()
	assert.Equal(t, 30, sub.DaysRemaining(testNow))

	require.NoError(t, sub.Suspend("payment failed", testNow))
	assert.Equal(t, 7, sub.DaysRemaining(testNow))

	assert.Equal(t, 0, sub.DaysRemaining(testNow.Add(GracePeriod+time.Hour)))
}
