package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ops-management-api/internal/apperr"
)

func TestInspectionTransitionTo(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	insp := &Inspection{Status: InspectionStatusDraft}
	require.NoError(t, insp.TransitionTo(InspectionStatusScheduled, now))
	assert.Equal(t, InspectionStatusScheduled, insp.Status)

	require.NoError(t, insp.TransitionTo(InspectionStatusCompleted, now))
	require.NotNil(t, insp.CompletedAt)
	assert.Equal(t, now, *insp.CompletedAt)

	err := insp.TransitionTo(InspectionStatusDraft, now)
	require.Error(t, err)
	assert.True(t, apperr.IsBusinessRule(err))
}

func TestInspectionTransitionToUnknownStatus(t *testing.T) {
	insp := &Inspection{Status: InspectionStatusDraft}
	err := insp.TransitionTo(InspectionStatus("bogus"), time.Now())
	require.Error(t, err)
	assert.True(t, apperr.IsBusinessRule(err))
}
