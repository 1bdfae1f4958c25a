package horizon

import (
	"testing"
	"time"

	"github.com/pagewatch/sentinel/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDueSet(t *testing.T) {
	detected := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("nothing due before D+7", func(t *testing.T) {
		now := detected.AddDate(0, 0, 3)
		assert.Empty(t, DueSet(now, detected, nil))
	})

	t.Run("D+7 and D+14 due at once if checked late", func(t *testing.T) {
		now := detected.AddDate(0, 0, 20)
		assert.Equal(t, []int{7, 14}, DueSet(now, detected, nil))
	})

	t.Run("existing horizons are excluded", func(t *testing.T) {
		now := detected.AddDate(0, 0, 35)
		assert.Equal(t, []int{14, 30}, DueSet(now, detected, []int{7}))
	})

	t.Run("all due at D+90", func(t *testing.T) {
		now := detected.AddDate(0, 0, 95)
		assert.Equal(t, models.Horizons, DueSet(now, detected, nil))
	})
}

func TestWindows(t *testing.T) {
	changeDate := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	before, after := Windows(changeDate, 30)

	assert.Equal(t, changeDate.AddDate(0, 0, -30), before.Start)
	assert.Equal(t, changeDate, before.End)
	assert.Equal(t, changeDate, after.Start)
	assert.Equal(t, changeDate.AddDate(0, 0, 30), after.End)
}

func TestApplyGating(t *testing.T) {
	t.Run("early horizons never transition", func(t *testing.T) {
		g := ApplyGating(7, models.AssessmentImproved, models.ChangeStatusWatching)
		assert.Empty(t, g.Transition)
	})

	t.Run("D+30 improved validates", func(t *testing.T) {
		g := ApplyGating(30, models.AssessmentImproved, models.ChangeStatusWatching)
		require.Equal(t, models.ChangeStatusValidated, g.Transition)
	})

	t.Run("D+30 regressed", func(t *testing.T) {
		g := ApplyGating(30, models.AssessmentRegressed, models.ChangeStatusWatching)
		require.Equal(t, models.ChangeStatusRegressed, g.Transition)
	})

	t.Run("D+30 neutral is inconclusive", func(t *testing.T) {
		g := ApplyGating(30, models.AssessmentNeutral, models.ChangeStatusWatching)
		require.Equal(t, models.ChangeStatusInconclusive, g.Transition)
	})

	t.Run("D+60 reverses D+30", func(t *testing.T) {
		g := ApplyGating(60, models.AssessmentRegressed, models.ChangeStatusValidated)
		require.Equal(t, models.ChangeStatusRegressed, g.Transition)
	})

	t.Run("D+60 confirms, no-op", func(t *testing.T) {
		g := ApplyGating(60, models.AssessmentRegressed, models.ChangeStatusRegressed)
		assert.Empty(t, g.Transition)
	})

	t.Run("reverted is terminal", func(t *testing.T) {
		g := ApplyGating(60, models.AssessmentImproved, models.ChangeStatusReverted)
		assert.Empty(t, g.Transition)
	})
}

func TestFallbackAssessment(t *testing.T) {
	t.Run("no metrics is inconclusive with zero confidence", func(t *testing.T) {
		a, conf := FallbackAssessment(nil)
		assert.Equal(t, models.AssessmentInconclusive, a)
		assert.Zero(t, conf)
	})

	t.Run("majority improved", func(t *testing.T) {
		a, conf := FallbackAssessment([]models.Metric{
			{ChangePct: 12}, {ChangePct: 2}, {ChangePct: 9},
		})
		assert.Equal(t, models.AssessmentImproved, a)
		assert.Equal(t, 0.3, conf)
	})

	t.Run("majority regressed", func(t *testing.T) {
		a, _ := FallbackAssessment([]models.Metric{
			{ChangePct: -15}, {ChangePct: -9}, {ChangePct: -12},
		})
		assert.Equal(t, models.AssessmentRegressed, a)
	})

	t.Run("tie is neutral", func(t *testing.T) {
		a, _ := FallbackAssessment([]models.Metric{
			{ChangePct: 20}, {ChangePct: -20},
		})
		assert.Equal(t, models.AssessmentNeutral, a)
	})

	t.Run("is deterministic across repeated calls", func(t *testing.T) {
		metrics := []models.Metric{{ChangePct: 7}, {ChangePct: -30}}
		a1, c1 := FallbackAssessment(metrics)
		a2, c2 := FallbackAssessment(metrics)
		assert.Equal(t, a1, a2)
		assert.Equal(t, c1, c2)
	})
}
