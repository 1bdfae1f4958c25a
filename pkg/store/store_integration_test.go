//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/pagewatch/sentinel/pkg/models"
	"github.com/pagewatch/sentinel/pkg/store"
	testdb "github.com/pagewatch/sentinel/test/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageAndChangeLifecycle(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()

	pages := store.NewPageStore(client.DB())
	changes := store.NewChangeStore(client.DB())
	lifecycle := store.NewLifecycleStore(client.DB())
	checkpoints := store.NewCheckpointStore(client.DB())

	page := &models.Page{UserID: "user-1", URL: "https://example.com/pricing"}
	require.NoError(t, pages.Create(ctx, page))

	_, err := pages.GetByUserAndURL(ctx, "user-1", "https://example.com/pricing")
	require.NoError(t, err)

	change := &models.DetectedChange{
		PageID:                  page.ID,
		UserID:                  "user-1",
		Element:                 "hero headline",
		Scope:                   models.ChangeScopeElement,
		BeforeValue:             "Save time",
		AfterValue:              "Save money",
		Description:             "Headline rewrite",
		FirstDetectedAt:         time.Now(),
		FirstDetectedAnalysisID: "analysis-1",
	}
	require.NoError(t, changes.Create(ctx, change))

	got, err := changes.Get(ctx, change.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChangeStatusWatching, got.Status)

	tx, err := changes.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, changes.CASUpdateStatus(ctx, tx, change.ID, models.ChangeStatusWatching,
		models.ChangeStatusValidated, map[string]interface{}{"conversion_rate": 0.12}, nil, nil, nil))
	require.NoError(t, checkpoints.Create(ctx, tx, &models.CheckpointRow{
		ChangeID:          change.ID,
		HorizonDays:       30,
		BeforeWindowStart: time.Now().AddDate(0, 0, -60),
		BeforeWindowEnd:   time.Now().AddDate(0, 0, -30),
		AfterWindowStart:  time.Now().AddDate(0, 0, -30),
		AfterWindowEnd:    time.Now(),
		MetricsJSON:       map[string]interface{}{"conversion_rate": 0.12},
		Assessment:        models.AssessmentImproved,
		Reasoning:         "conversion rate up",
		Provider:          "posthog",
	}))
	fromStatus := string(models.ChangeStatusWatching)
	require.NoError(t, lifecycle.Append(ctx, tx, &models.LifecycleEvent{
		ChangeID:   change.ID,
		FromStatus: &fromStatus,
		ToStatus:   string(models.ChangeStatusValidated),
		ActorType:  models.ActorTypeSystem,
	}))
	require.NoError(t, tx.Commit())

	got, err = changes.Get(ctx, change.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChangeStatusValidated, got.Status)
	assert.NotNil(t, got.CorrelationUnlockedAt)

	events, err := lifecycle.ListByChange(ctx, change.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(models.ChangeStatusValidated), events[0].ToStatus)

	// A second CAS from the same expected state should now fail: the row
	// moved on.
	tx2, err := changes.BeginTx(ctx)
	require.NoError(t, err)
	err = changes.CASUpdateStatus(ctx, tx2, change.ID, models.ChangeStatusWatching,
		models.ChangeStatusRegressed, nil, nil, nil, nil)
	assert.ErrorIs(t, err, store.ErrConcurrentModification)
	_ = tx2.Rollback()
}

func TestSuggestionUpsertDedup(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()

	pages := store.NewPageStore(client.DB())
	suggestions := store.NewSuggestionStore(client.DB())

	page := &models.Page{UserID: "user-2", URL: "https://example.com/signup"}
	require.NoError(t, pages.Create(ctx, page))

	first, err := suggestions.Upsert(ctx, &models.TrackedSuggestion{
		PageID:       page.ID,
		Title:        "Shorten form",
		Element:      "Signup Form",
		SuggestedFix: "Drop the phone number field",
		Impact:       models.SuggestionImpactHigh,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, first.TimesSuggested)

	second, err := suggestions.Upsert(ctx, &models.TrackedSuggestion{
		PageID:       page.ID,
		Title:        "  shorten form  ",
		Element:      "signup form",
		SuggestedFix: "Drop the phone number field again",
		Impact:       models.SuggestionImpactHigh,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.TimesSuggested)

	list, err := suggestions.ListByPage(ctx, page.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].TimesSuggested)
}
