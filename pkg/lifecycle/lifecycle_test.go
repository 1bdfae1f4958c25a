//go:build integration

package lifecycle_test

import (
	"context"
	"testing"
	"time"

	"github.com/pagewatch/sentinel/pkg/lifecycle"
	"github.com/pagewatch/sentinel/pkg/models"
	"github.com/pagewatch/sentinel/pkg/store"
	testdb "github.com/pagewatch/sentinel/test/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedChange(t *testing.T, ctx context.Context, pages *store.PageStore, changes *store.ChangeStore) *models.DetectedChange {
	t.Helper()
	page := &models.Page{UserID: "user-1", URL: "https://example.com/pricing"}
	require.NoError(t, pages.Create(ctx, page))
	change := &models.DetectedChange{
		PageID:                  page.ID,
		UserID:                  "user-1",
		Element:                 "cta button",
		Scope:                   models.ChangeScopeElement,
		BeforeValue:             "Buy now",
		AfterValue:              "Get started",
		Description:             "CTA rewrite",
		FirstDetectedAt:         time.Now(),
		FirstDetectedAnalysisID: "analysis-1",
	}
	require.NoError(t, changes.Create(ctx, change))
	return change
}

func TestTransition_CommitsStatusAndAuditTogether(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()
	changes := store.NewChangeStore(client.DB())
	events := store.NewLifecycleStore(client.DB())
	pages := store.NewPageStore(client.DB())

	change := seedChange(t, ctx, pages, changes)

	err := lifecycle.Transition(ctx, changes, events, lifecycle.TransitionParams{
		ChangeID:   change.ID,
		FromStatus: models.ChangeStatusWatching,
		ToStatus:   models.ChangeStatusValidated,
		Reason:     "checkpoint confirmed improvement",
		ActorType:  models.ActorTypeSystem,
	})
	require.NoError(t, err)

	got, err := changes.Get(ctx, change.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChangeStatusValidated, got.Status)

	history, err := events.ListByChange(ctx, change.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "validated", history[0].ToStatus)
}

func TestTransition_ConcurrentModificationLeavesNoAuditRow(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()
	changes := store.NewChangeStore(client.DB())
	events := store.NewLifecycleStore(client.DB())
	pages := store.NewPageStore(client.DB())

	change := seedChange(t, ctx, pages, changes)

	err := lifecycle.Transition(ctx, changes, events, lifecycle.TransitionParams{
		ChangeID:   change.ID,
		FromStatus: models.ChangeStatusValidated, // wrong expected status
		ToStatus:   models.ChangeStatusRegressed,
		ActorType:  models.ActorTypeSystem,
	})
	assert.ErrorIs(t, err, store.ErrConcurrentModification)

	history, err := events.ListByChange(ctx, change.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestTransition_RejectsTerminalChange(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()
	changes := store.NewChangeStore(client.DB())
	events := store.NewLifecycleStore(client.DB())
	pages := store.NewPageStore(client.DB())

	change := seedChange(t, ctx, pages, changes)
	tx, err := changes.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, changes.CASUpdateStatus(ctx, tx, change.ID, models.ChangeStatusWatching,
		models.ChangeStatusReverted, nil, nil, nil, nil))
	require.NoError(t, tx.Commit())

	err = lifecycle.Transition(ctx, changes, events, lifecycle.TransitionParams{
		ChangeID:   change.ID,
		FromStatus: models.ChangeStatusReverted,
		ToStatus:   models.ChangeStatusWatching,
		ActorType:  models.ActorTypeSystem,
	})
	assert.ErrorIs(t, err, lifecycle.ErrTerminalChange)
}
