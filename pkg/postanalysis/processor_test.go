//go:build integration

package postanalysis_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pagewatch/sentinel/pkg/config"
	"github.com/pagewatch/sentinel/pkg/llmshim"
	"github.com/pagewatch/sentinel/pkg/models"
	"github.com/pagewatch/sentinel/pkg/postanalysis"
	"github.com/pagewatch/sentinel/pkg/progress"
	"github.com/pagewatch/sentinel/pkg/store"
	testdb "github.com/pagewatch/sentinel/test/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUnreachableLLM() *llmshim.PostAnalysisClient {
	return llmshim.NewPostAnalysisClient(config.LLMCallSiteConfig{
		BaseURL:     "http://127.0.0.1:1", // nothing listens here
		Timeout:     200 * time.Millisecond,
		MaxAttempts: 1,
	})
}

func TestRun_SkipsWhenNoTriggerConditionHolds(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()
	pages := store.NewPageStore(client.DB())
	changes := store.NewChangeStore(client.DB())
	events := store.NewLifecycleStore(client.DB())
	suggestions := store.NewSuggestionStore(client.DB())
	feedback := store.NewFeedbackStore(client.DB())
	analyses := store.NewAnalysisStore(client.DB())
	deploys := store.NewDeployStore(client.DB())
	composer := progress.NewComposer(changes, suggestions)

	page := &models.Page{UserID: "user-1", URL: "https://example.com/pricing"}
	require.NoError(t, pages.Create(ctx, page))
	analysis := &models.Analysis{PageID: page.ID, UserID: "user-1", TriggerType: models.TriggerTypeDaily}
	require.NoError(t, analyses.Create(ctx, analysis))
	require.NoError(t, analyses.Complete(ctx, analysis.ID, nil, nil, nil, nil))
	analysis, err := analyses.Get(ctx, analysis.ID)
	require.NoError(t, err)

	p := postanalysis.NewProcessor(changes, events, suggestions, feedback, analyses, deploys, composer, newUnreachableLLM(), 0.6)
	summary, ran, err := p.Run(ctx, postanalysis.Input{Analysis: analysis, Page: page})
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Nil(t, summary)
}

func TestRun_RunsAndComposesProgressWhenChangesArePending(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()
	pages := store.NewPageStore(client.DB())
	changes := store.NewChangeStore(client.DB())
	events := store.NewLifecycleStore(client.DB())
	suggestions := store.NewSuggestionStore(client.DB())
	feedback := store.NewFeedbackStore(client.DB())
	analyses := store.NewAnalysisStore(client.DB())
	deploys := store.NewDeployStore(client.DB())
	composer := progress.NewComposer(changes, suggestions)

	page := &models.Page{UserID: "user-1", URL: "https://example.com/pricing"}
	require.NoError(t, pages.Create(ctx, page))

	pending := &models.DetectedChange{
		PageID: page.ID, UserID: "user-1", Element: "hero", Scope: models.ChangeScopeElement,
		BeforeValue: "a", AfterValue: "b", FirstDetectedAt: time.Now(), FirstDetectedAnalysisID: "a0",
	}
	require.NoError(t, changes.Create(ctx, pending))

	analysis := &models.Analysis{PageID: page.ID, UserID: "user-1", TriggerType: models.TriggerTypeDaily}
	require.NoError(t, analyses.Create(ctx, analysis))
	require.NoError(t, analyses.Complete(ctx, analysis.ID, nil, nil, nil, nil))
	analysis, err := analyses.Get(ctx, analysis.ID)
	require.NoError(t, err)

	p := postanalysis.NewProcessor(changes, events, suggestions, feedback, analyses, deploys, composer, newUnreachableLLM(), 0.6)
	summary, ran, err := p.Run(ctx, postanalysis.Input{Analysis: analysis, Page: page})
	require.NoError(t, err)
	require.True(t, ran)
	require.NotNil(t, summary)
	assert.Equal(t, "post_analysis_unavailable", summary.Error)
	assert.Equal(t, 1, summary.Progress.Watching)
}

// TestRun_SuccessfulLLMResponseDetectsRevertAndNewChangeAndUpsertsSuggestion
// drives a reachable post-analysis LLM through the full correlation path:
// an existing watching change gets reverted, a brand new change gets
// inserted, and a suggestion gets tracked (spec §8 scenarios 2 and 3).
func TestRun_SuccessfulLLMResponseDetectsRevertAndNewChangeAndUpsertsSuggestion(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()
	pages := store.NewPageStore(client.DB())
	changes := store.NewChangeStore(client.DB())
	events := store.NewLifecycleStore(client.DB())
	suggestions := store.NewSuggestionStore(client.DB())
	feedback := store.NewFeedbackStore(client.DB())
	analyses := store.NewAnalysisStore(client.DB())
	deploys := store.NewDeployStore(client.DB())
	composer := progress.NewComposer(changes, suggestions)

	page := &models.Page{UserID: "user-1", URL: "https://example.com/pricing"}
	require.NoError(t, pages.Create(ctx, page))

	existing := &models.DetectedChange{
		PageID: page.ID, UserID: "user-1", Element: "hero headline", Scope: models.ChangeScopeElement,
		BeforeValue: "Save time", AfterValue: "Save money", FirstDetectedAt: time.Now(), FirstDetectedAnalysisID: "a0",
	}
	require.NoError(t, changes.Create(ctx, existing))

	analysis := &models.Analysis{PageID: page.ID, UserID: "user-1", TriggerType: models.TriggerTypeDaily}
	require.NoError(t, analyses.Create(ctx, analysis))
	require.NoError(t, analyses.Complete(ctx, analysis.ID, nil, nil, nil, nil))
	analysis, err := analyses.Get(ctx, analysis.ID)
	require.NoError(t, err)

	llmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := llmshim.PostAnalysisResponse{
			Summary: models.ChangesSummary{
				Verdict: "mixed",
				Changes: []models.ChangeCandidate{
					{Element: "cta button", Scope: string(models.ChangeScopeElement), Before: "Sign up", After: "Get started"},
				},
				Suggestions: []models.SuggestionDraft{
					{Title: "Shorten form", Element: "signup form", SuggestedFix: "Drop the phone field", Impact: "high"},
				},
			},
			RevertedChangeIDs: []string{existing.ID},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer llmSrv.Close()

	llm := llmshim.NewPostAnalysisClient(config.LLMCallSiteConfig{BaseURL: llmSrv.URL, Timeout: 2 * time.Second, MaxAttempts: 1})
	p := postanalysis.NewProcessor(changes, events, suggestions, feedback, analyses, deploys, composer, llm, 0.6)

	summary, ran, err := p.Run(ctx, postanalysis.Input{Analysis: analysis, Page: page})
	require.NoError(t, err)
	require.True(t, ran)
	require.NotNil(t, summary)
	assert.Empty(t, summary.Error)
	assert.Equal(t, []string{existing.ID}, summary.RevertedChangeIDs)

	reverted, err := changes.Get(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChangeStatusReverted, reverted.Status)

	all, err := changes.ListByPage(ctx, page.ID)
	require.NoError(t, err)
	var newCount int
	for _, c := range all {
		if c.Element == "cta button" {
			newCount++
			assert.Equal(t, models.ChangeStatusWatching, c.Status)
		}
	}
	assert.Equal(t, 1, newCount)

	sugs, err := suggestions.ListByPage(ctx, page.ID)
	require.NoError(t, err)
	require.Len(t, sugs, 1)
	assert.Equal(t, "Shorten form", sugs[0].Title)
}
