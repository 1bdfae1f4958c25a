//go:build integration

package checkpoint_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pagewatch/sentinel/pkg/checkpoint"
	"github.com/pagewatch/sentinel/pkg/config"
	"github.com/pagewatch/sentinel/pkg/llmshim"
	"github.com/pagewatch/sentinel/pkg/models"
	"github.com/pagewatch/sentinel/pkg/progress"
	"github.com/pagewatch/sentinel/pkg/store"
	testdb "github.com/pagewatch/sentinel/test/database"
	"github.com/stretchr/testify/require"
)

// assessorStub serves /v1/checkpoint-assessment, reporting "improved" at
// D+30 and "regressed" at D+60 so a single change exercises the full
// validate-then-reverse horizon sequence from spec §8 scenarios 4 and 5.
func assessorStub(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req llmshim.CheckpointRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := llmshim.CheckpointResponse{Confidence: 0.9}
		switch req.HorizonDays {
		case 30:
			resp.Assessment = models.AssessmentImproved
			resp.Reasoning = "conversion rate up 12% over the before window"
		case 60:
			resp.Assessment = models.AssessmentRegressed
			resp.Reasoning = "conversion rate regressed back to baseline"
		default:
			resp.Assessment = models.AssessmentNeutral
			resp.Reasoning = "no signal yet"
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestEngineRun_ValidatesThenReversesAcrossHorizons(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()

	pages := store.NewPageStore(client.DB())
	changes := store.NewChangeStore(client.DB())
	lifecycleEvents := store.NewLifecycleStore(client.DB())
	checkpoints := store.NewCheckpointStore(client.DB())
	feedback := store.NewFeedbackStore(client.DB())
	analyses := store.NewAnalysisStore(client.DB())
	suggestions := store.NewSuggestionStore(client.DB())
	composer := progress.NewComposer(changes, suggestions)

	page := &models.Page{UserID: "user-1", URL: "https://example.com/pricing"}
	require.NoError(t, pages.Create(ctx, page))

	analysis := &models.Analysis{PageID: page.ID, UserID: "user-1", TriggerType: models.TriggerTypeDaily}
	require.NoError(t, analyses.Create(ctx, analysis))
	require.NoError(t, analyses.Complete(ctx, analysis.ID, nil, map[string]interface{}{}, nil, nil))

	hypothesis := "shorter headline drives signups"
	change := &models.DetectedChange{
		PageID:                  page.ID,
		UserID:                  "user-1",
		Element:                 "hero headline",
		Scope:                   models.ChangeScopeElement,
		BeforeValue:             "Save time",
		AfterValue:              "Save money",
		Description:             "Headline rewrite",
		FirstDetectedAt:         time.Now().AddDate(0, 0, -61),
		FirstDetectedAnalysisID: analysis.ID,
		Hypothesis:              &hypothesis,
	}
	require.NoError(t, changes.Create(ctx, change))

	server := assessorStub(t)
	defer server.Close()

	callSite := config.LLMCallSiteConfig{BaseURL: server.URL, Timeout: 5 * time.Second, MaxAttempts: 1}
	assessor := llmshim.NewCheckpointClient(callSite)
	strategy := llmshim.NewStrategyClient(config.LLMCallSiteConfig{BaseURL: "http://127.0.0.1:0", Timeout: time.Second, MaxAttempts: 1})

	engine := checkpoint.New(
		config.DefaultCheckpointConfig(), changes, pages, lifecycleEvents, checkpoints, feedback,
		analyses, composer, assessor, strategy, checkpoint.NoneResolver{}, nil, 5*time.Second,
	)

	require.NoError(t, engine.Run(ctx))

	got, err := changes.Get(ctx, change.ID)
	require.NoError(t, err)
	require.Equal(t, models.ChangeStatusRegressed, got.Status)

	rows, err := checkpoints.ListByChange(ctx, change.ID)
	require.NoError(t, err)
	seen := make(map[int]models.Assessment, len(rows))
	for _, r := range rows {
		seen[r.HorizonDays] = r.Assessment
	}
	require.Equal(t, models.AssessmentImproved, seen[30])
	require.Equal(t, models.AssessmentRegressed, seen[60])

	events, err := lifecycleEvents.ListByChange(ctx, change.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, string(models.ChangeStatusValidated), events[0].ToStatus)
	require.Equal(t, string(models.ChangeStatusRegressed), events[1].ToStatus)

	updated, err := analyses.LatestComplete(ctx, page.ID)
	require.NoError(t, err)
	var summary models.ChangesSummary
	require.NoError(t, models.FromMap(updated.ChangesSummary, &summary))
	require.Equal(t, 0, summary.Progress.Validated)
	require.Equal(t, 0, summary.Progress.Watching)
}

func TestEngineRun_NoDueChangesIsANoop(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()

	pages := store.NewPageStore(client.DB())
	changes := store.NewChangeStore(client.DB())
	lifecycleEvents := store.NewLifecycleStore(client.DB())
	checkpoints := store.NewCheckpointStore(client.DB())
	feedback := store.NewFeedbackStore(client.DB())
	analyses := store.NewAnalysisStore(client.DB())
	suggestions := store.NewSuggestionStore(client.DB())
	composer := progress.NewComposer(changes, suggestions)

	page := &models.Page{UserID: "user-2", URL: "https://example.com/signup"}
	require.NoError(t, pages.Create(ctx, page))

	change := &models.DetectedChange{
		PageID:                  page.ID,
		UserID:                  "user-2",
		Element:                 "cta button",
		Scope:                   models.ChangeScopeElement,
		BeforeValue:             "Sign up",
		AfterValue:              "Get started",
		Description:             "CTA rewrite",
		FirstDetectedAt:         time.Now(),
		FirstDetectedAnalysisID: "analysis-fresh",
	}
	require.NoError(t, changes.Create(ctx, change))

	callSite := config.LLMCallSiteConfig{BaseURL: "http://127.0.0.1:0", Timeout: time.Second, MaxAttempts: 1}
	assessor := llmshim.NewCheckpointClient(callSite)
	strategy := llmshim.NewStrategyClient(callSite)

	engine := checkpoint.New(
		config.DefaultCheckpointConfig(), changes, pages, lifecycleEvents, checkpoints, feedback,
		analyses, composer, assessor, strategy, checkpoint.NoneResolver{}, nil, 5*time.Second,
	)

	require.NoError(t, engine.Run(ctx))

	got, err := changes.Get(ctx, change.ID)
	require.NoError(t, err)
	require.Equal(t, models.ChangeStatusWatching, got.Status)

	rows, err := checkpoints.ListByChange(ctx, change.ID)
	require.NoError(t, err)
	require.Empty(t, rows)
}
