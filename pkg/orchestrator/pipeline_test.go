//go:build integration

package orchestrator_test

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
	"github.com/pagewatch/sentinel/pkg/orchestrator"
	"github.com/pagewatch/sentinel/pkg/postanalysis"
	"github.com/pagewatch/sentinel/pkg/progress"
	"github.com/pagewatch/sentinel/pkg/screenshot"
	"github.com/pagewatch/sentinel/pkg/store"
	"github.com/pagewatch/sentinel/pkg/tier"
	testdb "github.com/pagewatch/sentinel/test/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessAnalysis_FailsAnalysisWhenScreenshotServiceIsUnreachable(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()
	pages := store.NewPageStore(client.DB())
	analyses := store.NewAnalysisStore(client.DB())
	changes := store.NewChangeStore(client.DB())
	events := store.NewLifecycleStore(client.DB())
	suggestions := store.NewSuggestionStore(client.DB())
	feedback := store.NewFeedbackStore(client.DB())
	deploys := store.NewDeployStore(client.DB())
	composer := progress.NewComposer(changes, suggestions)

	page := &models.Page{UserID: "user-1", URL: "https://example.com/pricing"}
	require.NoError(t, pages.Create(ctx, page))
	analysis := &models.Analysis{PageID: page.ID, UserID: "user-1", TriggerType: models.TriggerTypeDaily}
	require.NoError(t, analyses.Create(ctx, analysis))
	claimed, err := analyses.ClaimNextPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	screenshotClient := screenshot.NewClient(config.ScreenshotConfig{
		BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond, MaxAttempts: 1,
	})
	pageAudit := llmshim.NewPageAuditClient(config.LLMCallSiteConfig{
		BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond, MaxAttempts: 1,
	})
	postAnalysisClient := llmshim.NewPostAnalysisClient(config.LLMCallSiteConfig{
		BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond, MaxAttempts: 1,
	})
	processor := postanalysis.NewProcessor(changes, events, suggestions, feedback, analyses, deploys, composer, postAnalysisClient, 0.6)

	orch := orchestrator.New(analyses, pages, screenshotClient, pageAudit, tier.AllProResolver{}, processor,
		config.ScreenshotConfig{MobileEnabled: false},
		config.QueueConfig{WorkflowRetries: 0})

	err = orch.ProcessAnalysis(ctx, claimed.ID)
	assert.Error(t, err)

	got, gerr := analyses.Get(ctx, claimed.ID)
	require.NoError(t, gerr)
	assert.Equal(t, models.AnalysisStatusFailed, got.Status)
}

func TestProcessAnalysis_CompletesAndSkipsPostAnalysisWithNoTriggerCondition(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()
	pages := store.NewPageStore(client.DB())
	analyses := store.NewAnalysisStore(client.DB())
	changes := store.NewChangeStore(client.DB())
	events := store.NewLifecycleStore(client.DB())
	suggestions := store.NewSuggestionStore(client.DB())
	feedback := store.NewFeedbackStore(client.DB())
	deploys := store.NewDeployStore(client.DB())
	composer := progress.NewComposer(changes, suggestions)

	screenshotSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(screenshot.CaptureResult{ScreenshotURL: "https://cdn.example.com/shot.png", Bytes: 1024})
	}))
	defer screenshotSrv.Close()

	auditSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(llmshim.PageAuditResponse{
			FreeformText: "looks fine",
			Structured:   models.StructuredOutput{Verdict: "neutral", Summary: "no notable findings"},
		})
	}))
	defer auditSrv.Close()

	page := &models.Page{UserID: "user-1", URL: "https://example.com/pricing"}
	require.NoError(t, pages.Create(ctx, page))
	analysis := &models.Analysis{PageID: page.ID, UserID: "user-1", TriggerType: models.TriggerTypeDaily}
	require.NoError(t, analyses.Create(ctx, analysis))
	claimed, err := analyses.ClaimNextPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	screenshotClient := screenshot.NewClient(config.ScreenshotConfig{
		BaseURL: screenshotSrv.URL, Timeout: 2 * time.Second, MaxAttempts: 1,
	})
	pageAudit := llmshim.NewPageAuditClient(config.LLMCallSiteConfig{
		BaseURL: auditSrv.URL, Timeout: 2 * time.Second, MaxAttempts: 1,
	})
	postAnalysisClient := llmshim.NewPostAnalysisClient(config.LLMCallSiteConfig{
		BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond, MaxAttempts: 1,
	})
	processor := postanalysis.NewProcessor(changes, events, suggestions, feedback, analyses, deploys, composer, postAnalysisClient, 0.6)

	orch := orchestrator.New(analyses, pages, screenshotClient, pageAudit, tier.AllProResolver{}, processor,
		config.ScreenshotConfig{MobileEnabled: false},
		config.QueueConfig{WorkflowRetries: 0})

	require.NoError(t, orch.ProcessAnalysis(ctx, claimed.ID))

	got, gerr := analyses.Get(ctx, claimed.ID)
	require.NoError(t, gerr)
	assert.Equal(t, models.AnalysisStatusComplete, got.Status)
	assert.Equal(t, "neutral", got.StructuredOutput["verdict"])
	assert.Empty(t, got.ChangesSummary) // no parent/deploy/pending changes: post-analysis skipped
}

// TestProcessAnalysis_FullPipelineRunsPostAnalysisOnSuccess drives every
// step with a reachable screenshot service, page-audit LLM, and
// post-analysis LLM: the analysis completes, establishes a stable
// baseline, and its changes_summary carries the post-analysis LLM's
// correlation output (spec §4.1 steps 1-7, §4.3 baseline refresh).
func TestProcessAnalysis_FullPipelineRunsPostAnalysisOnSuccess(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()
	pages := store.NewPageStore(client.DB())
	analyses := store.NewAnalysisStore(client.DB())
	changes := store.NewChangeStore(client.DB())
	events := store.NewLifecycleStore(client.DB())
	suggestions := store.NewSuggestionStore(client.DB())
	feedback := store.NewFeedbackStore(client.DB())
	deploys := store.NewDeployStore(client.DB())
	composer := progress.NewComposer(changes, suggestions)

	screenshotSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(screenshot.CaptureResult{ScreenshotURL: "https://cdn.example.com/shot.png", Bytes: 1024})
	}))
	defer screenshotSrv.Close()

	auditSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(llmshim.PageAuditResponse{
			FreeformText: "headline rewritten",
			Structured:   models.StructuredOutput{Verdict: "improving", Summary: "headline test live"},
		})
	}))
	defer auditSrv.Close()

	page := &models.Page{UserID: "user-1", URL: "https://example.com/pricing"}
	require.NoError(t, pages.Create(ctx, page))

	pending := &models.DetectedChange{
		PageID: page.ID, UserID: "user-1", Element: "hero headline", Scope: models.ChangeScopeElement,
		BeforeValue: "Save time", AfterValue: "Save money", FirstDetectedAt: time.Now(), FirstDetectedAnalysisID: "a0",
	}
	require.NoError(t, changes.Create(ctx, pending))

	postAnalysisSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := llmshim.PostAnalysisResponse{
			Summary: models.ChangesSummary{
				Verdict: "improving",
				Changes: []models.ChangeCandidate{
					{Element: "cta button", Scope: string(models.ChangeScopeElement), Before: "Sign up", After: "Get started"},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer postAnalysisSrv.Close()

	analysis := &models.Analysis{PageID: page.ID, UserID: "user-1", TriggerType: models.TriggerTypeDaily}
	require.NoError(t, analyses.Create(ctx, analysis))
	claimed, err := analyses.ClaimNextPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	screenshotClient := screenshot.NewClient(config.ScreenshotConfig{
		BaseURL: screenshotSrv.URL, Timeout: 2 * time.Second, MaxAttempts: 1,
	})
	pageAudit := llmshim.NewPageAuditClient(config.LLMCallSiteConfig{
		BaseURL: auditSrv.URL, Timeout: 2 * time.Second, MaxAttempts: 1,
	})
	postAnalysisClient := llmshim.NewPostAnalysisClient(config.LLMCallSiteConfig{
		BaseURL: postAnalysisSrv.URL, Timeout: 2 * time.Second, MaxAttempts: 1,
	})
	processor := postanalysis.NewProcessor(changes, events, suggestions, feedback, analyses, deploys, composer, postAnalysisClient, 0.6)

	orch := orchestrator.New(analyses, pages, screenshotClient, pageAudit, tier.AllProResolver{}, processor,
		config.ScreenshotConfig{MobileEnabled: false},
		config.QueueConfig{WorkflowRetries: 0})

	require.NoError(t, orch.ProcessAnalysis(ctx, claimed.ID))

	got, gerr := analyses.Get(ctx, claimed.ID)
	require.NoError(t, gerr)
	assert.Equal(t, models.AnalysisStatusComplete, got.Status)
	assert.Equal(t, "improving", got.StructuredOutput["verdict"])
	require.NotEmpty(t, got.ChangesSummary)
	var summary models.ChangesSummary
	require.NoError(t, models.FromMap(got.ChangesSummary, &summary))
	assert.Empty(t, summary.Error)
	require.Len(t, summary.Changes, 1)
	assert.Equal(t, "cta button", summary.Changes[0].Element)

	gotPage, perr := pages.Get(ctx, page.ID)
	require.NoError(t, perr)
	require.NotNil(t, gotPage.StableBaselineID)
	assert.Equal(t, claimed.ID, *gotPage.StableBaselineID)
}
