//go:build integration

package deploypath_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pagewatch/sentinel/pkg/config"
	"github.com/pagewatch/sentinel/pkg/deploypath"
	"github.com/pagewatch/sentinel/pkg/llmshim"
	"github.com/pagewatch/sentinel/pkg/models"
	"github.com/pagewatch/sentinel/pkg/screenshot"
	"github.com/pagewatch/sentinel/pkg/store"
	"github.com/pagewatch/sentinel/pkg/tier"
	testdb "github.com/pagewatch/sentinel/test/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type freeTierResolver struct{}

func (freeTierResolver) EffectiveTier(context.Context, string) (tier.Tier, error) {
	return tier.TierFree, nil
}

type recordingNotifier struct {
	called bool
	change models.DetectedChange
}

func (n *recordingNotifier) ChangeDetected(_ context.Context, _, _ string, c models.DetectedChange) error {
	n.called = true
	n.change = c
	return nil
}

func TestProcessDeploy_FreeTierSkipsScanningAndCompletesImmediately(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()
	pages := store.NewPageStore(client.DB())
	analyses := store.NewAnalysisStore(client.DB())
	deploys := store.NewDeployStore(client.DB())
	changes := store.NewChangeStore(client.DB())
	events := store.NewLifecycleStore(client.DB())

	deploy := &models.Deploy{UserID: "user-1", RepoID: "repo-1", CommitSHA: "abc123", FullName: "acme/site"}
	require.NoError(t, deploys.Create(ctx, deploy))

	screenshotClient := screenshot.NewClient(config.ScreenshotConfig{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond, MaxAttempts: 1})
	quickDiff := llmshim.NewQuickDiffClient(config.LLMCallSiteConfig{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond, MaxAttempts: 1})
	svc := deploypath.NewService(pages, analyses, deploys, changes, events, screenshotClient, quickDiff, freeTierResolver{}, nil)
	svc.SetBuildSettleDelay(0)

	require.NoError(t, svc.ProcessDeploy(ctx, deploy.ID))

	got, err := deploys.Get(ctx, deploy.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeployStatusComplete, got.Status)

	n, err := changes.ListActiveByPage(ctx, "nonexistent-page")
	require.NoError(t, err)
	assert.Empty(t, n)
}

func TestProcessDeploy_DispatchesFullAnalysisWhenBaselineMissing(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()
	pages := store.NewPageStore(client.DB())
	analyses := store.NewAnalysisStore(client.DB())
	deploys := store.NewDeployStore(client.DB())
	changes := store.NewChangeStore(client.DB())
	events := store.NewLifecycleStore(client.DB())

	page := &models.Page{UserID: "user-1", URL: "https://example.com/pricing"}
	require.NoError(t, pages.Create(ctx, page))
	deploy := &models.Deploy{UserID: "user-1", RepoID: "repo-1", CommitSHA: "abc123", FullName: "acme/site",
		ChangedFiles: []string{"src/pages/pricing.tsx"}}
	require.NoError(t, deploys.Create(ctx, deploy))

	screenshotClient := screenshot.NewClient(config.ScreenshotConfig{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond, MaxAttempts: 1})
	quickDiff := llmshim.NewQuickDiffClient(config.LLMCallSiteConfig{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond, MaxAttempts: 1})
	svc := deploypath.NewService(pages, analyses, deploys, changes, events, screenshotClient, quickDiff, tier.AllProResolver{}, nil)
	svc.SetBuildSettleDelay(0)

	require.NoError(t, svc.ProcessDeploy(ctx, deploy.ID))

	claimed, err := analyses.ClaimNextPending(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, models.TriggerTypeDeploy, claimed.TriggerType)
	assert.Equal(t, deploy.ID, *claimed.DeployID)
}

func TestProcessDeploy_QuickDiffRecordsChangeAndNotifies(t *testing.T) {
	client := testdb.NewTestClient(t)
	ctx := context.Background()
	pages := store.NewPageStore(client.DB())
	analyses := store.NewAnalysisStore(client.DB())
	deploys := store.NewDeployStore(client.DB())
	changes := store.NewChangeStore(client.DB())
	events := store.NewLifecycleStore(client.DB())

	page := &models.Page{UserID: "user-1", URL: "https://example.com/pricing"}
	require.NoError(t, pages.Create(ctx, page))

	desktopURL := "https://cdn.example.com/baseline-desktop.png"
	baseline := &models.Analysis{PageID: page.ID, UserID: "user-1", TriggerType: models.TriggerTypeDaily}
	require.NoError(t, analyses.Create(ctx, baseline))
	require.NoError(t, analyses.Complete(ctx, baseline.ID, nil, nil, &desktopURL, nil))
	require.NoError(t, pages.SetStableBaseline(ctx, page.ID, baseline.ID))
	page, err := pages.Get(ctx, page.ID)
	require.NoError(t, err)

	deploy := &models.Deploy{UserID: "user-1", RepoID: "repo-1", CommitSHA: "abc123", FullName: "acme/site",
		ChangedFiles: []string{"src/pages/pricing.tsx"}}
	require.NoError(t, deploys.Create(ctx, deploy))

	screenshotSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(screenshot.CaptureResult{ScreenshotURL: "https://cdn.example.com/current-desktop.png", Bytes: 512})
	}))
	defer screenshotSrv.Close()

	quickDiffSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(llmshim.QuickDiffResponse{
			HasChanges: true,
			Changes: []models.ChangeCandidate{
				{Element: "hero headline", Scope: "element", Before: "Ship faster", After: "Ship fearlessly", Description: "headline rewrite"},
			},
		})
	}))
	defer quickDiffSrv.Close()

	screenshotClient := screenshot.NewClient(config.ScreenshotConfig{BaseURL: screenshotSrv.URL, Timeout: 2 * time.Second, MaxAttempts: 1})
	quickDiff := llmshim.NewQuickDiffClient(config.LLMCallSiteConfig{BaseURL: quickDiffSrv.URL, Timeout: 2 * time.Second, MaxAttempts: 1})
	notifier := &recordingNotifier{}
	svc := deploypath.NewService(pages, analyses, deploys, changes, events, screenshotClient, quickDiff, tier.AllProResolver{}, notifier)
	svc.SetBuildSettleDelay(0)

	require.NoError(t, svc.ProcessDeploy(ctx, deploy.ID))

	active, err := changes.ListActiveByPage(ctx, page.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "hero headline", active[0].Element)
	assert.True(t, notifier.called)
	assert.Equal(t, "hero headline", notifier.change.Element)

	got, err := deploys.Get(ctx, deploy.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeployStatusComplete, got.Status)
}
