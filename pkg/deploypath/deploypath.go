// Package deploypath implements the deploy-triggered scan: a webhook
// ingests a commit and its changed files, and for each affected page the
// engine either runs a full analysis (stable baseline missing or stale) or
// a cheaper quick-diff against the stored baseline screenshot (spec §4.3).
package deploypath

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/pagewatch/sentinel/pkg/fingerprint"
	"github.com/pagewatch/sentinel/pkg/llmshim"
	"github.com/pagewatch/sentinel/pkg/models"
	"github.com/pagewatch/sentinel/pkg/screenshot"
	"github.com/pagewatch/sentinel/pkg/store"
	"github.com/pagewatch/sentinel/pkg/tier"
)

// baselineStaleAfter is the age past which a stable baseline is no longer
// trusted for a quick diff and a full analysis is dispatched instead.
const baselineStaleAfter = 14 * 24 * time.Hour

// buildSettleDelay is how long the deploy path waits before capturing
// anything, so the webhook-reported commit has actually finished
// deploying and the page reflects it (spec §5).
const buildSettleDelay = 45 * time.Second

// Notifier sends the deploy-path "change detected" email. Implemented by
// pkg/notify.Service; declared here so this package never imports the
// ambient notification stack.
type Notifier interface {
	ChangeDetected(ctx context.Context, userID, pageURL string, change models.DetectedChange) error
}

// Service runs the deploy path for one webhook-ingested deploy.
type Service struct {
	pages           *store.PageStore
	analyses        *store.AnalysisStore
	deploys         *store.DeployStore
	changes         *store.ChangeStore
	lifecycleEvents *store.LifecycleStore
	screenshots     *screenshot.Client
	quickDiff       *llmshim.QuickDiffClient
	tiers           tier.Resolver
	notifier        Notifier

	buildSettleDelay time.Duration
}

// NewService creates a deploy path Service.
func NewService(pages *store.PageStore, analyses *store.AnalysisStore, deploys *store.DeployStore,
	changes *store.ChangeStore, lifecycleEvents *store.LifecycleStore, screenshots *screenshot.Client,
	quickDiff *llmshim.QuickDiffClient, tiers tier.Resolver, notifier Notifier) *Service {
	return &Service{
		pages: pages, analyses: analyses, deploys: deploys, changes: changes,
		lifecycleEvents: lifecycleEvents, screenshots: screenshots, quickDiff: quickDiff,
		tiers: tiers, notifier: notifier,
		buildSettleDelay: buildSettleDelay,
	}
}

// SetBuildSettleDelay overrides the default build-settle wait, for tests
// that need ProcessDeploy to proceed immediately.
func (s *Service) SetBuildSettleDelay(d time.Duration) {
	s.buildSettleDelay = d
}

// ProcessDeploy runs the deploy path end to end: tier gating, per-page
// baseline staleness check, full analysis dispatch or quick diff, and
// marks the deploy complete regardless of per-page outcome (a single
// page's failure never blocks the rest of the batch).
func (s *Service) ProcessDeploy(ctx context.Context, deployID string) error {
	deploy, err := s.deploys.Get(ctx, deployID)
	if err != nil {
		return fmt.Errorf("get deploy: %w", err)
	}

	if err := s.sleepForBuild(ctx); err != nil {
		return fmt.Errorf("wait for build to land: %w", err)
	}

	t, terr := s.tiers.EffectiveTier(ctx, deploy.UserID)
	if terr != nil {
		slog.Warn("tier resolution failed for deploy, treating as free", "deploy_id", deployID, "error", terr)
		t = tier.TierFree
	}
	if t == tier.TierFree {
		slog.Info("deploy ineligible for scanning: free tier", "deploy_id", deployID, "user_id", deploy.UserID)
		return s.deploys.MarkComplete(ctx, deployID)
	}

	if err := s.deploys.MarkScanning(ctx, deployID); err != nil {
		return fmt.Errorf("mark deploy scanning: %w", err)
	}

	pages, err := s.pages.ListByUser(ctx, deploy.UserID)
	if err != nil {
		return fmt.Errorf("list user pages: %w", err)
	}

	for _, page := range matchPagesToDeploy(pages, deploy.ChangedFiles) {
		if err := s.processPage(ctx, deploy, page); err != nil {
			slog.Error("deploy path processing failed for page", "deploy_id", deployID, "page_id", page.ID, "error", err)
		}
	}

	return s.deploys.MarkComplete(ctx, deployID)
}

func (s *Service) processPage(ctx context.Context, deploy *models.Deploy, page *models.Page) error {
	baseline, stale, err := s.resolveBaseline(ctx, page)
	if err != nil {
		return fmt.Errorf("resolve baseline: %w", err)
	}
	if stale {
		return s.dispatchFullAnalysis(ctx, deploy, page)
	}
	return s.runQuickDiff(ctx, page, baseline)
}

// resolveBaseline returns the page's stable baseline analysis and whether
// it is stale: absent, never completed, or older than baselineStaleAfter.
func (s *Service) resolveBaseline(ctx context.Context, page *models.Page) (*models.Analysis, bool, error) {
	if page.StableBaselineID == nil {
		return nil, true, nil
	}
	baseline, err := s.analyses.Get(ctx, *page.StableBaselineID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, true, nil
		}
		return nil, false, err
	}
	if baseline.CompletedAt == nil || time.Since(*baseline.CompletedAt) > baselineStaleAfter {
		return baseline, true, nil
	}
	return baseline, false, nil
}

// dispatchFullAnalysis enqueues a full analysis for a page whose baseline
// is missing or stale. The worker pool picks it up like any other pending
// analysis; its completion establishes a fresh stable baseline via the
// orchestrator's normal daily-scan path semantics.
func (s *Service) dispatchFullAnalysis(ctx context.Context, deploy *models.Deploy, page *models.Page) error {
	a := &models.Analysis{
		PageID:      page.ID,
		UserID:      deploy.UserID,
		TriggerType: models.TriggerTypeDeploy,
		DeployID:    &deploy.ID,
	}
	if err := s.analyses.Create(ctx, a); err != nil {
		return fmt.Errorf("create full analysis: %w", err)
	}
	slog.Info("dispatched full analysis for stale baseline", "page_id", page.ID, "deploy_id", deploy.ID)
	return nil
}

func (s *Service) runQuickDiff(ctx context.Context, page *models.Page, baseline *models.Analysis) error {
	if baseline.DesktopScreenshotURL == nil {
		return fmt.Errorf("baseline analysis %s has no desktop screenshot", baseline.ID)
	}

	capture, err := s.screenshots.Capture(ctx, page.URL, baseline.MobileScreenshotURL != nil)
	if err != nil {
		return fmt.Errorf("capture current screenshot: %w", err)
	}

	active, err := s.changes.ListActiveByPage(ctx, page.ID)
	if err != nil {
		return fmt.Errorf("list watching candidates: %w", err)
	}

	req := llmshim.QuickDiffRequest{
		BaselineDesktopURL: *baseline.DesktopScreenshotURL,
		CurrentDesktopURL:  capture.Desktop.ScreenshotURL,
	}
	for _, c := range active {
		req.Candidates = append(req.Candidates, *c)
	}
	if baseline.MobileScreenshotURL != nil && capture.Mobile != nil {
		req.BaselineMobileURL = *baseline.MobileScreenshotURL
		req.CurrentMobileURL = capture.Mobile.ScreenshotURL
	}

	resp, ok := s.quickDiff.Call(ctx, req)
	if !ok || !resp.HasChanges || len(resp.Changes) == 0 {
		return nil
	}

	candidates := make([]fingerprint.Candidate, len(active))
	for i, c := range active {
		candidates[i] = fingerprint.Candidate{ID: c.ID, UserID: c.UserID, Scope: c.Scope, Status: c.Status}
	}

	firstNew := s.recordNewChanges(ctx, page, baseline.ID, candidates, resp.Changes)
	if firstNew != nil && s.notifier != nil {
		if err := s.notifier.ChangeDetected(ctx, page.UserID, page.URL, *firstNew); err != nil {
			slog.Warn("change-detected notification failed", "page_id", page.ID, "error", err)
		}
	}
	return nil
}

// recordNewChanges inserts a watching row for every LLM-reported change
// that isn't a trusted re-confirmation of an existing candidate, and
// returns the first one inserted (for the notification email), or nil if
// every reported change matched an existing row.
func (s *Service) recordNewChanges(ctx context.Context, page *models.Page, baselineAnalysisID string,
	candidates []fingerprint.Candidate, drafts []models.ChangeCandidate) *models.DetectedChange {
	var firstNew *models.DetectedChange
	for _, d := range drafts {
		scope := models.ChangeScope(d.Scope)
		matchedID := ""
		if d.MatchedChangeID != nil {
			matchedID = *d.MatchedChangeID
		}
		if _, ok := fingerprint.Match(matchedID, scope, page.UserID, candidates); ok {
			continue
		}

		change := &models.DetectedChange{
			PageID:                  page.ID,
			UserID:                  page.UserID,
			Element:                 d.Element,
			Scope:                   scope,
			BeforeValue:             d.Before,
			AfterValue:              d.After,
			Description:             d.Description,
			Status:                  models.ChangeStatusWatching,
			FirstDetectedAt:         time.Now(),
			FirstDetectedAnalysisID: baselineAnalysisID,
		}
		if err := s.changes.Create(ctx, change); err != nil {
			slog.Error("create quick-diff change failed", "page_id", page.ID, "error", err)
			continue
		}
		s.auditInception(ctx, change.ID)
		if firstNew == nil {
			firstNew = change
		}
	}
	return firstNew
}

// auditInception records the nil->watching lifecycle event for a change
// discovered via quick diff, mirroring the full-analysis path's own
// inception audit. Best-effort: logged, not propagated, on failure.
func (s *Service) auditInception(ctx context.Context, changeID string) {
	tx, err := s.changes.BeginTx(ctx)
	if err != nil {
		slog.Warn("begin inception audit tx failed", "change_id", changeID, "error", err)
		return
	}
	defer tx.Rollback()

	event := &models.LifecycleEvent{
		ChangeID:  changeID,
		ToStatus:  string(models.ChangeStatusWatching),
		ActorType: models.ActorTypeSystem,
	}
	if err := s.lifecycleEvents.Append(ctx, tx, event); err != nil {
		slog.Warn("append inception audit event failed", "change_id", changeID, "error", err)
		return
	}
	if err := tx.Commit(); err != nil {
		slog.Warn("commit inception audit failed", "change_id", changeID, "error", err)
	}
}

// matchPagesToDeploy filters a user's pages down to those plausibly
// affected by the deploy's changed files. The real URL-to-file mapping is
// a product of the user's build tooling and out of scope here; this is a
// best-effort heuristic matching a page's last URL path segment against
// the changed file list. An empty changed-file list (e.g. a webhook that
// didn't report one) is treated as "scan every page".
func matchPagesToDeploy(pages []*models.Page, changedFiles []string) []*models.Page {
	if len(changedFiles) == 0 {
		return pages
	}
	var matched []*models.Page
	for _, p := range pages {
		seg := lastPathSegment(p.URL)
		if seg == "" {
			matched = append(matched, p) // root page: any change could affect it
			continue
		}
		for _, f := range changedFiles {
			if strings.Contains(strings.ToLower(f), strings.ToLower(seg)) {
				matched = append(matched, p)
				break
			}
		}
	}
	return matched
}

// sleepForBuild waits s.buildSettleDelay for the deploy to land, honoring
// context cancellation so shutdown or a test's short timeout isn't blocked
// on the full delay.
func (s *Service) sleepForBuild(ctx context.Context) error {
	if s.buildSettleDelay <= 0 {
		return nil
	}
	t := time.NewTimer(s.buildSettleDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func lastPathSegment(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	trimmed := strings.Trim(u.Path, "/")
	if trimmed == "" {
		return ""
	}
	parts := strings.Split(trimmed, "/")
	return parts[len(parts)-1]
}
