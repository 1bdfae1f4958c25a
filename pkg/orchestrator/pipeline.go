// Package orchestrator drives the seven-step analysis pipeline (spec
// §4.1): mark-processing (done by the pool's claim), check-tier,
// capture-screenshot, llm-analysis, save-results, track-completion,
// post-analysis. Grounded on
// the teacher's worker pool's poll-claim-process loop, generalized from
// session processing to page analysis, with the retry envelope wrapping
// only the steps that can legitimately be retried wholesale.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pagewatch/sentinel/pkg/config"
	"github.com/pagewatch/sentinel/pkg/llmshim"
	"github.com/pagewatch/sentinel/pkg/models"
	"github.com/pagewatch/sentinel/pkg/postanalysis"
	"github.com/pagewatch/sentinel/pkg/screenshot"
	"github.com/pagewatch/sentinel/pkg/store"
	"github.com/pagewatch/sentinel/pkg/tier"
)

// Orchestrator processes one analysis at a time through the full pipeline.
// A single instance is shared by every worker in the pool; it holds no
// per-analysis state.
type Orchestrator struct {
	analyses     *store.AnalysisStore
	pages        *store.PageStore
	screenshots  *screenshot.Client
	pageAudit    *llmshim.PageAuditClient
	tiers        tier.Resolver
	postAnalysis *postanalysis.Processor

	mobileEnabled   bool
	workflowRetries uint64
}

// New creates an Orchestrator.
func New(
	analyses *store.AnalysisStore,
	pages *store.PageStore,
	screenshots *screenshot.Client,
	pageAudit *llmshim.PageAuditClient,
	tiers tier.Resolver,
	postAnalysis *postanalysis.Processor,
	screenshotCfg config.ScreenshotConfig,
	queueCfg config.QueueConfig,
) *Orchestrator {
	return &Orchestrator{
		analyses:        analyses,
		pages:           pages,
		screenshots:     screenshots,
		pageAudit:       pageAudit,
		tiers:           tiers,
		postAnalysis:    postAnalysis,
		mobileEnabled:   screenshotCfg.MobileEnabled,
		workflowRetries: queueCfg.WorkflowRetries,
	}
}

// ProcessAnalysis runs the pipeline for one already-claimed analysis
// (status processing). Only steps 2-4 (check-tier, capture-screenshot,
// llm-analysis) run inside the bounded retry envelope; step 5
// (save-results) runs once after it and is not retried. Step 6
// (track-completion) and step 7 (post-analysis) are best-effort and never
// retried or allowed to fail the analysis.
func (o *Orchestrator) ProcessAnalysis(ctx context.Context, analysisID string) error {
	analysis, err := o.analyses.Get(ctx, analysisID)
	if err != nil {
		return fmt.Errorf("load analysis %s: %w", analysisID, err)
	}
	page, err := o.pages.Get(ctx, analysis.PageID)
	if err != nil {
		_ = o.analyses.Fail(ctx, analysisID, fmt.Sprintf("load page: %v", err))
		return fmt.Errorf("load page %s: %w", analysis.PageID, err)
	}

	capture, auditResp, err := o.runCore(ctx, analysis, page)
	if err != nil {
		if ferr := o.analyses.Fail(ctx, analysisID, err.Error()); ferr != nil {
			slog.Error("mark analysis failed also failed", "analysis_id", analysisID, "error", ferr)
		}
		return err
	}

	structured, merr := models.ToMap(auditResp.Structured)
	if merr != nil {
		structured = nil
	}
	var desktopURL, mobileURL *string
	if capture.Desktop.ScreenshotURL != "" {
		d := capture.Desktop.ScreenshotURL
		desktopURL = &d
	}
	if capture.Mobile != nil {
		m := capture.Mobile.ScreenshotURL
		mobileURL = &m
	}

	if err := o.analyses.Complete(ctx, analysisID, structured, nil, desktopURL, mobileURL); err != nil {
		_ = o.analyses.Fail(ctx, analysisID, fmt.Sprintf("save results: %v", err))
		return fmt.Errorf("save analysis results: %w", err)
	}
	if err := o.pages.SetLastScan(ctx, page.ID, analysisID); err != nil {
		slog.Warn("set last scan failed", "page_id", page.ID, "analysis_id", analysisID, "error", err)
	}
	// Scheduled scans always refresh the baseline on completion; a deploy-
	// dispatched full analysis (the stale/missing-baseline branch of the
	// deploy path) establishes one too, breaking the fallback loop that
	// keeps re-dispatching full analyses (spec §4.1, §4.3). A manual,
	// user-requested scan never silently becomes the new baseline.
	if analysis.TriggerType != models.TriggerTypeManual {
		if err := o.pages.SetStableBaseline(ctx, page.ID, analysisID); err != nil {
			slog.Warn("set stable baseline failed", "page_id", page.ID, "analysis_id", analysisID, "error", err)
		}
	}

	o.trackCompletion(analysisID)
	o.runPostAnalysis(ctx, analysis, page, structured)
	return nil
}

// runCore executes the CAS-guarded, tier-gated, screenshot+LLM core of the
// pipeline inside a bounded retry envelope (spec §4.1, §7: 2 retries).
func (o *Orchestrator) runCore(ctx context.Context, analysis *models.Analysis, page *models.Page) (screenshot.CapturePair, llmshim.PageAuditResponse, error) {
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), o.workflowRetries), ctx)

	var capture screenshot.CapturePair
	var auditResp llmshim.PageAuditResponse
	err := backoff.Retry(func() error {
		if analysis.Status != models.AnalysisStatusProcessing {
			return backoff.Permanent(fmt.Errorf("analysis %s is not in processing state", analysis.ID))
		}

		captureMobile := o.mobileEnabled
		if t, terr := o.tiers.EffectiveTier(ctx, analysis.UserID); terr != nil {
			slog.Warn("tier resolution failed, defaulting to desktop-only capture", "user_id", analysis.UserID, "error", terr)
			captureMobile = false
		} else {
			captureMobile = captureMobile && t == tier.TierPro
		}

		cap, cerr := o.screenshots.Capture(ctx, page.URL, captureMobile)
		if cerr != nil {
			return fmt.Errorf("capture screenshot: %w", cerr)
		}
		capture = cap

		resp, _ := o.pageAudit.Call(ctx, llmshim.PageAuditRequest{
			DesktopScreenshotURL: capture.Desktop.ScreenshotURL,
			MobileScreenshotURL:  mobileURLOf(capture),
			URL:                  page.URL,
		})
		auditResp = resp
		return nil
	}, bo)
	return capture, auditResp, err
}

func mobileURLOf(c screenshot.CapturePair) string {
	if c.Mobile == nil {
		return ""
	}
	return c.Mobile.ScreenshotURL
}

// trackCompletion emits a best-effort internal telemetry signal. Failure
// here never affects the analysis outcome.
func (o *Orchestrator) trackCompletion(analysisID string) {
	slog.Info("analysis completed", "analysis_id", analysisID, "completed_at", time.Now())
}

// runPostAnalysis runs the post-analysis correlation step and persists its
// output onto the already-complete analysis row. A failure here is caught
// and recorded as a sentinel changes_summary rather than failing the
// analysis, which remains visible to the user (spec §4.1 step 7).
func (o *Orchestrator) runPostAnalysis(ctx context.Context, analysis *models.Analysis, page *models.Page, structuredOutput map[string]interface{}) {
	analysis.StructuredOutput = structuredOutput
	summary, ran, err := o.postAnalysis.Run(ctx, postanalysis.Input{Analysis: analysis, Page: page})
	if err != nil {
		slog.Error("post-analysis failed", "analysis_id", analysis.ID, "error", err)
		errSummary := map[string]interface{}{"_error": "post_analysis_failed"}
		if uerr := o.analyses.UpdateChangesSummary(ctx, analysis.ID, errSummary); uerr != nil {
			slog.Error("persist post-analysis failure summary failed", "analysis_id", analysis.ID, "error", uerr)
		}
		return
	}
	if !ran {
		return
	}
	summaryMap, merr := models.ToMap(summary)
	if merr != nil {
		slog.Error("marshal changes summary failed", "analysis_id", analysis.ID, "error", merr)
		return
	}
	if err := o.analyses.UpdateChangesSummary(ctx, analysis.ID, summaryMap); err != nil {
		slog.Error("persist changes summary failed", "analysis_id", analysis.ID, "error", err)
	}
}
