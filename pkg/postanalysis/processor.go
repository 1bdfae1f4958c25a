// Package postanalysis implements the post-analysis step (spec §4.2): the
// correlation layer that turns one audit's raw findings into persisted
// detected_changes, tracked_suggestions, and a changes_summary, only when
// enough context exists to make that worthwhile. Grounded on the
// teacher's run-stage services (one store-backed step per concern, each
// tolerant of its own partial failure) generalized from session analysis
// to page analysis.
package postanalysis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pagewatch/sentinel/pkg/llmshim"
	"github.com/pagewatch/sentinel/pkg/models"
	"github.com/pagewatch/sentinel/pkg/progress"
	"github.com/pagewatch/sentinel/pkg/store"
)

// Processor runs the post-analysis correlation step for one completed
// analysis.
type Processor struct {
	changes                  *store.ChangeStore
	lifecycleEvents          *store.LifecycleStore
	suggestions              *store.SuggestionStore
	feedback                 *store.FeedbackStore
	analyses                 *store.AnalysisStore
	deploys                  *store.DeployStore
	progress                 *progress.Composer
	llm                      *llmshim.PostAnalysisClient
	matchConfidenceThreshold float64
}

// NewProcessor creates a Processor.
func NewProcessor(
	changes *store.ChangeStore,
	lifecycleEvents *store.LifecycleStore,
	suggestions *store.SuggestionStore,
	feedback *store.FeedbackStore,
	analyses *store.AnalysisStore,
	deploys *store.DeployStore,
	progressComposer *progress.Composer,
	llm *llmshim.PostAnalysisClient,
	matchConfidenceThreshold float64,
) *Processor {
	return &Processor{
		changes:                  changes,
		lifecycleEvents:          lifecycleEvents,
		suggestions:              suggestions,
		feedback:                 feedback,
		analyses:                 analyses,
		deploys:                  deploys,
		progress:                 progressComposer,
		llm:                      llm,
		matchConfidenceThreshold: matchConfidenceThreshold,
	}
}

// Input is one analysis's post-processing context.
type Input struct {
	Analysis *models.Analysis
	Page     *models.Page
}

// Run executes the post-analysis step. It returns ran=false, writing
// nothing, when none of the engine's trigger conditions hold: no parent
// analysis to compare against, no deploy context, and no changes currently
// being watched on the page (spec §4.2 "Runs only if...").
func (p *Processor) Run(ctx context.Context, in Input) (*models.ChangesSummary, bool, error) {
	activeChanges, err := p.changes.ListActiveByPage(ctx, in.Page.ID)
	if err != nil {
		return nil, false, fmt.Errorf("list active changes: %w", err)
	}

	hasParent := in.Analysis.ParentAnalysisID != nil
	hasDeploy := in.Analysis.DeployID != nil
	hasPending := len(activeChanges) > 0
	if !hasParent && !hasDeploy && !hasPending {
		return nil, false, nil
	}

	var currentStructured models.StructuredOutput
	if err := models.FromMap(in.Analysis.StructuredOutput, &currentStructured); err != nil {
		slog.Warn("decode current structured output failed", "analysis_id", in.Analysis.ID, "error", err)
	}

	var previousFindings []models.Finding
	if hasParent {
		parent, perr := p.analyses.Get(ctx, *in.Analysis.ParentAnalysisID)
		if perr != nil {
			slog.Warn("fetch parent analysis failed", "analysis_id", in.Analysis.ID,
				"parent_id", *in.Analysis.ParentAnalysisID, "error", perr)
		} else {
			var prevStructured models.StructuredOutput
			if derr := models.FromMap(parent.StructuredOutput, &prevStructured); derr == nil {
				previousFindings = prevStructured.Findings
			}
		}
	}

	var deployContext map[string]interface{}
	if hasDeploy {
		d, derr := p.deploys.Get(ctx, *in.Analysis.DeployID)
		if derr != nil {
			slog.Warn("fetch deploy context failed", "analysis_id", in.Analysis.ID,
				"deploy_id", *in.Analysis.DeployID, "error", derr)
		} else if m, merr := models.ToMap(d); merr == nil {
			deployContext = m
		}
	}

	pending := make([]models.DetectedChange, 0, len(activeChanges))
	var userFeedback []models.OutcomeFeedback
	for _, ch := range activeChanges {
		pending = append(pending, *ch)
		fb, ferr := p.feedback.ListByChange(ctx, ch.ID)
		if ferr != nil {
			slog.Warn("list feedback for change failed", "change_id", ch.ID, "error", ferr)
			continue
		}
		for _, f := range fb {
			userFeedback = append(userFeedback, *f)
		}
	}

	var pageFocus string
	if in.Page.MetricFocus != nil {
		pageFocus = *in.Page.MetricFocus
	}

	resp, ok := p.llm.Call(ctx, llmshim.PostAnalysisRequest{
		CurrentFindings:  currentStructured.Findings,
		PreviousFindings: previousFindings,
		DeployContext:    deployContext,
		UserFeedback:     userFeedback,
		PendingChanges:   pending,
		PageFocus:        pageFocus,
	})
	if !ok {
		slog.Warn("post-analysis LLM call exhausted retries, persisting fallback summary", "analysis_id", in.Analysis.ID)
	}

	candidates := buildCandidates(activeChanges)
	if err := p.applyChanges(ctx, in.Page, in.Analysis.ID, candidates, resp.Summary.Changes); err != nil {
		slog.Error("apply detected changes failed", "analysis_id", in.Analysis.ID, "error", err)
	}
	reverted := p.applyReverts(ctx, candidates, resp.RevertedChangeIDs)
	if err := p.applyObservations(ctx, candidates, resp.Observations); err != nil {
		slog.Error("apply observations failed", "analysis_id", in.Analysis.ID, "error", err)
	}
	if err := p.upsertSuggestions(ctx, in.Page.ID, dedupeSuggestions(resp.Summary.Suggestions)); err != nil {
		slog.Error("upsert suggestions failed", "analysis_id", in.Analysis.ID, "error", err)
	}

	summary := resp.Summary
	summary.RevertedChangeIDs = reverted
	summary.Observations = resp.Observations
	summary.Progress = p.composeProgress(ctx, in.Page, pending)

	return &summary, true, nil
}
