package llmshim

import (
	"context"

	"github.com/pagewatch/sentinel/pkg/config"
	"github.com/pagewatch/sentinel/pkg/models"
)

// PostAnalysisClient calls the post-analysis LLM: given the current
// findings plus whatever parent/deploy/analytics/feedback context exists,
// it returns the raw changes-summary draft, revert candidates, and
// per-change observations.
type PostAnalysisClient struct {
	cfg config.LLMCallSiteConfig
	c   *client
}

// NewPostAnalysisClient creates a PostAnalysisClient.
func NewPostAnalysisClient(cfg config.LLMCallSiteConfig) *PostAnalysisClient {
	return &PostAnalysisClient{cfg: cfg, c: newClient(cfg.Timeout)}
}

// PostAnalysisRequest is the postAnalysis call site's input.
type PostAnalysisRequest struct {
	CurrentFindings    []models.Finding          `json:"currentFindings"`
	PreviousFindings   []models.Finding          `json:"previousFindings,omitempty"`
	DeployContext      map[string]interface{}    `json:"deployContext,omitempty"`
	UserFeedback       []models.OutcomeFeedback  `json:"userFeedback,omitempty"`
	PendingChanges     []models.DetectedChange   `json:"pendingChanges,omitempty"`
	CheckpointTimeline []models.CheckpointRow    `json:"checkpointTimelines,omitempty"`
	PageFocus          string                    `json:"pageFocus,omitempty"`
	Hypotheses         []string                  `json:"hypotheses,omitempty"`
}

// PostAnalysisResponse is the postAnalysis call site's output. Progress is
// always overwritten by the canonical composer before persistence; the
// LLM's own progress guess, if any, is discarded by the caller.
type PostAnalysisResponse struct {
	Summary           models.ChangesSummary `json:"summary"`
	RevertedChangeIDs []string              `json:"revertedChangeIds,omitempty"`
	Observations      []models.Observation  `json:"observations,omitempty"`
}

// Call invokes the post-analysis LLM. On exhaustion it returns a sentinel
// changes_summary with Error set, matching the malformed-output fallback
// described for this call site: the analysis still completes, flagged for
// review instead of failing outright.
func (p *PostAnalysisClient) Call(ctx context.Context, req PostAnalysisRequest) (PostAnalysisResponse, bool) {
	var resp PostAnalysisResponse
	if err := p.c.callJSON(ctx, p.cfg, "/v1/post-analysis", req, &resp); err != nil {
		return fallbackPostAnalysis(), false
	}
	return resp, true
}

func fallbackPostAnalysis() PostAnalysisResponse {
	return PostAnalysisResponse{
		Summary: models.ChangesSummary{
			Verdict:        "inconclusive",
			VerdictContext: "post-analysis LLM call exhausted its retry budget",
			Error:          "post_analysis_unavailable",
			RunningSummary: "",
		},
	}
}
