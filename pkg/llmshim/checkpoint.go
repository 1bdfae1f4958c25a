package llmshim

import (
	"context"
	"fmt"

	"github.com/pagewatch/sentinel/pkg/config"
	"github.com/pagewatch/sentinel/pkg/horizon"
	"github.com/pagewatch/sentinel/pkg/models"
)

// CheckpointClient calls the checkpoint-assessor LLM used by the daily
// checkpoint engine to judge whether a change's metrics moved the needle
// at a given horizon.
type CheckpointClient struct {
	cfg config.LLMCallSiteConfig
	c   *client
}

// NewCheckpointClient creates a CheckpointClient.
func NewCheckpointClient(cfg config.LLMCallSiteConfig) *CheckpointClient {
	return &CheckpointClient{cfg: cfg, c: newClient(cfg.Timeout)}
}

// CheckpointRequest is the checkpointAssessment call site's input.
type CheckpointRequest struct {
	Change          models.DetectedChange   `json:"change"`
	HorizonDays     int                     `json:"horizon"`
	Metrics         []models.Metric         `json:"metrics"`
	PriorCheckpoints []models.CheckpointRow `json:"priorCheckpoints,omitempty"`
	Hypothesis      string                  `json:"hypothesis,omitempty"`
	PageFocus       string                  `json:"pageFocus,omitempty"`
	PriorFeedback   []models.OutcomeFeedback `json:"priorFeedback,omitempty"`
}

// CheckpointResponse is the checkpointAssessment call site's output.
type CheckpointResponse struct {
	Assessment models.Assessment `json:"assessment"`
	Confidence float64           `json:"confidence"`
	Reasoning  string            `json:"reasoning"`
}

// Call invokes the checkpoint-assessor LLM. On exhaustion — cfg.MaxAttempts
// failed attempts (3 by default) — it falls back to the deterministic rule in
// pkg/horizon, synthesizing a reasoning string so every checkpoint row
// carries an explanation regardless of how it was produced.
func (cp *CheckpointClient) Call(ctx context.Context, req CheckpointRequest) (CheckpointResponse, bool) {
	var resp CheckpointResponse
	if err := cp.c.callJSON(ctx, cp.cfg, "/v1/checkpoint-assessment", req, &resp); err != nil {
		assessment, confidence := horizon.FallbackAssessment(req.Metrics)
		return CheckpointResponse{
			Assessment: assessment,
			Confidence: confidence,
			Reasoning:  fallbackReasoning(req.Metrics, assessment),
		}, false
	}
	return resp, true
}

func fallbackReasoning(metrics []models.Metric, assessment models.Assessment) string {
	if len(metrics) == 0 {
		return "no metrics were available for this window; assessment is inconclusive"
	}
	return fmt.Sprintf("deterministic fallback over %d metric(s) yielded %s after the assessor LLM exhausted its retry budget", len(metrics), assessment)
}
