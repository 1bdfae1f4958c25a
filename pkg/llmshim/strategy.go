package llmshim

import (
	"context"

	"github.com/pagewatch/sentinel/pkg/config"
	"github.com/pagewatch/sentinel/pkg/models"
)

// StrategyClient calls the strategy-narrative LLM, an optional post-batch
// step that regenerates a page-level narrative and per-change
// observations after a checkpoint run.
type StrategyClient struct {
	cfg config.LLMCallSiteConfig
	c   *client
}

// NewStrategyClient creates a StrategyClient.
func NewStrategyClient(cfg config.LLMCallSiteConfig) *StrategyClient {
	return &StrategyClient{cfg: cfg, c: newClient(cfg.Timeout)}
}

// StrategyRequest is the strategyNarrative call site's input.
type StrategyRequest struct {
	URL            string                  `json:"url"`
	Focus          string                  `json:"focus,omitempty"`
	Timeline       []models.CheckpointRow  `json:"timeline"`
	RunningSummary string                  `json:"runningSummary,omitempty"`
	Hypotheses     []string                `json:"hypotheses,omitempty"`
}

// StrategyResponse is the strategyNarrative call site's output. Fields are
// optional: the narrative step is additive and skippable.
type StrategyResponse struct {
	StrategyNarrative string               `json:"strategy_narrative,omitempty"`
	RunningSummary     string              `json:"running_summary,omitempty"`
	Observations      []models.Observation `json:"observations,omitempty"`
}

// Call invokes the strategy-narrative LLM. On exhaustion it returns an
// empty response: the narrative is decoration over a batch that already
// completed its required work, so a silent skip is the correct fallback.
func (s *StrategyClient) Call(ctx context.Context, req StrategyRequest) (StrategyResponse, bool) {
	var resp StrategyResponse
	if err := s.c.callJSON(ctx, s.cfg, "/v1/strategy-narrative", req, &resp); err != nil {
		return StrategyResponse{}, false
	}
	return resp, true
}
