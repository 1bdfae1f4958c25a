package llmshim

import (
	"context"

	"github.com/pagewatch/sentinel/pkg/config"
	"github.com/pagewatch/sentinel/pkg/models"
)

// QuickDiffClient calls the quick-diff LLM used by the deploy-triggered
// fresh-capture path: it compares a stored baseline screenshot against a
// fresh capture plus the page's currently-watching candidates.
type QuickDiffClient struct {
	cfg config.LLMCallSiteConfig
	c   *client
}

// NewQuickDiffClient creates a QuickDiffClient.
func NewQuickDiffClient(cfg config.LLMCallSiteConfig) *QuickDiffClient {
	return &QuickDiffClient{cfg: cfg, c: newClient(cfg.Timeout)}
}

// QuickDiffRequest is the quickDiff call site's input.
type QuickDiffRequest struct {
	BaselineDesktopURL string                   `json:"baselineDesktopUrl"`
	CurrentDesktopURL  string                   `json:"currentDesktopUrl"`
	BaselineMobileURL  string                   `json:"baselineMobileUrl,omitempty"`
	CurrentMobileURL   string                   `json:"currentMobileUrl,omitempty"`
	Candidates         []models.DetectedChange  `json:"candidates"`
}

// QuickDiffResponse is the quickDiff call site's output.
type QuickDiffResponse struct {
	HasChanges bool                     `json:"hasChanges"`
	Changes    []models.ChangeCandidate `json:"changes"`
}

// Call invokes the quick-diff LLM. On exhaustion it falls back to
// reporting no changes: a missed quick-diff cycle still gets picked up by
// the next scheduled scan, so silence here is safe.
func (q *QuickDiffClient) Call(ctx context.Context, req QuickDiffRequest) (QuickDiffResponse, bool) {
	var resp QuickDiffResponse
	if err := q.c.callJSON(ctx, q.cfg, "/v1/quick-diff", req, &resp); err != nil {
		return QuickDiffResponse{HasChanges: false}, false
	}
	return resp, true
}
