package llmshim

import (
	"context"

	"github.com/pagewatch/sentinel/pkg/config"
	"github.com/pagewatch/sentinel/pkg/models"
)

// PageAuditClient calls the vision-audit LLM: given the captured
// screenshot(s), url, and page metadata, it returns the structured finding
// set persisted on Analysis.structured_output.
type PageAuditClient struct {
	cfg config.LLMCallSiteConfig
	c   *client
}

// NewPageAuditClient creates a PageAuditClient.
func NewPageAuditClient(cfg config.LLMCallSiteConfig) *PageAuditClient {
	return &PageAuditClient{cfg: cfg, c: newClient(cfg.Timeout)}
}

// PageAuditRequest is the pageAudit call site's input.
type PageAuditRequest struct {
	DesktopScreenshotURL string            `json:"desktopScreenshotUrl"`
	MobileScreenshotURL  string            `json:"mobileScreenshotUrl,omitempty"`
	URL                  string            `json:"url"`
	Metadata             map[string]string `json:"metadata,omitempty"`
}

// PageAuditResponse is the pageAudit call site's output.
type PageAuditResponse struct {
	FreeformText string                  `json:"freeformText"`
	Structured   models.StructuredOutput `json:"structured"`
}

// Call invokes the page audit LLM with attempt-bounded retries. On
// exhaustion it returns a conservative fallback rather than an error, so
// callers always get a valid structured payload to persist.
func (p *PageAuditClient) Call(ctx context.Context, req PageAuditRequest) (PageAuditResponse, bool) {
	var resp PageAuditResponse
	if err := p.c.callJSON(ctx, p.cfg, "/v1/page-audit", req, &resp); err != nil {
		return fallbackPageAudit(), false
	}
	return resp, true
}

// fallbackPageAudit is the conservative payload used when every attempt
// fails: zero findings, a neutral verdict, no headline rewrite.
func fallbackPageAudit() PageAuditResponse {
	return PageAuditResponse{
		FreeformText: "page audit unavailable after retries",
		Structured: models.StructuredOutput{
			FindingsCount:        0,
			Verdict:              "inconclusive",
			VerdictContext:       "LLM call exhausted its retry budget",
			ProjectedImpactRange: "",
			Summary:              "Unable to analyze page; manual review recommended.",
			Findings:             nil,
		},
	}
}
