package postanalysis

import (
	"context"

	"github.com/pagewatch/sentinel/pkg/models"
	"github.com/pagewatch/sentinel/pkg/progress"
)

// composeProgress overwrites whatever progress guess the LLM returned with
// the canonical composer's output (spec §4.2 "Canonical overwrite"),
// falling back to the page's last completed analysis snapshot, and then to
// a preserve-watching payload, if the composer's own query fails.
func (p *Processor) composeProgress(ctx context.Context, page *models.Page, priorWatching []models.DetectedChange) models.Progress {
	var snapshot *models.Progress
	if prior, err := p.analyses.LatestComplete(ctx, page.ID); err == nil && prior != nil {
		var priorSummary models.ChangesSummary
		if derr := models.FromMap(prior.ChangesSummary, &priorSummary); derr == nil {
			snapshot = &priorSummary.Progress
		}
	}
	return progress.ComposeWithFallback(ctx, p.progress, page.ID, snapshot, priorWatching)
}
