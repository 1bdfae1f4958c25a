package postanalysis

import (
	"context"
	"log/slog"

	"github.com/pagewatch/sentinel/pkg/fingerprint"
	"github.com/pagewatch/sentinel/pkg/lifecycle"
	"github.com/pagewatch/sentinel/pkg/models"
)

// applyReverts transitions every validated revert candidate from watching
// to reverted, a terminal status. Invalid ids (not in the candidate set,
// not currently watching) are silently dropped per
// fingerprint.ValidateRevertIDs; a concurrent-modification failure on an
// individual id is logged and does not block the rest of the batch.
func (p *Processor) applyReverts(ctx context.Context, candidates []fingerprint.Candidate, proposed []string) []string {
	statusByID := make(map[string]models.ChangeStatus, len(candidates))
	for _, c := range candidates {
		statusByID[c.ID] = c.Status
	}
	valid := fingerprint.ValidateRevertIDs(proposed, candidates, func(id string) models.ChangeStatus {
		return statusByID[id]
	})

	var reverted []string
	for _, id := range valid {
		err := lifecycle.Transition(ctx, p.changes, p.lifecycleEvents, lifecycle.TransitionParams{
			ChangeID:   id,
			FromStatus: models.ChangeStatusWatching,
			ToStatus:   models.ChangeStatusReverted,
			Reason:     "revert detected in post-analysis",
			ActorType:  models.ActorTypeSystem,
		})
		if err != nil {
			slog.Warn("revert transition failed", "change_id", id, "error", err)
			continue
		}
		reverted = append(reverted, id)
	}
	return reverted
}
