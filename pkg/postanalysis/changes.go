package postanalysis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pagewatch/sentinel/pkg/fingerprint"
	"github.com/pagewatch/sentinel/pkg/models"
)

// applyChanges validates every LLM-reported change candidate against the
// candidate set and inserts a fresh watching row for everything that isn't
// an already-trusted re-confirmation of an existing one (spec §4.2 "Change
// persistence"). A proposed match below the configured confidence
// threshold is treated the same as no match at all.
func (p *Processor) applyChanges(ctx context.Context, page *models.Page, analysisID string, candidates []fingerprint.Candidate, drafts []models.ChangeCandidate) error {
	var firstErr error
	for _, d := range drafts {
		scope := models.ChangeScope(d.Scope)
		matchedID := ""
		if d.MatchedChangeID != nil {
			matchedID = *d.MatchedChangeID
		}
		if _, ok := fingerprint.Match(matchedID, scope, page.UserID, candidates); ok {
			if d.MatchConfidence != nil && *d.MatchConfidence >= p.matchConfidenceThreshold {
				continue
			}
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
			FirstDetectedAnalysisID: analysisID,
		}
		if err := p.changes.Create(ctx, change); err != nil {
			firstErr = errors.Join(firstErr, err)
			continue
		}
		p.auditInception(ctx, change.ID)
	}
	return firstErr
}

// auditInception records the nil->watching lifecycle event for a newly
// created change. Best-effort: a failure here leaves the row tracked but
// without its inception audit row, logged rather than surfaced, since the
// row itself is already durable.
func (p *Processor) auditInception(ctx context.Context, changeID string) {
	tx, err := p.changes.BeginTx(ctx)
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
	if err := p.lifecycleEvents.Append(ctx, tx, event); err != nil {
		slog.Warn("append inception audit event failed", "change_id", changeID, "error", err)
		return
	}
	if err := tx.Commit(); err != nil {
		slog.Warn("commit inception audit failed", "change_id", changeID, "error", err)
	}
}

// applyObservations attaches per-change narrative text reported by the
// LLM, skipping any change id that wasn't in the candidate set actually
// sent to it (spec §9 trust boundary).
func (p *Processor) applyObservations(ctx context.Context, candidates []fingerprint.Candidate, observations []models.Observation) error {
	known := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		known[c.ID] = true
	}

	var firstErr error
	for _, obs := range observations {
		if !known[obs.ChangeID] {
			continue
		}
		change, err := p.changes.Get(ctx, obs.ChangeID)
		if err != nil {
			firstErr = errors.Join(firstErr, err)
			continue
		}

		tx, err := p.changes.BeginTx(ctx)
		if err != nil {
			firstErr = errors.Join(firstErr, err)
			continue
		}
		text := obs.Text
		if err := p.changes.CASUpdateStatus(ctx, tx, change.ID, change.Status, change.Status,
			change.CorrelationMetrics, &text, change.MatchConfidence, change.MatchRationale); err != nil {
			tx.Rollback()
			firstErr = errors.Join(firstErr, err)
			continue
		}
		if err := tx.Commit(); err != nil {
			firstErr = errors.Join(firstErr, err)
		}
	}
	return firstErr
}
