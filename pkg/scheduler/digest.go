package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/pagewatch/sentinel/pkg/models"
	"github.com/pagewatch/sentinel/pkg/notify"
	"github.com/pagewatch/sentinel/pkg/store"
)

// runDigest aggregates completed daily/weekly analyses since the
// lookback cutoff, groups them by user, and sends one consolidated
// email per user who has at least one page with reported changes.
// Pages whose changes_summary reports no changes contribute nothing to
// the digest and the user receives no mail at all if none of their
// pages changed (spec §4.8).
func runDigest(ctx context.Context, analyses *store.AnalysisStore, pages *store.PageStore,
	notifier *notify.Service, since time.Time) error {

	completed, err := analyses.ListCompletedSince(ctx, since, models.TriggerTypeDaily, models.TriggerTypeWeekly)
	if err != nil {
		return err
	}

	byUser := make(map[string][]notify.DigestEntry)
	pageURLCache := make(map[string]string)

	for _, a := range completed {
		changes := changesFrom(a)
		if len(changes) == 0 {
			continue
		}

		url, ok := pageURLCache[a.PageID]
		if !ok {
			p, err := pages.Get(ctx, a.PageID)
			if err != nil {
				slog.Warn("digest: resolve page url failed", "page_id", a.PageID, "error", err)
				continue
			}
			url = p.URL
			pageURLCache[a.PageID] = url
		}

		byUser[a.UserID] = append(byUser[a.UserID], notify.DigestEntry{PageURL: url, Changes: changes})
	}

	for userID, entries := range byUser {
		if err := notifier.SendDigest(ctx, userID, entries); err != nil {
			slog.Error("digest send failed", "user_id", userID, "error", err)
		}
	}

	slog.Info("daily digest complete", "users_notified", len(byUser), "analyses_scanned", len(completed))
	return nil
}

// changesFrom extracts the reported change list from an analysis's
// changes_summary jsonb payload.
func changesFrom(a *models.Analysis) []models.ChangeCandidate {
	if a.ChangesSummary == nil {
		return nil
	}
	var summary models.ChangesSummary
	if err := models.FromMap(a.ChangesSummary, &summary); err != nil {
		slog.Warn("digest: decode changes_summary failed", "analysis_id", a.ID, "error", err)
		return nil
	}
	return summary.Changes
}
