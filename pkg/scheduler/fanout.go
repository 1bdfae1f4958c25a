package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pagewatch/sentinel/pkg/models"
	"github.com/pagewatch/sentinel/pkg/store"
)

// runFanout creates a pending analysis for every page at the given scan
// frequency that doesn't already have one created today, publishing it
// for the worker pool to pick up. Idempotency against a double cron fire
// is enforced by AnalysisStore.ExistsSince rather than relying on the
// ticker to fire exactly once (spec §4.8, §8 invariant 6).
func runFanout(ctx context.Context, pages *store.PageStore, analyses *store.AnalysisStore,
	freq models.ScanFrequency, trigger models.TriggerType, dayStart time.Time) error {

	list, err := pages.ListByFrequency(ctx, freq)
	if err != nil {
		return fmt.Errorf("list pages for %s fan-out: %w", freq, err)
	}

	var created int
	for _, p := range list {
		exists, err := analyses.ExistsSince(ctx, p.ID, trigger, dayStart)
		if err != nil {
			slog.Error("fan-out idempotency check failed", "page_id", p.ID, "trigger_type", trigger, "error", err)
			continue
		}
		if exists {
			continue
		}

		a := &models.Analysis{PageID: p.ID, UserID: p.UserID, TriggerType: trigger}
		if err := analyses.Create(ctx, a); err != nil {
			slog.Error("fan-out analysis creation failed", "page_id", p.ID, "trigger_type", trigger, "error", err)
			continue
		}
		created++
	}

	slog.Info("scheduled fan-out complete", "frequency", freq, "trigger_type", trigger, "created", created, "total_pages", len(list))
	return nil
}
