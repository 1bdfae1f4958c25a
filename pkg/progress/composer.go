// Package progress composes the canonical {validated, watching, open} view
// of a page's change history (spec §4.7): a pure read-side projection over
// detected_changes and tracked_suggestions, with no write path of its own.
// Every LLM-proposed progress guess is discarded in favor of this
// component's output before persistence, grounded on the same
// read-after-write reconciliation pkg/store's stores already perform.
package progress

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/pagewatch/sentinel/pkg/models"
	"github.com/pagewatch/sentinel/pkg/store"
)

// Composer computes Progress from current database state.
type Composer struct {
	changes     *store.ChangeStore
	suggestions *store.SuggestionStore
}

// NewComposer creates a Composer.
func NewComposer(changes *store.ChangeStore, suggestions *store.SuggestionStore) *Composer {
	return &Composer{changes: changes, suggestions: suggestions}
}

// Compose queries a page's current detected_changes and tracked_suggestions
// rows and projects them into the canonical Progress shape. validatedItems
// is ordered most-recently-unlocked first; watchingItems most-recently-
// detected first; openItems by impact (high first) then times_suggested
// descending.
func (c *Composer) Compose(ctx context.Context, pageID string) (models.Progress, error) {
	all, err := c.changes.ListByPage(ctx, pageID)
	if err != nil {
		return models.Progress{}, fmt.Errorf("list changes for progress: %w", err)
	}

	var validated, watching []models.DetectedChange
	for _, ch := range all {
		switch ch.Status {
		case models.ChangeStatusValidated:
			validated = append(validated, *ch)
		case models.ChangeStatusWatching:
			watching = append(watching, *ch)
		}
	}
	sort.SliceStable(validated, func(i, j int) bool {
		ui, uj := validated[i].CorrelationUnlockedAt, validated[j].CorrelationUnlockedAt
		if ui == nil || uj == nil {
			return ui != nil
		}
		return ui.After(*uj)
	})
	sort.SliceStable(watching, func(i, j int) bool {
		return watching[i].FirstDetectedAt.After(watching[j].FirstDetectedAt)
	})

	suggs, err := c.suggestions.ListByPage(ctx, pageID)
	if err != nil {
		return models.Progress{}, fmt.Errorf("list suggestions for progress: %w", err)
	}
	var open []models.TrackedSuggestion
	for _, sg := range suggs {
		if sg.Status == models.SuggestionStatusOpen {
			open = append(open, *sg)
		}
	}
	// ListByPage's own secondary sort key is first_suggested_at; this
	// component's contract is times_suggested descending, so re-sort here
	// rather than rely on the store's ordering.
	sort.SliceStable(open, func(i, j int) bool {
		ri, rj := open[i].Impact.Rank(), open[j].Impact.Rank()
		if ri != rj {
			return ri < rj
		}
		return open[i].TimesSuggested > open[j].TimesSuggested
	})

	return models.Progress{
		Validated:      len(validated),
		Watching:       len(watching),
		Open:           len(open),
		ValidatedItems: validated,
		WatchingItems:  watching,
		OpenItems:      open,
	}, nil
}

// ComposeWithFallback runs Compose and degrades gracefully on failure,
// matching the fail-closed posture spec §4.7 requires of every caller:
//  1. composer query succeeds: return it.
//  2. composer query fails: fall back to the prior analysis's stored
//     progress snapshot, if one exists.
//  3. no snapshot available either: return a preserve-watching payload
//     with validated=0 and the watching items carried over from
//     priorWatching (the caller's own best last-known view), logging the
//     double failure loudly since this is the only remaining signal.
func ComposeWithFallback(ctx context.Context, composer *Composer, pageID string, snapshot *models.Progress, priorWatching []models.DetectedChange) models.Progress {
	p, err := composer.Compose(ctx, pageID)
	if err == nil {
		return p
	}
	slog.Error("progress composer query failed, falling back to snapshot", "page_id", pageID, "error", err)

	if snapshot != nil {
		return *snapshot
	}

	slog.Error("progress composer has no snapshot to fall back to, preserving watching items only", "page_id", pageID)
	return models.Progress{
		Watching:      len(priorWatching),
		WatchingItems: priorWatching,
	}
}
