package postanalysis

import (
	"context"
	"errors"
	"strings"

	"github.com/pagewatch/sentinel/pkg/models"
)

// dedupeSuggestions collapses suggestions the LLM reported twice in one
// call under the same normalized (element, title) key, keeping the first
// occurrence, before they ever reach SuggestionStore.Upsert.
func dedupeSuggestions(drafts []models.SuggestionDraft) []models.SuggestionDraft {
	seen := make(map[string]bool, len(drafts))
	out := make([]models.SuggestionDraft, 0, len(drafts))
	for _, d := range drafts {
		key := strings.TrimSpace(strings.ToLower(d.Element)) + "|" + strings.TrimSpace(strings.ToLower(d.Title))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, d)
	}
	return out
}

func (p *Processor) upsertSuggestions(ctx context.Context, pageID string, drafts []models.SuggestionDraft) error {
	var firstErr error
	for _, d := range drafts {
		sug := &models.TrackedSuggestion{
			PageID:       pageID,
			Title:        d.Title,
			Element:      d.Element,
			SuggestedFix: d.SuggestedFix,
			Impact:       models.SuggestionImpact(d.Impact),
		}
		if _, err := p.suggestions.Upsert(ctx, sug); err != nil {
			firstErr = errors.Join(firstErr, err)
		}
	}
	return firstErr
}
