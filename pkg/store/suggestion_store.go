package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pagewatch/sentinel/pkg/models"
)

// SuggestionStore is a raw-SQL repository over the tracked_suggestions table.
type SuggestionStore struct {
	db *sql.DB
}

// NewSuggestionStore creates a SuggestionStore over db.
func NewSuggestionStore(db *sql.DB) *SuggestionStore {
	return &SuggestionStore{db: db}
}

// normalizedKey returns a suggestion's dedup key: element and title
// lower-cased and trimmed, since ent's schema can't express that
// normalization in a plain unique index.
func normalizedKey(element, title string) (string, string) {
	return strings.TrimSpace(strings.ToLower(element)), strings.TrimSpace(strings.ToLower(title))
}

// Upsert inserts a new open suggestion, or bumps times_suggested on an
// existing one matching the same normalized (element, title) key for the
// page — regardless of its current status, since a re-suggestion reopens
// addressed/dismissed items as a deliberate credibility signal.
func (s *SuggestionStore) Upsert(ctx context.Context, sug *models.TrackedSuggestion) (*models.TrackedSuggestion, error) {
	el, title := normalizedKey(sug.Element, sug.Title)

	rows, err := s.db.QueryContext(ctx, suggestionSelect+`WHERE page_id = $1`, sug.PageID)
	if err != nil {
		return nil, fmt.Errorf("query suggestions: %w", err)
	}
	existing, err := scanSuggestionRowsAll(rows)
	if err != nil {
		return nil, err
	}

	for _, cand := range existing {
		candEl, candTitle := normalizedKey(cand.Element, cand.Title)
		if candEl == el && candTitle == title {
			res, err := s.db.ExecContext(ctx, `
				UPDATE tracked_suggestions
				SET times_suggested = times_suggested + 1, suggested_fix = $1, impact = $2,
					status = $3, updated_at = $4
				WHERE id = $5`, sug.SuggestedFix, sug.Impact, models.SuggestionStatusOpen, time.Now(), cand.ID)
			if err != nil {
				return nil, fmt.Errorf("bump suggestion: %w", err)
			}
			if err := requireRowsAffected(res); err != nil {
				return nil, err
			}
			cand.TimesSuggested++
			cand.SuggestedFix = sug.SuggestedFix
			cand.Impact = sug.Impact
			cand.Status = models.SuggestionStatusOpen
			return cand, nil
		}
	}

	if sug.ID == "" {
		sug.ID = uuid.New().String()
	}
	if sug.Status == "" {
		sug.Status = models.SuggestionStatusOpen
	}
	if sug.TimesSuggested == 0 {
		sug.TimesSuggested = 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tracked_suggestions (id, page_id, title, element, suggested_fix, impact, status, times_suggested)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sug.ID, sug.PageID, sug.Title, sug.Element, sug.SuggestedFix, sug.Impact, sug.Status, sug.TimesSuggested)
	if err != nil {
		return nil, fmt.Errorf("insert suggestion: %w", err)
	}
	return sug, nil
}

// ListByPage lists a page's tracked suggestions, ranked by impact then
// recency — highest-impact, most-recently-suggested first.
func (s *SuggestionStore) ListByPage(ctx context.Context, pageID string) ([]*models.TrackedSuggestion, error) {
	rows, err := s.db.QueryContext(ctx, suggestionSelect+`
		WHERE page_id = $1 ORDER BY first_suggested_at DESC`, pageID)
	if err != nil {
		return nil, fmt.Errorf("list suggestions by page: %w", err)
	}
	defer rows.Close()
	out, err := scanSuggestionRowsAll(rows)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Impact.Rank(), out[j].Impact.Rank()
		if ri != rj {
			return ri < rj
		}
		return out[i].FirstSuggestedAt.After(out[j].FirstSuggestedAt)
	})
	return out, nil
}

// MarkAddressed marks a suggestion addressed.
func (s *SuggestionStore) MarkAddressed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tracked_suggestions SET status = $1, updated_at = $2 WHERE id = $3`,
		models.SuggestionStatusAddressed, time.Now(), id)
	if err != nil {
		return fmt.Errorf("mark suggestion addressed: %w", err)
	}
	return requireRowsAffected(res)
}

const suggestionSelect = `
	SELECT id, page_id, title, element, suggested_fix, impact, status, times_suggested,
		first_suggested_at, created_at, updated_at
	FROM tracked_suggestions`

func scanSuggestionRowsAll(rows *sql.Rows) ([]*models.TrackedSuggestion, error) {
	defer rows.Close()
	var out []*models.TrackedSuggestion
	for rows.Next() {
		sg := &models.TrackedSuggestion{}
		if err := rows.Scan(&sg.ID, &sg.PageID, &sg.Title, &sg.Element, &sg.SuggestedFix, &sg.Impact,
			&sg.Status, &sg.TimesSuggested, &sg.FirstSuggestedAt, &sg.CreatedAt, &sg.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		out = append(out, sg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
