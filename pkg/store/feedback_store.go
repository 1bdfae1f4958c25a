package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/pagewatch/sentinel/pkg/models"
)

// FeedbackStore is a raw-SQL repository over the outcome_feedbacks table.
type FeedbackStore struct {
	db *sql.DB
}

// NewFeedbackStore creates a FeedbackStore over db.
func NewFeedbackStore(db *sql.DB) *FeedbackStore {
	return &FeedbackStore{db: db}
}

// Create inserts a user judgment on a prior checkpoint.
func (s *FeedbackStore) Create(ctx context.Context, f *models.OutcomeFeedback) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outcome_feedbacks (id, change_id, checkpoint_id, feedback_type, text)
		VALUES ($1, $2, $3, $4, $5)`,
		f.ID, f.ChangeID, f.CheckpointID, f.FeedbackType, f.Text)
	if err != nil {
		return fmt.Errorf("insert outcome feedback: %w", err)
	}
	return nil
}

// ListByChange lists all feedback recorded against a change, oldest first,
// to bias future checkpoint prompts.
func (s *FeedbackStore) ListByChange(ctx context.Context, changeID string) ([]*models.OutcomeFeedback, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, change_id, checkpoint_id, feedback_type, text, created_at
		FROM outcome_feedbacks WHERE change_id = $1 ORDER BY created_at`, changeID)
	if err != nil {
		return nil, fmt.Errorf("list feedback by change: %w", err)
	}
	defer rows.Close()

	var out []*models.OutcomeFeedback
	for rows.Next() {
		f := &models.OutcomeFeedback{}
		if err := rows.Scan(&f.ID, &f.ChangeID, &f.CheckpointID, &f.FeedbackType, &f.Text, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outcome feedback: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
