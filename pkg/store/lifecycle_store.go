package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/pagewatch/sentinel/pkg/models"
)

// LifecycleStore is a raw-SQL repository over the change_lifecycle_events
// table, the audit trail of every DetectedChange status mutation.
type LifecycleStore struct {
	db *sql.DB
}

// NewLifecycleStore creates a LifecycleStore over db.
func NewLifecycleStore(db *sql.DB) *LifecycleStore {
	return &LifecycleStore{db: db}
}

// Append inserts an audit event within tx, so it commits atomically with the
// status transition it records.
func (s *LifecycleStore) Append(ctx context.Context, tx *sql.Tx, e *models.LifecycleEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO change_lifecycle_events (id, change_id, from_status, to_status, reason, actor_type, checkpoint_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.ChangeID, e.FromStatus, e.ToStatus, e.Reason, e.ActorType, e.CheckpointID)
	if err != nil {
		return fmt.Errorf("insert lifecycle event: %w", err)
	}
	return nil
}

// ListByChange lists a change's audit trail in chronological order.
func (s *LifecycleStore) ListByChange(ctx context.Context, changeID string) ([]*models.LifecycleEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, change_id, from_status, to_status, reason, actor_type, checkpoint_id, created_at
		FROM change_lifecycle_events
		WHERE change_id = $1 ORDER BY created_at`, changeID)
	if err != nil {
		return nil, fmt.Errorf("list lifecycle events: %w", err)
	}
	defer rows.Close()

	var out []*models.LifecycleEvent
	for rows.Next() {
		e := &models.LifecycleEvent{}
		if err := rows.Scan(&e.ID, &e.ChangeID, &e.FromStatus, &e.ToStatus, &e.Reason, &e.ActorType,
			&e.CheckpointID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan lifecycle event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
