package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pagewatch/sentinel/pkg/models"
)

// CheckpointStore is a raw-SQL repository over the change_checkpoints table.
// Rows are immutable and unique per (change_id, horizon_days); there is no
// Update method.
type CheckpointStore struct {
	db *sql.DB
}

// NewCheckpointStore creates a CheckpointStore over db.
func NewCheckpointStore(db *sql.DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

// Create inserts a checkpoint row within tx, so it commits atomically with
// the lifecycle-event audit write and the change's status CAS.
func (s *CheckpointStore) Create(ctx context.Context, tx *sql.Tx, c *models.CheckpointRow) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	metrics, err := marshalJSONMap(c.MetricsJSON)
	if err != nil {
		return fmt.Errorf("marshal metrics_json: %w", err)
	}
	sources, err := marshalJSONStrings(c.DataSources)
	if err != nil {
		return fmt.Errorf("marshal data_sources: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO change_checkpoints (id, change_id, horizon_days, before_window_start, before_window_end,
			after_window_start, after_window_end, metrics_json, assessment, confidence, reasoning,
			data_sources, provider)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		c.ID, c.ChangeID, c.HorizonDays, c.BeforeWindowStart, c.BeforeWindowEnd,
		c.AfterWindowStart, c.AfterWindowEnd, metrics, c.Assessment, c.Confidence, c.Reasoning,
		sources, c.Provider)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

// ListByChange lists all checkpoints recorded for a change, oldest first.
func (s *CheckpointStore) ListByChange(ctx context.Context, changeID string) ([]*models.CheckpointRow, error) {
	rows, err := s.db.QueryContext(ctx, checkpointSelect+`
		WHERE change_id = $1 ORDER BY horizon_days`, changeID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints by change: %w", err)
	}
	defer rows.Close()

	var out []*models.CheckpointRow
	for rows.Next() {
		c, err := scanCheckpointRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetByChangeAndHorizon returns the checkpoint for a (change, horizon) pair,
// or (nil, nil) if it has not run yet.
func (s *CheckpointStore) GetByChangeAndHorizon(ctx context.Context, changeID string, horizonDays int) (*models.CheckpointRow, error) {
	row := s.db.QueryRowContext(ctx, checkpointSelect+`
		WHERE change_id = $1 AND horizon_days = $2`, changeID, horizonDays)
	c, err := scanCheckpoint(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return c, err
}

const checkpointSelect = `
	SELECT id, change_id, horizon_days, before_window_start, before_window_end,
		after_window_start, after_window_end, metrics_json, assessment, confidence, reasoning,
		data_sources, provider, created_at
	FROM change_checkpoints`

func scanCheckpoint(row rowScanner) (*models.CheckpointRow, error) {
	c := &models.CheckpointRow{}
	var metrics, sources []byte
	err := row.Scan(&c.ID, &c.ChangeID, &c.HorizonDays, &c.BeforeWindowStart, &c.BeforeWindowEnd,
		&c.AfterWindowStart, &c.AfterWindowEnd, &metrics, &c.Assessment, &c.Confidence, &c.Reasoning,
		&sources, &c.Provider, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan checkpoint: %w", err)
	}
	if c.MetricsJSON, err = unmarshalJSONMap(metrics); err != nil {
		return nil, fmt.Errorf("unmarshal metrics_json: %w", err)
	}
	if c.DataSources, err = unmarshalJSONStrings(sources); err != nil {
		return nil, fmt.Errorf("unmarshal data_sources: %w", err)
	}
	return c, nil
}

func scanCheckpointRows(rows *sql.Rows) (*models.CheckpointRow, error) {
	c := &models.CheckpointRow{}
	var metrics, sources []byte
	err := rows.Scan(&c.ID, &c.ChangeID, &c.HorizonDays, &c.BeforeWindowStart, &c.BeforeWindowEnd,
		&c.AfterWindowStart, &c.AfterWindowEnd, &metrics, &c.Assessment, &c.Confidence, &c.Reasoning,
		&sources, &c.Provider, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan checkpoint: %w", err)
	}
	if c.MetricsJSON, err = unmarshalJSONMap(metrics); err != nil {
		return nil, fmt.Errorf("unmarshal metrics_json: %w", err)
	}
	if c.DataSources, err = unmarshalJSONStrings(sources); err != nil {
		return nil, fmt.Errorf("unmarshal data_sources: %w", err)
	}
	return c, nil
}
