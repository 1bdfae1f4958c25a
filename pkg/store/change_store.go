package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pagewatch/sentinel/pkg/models"
)

// ChangeStore is a raw-SQL repository over the detected_changes table, the
// central lifecycle entity of the engine.
type ChangeStore struct {
	db *sql.DB
}

// NewChangeStore creates a ChangeStore over db.
func NewChangeStore(db *sql.DB) *ChangeStore {
	return &ChangeStore{db: db}
}

// Create inserts a new detected change in the watching state.
func (s *ChangeStore) Create(ctx context.Context, c *models.DetectedChange) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = models.ChangeStatusWatching
	}
	metrics, err := marshalJSONMap(c.CorrelationMetrics)
	if err != nil {
		return fmt.Errorf("marshal correlation_metrics: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO detected_changes (id, page_id, user_id, element, scope, before_value, after_value,
			description, status, first_detected_at, first_detected_analysis_id, hypothesis,
			correlation_metrics, correlation_unlocked_at, observation_text, match_confidence, match_rationale)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		c.ID, c.PageID, c.UserID, c.Element, c.Scope, c.BeforeValue, c.AfterValue,
		c.Description, c.Status, c.FirstDetectedAt, c.FirstDetectedAnalysisID, c.Hypothesis,
		metrics, c.CorrelationUnlockedAt, c.ObservationText, c.MatchConfidence, c.MatchRationale)
	if err != nil {
		return fmt.Errorf("insert detected change: %w", err)
	}
	return nil
}

// Get retrieves a detected change by id.
func (s *ChangeStore) Get(ctx context.Context, id string) (*models.DetectedChange, error) {
	row := s.db.QueryRowContext(ctx, changeSelect+` WHERE id = $1`, id)
	return scanChange(row)
}

// ListByPage lists all changes tracked against a page, most recent first.
func (s *ChangeStore) ListByPage(ctx context.Context, pageID string) ([]*models.DetectedChange, error) {
	rows, err := s.db.QueryContext(ctx, changeSelect+`
		WHERE page_id = $1 ORDER BY first_detected_at DESC`, pageID)
	if err != nil {
		return nil, fmt.Errorf("list changes by page: %w", err)
	}
	defer rows.Close()
	return scanChangeRowsAll(rows)
}

// ListActiveByPage lists changes for a page still in the watching state,
// used by the fingerprint matcher's membership check.
func (s *ChangeStore) ListActiveByPage(ctx context.Context, pageID string) ([]*models.DetectedChange, error) {
	rows, err := s.db.QueryContext(ctx, changeSelect+`
		WHERE page_id = $1 AND status = $2 ORDER BY first_detected_at`,
		pageID, models.ChangeStatusWatching)
	if err != nil {
		return nil, fmt.Errorf("list active changes by page: %w", err)
	}
	defer rows.Close()
	return scanChangeRowsAll(rows)
}

// ListDueForHorizon lists non-terminal changes at least horizonDays old,
// paginated for the daily checkpoint batch.
func (s *ChangeStore) ListDueForHorizon(ctx context.Context, horizonDays int, limit, offset int) ([]*models.DetectedChange, error) {
	cutoff := time.Now().AddDate(0, 0, -horizonDays)
	rows, err := s.db.QueryContext(ctx, changeSelect+`
		WHERE status != $1 AND first_detected_at <= $2
		ORDER BY first_detected_at
		LIMIT $3 OFFSET $4`,
		models.ChangeStatusReverted, cutoff, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list changes due for horizon: %w", err)
	}
	defer rows.Close()
	return scanChangeRowsAll(rows)
}

// CASUpdateStatus transitions a change from expectedStatus to newStatus,
// recording the correlation evidence that justified it. Returns
// ErrConcurrentModification if the row's status no longer matches
// expectedStatus, grounded on the session claim's
// update-where-still-expected compare-and-swap pattern.
func (s *ChangeStore) CASUpdateStatus(ctx context.Context, tx *sql.Tx, id string, expectedStatus, newStatus models.ChangeStatus, correlationMetrics map[string]interface{}, observationText *string, matchConfidence *float64, matchRationale *string) error {
	metrics, err := marshalJSONMap(correlationMetrics)
	if err != nil {
		return fmt.Errorf("marshal correlation_metrics: %w", err)
	}

	exec := tx.ExecContext
	var unlockedAt interface{}
	if expectedStatus == models.ChangeStatusWatching && newStatus != models.ChangeStatusWatching {
		unlockedAt = time.Now()
		res, err := exec(ctx, `
			UPDATE detected_changes
			SET status = $1, correlation_metrics = $2, observation_text = $3,
				match_confidence = $4, match_rationale = $5, correlation_unlocked_at = $6, updated_at = $7
			WHERE id = $8 AND status = $9`,
			newStatus, metrics, observationText, matchConfidence, matchRationale, unlockedAt, time.Now(), id, expectedStatus)
		if err != nil {
			return fmt.Errorf("cas update change status: %w", err)
		}
		return requireRowsAffectedConcurrent(res)
	}

	res, err := exec(ctx, `
		UPDATE detected_changes
		SET status = $1, correlation_metrics = $2, observation_text = $3,
			match_confidence = $4, match_rationale = $5, updated_at = $6
		WHERE id = $7 AND status = $8`,
		newStatus, metrics, observationText, matchConfidence, matchRationale, time.Now(), id, expectedStatus)
	if err != nil {
		return fmt.Errorf("cas update change status: %w", err)
	}
	return requireRowsAffectedConcurrent(res)
}

// BeginTx starts a transaction for callers that need the lifecycle-event
// audit write and the status CAS to commit atomically.
func (s *ChangeStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

func requireRowsAffectedConcurrent(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrConcurrentModification
	}
	return nil
}

const changeSelect = `
	SELECT id, page_id, user_id, element, scope, before_value, after_value, description, status,
		first_detected_at, first_detected_analysis_id, hypothesis, correlation_metrics,
		correlation_unlocked_at, observation_text, match_confidence, match_rationale, created_at, updated_at
	FROM detected_changes`

func scanChange(row rowScanner) (*models.DetectedChange, error) {
	c := &models.DetectedChange{}
	var metrics []byte
	err := row.Scan(&c.ID, &c.PageID, &c.UserID, &c.Element, &c.Scope, &c.BeforeValue, &c.AfterValue,
		&c.Description, &c.Status, &c.FirstDetectedAt, &c.FirstDetectedAnalysisID, &c.Hypothesis,
		&metrics, &c.CorrelationUnlockedAt, &c.ObservationText, &c.MatchConfidence, &c.MatchRationale,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan detected change: %w", err)
	}
	if c.CorrelationMetrics, err = unmarshalJSONMap(metrics); err != nil {
		return nil, fmt.Errorf("unmarshal correlation_metrics: %w", err)
	}
	return c, nil
}

func scanChangeRowsAll(rows *sql.Rows) ([]*models.DetectedChange, error) {
	var out []*models.DetectedChange
	for rows.Next() {
		c := &models.DetectedChange{}
		var metrics []byte
		err := rows.Scan(&c.ID, &c.PageID, &c.UserID, &c.Element, &c.Scope, &c.BeforeValue, &c.AfterValue,
			&c.Description, &c.Status, &c.FirstDetectedAt, &c.FirstDetectedAnalysisID, &c.Hypothesis,
			&metrics, &c.CorrelationUnlockedAt, &c.ObservationText, &c.MatchConfidence, &c.MatchRationale,
			&c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan detected change: %w", err)
		}
		if c.CorrelationMetrics, err = unmarshalJSONMap(metrics); err != nil {
			return nil, fmt.Errorf("unmarshal correlation_metrics: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
