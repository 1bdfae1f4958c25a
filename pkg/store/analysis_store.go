package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pagewatch/sentinel/pkg/models"
)

// AnalysisStore is a raw-SQL repository over the analyses table.
type AnalysisStore struct {
	db *sql.DB
}

// NewAnalysisStore creates an AnalysisStore over db.
func NewAnalysisStore(db *sql.DB) *AnalysisStore {
	return &AnalysisStore{db: db}
}

// Create inserts a new pending analysis.
func (s *AnalysisStore) Create(ctx context.Context, a *models.Analysis) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Status == "" {
		a.Status = models.AnalysisStatusPending
	}

	structured, err := marshalJSONMap(a.StructuredOutput)
	if err != nil {
		return fmt.Errorf("marshal structured_output: %w", err)
	}
	summary, err := marshalJSONMap(a.ChangesSummary)
	if err != nil {
		return fmt.Errorf("marshal changes_summary: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analyses (id, page_id, user_id, status, desktop_screenshot_url, mobile_screenshot_url,
			structured_output, changes_summary, parent_analysis_id, deploy_id, trigger_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.PageID, a.UserID, a.Status, a.DesktopScreenshotURL, a.MobileScreenshotURL,
		structured, summary, a.ParentAnalysisID, a.DeployID, a.TriggerType)
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

// Get retrieves an analysis by id.
func (s *AnalysisStore) Get(ctx context.Context, id string) (*models.Analysis, error) {
	row := s.db.QueryRowContext(ctx, analysisSelect+` WHERE id = $1`, id)
	return scanAnalysis(row)
}

// ClaimNextPending atomically claims the oldest pending analysis, marking it
// processing. Returns (nil, nil) when no pending analyses exist. Grounded on
// the select-then-conditional-update claim pattern: lock the candidate row
// with FOR UPDATE SKIP LOCKED so concurrent workers never contend on it, then
// update only if it is still pending.
func (s *AnalysisStore) ClaimNextPending(ctx context.Context) (*models.Analysis, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM analyses
		WHERE status = $1
		ORDER BY created_at
		FOR UPDATE SKIP LOCKED
		LIMIT 1`, models.AnalysisStatusPending).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select pending analysis: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE analyses SET status = $1, started_at = $2 WHERE id = $3 AND status = $4`,
		models.AnalysisStatusProcessing, time.Now(), id, models.AnalysisStatusPending)
	if err != nil {
		return nil, fmt.Errorf("claim analysis: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}

	row := tx.QueryRowContext(ctx, analysisSelect+` WHERE id = $1`, id)
	a, err := scanAnalysis(row)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return a, nil
}

// Complete marks an analysis complete with its structured output and
// derived changes summary.
func (s *AnalysisStore) Complete(ctx context.Context, id string, structuredOutput, changesSummary map[string]interface{}, desktopURL, mobileURL *string) error {
	structured, err := marshalJSONMap(structuredOutput)
	if err != nil {
		return fmt.Errorf("marshal structured_output: %w", err)
	}
	summary, err := marshalJSONMap(changesSummary)
	if err != nil {
		return fmt.Errorf("marshal changes_summary: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE analyses
		SET status = $1, structured_output = $2, changes_summary = $3,
			desktop_screenshot_url = $4, mobile_screenshot_url = $5, completed_at = $6
		WHERE id = $7`,
		models.AnalysisStatusComplete, structured, summary, desktopURL, mobileURL, time.Now(), id)
	if err != nil {
		return fmt.Errorf("complete analysis: %w", err)
	}
	return requireRowsAffected(res)
}

// Fail marks an analysis failed with an error message.
func (s *AnalysisStore) Fail(ctx context.Context, id, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE analyses SET status = $1, error_message = $2, completed_at = $3 WHERE id = $4`,
		models.AnalysisStatusFailed, errMsg, time.Now(), id)
	if err != nil {
		return fmt.Errorf("fail analysis: %w", err)
	}
	return requireRowsAffected(res)
}

// LatestComplete returns the most recently completed analysis for a page,
// or (nil, nil) if none exists.
func (s *AnalysisStore) LatestComplete(ctx context.Context, pageID string) (*models.Analysis, error) {
	row := s.db.QueryRowContext(ctx, analysisSelect+`
		WHERE page_id = $1 AND status = $2
		ORDER BY completed_at DESC LIMIT 1`, pageID, models.AnalysisStatusComplete)
	a, err := scanAnalysis(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return a, err
}

// UpdateChangesSummary overwrites an already-complete analysis's
// changes_summary without touching its structured_output or screenshot
// URLs, for the post-analysis step's deferred write (spec §4.1 step 7),
// which runs after save-results has already made the analysis visible.
func (s *AnalysisStore) UpdateChangesSummary(ctx context.Context, id string, changesSummary map[string]interface{}) error {
	summary, err := marshalJSONMap(changesSummary)
	if err != nil {
		return fmt.Errorf("marshal changes_summary: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE analyses SET changes_summary = $1 WHERE id = $2`, summary, id)
	if err != nil {
		return fmt.Errorf("update changes summary: %w", err)
	}
	return requireRowsAffected(res)
}

// ExistsSince reports whether an analysis already exists for the given
// page and trigger type created at or after since, the idempotency check
// the scheduled-scan fan-out runs before inserting a new one so a cron
// double-fire never creates a duplicate scan for the same page on the
// same day (spec §4.8, §8 invariant 6).
func (s *AnalysisStore) ExistsSince(ctx context.Context, pageID string, triggerType models.TriggerType, since time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM analyses
			WHERE page_id = $1 AND trigger_type = $2 AND created_at >= $3
		)`, pageID, triggerType, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check analysis exists since: %w", err)
	}
	return exists, nil
}

// ListCompletedSince lists analyses of the given trigger types that
// completed at or after since, for the daily digest's lookback window.
func (s *AnalysisStore) ListCompletedSince(ctx context.Context, since time.Time, triggerTypes ...models.TriggerType) ([]*models.Analysis, error) {
	if len(triggerTypes) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(triggerTypes))
	args := make([]interface{}, 0, len(triggerTypes)+1)
	args = append(args, since)
	for i, t := range triggerTypes {
		args = append(args, t)
		placeholders[i] = fmt.Sprintf("$%d", i+2)
	}
	query := fmt.Sprintf(`%s WHERE status = 'complete' AND completed_at >= $1 AND trigger_type IN (%s)
		ORDER BY user_id, completed_at`, analysisSelect, strings.Join(placeholders, ", "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list analyses completed since: %w", err)
	}
	defer rows.Close()

	var out []*models.Analysis
	for rows.Next() {
		a, err := scanAnalysisRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountProcessing counts analyses currently processing, the global
// concurrency ceiling check the worker pool runs before every claim
// (spec §5: at most QueueConfig.MaxConcurrentAnalyses across all replicas).
func (s *AnalysisStore) CountProcessing(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM analyses WHERE status = $1`,
		models.AnalysisStatusProcessing).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count processing analyses: %w", err)
	}
	return n, nil
}

// FindOrphanedProcessing finds analyses stuck processing past timeout.
func (s *AnalysisStore) FindOrphanedProcessing(ctx context.Context, timeout time.Duration) ([]*models.Analysis, error) {
	threshold := time.Now().Add(-timeout)
	rows, err := s.db.QueryContext(ctx, analysisSelect+`
		WHERE status = $1 AND started_at IS NOT NULL AND started_at < $2`,
		models.AnalysisStatusProcessing, threshold)
	if err != nil {
		return nil, fmt.Errorf("find orphaned analyses: %w", err)
	}
	defer rows.Close()

	var out []*models.Analysis
	for rows.Next() {
		a, err := scanAnalysisRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteOldFailed hard-deletes failed analyses older than retentionDays,
// mirroring the retention sweep's intent for a table with no soft-delete
// column of its own.
func (s *AnalysisStore) DeleteOldFailed(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention_days must be positive, got %d", retentionDays)
	}
	cutoff := time.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour)

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM analyses WHERE status = $1 AND completed_at < $2`,
		models.AnalysisStatusFailed, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old failed analyses: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

const analysisSelect = `
	SELECT id, page_id, user_id, status, desktop_screenshot_url, mobile_screenshot_url,
		structured_output, changes_summary, parent_analysis_id, deploy_id, trigger_type,
		created_at, started_at, completed_at, error_message
	FROM analyses`

func scanAnalysis(row rowScanner) (*models.Analysis, error) {
	a := &models.Analysis{}
	var structured, summary []byte
	err := row.Scan(&a.ID, &a.PageID, &a.UserID, &a.Status, &a.DesktopScreenshotURL, &a.MobileScreenshotURL,
		&structured, &summary, &a.ParentAnalysisID, &a.DeployID, &a.TriggerType,
		&a.CreatedAt, &a.StartedAt, &a.CompletedAt, &a.ErrorMessage)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan analysis: %w", err)
	}
	if a.StructuredOutput, err = unmarshalJSONMap(structured); err != nil {
		return nil, fmt.Errorf("unmarshal structured_output: %w", err)
	}
	if a.ChangesSummary, err = unmarshalJSONMap(summary); err != nil {
		return nil, fmt.Errorf("unmarshal changes_summary: %w", err)
	}
	return a, nil
}

func scanAnalysisRows(rows *sql.Rows) (*models.Analysis, error) {
	a := &models.Analysis{}
	var structured, summary []byte
	err := rows.Scan(&a.ID, &a.PageID, &a.UserID, &a.Status, &a.DesktopScreenshotURL, &a.MobileScreenshotURL,
		&structured, &summary, &a.ParentAnalysisID, &a.DeployID, &a.TriggerType,
		&a.CreatedAt, &a.StartedAt, &a.CompletedAt, &a.ErrorMessage)
	if err != nil {
		return nil, fmt.Errorf("scan analysis: %w", err)
	}
	if a.StructuredOutput, err = unmarshalJSONMap(structured); err != nil {
		return nil, fmt.Errorf("unmarshal structured_output: %w", err)
	}
	if a.ChangesSummary, err = unmarshalJSONMap(summary); err != nil {
		return nil, fmt.Errorf("unmarshal changes_summary: %w", err)
	}
	return a, nil
}
