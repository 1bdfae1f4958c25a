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

// PageStore is a raw-SQL repository over the pages table.
type PageStore struct {
	db *sql.DB
}

// NewPageStore creates a PageStore over db.
func NewPageStore(db *sql.DB) *PageStore {
	return &PageStore{db: db}
}

// Create inserts a new watched page.
func (s *PageStore) Create(ctx context.Context, p *models.Page) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.ScanFrequency == "" {
		p.ScanFrequency = models.ScanFrequencyDaily
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pages (id, user_id, url, scan_frequency, stable_baseline_id, last_scan_id, metric_focus)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.UserID, p.URL, p.ScanFrequency, p.StableBaselineID, p.LastScanID, p.MetricFocus)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert page: %w", err)
	}
	return nil
}

// Get retrieves a page by id.
func (s *PageStore) Get(ctx context.Context, id string) (*models.Page, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, url, scan_frequency, stable_baseline_id, last_scan_id, metric_focus, created_at, updated_at
		FROM pages WHERE id = $1`, id)
	return scanPage(row)
}

// GetByUserAndURL looks up a page by its unique (user_id, url) pair.
func (s *PageStore) GetByUserAndURL(ctx context.Context, userID, url string) (*models.Page, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, url, scan_frequency, stable_baseline_id, last_scan_id, metric_focus, created_at, updated_at
		FROM pages WHERE user_id = $1 AND url = $2`, userID, url)
	return scanPage(row)
}

// ListByFrequency lists pages scheduled at the given scan frequency, for
// scheduler fan-out.
func (s *PageStore) ListByFrequency(ctx context.Context, freq models.ScanFrequency) ([]*models.Page, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, url, scan_frequency, stable_baseline_id, last_scan_id, metric_focus, created_at, updated_at
		FROM pages WHERE scan_frequency = $1 ORDER BY id`, freq)
	if err != nil {
		return nil, fmt.Errorf("list pages by frequency: %w", err)
	}
	defer rows.Close()

	var out []*models.Page
	for rows.Next() {
		p, err := scanPageRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListByUser lists all of a user's pages, for the deploy-triggered scan
// path, which then filters them against the deploy's changed files.
func (s *PageStore) ListByUser(ctx context.Context, userID string) ([]*models.Page, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, url, scan_frequency, stable_baseline_id, last_scan_id, metric_focus, created_at, updated_at
		FROM pages WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list pages by user: %w", err)
	}
	defer rows.Close()

	var out []*models.Page
	for rows.Next() {
		p, err := scanPageRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetStableBaseline records the analysis considered canonical for the page.
func (s *PageStore) SetStableBaseline(ctx context.Context, pageID, analysisID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pages SET stable_baseline_id = $1, updated_at = $2 WHERE id = $3`,
		analysisID, time.Now(), pageID)
	if err != nil {
		return fmt.Errorf("set stable baseline: %w", err)
	}
	return requireRowsAffected(res)
}

// SetLastScan records the most recent analysis attempted for the page.
func (s *PageStore) SetLastScan(ctx context.Context, pageID, analysisID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pages SET last_scan_id = $1, updated_at = $2 WHERE id = $3`,
		analysisID, time.Now(), pageID)
	if err != nil {
		return fmt.Errorf("set last scan: %w", err)
	}
	return requireRowsAffected(res)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPage(row rowScanner) (*models.Page, error) {
	p := &models.Page{}
	err := row.Scan(&p.ID, &p.UserID, &p.URL, &p.ScanFrequency, &p.StableBaselineID, &p.LastScanID,
		&p.MetricFocus, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan page: %w", err)
	}
	return p, nil
}

func scanPageRows(rows *sql.Rows) (*models.Page, error) {
	p := &models.Page{}
	err := rows.Scan(&p.ID, &p.UserID, &p.URL, &p.ScanFrequency, &p.StableBaselineID, &p.LastScanID,
		&p.MetricFocus, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan page: %w", err)
	}
	return p, nil
}

func requireRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	// pgx reports unique_violation as SQLSTATE 23505; matching on the message
	// avoids an explicit pgconn import in every store file.
	return err != nil && (containsCode(err, "23505"))
}

func containsCode(err error, code string) bool {
	type sqlStater interface{ SQLState() string }
	var s sqlStater
	if errors.As(err, &s) {
		return s.SQLState() == code
	}
	return false
}
