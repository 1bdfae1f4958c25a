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

// DeployStore is a raw-SQL repository over the deploys table.
type DeployStore struct {
	db *sql.DB
}

// NewDeployStore creates a DeployStore over db.
func NewDeployStore(db *sql.DB) *DeployStore {
	return &DeployStore{db: db}
}

// Create inserts a webhook-ingested deploy.
func (s *DeployStore) Create(ctx context.Context, d *models.Deploy) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.Status == "" {
		d.Status = models.DeployStatusPending
	}
	files, err := marshalJSONStrings(d.ChangedFiles)
	if err != nil {
		return fmt.Errorf("marshal changed_files: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO deploys (id, user_id, repo_id, commit_sha, full_name, status, changed_files)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.ID, d.UserID, d.RepoID, d.CommitSHA, d.FullName, d.Status, files)
	if err != nil {
		return fmt.Errorf("insert deploy: %w", err)
	}
	return nil
}

// Get retrieves a deploy by id.
func (s *DeployStore) Get(ctx context.Context, id string) (*models.Deploy, error) {
	row := s.db.QueryRowContext(ctx, deploySelect+` WHERE id = $1`, id)
	return scanDeploy(row)
}

// MarkScanning transitions a deploy from pending to scanning.
func (s *DeployStore) MarkScanning(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE deploys SET status = $1 WHERE id = $2 AND status = $3`,
		models.DeployStatusScanning, id, models.DeployStatusPending)
	if err != nil {
		return fmt.Errorf("mark deploy scanning: %w", err)
	}
	return requireRowsAffected(res)
}

// MarkComplete transitions a deploy to complete.
func (s *DeployStore) MarkComplete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE deploys SET status = $1, completed_at = $2 WHERE id = $3`,
		models.DeployStatusComplete, time.Now(), id)
	if err != nil {
		return fmt.Errorf("mark deploy complete: %w", err)
	}
	return requireRowsAffected(res)
}

const deploySelect = `
	SELECT id, user_id, repo_id, commit_sha, full_name, status, changed_files, created_at, completed_at
	FROM deploys`

func scanDeploy(row rowScanner) (*models.Deploy, error) {
	d := &models.Deploy{}
	var files []byte
	err := row.Scan(&d.ID, &d.UserID, &d.RepoID, &d.CommitSHA, &d.FullName, &d.Status, &files,
		&d.CreatedAt, &d.CompletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan deploy: %w", err)
	}
	if d.ChangedFiles, err = unmarshalJSONStrings(files); err != nil {
		return nil, fmt.Errorf("unmarshal changed_files: %w", err)
	}
	return d, nil
}
