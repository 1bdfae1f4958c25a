package database

import (
	"context"
	stdsql "database/sql"
	"fmt"
)

// CreateGINIndexes creates full-text search GIN indexes for PostgreSQL.
// This enables efficient full-text search over detected-change descriptions,
// the one free-text column worth indexing this way in this schema.
func CreateGINIndexes(ctx context.Context, db *stdsql.DB) error {
	_, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_detected_changes_description_gin
		ON detected_changes USING gin(to_tsvector('english', COALESCE(description, '')))`)
	if err != nil {
		return fmt.Errorf("failed to create description GIN index: %w", err)
	}

	return nil
}
