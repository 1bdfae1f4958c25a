// Package database provides a testcontainers-backed PostgreSQL client for
// integration tests, mirroring the teacher's test/database helper.
package database

import (
	"context"
	"testing"
	"time"

	"github.com/pagewatch/sentinel/pkg/database"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// NewTestClient creates a test database client by spinning up a
// testcontainer with PostgreSQL; no external database URL is read.
// NewClient runs the embedded migrations, so the schema is always current
// with pkg/database/migrations.
func NewTestClient(t *testing.T) *database.Client {
	ctx := context.Background()

	cfg := database.Config{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 15 * time.Minute,
		SSLMode:         "disable",
	}

	t.Log("using testcontainers for PostgreSQL")
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("sentinel_test"),
		postgres.WithUsername("sentinel_test"),
		postgres.WithPassword("sentinel_test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg.Host = host
	cfg.Port = port.Int()
	cfg.User = "sentinel_test"
	cfg.Password = "sentinel_test"
	cfg.Database = "sentinel_test"

	client, err := database.NewClient(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}
