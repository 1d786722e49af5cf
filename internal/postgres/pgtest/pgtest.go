// Package pgtest starts a throwaway Postgres for integration tests.
package pgtest

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/imrishuroy/go-storefront-checkout/internal/postgres"
)

// Options control how the database is prepared.
type Options struct {
	// SkipMigrations leaves the database empty so a test can create its own schema.
	SkipMigrations bool
}

// Start runs postgres:16-alpine and returns a pool plus its DSN. The test is skipped under
// -short or when no container runtime is reachable.
func Start(t *testing.T, opts Options) (*pgxpool.Pool, string) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("testuser"),
		tcpostgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	if !opts.SkipMigrations {
		require.NoError(t, postgres.Migrate(dsn))
	}

	pool, err := postgres.Connect(ctx, dsn, false)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool, dsn
}
