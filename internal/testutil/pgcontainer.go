package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"judgebench/internal/migrations"
)

type PGContainer struct {
	Container  testcontainers.Container
	ConnString string
}

// NewPGContainerWithCleanup starts a migrated Postgres container for the test and
// terminates it on cleanup. The test is skipped unless PG_INTEGRATION=1.
func NewPGContainerWithCleanup(ctx context.Context, tb testing.TB) *PGContainer {
	tb.Helper()
	if os.Getenv("PG_INTEGRATION") != "1" {
		tb.Skip("set PG_INTEGRATION=1 to run Postgres integration tests")
	}

	c, err := createPGContainer(ctx)
	if err != nil {
		tb.Fatalf("failed to create postgres container: %v", err)
	}
	tb.Cleanup(func() {
		if err := testcontainers.TerminateContainer(c.Container); err != nil {
			tb.Logf("failed to terminate postgres container: %v", err)
		}
	})
	return c
}

func createPGContainer(ctx context.Context) (*PGContainer, error) {
	pgContainer, err := postgres.Run(ctx,
		"postgres:17.5",
		postgres.WithDatabase("judgebench_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}
	if err := migrations.Run(connStr); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return &PGContainer{Container: pgContainer, ConnString: connStr}, nil
}
