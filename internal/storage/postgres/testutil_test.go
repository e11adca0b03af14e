package postgres

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// schemaGlob locates the migration files relative to this package.
const schemaGlob = "../migrations/postgres/*.sql"

// sharedDSN is set by TestMain when a container is running.
var sharedDSN string

func TestMain(m *testing.M) {
	os.Exit(runWithContainer(m))
}

func runWithContainer(m *testing.M) int {
	flag.Parse()
	if testing.Short() {
		return m.Run()
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		// No docker: container tests skip themselves.
		fmt.Fprintf(os.Stderr, "postgres container unavailable: %v\n", err)
		return m.Run()
	}
	defer func() { _ = container.Terminate(ctx) }()

	sharedDSN, err = container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		fmt.Fprintf(os.Stderr, "postgres connection string: %v\n", err)
		return 1
	}
	if err := applySchema(ctx, sharedDSN); err != nil {
		fmt.Fprintf(os.Stderr, "apply schema: %v\n", err)
		return 1
	}
	return m.Run()
}

func applySchema(ctx context.Context, dsn string) error {
	files, err := filepath.Glob(schemaGlob)
	if err != nil {
		return err
	}
	sort.Strings(files)

	pool, err := NewPool(ctx, dsn)
	if err != nil {
		return err
	}
	defer pool.Close()

	for _, file := range files {
		sql, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(file), err)
		}
	}
	return nil
}

// setupTestDB returns a pool on the shared container with mint_origins emptied.
func setupTestDB(t *testing.T) (*Pool, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	if sharedDSN == "" {
		t.Skip("postgres container not available")
	}

	ctx := context.Background()
	pool, err := NewPool(ctx, sharedDSN, WithMaxConns(2))
	require.NoError(t, err)

	_, err = pool.Exec(ctx, "TRUNCATE mint_origins")
	require.NoError(t, err)

	return pool, pool.Close
}
