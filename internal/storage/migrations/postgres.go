package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"moonshot-watcher/internal/storage/postgres"
)

const createVersionsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version    TEXT   PRIMARY KEY,
    applied_at BIGINT NOT NULL DEFAULT (EXTRACT(EPOCH FROM NOW()) * 1000)::BIGINT
)`

// PostgresVersions lists the embedded migration files in apply order.
func PostgresVersions() ([]string, error) {
	entries, err := fs.ReadDir(PostgresFS, "postgres")
	if err != nil {
		return nil, fmt.Errorf("read embedded postgres migrations: %w", err)
	}

	var versions []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			versions = append(versions, entry.Name())
		}
	}
	sort.Strings(versions)
	return versions, nil
}

// RunPostgresMigrations applies embedded migrations that are not yet recorded
// in schema_migrations. Each file runs in its own transaction together with
// its version row. It returns the versions applied by this call.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) ([]string, error) {
	if _, err := pool.Exec(ctx, createVersionsTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	versions, err := PostgresVersions()
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, version := range versions {
		ok, err := applyPostgres(ctx, pool, version)
		if err != nil {
			return applied, err
		}
		if ok {
			applied = append(applied, version)
		}
	}
	return applied, nil
}

func applyPostgres(ctx context.Context, pool *postgres.Pool, version string) (bool, error) {
	data, err := fs.ReadFile(PostgresFS, path.Join("postgres", version))
	if err != nil {
		return false, fmt.Errorf("read migration %s: %w", version, err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin migration %s: %w", version, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT (version) DO NOTHING`, version)
	if err != nil {
		return false, fmt.Errorf("record migration %s: %w", version, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if sql := strings.TrimSpace(string(data)); sql != "" {
		if _, err := tx.Exec(ctx, sql); err != nil {
			return false, fmt.Errorf("apply migration %s: %w", version, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit migration %s: %w", version, err)
	}
	return true, nil
}
