package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migrations contains all database migrations in order.
// Each migration has a version key and SQL to execute.
var migrations = []struct {
	Version string
	SQL     string
}{
	{
		Version: "000001_create_users",
		SQL: `
			CREATE TABLE IF NOT EXISTS users (
				id            VARCHAR(36)  PRIMARY KEY,
				username      VARCHAR(64)  NOT NULL UNIQUE,
				password_hash VARCHAR(255) NOT NULL,
				role          VARCHAR(16)  NOT NULL DEFAULT 'user',
				storage_used  BIGINT       NOT NULL DEFAULT 0 CHECK (storage_used >= 0),
				storage_quota BIGINT,
				created_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW()
			);
		`,
	},
	{
		Version: "000002_create_files",
		SQL: `
			CREATE TABLE IF NOT EXISTS files (
				id                VARCHAR(36)  PRIMARY KEY,
				owner_id          VARCHAR(36)  NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				original_name     VARCHAR(255) NOT NULL,
				path              VARCHAR(255) NOT NULL,
				size              BIGINT       NOT NULL CHECK (size > 0),
				created_at        TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
				expires_at        TIMESTAMPTZ,
				password_hash     VARCHAR(255),
				one_time_download BOOLEAN      NOT NULL DEFAULT FALSE
			);
			CREATE INDEX IF NOT EXISTS idx_files_owner_id ON files(owner_id);
			CREATE INDEX IF NOT EXISTS idx_files_expires_at ON files(expires_at);
		`,
	},
	{
		Version: "000003_create_system_config",
		SQL: `
			CREATE TABLE IF NOT EXISTS system_config (
				id                    SMALLINT    PRIMARY KEY CHECK (id = 1),
				default_storage_quota BIGINT      NOT NULL,
				max_file_size         BIGINT      NOT NULL,
				max_file_size_linked  BOOLEAN     NOT NULL DEFAULT TRUE,
				allow_registration    BOOLEAN     NOT NULL DEFAULT TRUE,
				updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
		`,
	},
}

// DB wraps a pgxpool connection pool and provides health checks and migrations.
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new database connection pool.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("connected to database")
	return &DB{Pool: pool}, nil
}

// RunMigrations applies all pending database migrations in order.
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists bool
		err := db.Pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)",
			m.Version,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration status for %s: %w", m.Version, err)
		}
		if exists {
			continue
		}

		tx, err := db.Pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %s: %w", m.Version, err)
		}

		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to execute migration %s: %w", m.Version, err)
		}

		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.Version); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.Version, err)
		}

		slog.Info("applied migration", "version", m.Version)
	}

	return nil
}

// ResetAll wipes every table. Used by the admin factory reset.
func (db *DB) ResetAll(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, "TRUNCATE files, users, system_config CASCADE")
	if err != nil {
		return fmt.Errorf("failed to reset database: %w", err)
	}
	return nil
}

// HealthCheck verifies the database connection is alive.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}
