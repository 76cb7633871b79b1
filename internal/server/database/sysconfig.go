package database

import (
	"context"
	"fmt"
)

const configColumns = "default_storage_quota, max_file_size, max_file_size_linked, allow_registration, updated_at"

// Configs manages the singleton system configuration row. The row is created
// with the supplied defaults on first read.
type Configs struct {
	db       *DB
	defaults SystemConfig
}

// NewConfigs creates the configuration repository. defaults seed the row the
// first time Get is called against an empty table.
func NewConfigs(db *DB, defaults SystemConfig) *Configs {
	return &Configs{db: db, defaults: defaults}
}

// Get returns the system configuration, creating it with defaults if absent.
func (c *Configs) Get(ctx context.Context) (*SystemConfig, error) {
	_, err := c.db.Pool.Exec(ctx, `
		INSERT INTO system_config (id, default_storage_quota, max_file_size, max_file_size_linked, allow_registration)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`,
		c.defaults.DefaultStorageQuota,
		c.defaults.MaxFileSize,
		c.defaults.MaxFileSizeLinked,
		c.defaults.AllowRegistration,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to seed system config: %w", err)
	}

	cfg := &SystemConfig{}
	err = c.db.Pool.QueryRow(ctx,
		"SELECT "+configColumns+" FROM system_config WHERE id = 1").Scan(
		&cfg.DefaultStorageQuota,
		&cfg.MaxFileSize,
		&cfg.MaxFileSizeLinked,
		&cfg.AllowRegistration,
		&cfg.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read system config: %w", err)
	}
	return cfg, nil
}

// Update writes the full configuration row and returns the stored state.
func (c *Configs) Update(ctx context.Context, cfg *SystemConfig) (*SystemConfig, error) {
	_, err := c.db.Pool.Exec(ctx, `
		UPDATE system_config
		SET default_storage_quota = $1, max_file_size = $2,
		    max_file_size_linked = $3, allow_registration = $4, updated_at = NOW()
		WHERE id = 1
	`,
		cfg.DefaultStorageQuota,
		cfg.MaxFileSize,
		cfg.MaxFileSizeLinked,
		cfg.AllowRegistration,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update system config: %w", err)
	}
	return c.Get(ctx)
}
