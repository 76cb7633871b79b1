package service

import (
	"context"

	"vanish/internal/server/database"
)

// Store interfaces consumed by the service layer. The database package
// provides the production implementations; tests use in-memory fakes.
// Concurrency correctness lives behind these interfaces: ReserveStorage and
// Claim must be atomic at the store level, because multiple service
// instances may run against the same stores.

// UserStore persists accounts and their storage accounting.
type UserStore interface {
	Create(ctx context.Context, user *database.User) error
	GetByID(ctx context.Context, id string) (*database.User, error)
	GetByUsername(ctx context.Context, username string) (*database.User, error)
	List(ctx context.Context) ([]*database.User, error)
	Delete(ctx context.Context, id string) error
	SetQuota(ctx context.Context, id string, quota *int64) error
	AdminExists(ctx context.Context) (bool, error)

	// ReserveStorage increments storage_used by n only when the result
	// stays within limit, reporting whether the increment was applied.
	ReserveStorage(ctx context.Context, id string, n, limit int64) (bool, error)
	// ReleaseStorage decrements storage_used by n, clamping at zero.
	ReleaseStorage(ctx context.Context, id string, n int64) error
}

// FileStore persists file metadata records.
type FileStore interface {
	Create(ctx context.Context, file *database.File) error
	GetByID(ctx context.Context, id string) (*database.File, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*database.File, error)

	// Claim atomically deletes the record if present and reports whether
	// this caller performed the deletion.
	Claim(ctx context.Context, id string) (bool, error)
}

// ConfigStore persists the singleton system configuration.
type ConfigStore interface {
	Get(ctx context.Context) (*database.SystemConfig, error)
	Update(ctx context.Context, cfg *database.SystemConfig) (*database.SystemConfig, error)
}

// Resetter wipes all durable records. Used by the admin factory reset.
type Resetter interface {
	ResetAll(ctx context.Context) error
}
