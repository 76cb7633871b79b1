package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"vanish/internal/server/database"
)

// Admitter decides whether an upload fits under the system file-size ceiling
// and the owner's remaining quota, and reserves the quota when it does.
type Admitter struct {
	users   UserStore
	configs ConfigStore
}

// NewAdmitter creates an admission controller.
func NewAdmitter(users UserStore, configs ConfigStore) *Admitter {
	return &Admitter{users: users, configs: configs}
}

// TryAdmit admits an upload of size bytes for the given owner, durably
// incrementing the owner's storage_used on success. Returns ErrEmptyFile,
// ErrFileTooLarge or ErrQuotaExceeded when the upload does not fit; no state
// is mutated on rejection.
func (a *Admitter) TryAdmit(ctx context.Context, ownerID string, size int64) error {
	if size <= 0 {
		return ErrEmptyFile
	}

	cfg, err := a.configs.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to load system config: %w", err)
	}
	if size > cfg.MaxFileSize {
		return ErrFileTooLarge
	}

	owner, err := a.users.GetByID(ctx, ownerID)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to load owner: %w", err)
	}

	quota := cfg.DefaultStorageQuota
	if owner.StorageQuota != nil {
		quota = *owner.StorageQuota
	}

	// Fast path: fail cheaply before touching storage. The atomic reserve
	// below re-checks under the store's own serialization, which closes the
	// race window between this read and the commit.
	if owner.StorageUsed+size > quota {
		return ErrQuotaExceeded
	}

	ok, err := a.users.ReserveStorage(ctx, ownerID, size, quota)
	if err != nil {
		return fmt.Errorf("failed to reserve storage: %w", err)
	}
	if !ok {
		return ErrQuotaExceeded
	}
	return nil
}

// Release returns a reservation to the owner's quota. Called on every
// deletion path and when a physical write fails right after admission.
func (a *Admitter) Release(ctx context.Context, ownerID string, size int64) {
	if err := a.users.ReleaseStorage(ctx, ownerID, size); err != nil {
		slog.Error("failed to release storage reservation",
			"owner_id", ownerID, "size", size, "error", err)
	}
}
