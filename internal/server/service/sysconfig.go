package service

import (
	"context"
	"fmt"

	"vanish/internal/server/database"
)

// MB is the unit the admin surface speaks in.
const MB = int64(1024 * 1024)

// ConfigPatch is a partial system configuration update. Nil fields keep
// their stored value.
type ConfigPatch struct {
	DefaultStorageQuotaMB *int64
	MaxFileSizeMB         *int64
	MaxFileSizeLinked     *bool
	AllowRegistration     *bool
}

// ConfigService manages the system configuration singleton and enforces the
// ceiling/quota consistency rule: max file size never exceeds 95% of the
// default quota, whether linked or not.
type ConfigService struct {
	store ConfigStore
}

// NewConfigService creates the configuration manager.
func NewConfigService(store ConfigStore) *ConfigService {
	return &ConfigService{store: store}
}

// MaxAllowedFileSize returns the largest permissible max-file-size for a
// given default quota: floor(quota * 0.95).
func MaxAllowedFileSize(quota int64) int64 {
	return quota * 95 / 100
}

// Get returns the current configuration, creating defaults if absent.
func (c *ConfigService) Get(ctx context.Context) (*database.SystemConfig, error) {
	return c.store.Get(ctx)
}

// Update applies a partial update. Supplied quota and max file size values
// must be positive.
//   - While linked, max file size is always recomputed as 95% of the quota
//     and any explicitly supplied value is ignored.
//   - While unlinked, an explicit max file size above the 95% bound is
//     rejected; a quota shrink without a new max file size silently clamps
//     the stored value down to the new bound.
func (c *ConfigService) Update(ctx context.Context, patch ConfigPatch) (*database.SystemConfig, error) {
	if patch.DefaultStorageQuotaMB != nil && *patch.DefaultStorageQuotaMB <= 0 {
		return nil, ErrInvalidConfigValue
	}
	if patch.MaxFileSizeMB != nil && *patch.MaxFileSizeMB <= 0 {
		return nil, ErrInvalidConfigValue
	}

	cfg, err := c.store.Get(ctx)
	if err != nil {
		return nil, err
	}

	linked := cfg.MaxFileSizeLinked
	if patch.MaxFileSizeLinked != nil {
		linked = *patch.MaxFileSizeLinked
	}

	quota := cfg.DefaultStorageQuota
	if patch.DefaultStorageQuotaMB != nil {
		quota = *patch.DefaultStorageQuotaMB * MB
	}

	limit := MaxAllowedFileSize(quota)
	maxFileSize := cfg.MaxFileSize

	switch {
	case linked:
		maxFileSize = limit
	case patch.MaxFileSizeMB != nil:
		requested := *patch.MaxFileSizeMB * MB
		if requested > limit {
			return nil, fmt.Errorf("%w (%d MB)", ErrMaxFileSizeTooLarge, limit/MB)
		}
		maxFileSize = requested
	case maxFileSize > limit:
		maxFileSize = limit
	}

	allowRegistration := cfg.AllowRegistration
	if patch.AllowRegistration != nil {
		allowRegistration = *patch.AllowRegistration
	}

	return c.store.Update(ctx, &database.SystemConfig{
		DefaultStorageQuota: quota,
		MaxFileSize:         maxFileSize,
		MaxFileSizeLinked:   linked,
		AllowRegistration:   allowRegistration,
	})
}
