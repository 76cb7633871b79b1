package service

import (
	"context"
	"errors"
	"testing"

	"vanish/internal/server/database"
)

func int64p(v int64) *int64 { return &v }
func boolp(v bool) *bool    { return &v }

func newConfigFixture(cfg database.SystemConfig) (*ConfigService, *fakeConfigs) {
	store := newFakeConfigs(cfg)
	return NewConfigService(store), store
}

func TestConfigUpdateLinked(t *testing.T) {
	ctx := context.Background()

	t.Run("linked quota change recomputes ceiling", func(t *testing.T) {
		svc, _ := newConfigFixture(database.SystemConfig{
			DefaultStorageQuota: 1024 * MB,
			MaxFileSize:         950 * MB,
			MaxFileSizeLinked:   true,
		})

		cfg, err := svc.Update(ctx, ConfigPatch{DefaultStorageQuotaMB: int64p(500)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.DefaultStorageQuota != 500*MB {
			t.Errorf("expected quota 500MB, got %d", cfg.DefaultStorageQuota)
		}
		// floor(500MB * 0.95) = 475MB exactly.
		if cfg.MaxFileSize != 475*MB {
			t.Errorf("expected ceiling 475MB, got %d", cfg.MaxFileSize)
		}
	})

	t.Run("linked ignores supplied ceiling", func(t *testing.T) {
		svc, _ := newConfigFixture(database.SystemConfig{
			DefaultStorageQuota: 1000 * MB,
			MaxFileSize:         950 * MB,
			MaxFileSizeLinked:   true,
		})

		cfg, err := svc.Update(ctx, ConfigPatch{MaxFileSizeMB: int64p(10000)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.MaxFileSize != 950*MB {
			t.Errorf("supplied ceiling should be ignored while linked, got %d", cfg.MaxFileSize)
		}
	})

	t.Run("relinking recomputes immediately", func(t *testing.T) {
		svc, _ := newConfigFixture(database.SystemConfig{
			DefaultStorageQuota: 1000 * MB,
			MaxFileSize:         100 * MB,
			MaxFileSizeLinked:   false,
		})

		cfg, err := svc.Update(ctx, ConfigPatch{MaxFileSizeLinked: boolp(true)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.MaxFileSize != 950*MB {
			t.Errorf("expected recomputed ceiling 950MB, got %d", cfg.MaxFileSize)
		}
	})
}

func TestConfigUpdateUnlinked(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects ceiling above 95% of quota", func(t *testing.T) {
		svc, store := newConfigFixture(database.SystemConfig{
			DefaultStorageQuota: 1000 * MB,
			MaxFileSize:         500 * MB,
			MaxFileSizeLinked:   false,
		})

		_, err := svc.Update(ctx, ConfigPatch{MaxFileSizeMB: int64p(951)})
		if !errors.Is(err, ErrMaxFileSizeTooLarge) {
			t.Fatalf("expected ErrMaxFileSizeTooLarge, got %v", err)
		}
		// Rejection must not write anything.
		cfg, _ := store.Get(ctx)
		if cfg.MaxFileSize != 500*MB {
			t.Errorf("stored ceiling mutated on rejection: %d", cfg.MaxFileSize)
		}
	})

	t.Run("accepts ceiling at the bound", func(t *testing.T) {
		svc, _ := newConfigFixture(database.SystemConfig{
			DefaultStorageQuota: 1000 * MB,
			MaxFileSize:         500 * MB,
			MaxFileSizeLinked:   false,
		})

		cfg, err := svc.Update(ctx, ConfigPatch{MaxFileSizeMB: int64p(950)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.MaxFileSize != 950*MB {
			t.Errorf("expected 950MB, got %d", cfg.MaxFileSize)
		}
	})

	t.Run("quota shrink clamps stored ceiling", func(t *testing.T) {
		svc, _ := newConfigFixture(database.SystemConfig{
			DefaultStorageQuota: 1000 * MB,
			MaxFileSize:         950 * MB,
			MaxFileSizeLinked:   false,
		})

		cfg, err := svc.Update(ctx, ConfigPatch{DefaultStorageQuotaMB: int64p(100)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.MaxFileSize != 95*MB {
			t.Errorf("expected clamped ceiling 95MB, got %d", cfg.MaxFileSize)
		}
	})
}

func TestConfigUpdateRejectsNonPositiveValues(t *testing.T) {
	ctx := context.Background()
	svc, store := newConfigFixture(database.SystemConfig{
		DefaultStorageQuota: 1000 * MB,
		MaxFileSize:         950 * MB,
		MaxFileSizeLinked:   true,
	})

	patches := map[string]ConfigPatch{
		"zero quota":        {DefaultStorageQuotaMB: int64p(0)},
		"negative quota":    {DefaultStorageQuotaMB: int64p(-500)},
		"zero max size":     {MaxFileSizeMB: int64p(0)},
		"negative max size": {MaxFileSizeMB: int64p(-1)},
	}
	for name, patch := range patches {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.Update(ctx, patch); !errors.Is(err, ErrInvalidConfigValue) {
				t.Errorf("expected ErrInvalidConfigValue, got %v", err)
			}
			cfg, _ := store.Get(ctx)
			if cfg.DefaultStorageQuota != 1000*MB || cfg.MaxFileSize != 950*MB {
				t.Errorf("rejected update mutated stored config: %+v", cfg)
			}
		})
	}
}

// The ceiling bound holds after any sequence of updates.
func TestCeilingConsistency(t *testing.T) {
	ctx := context.Background()
	svc, store := newConfigFixture(database.SystemConfig{
		DefaultStorageQuota: 1024 * MB,
		MaxFileSize:         950 * MB,
		MaxFileSizeLinked:   true,
	})

	patches := []ConfigPatch{
		{DefaultStorageQuotaMB: int64p(2000)},
		{MaxFileSizeLinked: boolp(false)},
		{MaxFileSizeMB: int64p(1900)},
		{DefaultStorageQuotaMB: int64p(50)},
		{MaxFileSizeLinked: boolp(true)},
		{DefaultStorageQuotaMB: int64p(333), MaxFileSizeLinked: boolp(false)},
	}

	for i, patch := range patches {
		if _, err := svc.Update(ctx, patch); err != nil {
			t.Fatalf("update %d failed: %v", i, err)
		}
		cfg, _ := store.Get(ctx)
		if limit := MaxAllowedFileSize(cfg.DefaultStorageQuota); cfg.MaxFileSize > limit {
			t.Errorf("after update %d: ceiling %d exceeds bound %d", i, cfg.MaxFileSize, limit)
		}
	}
}

func TestConfigRegistrationToggle(t *testing.T) {
	ctx := context.Background()
	svc, _ := newConfigFixture(database.SystemConfig{
		DefaultStorageQuota: 1024 * MB,
		MaxFileSize:         950 * MB,
		MaxFileSizeLinked:   true,
		AllowRegistration:   true,
	})

	cfg, err := svc.Update(ctx, ConfigPatch{AllowRegistration: boolp(false)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AllowRegistration {
		t.Error("expected registration disabled")
	}
	// Untouched fields keep their values.
	if cfg.DefaultStorageQuota != 1024*MB || cfg.MaxFileSize != 950*MB {
		t.Errorf("unrelated fields mutated: %+v", cfg)
	}
}
