package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"vanish/internal/server/database"
	"vanish/internal/server/storage"
)

// In-memory store fakes. Reserve/Release and Claim are mutex-serialized to
// model the atomicity the real stores provide.

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]*database.User
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: make(map[string]*database.User)}
}

func (f *fakeUsers) Create(_ context.Context, user *database.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == user.Username {
			return database.ErrUsernameTaken
		}
	}
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*database.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, database.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (*database.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, database.ErrUserNotFound
}

func (f *fakeUsers) List(_ context.Context) ([]*database.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*database.User, 0, len(f.users))
	for _, u := range f.users {
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeUsers) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return database.ErrUserNotFound
	}
	delete(f.users, id)
	return nil
}

func (f *fakeUsers) SetQuota(_ context.Context, id string, quota *int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return database.ErrUserNotFound
	}
	u.StorageQuota = quota
	return nil
}

func (f *fakeUsers) AdminExists(_ context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Role == database.RoleAdmin {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUsers) ReserveStorage(_ context.Context, id string, n, limit int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return false, nil
	}
	if u.StorageUsed+n > limit {
		return false, nil
	}
	u.StorageUsed += n
	return true, nil
}

func (f *fakeUsers) ReleaseStorage(_ context.Context, id string, n int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil
	}
	u.StorageUsed -= n
	if u.StorageUsed < 0 {
		u.StorageUsed = 0
	}
	return nil
}

func (f *fakeUsers) storageUsed(id string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		return u.StorageUsed
	}
	return -1
}

type fakeFiles struct {
	mu    sync.Mutex
	files map[string]*database.File
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{files: make(map[string]*database.File)}
}

func (f *fakeFiles) Create(_ context.Context, file *database.File) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *file
	f.files[file.ID] = &cp
	return nil
}

func (f *fakeFiles) GetByID(_ context.Context, id string) (*database.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[id]
	if !ok {
		return nil, database.ErrFileNotFound
	}
	cp := *file
	return &cp, nil
}

func (f *fakeFiles) ListByOwner(_ context.Context, ownerID string) ([]*database.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*database.File
	for _, file := range f.files {
		if file.OwnerID == ownerID {
			cp := *file
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeFiles) Claim(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[id]; !ok {
		return false, nil
	}
	delete(f.files, id)
	return true, nil
}

type fakeConfigs struct {
	mu  sync.Mutex
	cfg database.SystemConfig
}

func newFakeConfigs(cfg database.SystemConfig) *fakeConfigs {
	return &fakeConfigs{cfg: cfg}
}

func (f *fakeConfigs) Get(_ context.Context) (*database.SystemConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := f.cfg
	return &cp, nil
}

func (f *fakeConfigs) Update(_ context.Context, cfg *database.SystemConfig) (*database.SystemConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = *cfg
	f.cfg.UpdatedAt = time.Now().UTC()
	cp := f.cfg
	return &cp, nil
}

type fakeBlobs struct {
	mu       sync.Mutex
	blobs    map[string][]byte
	failSave bool
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{blobs: make(map[string][]byte)}
}

func (f *fakeBlobs) Save(handle string, data io.Reader) (int64, error) {
	if f.failSave {
		return 0, errors.New("disk full")
	}
	if !filepath.IsLocal(handle) {
		return 0, storage.ErrInvalidHandle
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[handle] = b
	return int64(len(b)), nil
}

func (f *fakeBlobs) Open(handle string) (io.ReadCloser, error) {
	if !filepath.IsLocal(handle) {
		return nil, fmt.Errorf("%w: %q", storage.ErrInvalidHandle, handle)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blobs[handle]
	if !ok {
		return nil, fmt.Errorf("failed to open blob %s: %w", handle, fs.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *fakeBlobs) Delete(handle string) error {
	if !filepath.IsLocal(handle) {
		return fmt.Errorf("%w: %q", storage.ErrInvalidHandle, handle)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blobs, handle)
	return nil
}

func (f *fakeBlobs) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs = make(map[string][]byte)
	return nil
}

func (f *fakeBlobs) EnsureDir() error { return nil }

func (f *fakeBlobs) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.blobs)
}

type fakeSignal struct {
	mu         sync.Mutex
	registered map[string]time.Duration
	cancelled  []string
	flushed    bool
}

func newFakeSignal() *fakeSignal {
	return &fakeSignal{registered: make(map[string]time.Duration)}
}

func (f *fakeSignal) Register(_ context.Context, key, _ string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered[key] = ttl
	return nil
}

func (f *fakeSignal) Cancel(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.registered, key)
	f.cancelled = append(f.cancelled, key)
	return nil
}

func (f *fakeSignal) Flush(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = make(map[string]time.Duration)
	f.flushed = true
	return nil
}

func (f *fakeSignal) ttlOf(key string) (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ttl, ok := f.registered[key]
	return ttl, ok
}

type fakeResetter struct {
	calls int
}

func (f *fakeResetter) ResetAll(_ context.Context) error {
	f.calls++
	return nil
}
