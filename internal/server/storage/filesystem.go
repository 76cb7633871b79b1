package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrInvalidHandle is returned when a blob handle would resolve to a path
// outside the storage root.
var ErrInvalidHandle = errors.New("handle resolves outside storage root")

// Store defines the interface for physical blob storage backends.
// This allows swapping the filesystem for S3 or other backends later.
type Store interface {
	Save(handle string, data io.Reader) (int64, error)
	Open(handle string) (io.ReadCloser, error)
	Delete(handle string) error
	Clear() error
	EnsureDir() error
}

// FileSystemStore stores blobs on the local filesystem, one file per handle,
// confined to a base directory.
type FileSystemStore struct {
	basePath string
}

// NewFileSystemStore creates a new filesystem storage backend.
func NewFileSystemStore(basePath string) *FileSystemStore {
	return &FileSystemStore{basePath: basePath}
}

// EnsureDir creates the storage directory if it doesn't exist.
func (fs *FileSystemStore) EnsureDir() error {
	if err := os.MkdirAll(fs.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", fs.basePath, err)
	}
	return nil
}

// resolve maps a handle to a path under the storage root. Handles that are
// empty, absolute, or traverse upward are rejected.
func (fs *FileSystemStore) resolve(handle string) (string, error) {
	if handle == "" || !filepath.IsLocal(handle) {
		return "", fmt.Errorf("%w: %q", ErrInvalidHandle, handle)
	}
	return filepath.Join(fs.basePath, handle), nil
}

// Save writes data from a reader to the file named by handle.
// Returns the number of bytes written.
func (fs *FileSystemStore) Save(handle string, data io.Reader) (int64, error) {
	filePath, err := fs.resolve(handle)
	if err != nil {
		return 0, err
	}

	file, err := os.Create(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to create file %s: %w", filePath, err)
	}
	defer file.Close()

	n, err := io.Copy(file, data)
	if err != nil {
		// Clean up partial file on error
		os.Remove(filePath)
		return 0, fmt.Errorf("failed to write file: %w", err)
	}

	return n, nil
}

// Open returns a reader over the stored blob.
func (fs *FileSystemStore) Open(handle string) (io.ReadCloser, error) {
	filePath, err := fs.resolve(handle)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob %s: %w", handle, err)
	}
	return file, nil
}

// Delete removes the stored blob. Missing blobs are not an error.
func (fs *FileSystemStore) Delete(handle string) error {
	filePath, err := fs.resolve(handle)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file %s: %w", filePath, err)
	}
	return nil
}

// Clear removes every blob under the storage root. Used by the admin
// factory reset.
func (fs *FileSystemStore) Clear() error {
	entries, err := os.ReadDir(fs.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read storage directory: %w", err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(fs.basePath, entry.Name())); err != nil {
			return fmt.Errorf("failed to remove %s: %w", entry.Name(), err)
		}
	}
	return nil
}
