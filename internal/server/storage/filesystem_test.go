package storage

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *FileSystemStore {
	t.Helper()
	store := NewFileSystemStore(t.TempDir())
	if err := store.EnsureDir(); err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}
	return store
}

func TestSaveAndOpen(t *testing.T) {
	store := newTestStore(t)

	content := "hello ephemeral world"
	n, err := store.Save("blob-1", strings.NewReader(content))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if n != int64(len(content)) {
		t.Errorf("expected %d bytes written, got %d", len(content), n)
	}

	rc, err := store.Open("blob-1")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(got) != content {
		t.Errorf("content mismatch: %q", got)
	}
}

func TestOpenMissing(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Open("no-such-blob"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Save("blob-1", strings.NewReader("data")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Delete("blob-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Open("blob-1"); err == nil {
		t.Error("blob still readable after delete")
	}

	// Deleting twice is not an error.
	if err := store.Delete("blob-1"); err != nil {
		t.Errorf("second delete failed: %v", err)
	}
}

func TestHandleConfinement(t *testing.T) {
	store := newTestStore(t)

	bad := []string{
		"",
		"../escape",
		"../../etc/passwd",
		"a/../../escape",
		"/etc/passwd",
	}
	for _, handle := range bad {
		t.Run("handle "+handle, func(t *testing.T) {
			if _, err := store.Save(handle, strings.NewReader("x")); !errors.Is(err, ErrInvalidHandle) {
				t.Errorf("Save(%q): expected ErrInvalidHandle, got %v", handle, err)
			}
			if _, err := store.Open(handle); !errors.Is(err, ErrInvalidHandle) {
				t.Errorf("Open(%q): expected ErrInvalidHandle, got %v", handle, err)
			}
			if err := store.Delete(handle); !errors.Is(err, ErrInvalidHandle) {
				t.Errorf("Delete(%q): expected ErrInvalidHandle, got %v", handle, err)
			}
		})
	}
}

func TestSavePartialFileCleanup(t *testing.T) {
	dir := t.TempDir()
	store := NewFileSystemStore(dir)
	if err := store.EnsureDir(); err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}

	r := io.MultiReader(strings.NewReader("partial"), failingReader{})
	if _, err := store.Save("blob-1", r); err == nil {
		t.Fatal("expected save to fail")
	}
	if _, err := os.Stat(filepath.Join(dir, "blob-1")); !os.IsNotExist(err) {
		t.Error("partial file left behind after failed save")
	}
}

func TestClear(t *testing.T) {
	dir := t.TempDir()
	store := NewFileSystemStore(dir)
	if err := store.EnsureDir(); err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}

	for _, handle := range []string{"a", "b", "c"} {
		if _, err := store.Save(handle, strings.NewReader(handle)); err != nil {
			t.Fatalf("Save(%q) failed: %v", handle, err)
		}
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty storage dir, found %d entries", len(entries))
	}

	// Clearing a missing directory is a no-op.
	missing := NewFileSystemStore(filepath.Join(dir, "does-not-exist"))
	if err := missing.Clear(); err != nil {
		t.Errorf("Clear on missing dir failed: %v", err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("read error") }
