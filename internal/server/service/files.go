package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"vanish/internal/server/database"
	"vanish/internal/server/expiry"
	"vanish/internal/server/storage"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Expiration presets accepted at upload time.
const (
	ExpirationPermanent = "permanent"
	ExpirationMinute    = "1m"
	ExpirationHour      = "1h"
	ExpirationDay       = "24h"
	ExpirationWeek      = "7d"
)

// UploadOptions carries the optional settings for a new upload.
type UploadOptions struct {
	Expiration string
	Password   string
	OneTime    bool
}

// UploadResult is returned after a successful upload.
type UploadResult struct {
	UUID      string     `json:"uuid"`
	Name      string     `json:"name"`
	Size      int64      `json:"size"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// FileInfo is the public metadata view of a file. It never carries the
// password hash or the blob handle.
type FileInfo struct {
	UUID        string     `json:"uuid"`
	Name        string     `json:"name"`
	Size        int64      `json:"size"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	HasPassword bool       `json:"has_password"`
	OneTime     bool       `json:"one_time_download"`
}

// DownloadStream is an open blob stream. Close must always be called; for
// single-use files it runs the burn-on-access cleanup regardless of whether
// the copy succeeded.
type DownloadStream struct {
	Name string
	Size int64

	rc      io.ReadCloser
	cleanup func()
}

func (d *DownloadStream) Read(p []byte) (int, error) {
	return d.rc.Read(p)
}

func (d *DownloadStream) Close() error {
	err := d.rc.Close()
	if d.cleanup != nil {
		d.cleanup()
		d.cleanup = nil
	}
	return err
}

// FileService is the object lifecycle manager: it creates files, serves
// reads, and drives every deletion path through the same claim-then-clean
// routine.
type FileService struct {
	files    FileStore
	users    UserStore
	admitter *Admitter
	blobs    storage.Store
	signal   expiry.Signal
}

// NewFileService creates the lifecycle manager.
func NewFileService(files FileStore, users UserStore, admitter *Admitter, blobs storage.Store, signal expiry.Signal) *FileService {
	return &FileService{
		files:    files,
		users:    users,
		admitter: admitter,
		blobs:    blobs,
		signal:   signal,
	}
}

// expirationTTL maps a preset to its TTL. ok is false for permanent files.
func expirationTTL(preset string) (ttl time.Duration, ok bool) {
	switch preset {
	case ExpirationPermanent:
		return 0, false
	case ExpirationMinute:
		return time.Minute, true
	case ExpirationHour:
		return time.Hour, true
	case ExpirationWeek:
		return 7 * 24 * time.Hour, true
	default:
		return 24 * time.Hour, true
	}
}

// Upload admits, stores and registers a new file. On any failure after
// admission the quota reservation is rolled back and the blob removed, so no
// partial state survives.
func (s *FileService) Upload(ctx context.Context, ownerID, name string, data io.Reader, size int64, opts UploadOptions) (*UploadResult, error) {
	// Sanitize the caller-supplied name before anything is reserved.
	name = sanitizeFilename(name)

	if err := s.admitter.TryAdmit(ctx, ownerID, size); err != nil {
		return nil, err
	}

	id := uuid.NewString()

	written, err := s.blobs.Save(id, data)
	if err != nil {
		s.admitter.Release(ctx, ownerID, size)
		return nil, fmt.Errorf("failed to store file: %w", err)
	}
	if written != size {
		s.discardBlob(id)
		s.admitter.Release(ctx, ownerID, size)
		return nil, fmt.Errorf("upload size mismatch: declared %d, wrote %d", size, written)
	}

	var passwordHash *string
	if opts.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
		if err != nil {
			s.discardBlob(id)
			s.admitter.Release(ctx, ownerID, size)
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		h := string(hash)
		passwordHash = &h
	}

	ttl, hasTTL := expirationTTL(opts.Expiration)
	now := time.Now().UTC()
	var expiresAt *time.Time
	if hasTTL {
		t := now.Add(ttl)
		expiresAt = &t
	}

	file := &database.File{
		ID:              id,
		OwnerID:         ownerID,
		OriginalName:    name,
		Path:            id,
		Size:            size,
		CreatedAt:       now,
		ExpiresAt:       expiresAt,
		PasswordHash:    passwordHash,
		OneTimeDownload: opts.OneTime,
	}

	if err := s.files.Create(ctx, file); err != nil {
		s.discardBlob(id)
		s.admitter.Release(ctx, ownerID, size)
		return nil, fmt.Errorf("failed to create file record: %w", err)
	}

	// Permanent files get an entry with no TTL for lookup consistency.
	// A registration failure only costs auto-expiry; the database record
	// stays authoritative, so the file remains reachable and deletable.
	if err := s.signal.Register(ctx, id, file.Path, ttl); err != nil {
		slog.Error("failed to register expiry entry", "uuid", id, "error", err)
	}

	slog.Info("file uploaded",
		"uuid", id,
		"owner_id", ownerID,
		"name", file.OriginalName,
		"size", size,
		"one_time", opts.OneTime,
		"expires_at", expiresAt,
	)

	return &UploadResult{
		UUID:      id,
		Name:      file.OriginalName,
		Size:      size,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *FileService) discardBlob(handle string) {
	if err := s.blobs.Delete(handle); err != nil {
		slog.Error("failed to remove blob", "handle", handle, "error", err)
	}
}

// Info returns public metadata for a file.
func (s *FileService) Info(ctx context.Context, id string) (*FileInfo, error) {
	file, err := s.files.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrFileNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return fileInfo(file), nil
}

// ListByOwner returns all live files owned by a user.
func (s *FileService) ListByOwner(ctx context.Context, ownerID string) ([]*FileInfo, error) {
	files, err := s.files.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	infos := make([]*FileInfo, 0, len(files))
	for _, f := range files {
		infos = append(infos, fileInfo(f))
	}
	return infos, nil
}

func fileInfo(f *database.File) *FileInfo {
	return &FileInfo{
		UUID:        f.ID,
		Name:        f.OriginalName,
		Size:        f.Size,
		CreatedAt:   f.CreatedAt,
		ExpiresAt:   f.ExpiresAt,
		HasPassword: f.PasswordHash != nil,
		OneTime:     f.OneTimeDownload,
	}
}

func checkPassword(file *database.File, supplied string) error {
	if file.PasswordHash == nil {
		return nil
	}
	if supplied == "" {
		return ErrPasswordRequired
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*file.PasswordHash), []byte(supplied)); err != nil {
		return ErrIncorrectPassword
	}
	return nil
}

// Download opens a file for streaming after password and path checks. For
// single-use files the metadata record is claimed atomically before any
// bytes flow: the claiming request is the one that streams, concurrent
// requests observe NotFound, and the stream's Close releases quota and
// deletes the blob even if the transfer failed partway.
func (s *FileService) Download(ctx context.Context, id, password string) (*DownloadStream, error) {
	file, err := s.files.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrFileNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := checkPassword(file, password); err != nil {
		return nil, err
	}

	rc, err := s.openBlob(file)
	if err != nil {
		return nil, err
	}

	stream := &DownloadStream{Name: file.OriginalName, Size: file.Size, rc: rc}

	if file.OneTimeDownload {
		claimed, err := s.files.Claim(ctx, id)
		if err != nil {
			rc.Close()
			return nil, err
		}
		if !claimed {
			// Another request just consumed it.
			rc.Close()
			return nil, ErrNotFound
		}

		if err := s.signal.Cancel(ctx, id); err != nil {
			slog.Warn("failed to cancel expiry entry", "uuid", id, "error", err)
		}

		// Burn on access: once claimed the file is gone no matter how the
		// transfer ends, so the cleanup must outlive request cancellation.
		cleanupCtx := context.WithoutCancel(ctx)
		stream.cleanup = func() {
			s.admitter.Release(cleanupCtx, file.OwnerID, file.Size)
			s.discardBlob(file.Path)
			slog.Info("one-time download consumed", "uuid", id, "name", file.OriginalName)
		}
	}

	return stream, nil
}

// Preview opens a file for inline viewing. Disabled for single-use files so
// a preview cannot consume the download.
func (s *FileService) Preview(ctx context.Context, id, password string) (*DownloadStream, error) {
	file, err := s.files.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrFileNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if file.OneTimeDownload {
		return nil, ErrAccessDenied
	}
	if err := checkPassword(file, password); err != nil {
		return nil, err
	}

	rc, err := s.openBlob(file)
	if err != nil {
		return nil, err
	}
	return &DownloadStream{Name: file.OriginalName, Size: file.Size, rc: rc}, nil
}

// openBlob resolves the physical blob, translating a handle that escapes the
// storage root into AccessDenied and a missing blob into NotFound.
func (s *FileService) openBlob(file *database.File) (io.ReadCloser, error) {
	rc, err := s.blobs.Open(file.Path)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidHandle) {
			slog.Error("blob handle escapes storage root", "uuid", file.ID, "path", file.Path)
			return nil, ErrAccessDenied
		}
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	return rc, nil
}

// Delete removes a file at its owner's request. The atomic claim decides the
// race against expiry and single-use consumption; losing it means the file
// is already gone.
func (s *FileService) Delete(ctx context.Context, id, requesterID string) error {
	file, err := s.files.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrFileNotFound) {
			return ErrNotFound
		}
		return err
	}
	if file.OwnerID != requesterID {
		return ErrForbidden
	}

	claimed, err := s.files.Claim(ctx, id)
	if err != nil {
		return err
	}
	if !claimed {
		return ErrNotFound
	}

	s.admitter.Release(ctx, file.OwnerID, file.Size)

	// The record is already unreachable, so a failed blob delete only leaks
	// disk space. Logged inside discardBlob, not retried.
	s.discardBlob(file.Path)

	if err := s.signal.Cancel(ctx, id); err != nil {
		slog.Warn("failed to cancel expiry entry", "uuid", id, "error", err)
	}

	slog.Info("file deleted", "uuid", id, "name", file.OriginalName)
	return nil
}

// OnExpired handles one expiry notification. Idempotent: a record already
// removed by another deletion path (or an earlier duplicate delivery) is a
// harmless no-op.
func (s *FileService) OnExpired(ctx context.Context, id string) error {
	file, err := s.files.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrFileNotFound) {
			return nil
		}
		return err
	}

	claimed, err := s.files.Claim(ctx, id)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	s.admitter.Release(ctx, file.OwnerID, file.Size)
	s.discardBlob(file.Path)

	slog.Info("expired file cleaned up", "uuid", id, "name", file.OriginalName)
	return nil
}

// ExpiryHandler adapts OnExpired to the expiry listener callback.
func (s *FileService) ExpiryHandler() expiry.Handler {
	return func(ctx context.Context, key string) {
		if err := s.OnExpired(ctx, key); err != nil {
			slog.Error("failed to process expiry notification", "key", key, "error", err)
		}
	}
}

// sanitizeFilename strips directory components and limits length.
func sanitizeFilename(name string) string {
	// Normalize Windows-style backslashes before calling filepath.Base,
	// which is platform-specific.
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)

	if len(name) > 255 {
		ext := filepath.Ext(name)
		// A dotfile-style name can be all extension; drop it rather than
		// slice past the front of the name.
		if len(ext) >= 255 {
			ext = ""
		}
		name = name[:255-len(ext)] + ext
	}

	if name == "" || name == "." || name == "/" {
		name = "file"
	}

	return name
}
