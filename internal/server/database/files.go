package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var ErrFileNotFound = errors.New("file not found")

const fileColumns = "id, owner_id, original_name, path, size, created_at, expires_at, password_hash, one_time_download"

// Files provides CRUD operations for file metadata records.
type Files struct {
	db *DB
}

// NewFiles creates a file repository.
func NewFiles(db *DB) *Files {
	return &Files{db: db}
}

// Create inserts a new file record.
func (f *Files) Create(ctx context.Context, file *File) error {
	_, err := f.db.Pool.Exec(ctx, `
		INSERT INTO files (id, owner_id, original_name, path, size, created_at, expires_at, password_hash, one_time_download)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		file.ID,
		file.OwnerID,
		file.OriginalName,
		file.Path,
		file.Size,
		file.CreatedAt,
		file.ExpiresAt,
		file.PasswordHash,
		file.OneTimeDownload,
	)
	if err != nil {
		return fmt.Errorf("failed to create file record: %w", err)
	}
	return nil
}

func scanFile(row pgx.Row) (*File, error) {
	file := &File{}
	err := row.Scan(
		&file.ID,
		&file.OwnerID,
		&file.OriginalName,
		&file.Path,
		&file.Size,
		&file.CreatedAt,
		&file.ExpiresAt,
		&file.PasswordHash,
		&file.OneTimeDownload,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to scan file: %w", err)
	}
	return file, nil
}

// GetByID retrieves a file record by its public identifier.
func (f *Files) GetByID(ctx context.Context, id string) (*File, error) {
	return scanFile(f.db.Pool.QueryRow(ctx,
		"SELECT "+fileColumns+" FROM files WHERE id = $1", id))
}

// ListByOwner returns all files owned by a user, newest first.
func (f *Files) ListByOwner(ctx context.Context, ownerID string) ([]*File, error) {
	rows, err := f.db.Pool.Query(ctx,
		"SELECT "+fileColumns+" FROM files WHERE owner_id = $1 ORDER BY created_at DESC", ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// Claim atomically deletes the record if it still exists and reports whether
// this caller won the deletion. Exactly one of the competing deletion paths
// (explicit delete, single-use consumption, expiry) observes true; the rest
// observe false and must treat the file as already gone.
func (f *Files) Claim(ctx context.Context, id string) (bool, error) {
	tag, err := f.db.Pool.Exec(ctx, "DELETE FROM files WHERE id = $1", id)
	if err != nil {
		return false, fmt.Errorf("failed to claim file record: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
