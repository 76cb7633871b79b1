package database

import "time"

// User roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is a registered account. StorageUsed tracks the total size of the
// user's live files and is only mutated through ReserveStorage and
// ReleaseStorage.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Role         string
	StorageUsed  int64
	StorageQuota *int64 // nil means use the system default quota
	CreatedAt    time.Time
}

// File is the metadata record for one stored upload. The ID doubles as the
// public retrieval token, and Path is the handle into physical storage.
type File struct {
	ID              string
	OwnerID         string
	OriginalName    string
	Path            string
	Size            int64
	CreatedAt       time.Time
	ExpiresAt       *time.Time // nil means permanent
	PasswordHash    *string    // nil when no password set
	OneTimeDownload bool
}

// SystemConfig is the singleton system configuration row.
type SystemConfig struct {
	DefaultStorageQuota int64
	MaxFileSize         int64
	MaxFileSizeLinked   bool
	AllowRegistration   bool
	UpdatedAt           time.Time
}
