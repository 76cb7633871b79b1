package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already taken")
)

const userColumns = "id, username, password_hash, role, storage_used, storage_quota, created_at"

// Users provides CRUD and atomic quota operations on user accounts.
type Users struct {
	db *DB
}

// NewUsers creates a user repository.
func NewUsers(db *DB) *Users {
	return &Users{db: db}
}

// Create inserts a new user record.
func (u *Users) Create(ctx context.Context, user *User) error {
	_, err := u.db.Pool.Exec(ctx, `
		INSERT INTO users (id, username, password_hash, role, storage_used, storage_quota, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		user.ID,
		user.Username,
		user.PasswordHash,
		user.Role,
		user.StorageUsed,
		user.StorageQuota,
		user.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrUsernameTaken
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func scanUser(row pgx.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.Role,
		&user.StorageUsed,
		&user.StorageQuota,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by ID.
func (u *Users) GetByID(ctx context.Context, id string) (*User, error) {
	return scanUser(u.db.Pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", id))
}

// GetByUsername retrieves a user by username.
func (u *Users) GetByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(u.db.Pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE username = $1", username))
}

// List returns all users, newest first.
func (u *Users) List(ctx context.Context) ([]*User, error) {
	rows, err := u.db.Pool.Query(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// Delete removes a user record by ID.
func (u *Users) Delete(ctx context.Context, id string) error {
	tag, err := u.db.Pool.Exec(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetQuota sets or clears (nil) a user's storage quota override.
func (u *Users) SetQuota(ctx context.Context, id string, quota *int64) error {
	tag, err := u.db.Pool.Exec(ctx,
		"UPDATE users SET storage_quota = $2 WHERE id = $1", id, quota)
	if err != nil {
		return fmt.Errorf("failed to set quota: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// AdminExists reports whether any admin account exists.
func (u *Users) AdminExists(ctx context.Context) (bool, error) {
	var exists bool
	err := u.db.Pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE role = $1)", RoleAdmin).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check for admin: %w", err)
	}
	return exists, nil
}

// ReserveStorage atomically increments storage_used by n, but only if the
// resulting value stays within limit. Reports whether the reservation was
// applied; false means another writer consumed the remaining headroom.
func (u *Users) ReserveStorage(ctx context.Context, id string, n, limit int64) (bool, error) {
	tag, err := u.db.Pool.Exec(ctx, `
		UPDATE users SET storage_used = storage_used + $2
		WHERE id = $1 AND storage_used + $2 <= $3
	`, id, n, limit)
	if err != nil {
		return false, fmt.Errorf("failed to reserve storage: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseStorage decrements storage_used by n, clamping at zero so a
// reconciled account can never go negative.
func (u *Users) ReleaseStorage(ctx context.Context, id string, n int64) error {
	_, err := u.db.Pool.Exec(ctx, `
		UPDATE users SET storage_used = GREATEST(storage_used - $2, 0)
		WHERE id = $1
	`, id, n)
	if err != nil {
		return fmt.Errorf("failed to release storage: %w", err)
	}
	return nil
}
