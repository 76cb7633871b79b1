package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"vanish/internal/server/database"
	"vanish/internal/server/expiry"
	"vanish/internal/server/storage"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// UserService handles account registration, authentication and the
// administrative account operations.
type UserService struct {
	users    UserStore
	configs  ConfigStore
	resetter Resetter
	signal   expiry.Signal
	blobs    storage.Store
}

// NewUserService creates the account service. resetter, signal and blobs are
// only exercised by FactoryReset.
func NewUserService(users UserStore, configs ConfigStore, resetter Resetter, signal expiry.Signal, blobs storage.Store) *UserService {
	return &UserService{
		users:    users,
		configs:  configs,
		resetter: resetter,
		signal:   signal,
		blobs:    blobs,
	}
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func (s *UserService) createUser(ctx context.Context, username, password, role string) (*database.User, error) {
	username = normalizeUsername(username)
	if len(username) < 3 {
		return nil, ErrUsernameTooShort
	}
	if len(password) < 8 {
		return nil, ErrPasswordTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &database.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, database.ErrUsernameTaken) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	return user, nil
}

// Register creates a regular user account, honoring the registration switch.
func (s *UserService) Register(ctx context.Context, username, password string) (*database.User, error) {
	cfg, err := s.configs.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load system config: %w", err)
	}
	if !cfg.AllowRegistration {
		return nil, ErrRegistrationClosed
	}

	user, err := s.createUser(ctx, username, password, database.RoleUser)
	if err != nil {
		return nil, err
	}
	slog.Info("user registered", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// Login verifies credentials and returns the account. Unknown usernames and
// wrong passwords are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, username, password string) (*database.User, error) {
	user, err := s.users.GetByUsername(ctx, normalizeUsername(username))
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Get returns an account by ID.
func (s *UserService) Get(ctx context.Context, id string) (*database.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// ListUsers returns all accounts (admin).
func (s *UserService) ListUsers(ctx context.Context) ([]*database.User, error) {
	return s.users.List(ctx)
}

// DeleteUser removes an account (admin). Admins cannot delete themselves.
func (s *UserService) DeleteUser(ctx context.Context, id, requesterID string) error {
	if id == requesterID {
		return ErrSelfDelete
	}
	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	slog.Info("user deleted", "user_id", id)
	return nil
}

// SetUserQuota sets or clears (nil) a user's quota override in MB (admin).
func (s *UserService) SetUserQuota(ctx context.Context, id string, quotaMB *int64) (*database.User, error) {
	var quota *int64
	if quotaMB != nil {
		q := *quotaMB * MB
		quota = &q
	}
	if err := s.users.SetQuota(ctx, id, quota); err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return s.Get(ctx, id)
}

// AdminExists reports whether any admin account exists.
func (s *UserService) AdminExists(ctx context.Context) (bool, error) {
	return s.users.AdminExists(ctx)
}

// SetupAdmin creates the initial admin account. Only permitted while no
// admin exists.
func (s *UserService) SetupAdmin(ctx context.Context, username, password string) (*database.User, error) {
	exists, err := s.users.AdminExists(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAdminExists
	}

	user, err := s.createUser(ctx, username, password, database.RoleAdmin)
	if err != nil {
		return nil, err
	}
	slog.Info("admin account created", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// FactoryReset wipes the database, the expiry entries and the blob store.
// Blob-store failures are tolerated once the durable records are gone.
func (s *UserService) FactoryReset(ctx context.Context) error {
	if err := s.resetter.ResetAll(ctx); err != nil {
		return err
	}
	if err := s.signal.Flush(ctx); err != nil {
		return err
	}
	if err := s.blobs.Clear(); err != nil {
		slog.Error("failed to clear blob storage during reset", "error", err)
	}
	slog.Info("factory reset complete")
	return nil
}
