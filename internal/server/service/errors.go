package service

import "errors"

// Sentinel errors for the service layer. Expected conditions are values,
// not faults; the API layer maps each to an HTTP status.
var (
	// Admission errors: user-correctable, nothing mutated.
	ErrEmptyFile     = errors.New("cannot upload empty files")
	ErrFileTooLarge  = errors.New("file exceeds maximum allowed size")
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// Access errors.
	ErrNotFound          = errors.New("file not found")
	ErrPasswordRequired  = errors.New("password required")
	ErrIncorrectPassword = errors.New("incorrect password")
	ErrAccessDenied      = errors.New("access denied")
	ErrForbidden         = errors.New("not authorized for this file")

	// Account errors.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrUsernameTooShort   = errors.New("username must be at least 3 characters")
	ErrPasswordTooShort   = errors.New("password must be at least 8 characters")
	ErrRegistrationClosed = errors.New("registration is disabled by the administrator")
	ErrUserNotFound       = errors.New("user not found")
	ErrAdminExists        = errors.New("admin account already exists")
	ErrSelfDelete         = errors.New("cannot delete your own account")

	// Configuration errors.
	ErrMaxFileSizeTooLarge = errors.New("max file size cannot exceed 95% of the default quota")
	ErrInvalidConfigValue  = errors.New("quota and max file size must be positive")
)
