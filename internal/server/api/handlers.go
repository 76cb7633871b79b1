package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"vanish/internal/server/database"
	"vanish/internal/server/service"

	"github.com/labstack/echo/v4"
)

// Handler contains the HTTP handlers for the vanish API.
type Handler struct {
	files   *service.FileService
	users   *service.UserService
	configs *service.ConfigService
	db      *database.DB
	auth    *Auth
}

// NewHandler creates a new handler with the given service dependencies.
func NewHandler(files *service.FileService, users *service.UserService, configs *service.ConfigService, db *database.DB, auth *Auth) *Handler {
	return &Handler{files: files, users: users, configs: configs, db: db, auth: auth}
}

// userView is the account shape returned to clients; it never carries the
// password hash.
type userView struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Role         string    `json:"role"`
	StorageUsed  int64     `json:"storage_used"`
	StorageQuota *int64    `json:"storage_quota"`
	CreatedAt    time.Time `json:"created_at"`
}

func viewUser(u *database.User) userView {
	return userView{
		ID:           u.ID,
		Username:     u.Username,
		Role:         u.Role,
		StorageUsed:  u.StorageUsed,
		StorageQuota: u.StorageQuota,
		CreatedAt:    u.CreatedAt,
	}
}

// --- Accounts ---

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleRegister handles POST /api/users/register.
func (h *Handler) HandleRegister(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	if _, err := h.users.Register(c.Request().Context(), req.Username, req.Password); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"message": "user registered successfully"})
}

// HandleLogin handles POST /api/users/login. Issues an HttpOnly session cookie.
func (h *Handler) HandleLogin(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	user, err := h.users.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return mapServiceError(c, err)
	}
	if err := h.auth.SetSession(c, user); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create session"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "logged in successfully"})
}

// HandleLogout handles POST /api/users/logout.
func (h *Handler) HandleLogout(c echo.Context) error {
	h.auth.ClearSession(c)
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out successfully"})
}

// HandleMe handles GET /api/users/me.
func (h *Handler) HandleMe(c echo.Context) error {
	user, err := h.users.Get(c.Request().Context(), callerID(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, viewUser(user))
}

// --- Admin ---

// HandleAdminCheck handles GET /api/admin/check.
func (h *Handler) HandleAdminCheck(c echo.Context) error {
	exists, err := h.users.AdminExists(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"exists": exists})
}

// HandleAdminSetup handles POST /api/admin/setup. Open only until the first
// admin account exists; logs the new admin in immediately.
func (h *Handler) HandleAdminSetup(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	user, err := h.users.SetupAdmin(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return mapServiceError(c, err)
	}
	if err := h.auth.SetSession(c, user); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create session"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "admin setup complete"})
}

// HandleListUsers handles GET /api/admin/users.
func (h *Handler) HandleListUsers(c echo.Context) error {
	users, err := h.users.ListUsers(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, viewUser(u))
	}
	return c.JSON(http.StatusOK, views)
}

// HandleDeleteUser handles DELETE /api/admin/users/:id.
func (h *Handler) HandleDeleteUser(c echo.Context) error {
	if err := h.users.DeleteUser(c.Request().Context(), c.Param("id"), callerID(c)); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "user removed"})
}

// HandleSetUserQuota handles PATCH /api/admin/users/:id/quota.
// A null quota clears the override back to the system default.
func (h *Handler) HandleSetUserQuota(c echo.Context) error {
	var req struct {
		QuotaInMB *int64 `json:"quota_in_mb"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	user, err := h.users.SetUserQuota(c.Request().Context(), c.Param("id"), req.QuotaInMB)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, viewUser(user))
}

// HandleGetAdminConfig handles GET /api/admin/config.
func (h *Handler) HandleGetAdminConfig(c echo.Context) error {
	cfg, err := h.configs.Get(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
	return c.JSON(http.StatusOK, cfg)
}

// HandleUpdateConfig handles PUT /api/admin/config.
func (h *Handler) HandleUpdateConfig(c echo.Context) error {
	var req struct {
		DefaultStorageQuotaMB *int64 `json:"default_storage_quota_mb"`
		MaxFileSizeMB         *int64 `json:"max_file_size_mb"`
		MaxFileSizeLinked     *bool  `json:"max_file_size_linked"`
		AllowRegistration     *bool  `json:"allow_registration"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	cfg, err := h.configs.Update(c.Request().Context(), service.ConfigPatch{
		DefaultStorageQuotaMB: req.DefaultStorageQuotaMB,
		MaxFileSizeMB:         req.MaxFileSizeMB,
		MaxFileSizeLinked:     req.MaxFileSizeLinked,
		AllowRegistration:     req.AllowRegistration,
	})
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, cfg)
}

// HandleReset handles POST /api/admin/reset: full factory reset.
func (h *Handler) HandleReset(c echo.Context) error {
	if err := h.users.FactoryReset(c.Request().Context()); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "system reset successfully"})
}

// --- Files ---

// HandleUpload handles POST /api/upload.
// Accepts a multipart form with a "file" field and optional "password",
// "expiration" and "one_time_download" fields.
func (h *Handler) HandleUpload(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "file is required (use form field 'file')",
		})
	}

	src, err := fileHeader.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to read uploaded file",
		})
	}
	defer src.Close()

	opts := service.UploadOptions{
		Expiration: c.FormValue("expiration"),
		Password:   c.FormValue("password"),
		OneTime:    c.FormValue("one_time_download") == "true",
	}

	result, err := h.files.Upload(
		c.Request().Context(),
		callerID(c),
		fileHeader.Filename,
		src,
		fileHeader.Size,
		opts,
	)
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusCreated, result)
}

// HandleMyFiles handles GET /api/files/my-files.
func (h *Handler) HandleMyFiles(c echo.Context) error {
	files, err := h.files.ListByOwner(c.Request().Context(), callerID(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, files)
}

// HandleFileInfo handles GET /api/files/:uuid.
// Public metadata: name, size, protection flags. Never the hash or handle.
func (h *Handler) HandleFileInfo(c echo.Context) error {
	info, err := h.files.Info(c.Request().Context(), c.Param("uuid"))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, info)
}

type downloadRequest struct {
	Password string `json:"password"`
}

// HandleDownload handles POST /api/files/download/:uuid.
// Streams the file as an attachment. Single-use files are consumed by the
// claiming request even if the transfer fails partway.
func (h *Handler) HandleDownload(c echo.Context) error {
	var req downloadRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	stream, err := h.files.Download(c.Request().Context(), c.Param("uuid"), req.Password)
	if err != nil {
		return mapServiceError(c, err)
	}
	defer stream.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename=%q`, stream.Name))
	c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(stream.Size, 10))
	return c.Stream(http.StatusOK, echo.MIMEOctetStream, stream)
}

// HandlePreview handles POST /api/files/preview/:uuid.
// Serves the file inline with headers that neuter HTML/SVG payloads.
func (h *Handler) HandlePreview(c echo.Context) error {
	var req downloadRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	stream, err := h.files.Preview(c.Request().Context(), c.Param("uuid"), req.Password)
	if err != nil {
		return mapServiceError(c, err)
	}
	defer stream.Close()

	c.Response().Header().Set("Content-Security-Policy",
		"default-src 'none'; img-src 'self'; style-src 'unsafe-inline'")
	c.Response().Header().Set("X-Content-Type-Options", "nosniff")
	c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(stream.Size, 10))
	return c.Stream(http.StatusOK, echo.MIMEOctetStream, stream)
}

// HandleDeleteFile handles DELETE /api/files/:uuid. Owner only.
func (h *Handler) HandleDeleteFile(c echo.Context) error {
	if err := h.files.Delete(c.Request().Context(), c.Param("uuid"), callerID(c)); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "file deleted successfully"})
}

// --- System ---

// HandlePublicConfig handles GET /api/config: the limits clients need for
// upload UX, in MB.
func (h *Handler) HandlePublicConfig(c echo.Context) error {
	cfg, err := h.configs.Get(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"max_file_size_mb":         cfg.MaxFileSize / service.MB,
		"default_storage_quota_mb": cfg.DefaultStorageQuota / service.MB,
	})
}

// HandleHealth handles GET /health.
// Returns the health status of the server, including database connectivity.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	dbStatus := "connected"

	if err := h.db.HealthCheck(c.Request().Context()); err != nil {
		status = "degraded"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":   status,
		"database": dbStatus,
	})
}

// mapServiceError translates service-layer errors into appropriate HTTP responses.
func mapServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "link expired or file not found"})
	case errors.Is(err, service.ErrPasswordRequired):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "password_required"})
	case errors.Is(err, service.ErrIncorrectPassword):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "incorrect password"})
	case errors.Is(err, service.ErrAccessDenied):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied"})
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not authorized for this file"})
	case errors.Is(err, service.ErrEmptyFile):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "cannot upload empty files"})
	case errors.Is(err, service.ErrFileTooLarge):
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": "file exceeds maximum allowed size"})
	case errors.Is(err, service.ErrQuotaExceeded):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "storage quota exceeded"})
	case errors.Is(err, service.ErrInvalidCredentials):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid credentials"})
	case errors.Is(err, service.ErrUsernameTaken),
		errors.Is(err, service.ErrUsernameTooShort),
		errors.Is(err, service.ErrPasswordTooShort),
		errors.Is(err, service.ErrSelfDelete),
		errors.Is(err, service.ErrMaxFileSizeTooLarge),
		errors.Is(err, service.ErrInvalidConfigValue):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrRegistrationClosed),
		errors.Is(err, service.ErrAdminExists):
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrUserNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}
