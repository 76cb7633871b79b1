package api

import (
	"vanish/internal/server/config"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SetupRouter creates and configures the echo router with all routes and middleware.
func SetupRouter(handler *Handler, auth *Auth, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{cfg.BaseURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: true,
	}))
	e.Use(RequestLogger())

	// Rate limiter on upload endpoint only
	uploadLimiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	authRequired := auth.Required()
	adminOnly := AdminOnly()

	// Health & public config
	e.GET("/health", handler.HandleHealth)
	e.GET("/api/config", handler.HandlePublicConfig)

	// Accounts
	users := e.Group("/api/users")
	users.POST("/register", handler.HandleRegister)
	users.POST("/login", handler.HandleLogin)
	users.POST("/logout", handler.HandleLogout)
	users.GET("/me", handler.HandleMe, authRequired)

	// Admin
	admin := e.Group("/api/admin")
	admin.GET("/check", handler.HandleAdminCheck)
	admin.POST("/setup", handler.HandleAdminSetup)
	admin.GET("/config", handler.HandleGetAdminConfig, authRequired, adminOnly)
	admin.PUT("/config", handler.HandleUpdateConfig, authRequired, adminOnly)
	admin.GET("/users", handler.HandleListUsers, authRequired, adminOnly)
	admin.DELETE("/users/:id", handler.HandleDeleteUser, authRequired, adminOnly)
	admin.PATCH("/users/:id/quota", handler.HandleSetUserQuota, authRequired, adminOnly)
	admin.POST("/reset", handler.HandleReset, authRequired, adminOnly)

	// Upload (authenticated, rate-limited)
	e.POST("/api/upload", handler.HandleUpload, authRequired, uploadLimiter.Middleware())

	// Files
	files := e.Group("/api/files")
	files.GET("/my-files", handler.HandleMyFiles, authRequired)
	files.GET("/:uuid", handler.HandleFileInfo)
	files.POST("/download/:uuid", handler.HandleDownload)
	files.POST("/preview/:uuid", handler.HandlePreview)
	files.DELETE("/:uuid", handler.HandleDeleteFile, authRequired)

	return e
}
