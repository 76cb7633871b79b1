package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vanish/internal/server/api"
	"vanish/internal/server/config"
	"vanish/internal/server/database"
	"vanish/internal/server/expiry"
	"vanish/internal/server/service"
	"vanish/internal/server/storage"
)

func main() {
	// Structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load config
	cfg := config.Load()
	slog.Info("configuration loaded",
		"port", cfg.Port,
		"storage_path", cfg.StoragePath,
		"default_quota_mb", cfg.DefaultQuotaMB,
		"max_file_size_mb", cfg.MaxFileSizeMB,
	)

	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		// Sessions will not survive a restart without a configured secret.
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			slog.Error("failed to generate session secret", "error", err)
			os.Exit(1)
		}
		slog.Warn("JWT_SECRET not set, using an ephemeral session secret")
	}

	// Connect to database
	ctx := context.Background()
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	if err := db.RunMigrations(ctx); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database migrations complete")

	// Connect to redis for the expiry signal
	redisClient, err := expiry.Connect(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// Initialize blob storage
	store := storage.NewFileSystemStore(cfg.StoragePath)
	if err := store.EnsureDir(); err != nil {
		slog.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	slog.Info("file storage initialized", "path", cfg.StoragePath)

	// Repositories
	usersRepo := database.NewUsers(db)
	filesRepo := database.NewFiles(db)
	configsRepo := database.NewConfigs(db, database.SystemConfig{
		DefaultStorageQuota: cfg.DefaultQuotaMB * service.MB,
		MaxFileSize:         cfg.MaxFileSizeMB * service.MB,
		MaxFileSizeLinked:   true,
		AllowRegistration:   true,
	})

	// Services
	expirySignal := expiry.NewRedisSignal(redisClient)
	admitter := service.NewAdmitter(usersRepo, configsRepo)
	fileSvc := service.NewFileService(filesRepo, usersRepo, admitter, store, expirySignal)
	userSvc := service.NewUserService(usersRepo, configsRepo, db, expirySignal, store)
	configSvc := service.NewConfigService(configsRepo)

	// Start the expiry listener
	listenerCtx, listenerCancel := context.WithCancel(context.Background())
	listener := expiry.NewListener(redisClient, fileSvc.ExpiryHandler())
	listener.Start(listenerCtx)

	// Setup HTTP router
	auth := api.NewAuth(secret, cfg.SecureCookies)
	handler := api.NewHandler(fileSvc, userSvc, configSvc, db, auth)
	e := api.SetupRouter(handler, auth, cfg)

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		slog.Info("starting server", "addr", addr, "base_url", cfg.BaseURL)
		if err := e.Start(addr); err != nil {
			slog.Info("server stopped", "reason", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down", "signal", sig)

	// Stop accepting new requests, finish in-flight with 30s timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop the expiry listener
	listenerCancel()
	listener.Wait()

	slog.Info("server exited cleanly")
}
