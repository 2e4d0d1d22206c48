package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/whynot231455/mmm-sol-dashboard/internal/api"
	"github.com/whynot231455/mmm-sol-dashboard/internal/cache"
	"github.com/whynot231455/mmm-sol-dashboard/internal/config"
	"github.com/whynot231455/mmm-sol-dashboard/internal/database"
	"github.com/whynot231455/mmm-sol-dashboard/internal/logging"
	"github.com/whynot231455/mmm-sol-dashboard/internal/middleware"
	"github.com/whynot231455/mmm-sol-dashboard/internal/telemetry"
	"github.com/whynot231455/mmm-sol-dashboard/internal/workspace"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, otlpLogger := newLogger(cfg)
	defer func() {
		if err := otlpLogger.Shutdown(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to shutdown log exporter: %v\n", err)
		}
	}()

	// Create logrus logger for services and components
	logrusLogger := logging.NewLogrus(cfg.LogLevel, os.Stdout)

	// Initialize telemetry before anything creates spans
	provider, err := telemetry.InitTelemetry(ctx, telemetry.TelemetryConfig{
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		Environment:    cfg.Environment,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Failed to shutdown telemetry")
		}
	}()

	opts := workspace.Options{
		Logger:      logrusLogger,
		TrendWindow: cfg.Workspace.TrendWindow,
	}
	deps := api.Dependencies{Logger: logger, Version: cfg.Telemetry.ServiceVersion}

	// Postgres backs the dataset archive when enabled
	if cfg.Database.Enabled {
		db, err := database.NewPostgresConnection(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		repo := database.NewDatasetRepository(database.NewTracedDB(db.Pool))
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		opts.Archive = repo
		deps.DB = db
		logger.WithComponent("database").Info("Dataset archive enabled", "database", cfg.Database.DBName)
	}

	// Redis persists the workspace and the pipeline memo when enabled
	if cfg.Redis.Enabled {
		redis, err := database.NewRedisConnection(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer redis.Close()

		opts.Store = cache.NewRedisWorkspaceStore(redis.Client, cfg.Workspace.StateKey)
		series := cache.NewRedisSeriesCache(redis.Client, cfg.Workspace.GetSeriesCacheTTL(), logrusLogger)
		opts.Series = series
		deps.CacheStats = series
		deps.Redis = redis
	} else {
		series := cache.NewInMemorySeriesCache(cfg.Workspace.GetSeriesCacheTTL())
		opts.Series = series
		deps.CacheStats = series
	}

	ws := workspace.NewService(opts)
	if err := ws.Restore(ctx); err != nil {
		return fmt.Errorf("failed to restore workspace: %w", err)
	}
	restored := ws.Snapshot()
	logger.WithOperation("restore").Info("Workspace restored", "version", restored.Version, "loaded", restored.IsLoaded)
	deps.Workspace = ws

	router := newRouter(cfg, logger, deps)

	// Create HTTP server with security timeouts
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.LogStartup(cfg.Telemetry.ServiceName, cfg.Telemetry.ServiceVersion, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for a signal or a listener failure
	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}
	logger.LogShutdown(cfg.Telemetry.ServiceName, "signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GetShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logrusLogger.Info("Server exited")
	return nil
}

// newLogger builds the structured request logger, exporting over OTLP when telemetry is on
func newLogger(cfg *config.Config) (*logging.StandardLogger, *logging.OTLPLogger) {
	if !cfg.Telemetry.Enabled {
		return logging.NewStandardLogger(cfg.LogLevel, cfg.Environment), nil
	}
	return logging.NewStandardOTLPLogger(logging.OTLPConfig{
		Enabled:        true,
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		Environment:    cfg.Environment,
		LogLevel:       cfg.LogLevel,
	})
}

func newRouter(cfg *config.Config, logger *logging.StandardLogger, deps api.Dependencies) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(middleware.BodyLimit(cfg.Server.MaxUploadBytes()))
	router.Use(middleware.TelemetryMiddleware(cfg.Telemetry.ServiceName))

	api.SetupRoutes(router, deps)
	return router
}
