// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andresuchdata/cloudpath/internal/api"
	"github.com/andresuchdata/cloudpath/internal/config"
	"github.com/andresuchdata/cloudpath/internal/drive"
	"github.com/andresuchdata/cloudpath/internal/journal"
	"github.com/andresuchdata/cloudpath/internal/metrics"
	"github.com/andresuchdata/cloudpath/internal/service"
	"github.com/andresuchdata/cloudpath/internal/storage/objectstore"
	"github.com/andresuchdata/cloudpath/pkg/logger"
	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	logger.SetLevel(cfg.Log.Level)
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	j, err := journal.Open(ctx, cfg.Journal.Driver, cfg)
	if err != nil {
		logger.Log.Fatal().Err(err).Str("driver", cfg.Journal.Driver).Msg("Failed to open journal")
	}
	if j != nil {
		defer j.Close()
	}

	services := &api.Services{
		Files:   map[string]*service.FileService{},
		Journal: j,
		Metrics: cfg.Metrics.Enabled,
	}
	if cfg.Metrics.Enabled {
		metrics.Init()
	}

	if cfg.ObjectStore.Bucket != "" {
		store, err := objectstore.New(ctx, cfg.ObjectStore)
		if err != nil {
			logger.Log.Fatal().Err(err).Msg("Failed to initialize object store")
		}
		services.Files[store.Name()] = service.New(store, j)
	}

	if cfg.Drive.CredentialsJSON != "" || cfg.Drive.CredentialsFile != "" {
		driveService, err := drive.NewService(ctx, cfg.Drive)
		if err != nil {
			logger.Log.Fatal().Err(err).Msg("Failed to initialize Google Drive service")
		}
		services.Files[driveService.Name()] = service.New(driveService, j)
		services.DriveBrowser = drive.NewHandler(driveService).Router(api.DriveBrowsePath)
	}

	if len(services.Files) == 0 {
		logger.Log.Warn().Msg("No backend configured; set S3_BUCKET or Drive credentials")
	}
	defer func() {
		for name, svc := range services.Files {
			if err := svc.Close(); err != nil {
				logger.Log.Error().Err(err).Str("backend", name).Msg("Failed to close backend")
			}
		}
	}()

	// Initialize HTTP server
	router := api.NewRouter(services, cfg.Server.AllowedOrigins)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Log.Info().Str("port", cfg.Server.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Log.Info().Msg("Server exiting")
}
