package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"

	"atelier/infrastructure/config"
	"atelier/infrastructure/di"
	"atelier/interfaces/http/rest"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize dependency container
	container, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	logger := container.Logger

	if err := container.Scheduler.Start(); err != nil {
		logger.Fatal("Failed to start image scheduler", zap.Error(err))
	}

	deps := rest.Dependencies{
		Paintings:    container.Paintings,
		Retries:      container.Retries,
		StatusQuery:  container.StatusQuery,
		Titles:       container.Titles,
		References:   container.References,
		Validator:    container.Validator,
		ErrorHandler: container.ErrorHandler,
		UploadDir:    container.ImageStore.Dir(),
		UploadPath:   cfg.PublicBasePath,
		Ready:        container.Scheduler.Running,

		BatchWriteTimeout: cfg.BatchWriteTimeout(),
	}
	if cfg.EnableMetrics {
		deps.Metrics = container.Metrics
	}
	if cfg.EnableCORS {
		deps.CORSAllowedOrigins = cfg.CORSAllowedOrigins
	}

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      rest.NewRouter(deps, logger).Setup(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting server",
			zap.String("address", cfg.ServerAddress),
			zap.String("environment", cfg.Environment),
			zap.String("storage", cfg.StorageBackend),
			zap.String("generator", cfg.Generator),
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	// Queued images get whatever is left of the shutdown window.
	if err := container.Shutdown(shutdownCtx); err != nil {
		logger.Error("Container shutdown error", zap.Error(err))
	}

	if err := logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	log.Println("Server stopped")
}
