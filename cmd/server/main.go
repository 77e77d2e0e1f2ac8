// Package main provides the API server entry point for the gTrade dashboard.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gtrade-dashboard/internal/api"
	"github.com/gtrade-dashboard/internal/config"
	"github.com/gtrade-dashboard/internal/logging"
	"github.com/gtrade-dashboard/internal/service"
	"github.com/gtrade-dashboard/internal/storage"
	"github.com/gtrade-dashboard/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logging.WithLogger(ctx, logger)

	runtime, err := service.NewRuntime(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create data source")
	}
	defer runtime.Close()

	aggregator, err := runtime.NewAggregator(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create aggregator")
	}

	// The Redis mirror is optional; the dashboard serves from memory without it
	var publishers []worker.Publisher
	if cfg.Redis.Enabled {
		redis, err := storage.NewRedisCache(ctx, &cfg.Redis, nil)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, snapshot mirror disabled")
		} else {
			defer redis.Close()
			publishers = append(publishers, storage.NewSnapshotMirror(redis, cfg.Redis.SnapshotTTL))
			logger.WithField("ttl", cfg.Redis.SnapshotTTL.String()).Info("Snapshot mirror enabled")
		}
	}

	controller, err := worker.NewRefreshController(&worker.RefreshControllerConfig{
		Aggregator:     aggregator,
		Interval:       cfg.Dashboard.RefreshInterval,
		DebounceWindow: cfg.Dashboard.DebounceWindow,
		Publishers:     publishers,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create refresh controller")
	}
	if err := controller.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start refresh controller")
	}

	var chain api.ChainHealth
	if runtime.Reader != nil {
		chain = runtime.Reader
	}

	server := api.NewServer(&api.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		TradeCap:          cfg.Dashboard.TradeCap,
	}, controller, chain)

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if err := controller.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Refresh controller did not stop cleanly")
	}
	cancel()

	logger.Info("Server exited")
}
