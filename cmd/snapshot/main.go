// Package main prints one dashboard snapshot as JSON. By default it runs a
// single aggregation against the configured data source; with -cached it
// prints the snapshot a running server mirrored into Redis.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gtrade-dashboard/internal/config"
	"github.com/gtrade-dashboard/internal/logging"
	"github.com/gtrade-dashboard/internal/retry"
	"github.com/gtrade-dashboard/internal/service"
	"github.com/gtrade-dashboard/internal/storage"
	"github.com/gtrade-dashboard/internal/types"
)

func main() {
	cached := flag.Bool("cached", false, "print the snapshot mirrored in Redis instead of reading the chain")
	source := flag.String("source", "", "override DATA_SOURCE (live or mock)")
	timeout := flag.Duration("timeout", 2*time.Minute, "overall deadline")
	pretty := flag.Bool("pretty", true, "indent the JSON output")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *source != "" {
		cfg.Dashboard.DataSource = *source
	}

	// Logs go to stderr so stdout stays valid JSON
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	logger.SetOutput(os.Stderr)

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx = logging.WithLogger(ctx, logger)

	var snapshot *types.Snapshot
	if *cached {
		snapshot, err = readMirror(ctx, cfg)
	} else {
		snapshot, err = aggregateOnce(ctx, cfg)
	}
	if err != nil {
		logger.WithError(err).Fatal("Failed to produce snapshot")
	}

	enc := json.NewEncoder(os.Stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(snapshot); err != nil {
		logger.WithError(err).Fatal("Failed to write snapshot")
	}
}

func aggregateOnce(ctx context.Context, cfg *config.Config) (*types.Snapshot, error) {
	runtime, err := service.NewRuntime(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer runtime.Close()

	aggregator, err := runtime.NewAggregator(cfg)
	if err != nil {
		return nil, err
	}
	return aggregator.Aggregate(ctx), nil
}

func readMirror(ctx context.Context, cfg *config.Config) (*types.Snapshot, error) {
	redis, err := storage.NewRedisCache(ctx, &cfg.Redis, &retry.Config{
		MaxAttempts:  2,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2,
	})
	if err != nil {
		return nil, err
	}
	defer redis.Close()

	snapshot, err := storage.NewSnapshotMirror(redis, cfg.Redis.SnapshotTTL).Latest(ctx)
	if errors.Is(err, storage.ErrNoSnapshot) {
		return nil, fmt.Errorf("%w: is a server running with REDIS_ENABLED=true?", err)
	}
	return snapshot, err
}
