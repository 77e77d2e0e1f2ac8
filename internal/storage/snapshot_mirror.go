package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/gtrade-dashboard/internal/errors"
	"github.com/gtrade-dashboard/internal/types"
	"github.com/redis/go-redis/v9"
)

const (
	// SnapshotKey holds the latest snapshot JSON
	SnapshotKey = "gtrade:dashboard:snapshot"
	// UpdatesChannel carries the generatedAt time of each published snapshot
	UpdatesChannel = "gtrade:dashboard:updates"

	defaultSnapshotTTL = 5 * time.Minute
)

// ErrNoSnapshot is returned when no unexpired snapshot is mirrored
var ErrNoSnapshot = errors.New("no snapshot mirrored")

// SnapshotMirror stores the current snapshot in Redis with a TTL. An expired
// key means no dashboard process has refreshed recently.
type SnapshotMirror struct {
	cache *RedisCache
	ttl   time.Duration
}

// NewSnapshotMirror creates a mirror; ttl <= 0 uses five minutes
func NewSnapshotMirror(cache *RedisCache, ttl time.Duration) *SnapshotMirror {
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	return &SnapshotMirror{cache: cache, ttl: ttl}
}

// Publish stores snapshot as the latest and notifies subscribers
func (m *SnapshotMirror) Publish(ctx context.Context, snapshot *types.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	pipe := m.cache.client.TxPipeline()
	pipe.Set(ctx, SnapshotKey, data, m.ttl)
	pipe.Publish(ctx, UpdatesChannel, snapshot.GeneratedAt.UTC().Format(time.RFC3339Nano))
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.NewCacheError("publish snapshot", err)
	}
	return nil
}

// Latest returns the mirrored snapshot or ErrNoSnapshot
func (m *SnapshotMirror) Latest(ctx context.Context) (*types.Snapshot, error) {
	data, err := m.cache.client.Get(ctx, SnapshotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, apperrors.NewCacheError("read snapshot", err)
	}

	var snapshot types.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snapshot, nil
}

// TTL returns the remaining lifetime of the mirrored snapshot
func (m *SnapshotMirror) TTL(ctx context.Context) (time.Duration, error) {
	ttl, err := m.cache.client.TTL(ctx, SnapshotKey).Result()
	if err != nil {
		return 0, apperrors.NewCacheError("snapshot ttl", err)
	}
	if ttl < 0 {
		return 0, ErrNoSnapshot
	}
	return ttl, nil
}
