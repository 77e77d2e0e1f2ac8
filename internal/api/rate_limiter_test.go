package api

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	assert.Equal(t, defaultBurst, rl.burstSize)
	assert.InDelta(t, defaultRequestsPerSecond, float64(rl.limit), 0)
}

func TestRateLimiter_PerClient(t *testing.T) {
	rl := NewRateLimiter(1, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("10.0.0.1"), "burst request %d", i)
	}
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"), "other clients have their own bucket")
	assert.Equal(t, 2, rl.Size())
}

func TestRateLimiter_SweepsIdleClients(t *testing.T) {
	rl := NewRateLimiter(10, 10)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < limiterSweepThreshold; i++ {
		rl.Allow(fmt.Sprintf("10.0.%d.%d", i/256, i%256))
	}
	assert.Equal(t, limiterSweepThreshold, rl.Size())

	now = now.Add(limiterIdleTTL + time.Second)
	rl.Allow("192.0.2.1")
	assert.Equal(t, 1, rl.Size())
}
