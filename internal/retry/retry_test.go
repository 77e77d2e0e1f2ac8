package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) *Config {
	return &Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestWithExponentialBackoff(t *testing.T) {
	errDial := errors.New("dial tcp: connection refused")

	tests := []struct {
		name         string
		failures     int
		attempts     int
		wantSuccess  bool
		wantAttempts int
	}{
		{name: "first attempt succeeds", failures: 0, attempts: 3, wantSuccess: true, wantAttempts: 1},
		{name: "succeeds after retries", failures: 2, attempts: 3, wantSuccess: true, wantAttempts: 3},
		{name: "gives up after max attempts", failures: 5, attempts: 3, wantSuccess: false, wantAttempts: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			result := WithExponentialBackoff(context.Background(), fastConfig(tt.attempts), func(_ context.Context, attempt int) error {
				calls++
				assert.Equal(t, calls, attempt)
				if calls <= tt.failures {
					return errDial
				}
				return nil
			})

			assert.Equal(t, tt.wantSuccess, result.Success)
			assert.Equal(t, tt.wantAttempts, result.Attempts)
			if tt.wantSuccess {
				assert.NoError(t, result.LastError)
			} else {
				assert.ErrorIs(t, result.LastError, errDial)
			}
		})
	}
}

func TestWithExponentialBackoff_NonRetryable(t *testing.T) {
	errAuth := errors.New("NOAUTH Authentication required")
	cfg := fastConfig(5)
	cfg.Retryable = func(err error) bool { return !errors.Is(err, errAuth) }

	calls := 0
	result := WithExponentialBackoff(context.Background(), cfg, func(context.Context, int) error {
		calls++
		return errAuth
	})

	assert.False(t, result.Success)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, result.LastError, errAuth)
}

func TestWithExponentialBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{MaxAttempts: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2}

	result := WithExponentialBackoff(ctx, cfg, func(context.Context, int) error {
		cancel()
		return errors.New("timeout")
	})

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
	assert.ErrorIs(t, result.LastError, context.Canceled)
}

func TestCalculateDelay(t *testing.T) {
	cfg := &Config{InitialDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2}

	assert.Equal(t, time.Second, calculateDelay(cfg, 1))
	assert.Equal(t, 2*time.Second, calculateDelay(cfg, 2))
	assert.Equal(t, 4*time.Second, calculateDelay(cfg, 3))
	assert.Equal(t, 5*time.Second, calculateDelay(cfg, 4))
}

func TestDo(t *testing.T) {
	require.NoError(t, Do(context.Background(), fastConfig(2), func(context.Context, int) error { return nil }))

	err := Do(context.Background(), fastConfig(2), func(context.Context, int) error { return errors.New("boom") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
}
