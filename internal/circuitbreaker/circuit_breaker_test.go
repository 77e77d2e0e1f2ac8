package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransport = errors.New("connection refused")
var errRevert = errors.New("execution reverted")

// newTestBreaker returns a breaker driven by a controllable clock
func newTestBreaker(t *testing.T) (*CircuitBreaker, *time.Time) {
	t.Helper()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(&Config{
		Name:                "rpc",
		ConsecutiveFailures: 3,
		OpenTimeout:         10 * time.Second,
		HalfOpenMaxCalls:    2,
		IsFailure:           func(err error) bool { return errors.Is(err, errTransport) },
	})
	cb.now = func() time.Time { return now }
	return cb, &now
}

func fail(err error) func(context.Context) error {
	return func(context.Context) error { return err }
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, fail(errTransport)), errTransport)
	}
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, int64(1), cb.GetStats().Rejected)
}

func TestCircuitBreaker_IgnoresUncountedErrors(t *testing.T) {
	cb, _ := newTestBreaker(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_ = cb.Execute(ctx, fail(errRevert))
	}
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_SuccessResetsStreak(t *testing.T) {
	cb, _ := newTestBreaker(t)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail(errTransport))
	_ = cb.Execute(ctx, fail(errTransport))
	require.NoError(t, cb.Execute(ctx, fail(nil)))
	_ = cb.Execute(ctx, fail(errTransport))

	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, 1, cb.GetStats().ConsecutiveFails)
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, now := newTestBreaker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, fail(errTransport))
	}
	require.Equal(t, StateOpen, cb.GetState())

	*now = now.Add(11 * time.Second)

	t.Run("probe success closes after enough probes", func(t *testing.T) {
		require.NoError(t, cb.Execute(ctx, fail(nil)))
		assert.Equal(t, StateHalfOpen, cb.GetState())
		require.NoError(t, cb.Execute(ctx, fail(nil)))
		assert.Equal(t, StateClosed, cb.GetState())
	})
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, now := newTestBreaker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, fail(errTransport))
	}
	*now = now.Add(11 * time.Second)

	_ = cb.Execute(ctx, fail(errTransport))
	assert.Equal(t, StateOpen, cb.GetState())
	assert.ErrorIs(t, cb.Execute(ctx, fail(nil)), ErrCircuitOpen)
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, fail(errTransport))
	}
	cb.Reset()

	assert.Equal(t, StateClosed, cb.GetState())
	assert.NoError(t, cb.Execute(ctx, fail(nil)))
}
