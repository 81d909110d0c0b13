package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Factor:       2,
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fastPolicy(5), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	sentinel := errors.New("still down")
	err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) error {
		calls++
		return sentinel
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanent(t *testing.T) {
	t.Parallel()

	calls := 0
	sentinel := errors.New("malformed input")
	err := Do(context.Background(), fastPolicy(5), func(ctx context.Context) error {
		calls++
		return Permanent{Err: sentinel}
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{MaxAttempts: 5, InitialDelay: time.Minute}, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestGateSpacesCalls(t *testing.T) {
	t.Parallel()

	gate := NewGate(20 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, gate.Acquire(ctx))
	require.NoError(t, gate.Acquire(ctx))
	require.NoError(t, gate.Acquire(ctx))

	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestGateZeroIntervalNeverBlocks(t *testing.T) {
	t.Parallel()

	gate := NewGate(0)
	require.NoError(t, gate.Acquire(context.Background()))
	require.NoError(t, gate.Acquire(context.Background()))
}

func TestGateCancelledContext(t *testing.T) {
	t.Parallel()

	gate := NewGate(time.Minute)
	ctx := context.Background()
	require.NoError(t, gate.Acquire(ctx))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, gate.Acquire(cancelled), context.Canceled)
}
