package service

import (
	"context"
	"errors"
	rand "math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextDelay_Bounds(t *testing.T) {
	policy := RetryPolicy{Base: 10 * time.Millisecond, Max: 80 * time.Millisecond, Multiplier: 3}
	rng := rand.New(rand.NewPCG(1, 2))

	assert.Equal(t, 10*time.Millisecond, policy.nextDelay(0, rng))

	prev := time.Duration(0)
	for i := 0; i < 50; i++ {
		prev = policy.nextDelay(prev, rng)
		require.GreaterOrEqual(t, prev, policy.Base)
		require.LessOrEqual(t, prev, policy.Max)
	}
}

func TestNextDelay_MaxBelowBase(t *testing.T) {
	policy := RetryPolicy{Base: time.Second, Max: 10 * time.Millisecond}
	assert.Equal(t, 10*time.Millisecond, policy.nextDelay(0, nil))
	assert.Equal(t, 10*time.Millisecond, policy.nextDelay(time.Second, nil))
}

func TestWithRetry_StopsOnSuccess(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 5, Base: time.Millisecond, Max: 2 * time.Millisecond}

	attempts := 0
	calls, err := withRetry(context.Background(), policy, nil, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_ExhaustsRetries(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 2, Base: time.Millisecond, Max: 2 * time.Millisecond}
	boom := errors.New("boom")

	calls, err := withRetry(context.Background(), policy, nil, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_ContextCancelStopsWaiting(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 10, Base: time.Hour, Max: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())

	calls, err := withRetry(ctx, policy, nil, func(context.Context) error {
		cancel()
		return errors.New("down")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
