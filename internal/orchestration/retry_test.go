package orchestration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultRetryPolicy(t *testing.T) {
	policy := DefaultRetryPolicy()

	assert.Equal(t, 3, policy.MaxAttempts)
	assert.Equal(t, 2*time.Second, policy.InitialInterval)
	assert.Equal(t, 2.0, policy.Multiplier)
	assert.Equal(t, 10*time.Second, policy.MaxInterval)
}

func TestRetryPolicy_BackOffIntervals(t *testing.T) {
	b := DefaultRetryPolicy().backOff(context.Background())
	b.Reset()

	assert.Equal(t, 2*time.Second, b.NextBackOff())
	assert.Equal(t, 4*time.Second, b.NextBackOff())
	assert.Less(t, b.NextBackOff(), time.Duration(0), "third wait must stop the retries")
}

func TestRetryPolicy_WithDefaults(t *testing.T) {
	policy := RetryPolicy{}.withDefaults()

	assert.Equal(t, 3, policy.MaxAttempts)
	assert.Equal(t, 2.0, policy.Multiplier)
}

func TestRetry(t *testing.T) {
	logger := zap.NewNop()

	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		out, attempts, err := retry(context.Background(), fastPolicy(), logger, "test", func(attempt int) (string, error) {
			calls++
			if attempt < 3 {
				return "", errors.New("boom")
			}
			return "ok", nil
		})

		require.NoError(t, err)
		assert.Equal(t, "ok", out)
		assert.Equal(t, 3, attempts)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops at max attempts", func(t *testing.T) {
		calls := 0
		_, attempts, err := retry(context.Background(), fastPolicy(), logger, "test", func(int) (int, error) {
			calls++
			return 0, errors.New("always")
		})

		require.Error(t, err)
		assert.Equal(t, "always", err.Error())
		assert.Equal(t, 3, attempts)
		assert.Equal(t, 3, calls)
	})

	t.Run("permanent error is not retried", func(t *testing.T) {
		sentinel := errors.New("fatal")
		_, attempts, err := retry(context.Background(), fastPolicy(), logger, "test", func(int) (int, error) {
			return 0, permanent(sentinel)
		})

		assert.ErrorIs(t, err, sentinel)
		assert.Equal(t, 1, attempts)
	})

	t.Run("cancelled context stops waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		slow := RetryPolicy{MaxAttempts: 3, InitialInterval: time.Hour, Multiplier: 2, MaxInterval: time.Hour}

		_, attempts, err := retry(ctx, slow, logger, "test", func(int) (int, error) {
			cancel()
			return 0, errors.New("boom")
		})

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, attempts)
	})
}
