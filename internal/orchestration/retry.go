package orchestration

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// RetryPolicy bounds the attempts of a fallible pipeline step.
// Waits grow as InitialInterval * Multiplier^(n-1), capped at MaxInterval, without jitter.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration
}

// DefaultRetryPolicy waits 2s then 4s across 3 attempts
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 2 * time.Second,
		Multiplier:      2,
		MaxInterval:     10 * time.Second,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialInterval < 0 {
		p.InitialInterval = 0
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}
	return p
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	p = p.withDefaults()

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.RandomizationFactor = 0
	exp.Multiplier = p.Multiplier
	exp.MaxInterval = p.MaxInterval
	exp.MaxElapsedTime = 0
	exp.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.MaxAttempts-1)), ctx)
}

// retry runs fn until it succeeds, returns a permanent error, or the policy is exhausted.
// It reports how many attempts were made alongside the last error.
func retry[T any](ctx context.Context, policy RetryPolicy, logger *zap.Logger, step string, fn func(attempt int) (T, error)) (T, int, error) {
	var (
		result   T
		attempts int
	)

	operation := func() error {
		attempts++
		out, err := fn(attempts)
		if err != nil {
			return err
		}
		result = out
		return nil
	}

	notify := func(err error, wait time.Duration) {
		logger.Warn("attempt failed, retrying",
			zap.String("step", step),
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(operation, policy.backOff(ctx), notify); err != nil {
		var zero T
		return zero, attempts, err
	}
	return result, attempts, nil
}

// permanent stops retrying and surfaces err unchanged
func permanent(err error) error {
	return backoff.Permanent(err)
}
