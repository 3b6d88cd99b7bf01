package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig shapes the retry loop: how many tries, and how the pause
// between them grows.
type RetryConfig struct {
	MaxAttempts    int           // total tries including the first; 1 disables retries
	InitialBackoff time.Duration // pause before the second attempt
	MaxBackoff     time.Duration // ceiling for the pause
	Multiplier     float64       // pause growth factor per attempt
	JitterFraction float64       // random spread around the pause, 0..1

	// ShouldRetry decides which errors are worth another attempt.
	// Nil means IsTransient.
	ShouldRetry func(err error) bool

	// OnRetry runs before each pause with the number of the attempt that
	// just failed and its error.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig suits outbound provider calls: three tries, half a
// second to start, doubling, capped at twenty seconds.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     20 * time.Second,
		Multiplier:     2,
		JitterFraction: 0.25,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.Multiplier <= 0 {
		c.Multiplier = d.Multiplier
	}
	if c.JitterFraction < 0 {
		c.JitterFraction = 0
	}
	return c
}

// pause computes the delay after failed attempt number attempt (1-based),
// growing exponentially and spread by jitter so synchronized callers drift
// apart.
func (c RetryConfig) pause(attempt int) time.Duration {
	d := float64(c.InitialBackoff) * math.Pow(c.Multiplier, float64(attempt-1))
	d = math.Min(d, float64(c.MaxBackoff))
	if c.JitterFraction > 0 {
		d += d * c.JitterFraction * (2*rand.Float64() - 1)
	}
	return time.Duration(math.Max(d, 0))
}

// Do runs fn until it succeeds, the error stops being retryable, attempts
// run out, or ctx ends.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for calls that return a value. It returns the value of the
// successful call, or the last error once attempts are exhausted.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()
	retryable := cfg.ShouldRetry
	if retryable == nil {
		retryable = IsTransient
	}

	var zero T
	for attempt := 1; ; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}

		// A canceled call is not a failing provider; stop immediately.
		if ctx.Err() != nil || !retryable(err) || attempt >= cfg.MaxAttempts {
			return zero, err
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}
		timer := time.NewTimer(cfg.pause(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
}

// RetryLogger builds an OnRetry hook that records each failed attempt at
// Warn under the given service and operation labels.
func RetryLogger(service, operation string) func(int, error) {
	log := zap.L().With(
		zap.String("service", service),
		zap.String("operation", operation),
	)
	return func(attempt int, err error) {
		log.Warn("attempt failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
	}
}
