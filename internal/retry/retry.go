package retry

import (
	"context"
	"math/rand"
	"time"
)

// Config controls backoff behavior for WithRetry.
type Config struct {
	MaxRetries int           // additional attempts after the first (default 3)
	BaseDelay  time.Duration // first backoff delay (default 500ms)
	MaxDelay   time.Duration // cap on any single delay (default 30s)
	Jitter     float64       // multiplicative jitter fraction in [0,1) (default 0.2)

	// ShouldRetry overrides the default predicate (recoverable and not an
	// auth failure). Auth failures are never retried even if this returns true.
	ShouldRetry func(error) bool
}

// DefaultConfig returns the standard retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   30 * time.Second,
		Jitter:     0.2,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.Jitter < 0 || c.Jitter >= 1 {
		c.Jitter = d.Jitter
	}
	return c
}

// WithRetry invokes fn, retrying on failures the predicate accepts, with
// exponential backoff and multiplicative jitter:
//
//	delay = min(maxDelay, baseDelay · 2^attempt · (1 ± jitter))
//
// On exhaustion the last error is returned unchanged. Authentication
// failures short-circuit: they are returned after the first attempt no
// matter what the config says.
func WithRetry[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.normalized()
	predicate := cfg.ShouldRetry
	if predicate == nil {
		predicate = ShouldRetry
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := waitBackoff(ctx, Backoff(cfg, attempt-1)); err != nil {
				return zero, lastErr
			}
		}

		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if IsAuthFailure(Classify(err)) {
			return zero, err
		}
		if !predicate(err) {
			return zero, err
		}
	}
	return zero, lastErr
}

// Backoff computes the delay before retry number attempt (0-indexed).
func Backoff(cfg Config, attempt int) time.Duration {
	delay := cfg.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= cfg.MaxDelay {
			delay = cfg.MaxDelay
			break
		}
	}

	if cfg.Jitter > 0 {
		// Scale by a random factor in [1-jitter, 1+jitter].
		factor := 1 + cfg.Jitter*(2*rand.Float64()-1)
		delay = time.Duration(float64(delay) * factor)
	}

	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

// waitBackoff sleeps for the delay or returns early if ctx is cancelled.
func waitBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
