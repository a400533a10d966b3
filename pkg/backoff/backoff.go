// Package backoff provides exponential backoff and a context-aware retry loop.
package backoff

import (
	"context"
	"errors"
	"math"
	"time"
)

// Config for exponential backoff. Zero values use defaults.
type Config struct {
	Initial time.Duration // default: 500ms
	Max     time.Duration // default: 10s
}

// Exponential calculates exponential backoff for a given attempt.
// Attempt 1 returns initial, attempt 2 returns initial*2, etc.
func Exponential(attempt int, cfg *Config) time.Duration {
	initial := 500 * time.Millisecond
	maxBackoff := 10 * time.Second
	if cfg != nil {
		if cfg.Initial > 0 {
			initial = cfg.Initial
		}
		if cfg.Max > 0 {
			maxBackoff = cfg.Max
		}
	}

	if attempt < 1 {
		return initial
	}
	backoff := float64(initial) * math.Pow(2.0, float64(attempt-1))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}
	return time.Duration(backoff)
}

// permanentError marks an error that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Retry returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// RetryAfter is implemented by errors carrying a server-requested delay.
type RetryAfter interface {
	RetryAfter() time.Duration
}

// Retry calls fn until it succeeds, returns a Permanent error, or maxRetries
// retries have been spent. The wait before retry n is Exponential(n, cfg),
// or the delay requested by an error implementing RetryAfter when longer.
// The last error is returned unwrapped.
func Retry(ctx context.Context, maxRetries int, cfg *Config, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := range maxRetries + 1 {
		if attempt > 0 {
			wait := Exponential(attempt, cfg)
			var hint RetryAfter
			if errors.As(lastErr, &hint) && hint.RetryAfter() > wait {
				wait = hint.RetryAfter()
			}
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.Join(lastErr, ctx.Err())
			case <-timer.C:
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
	}
	return lastErr
}
