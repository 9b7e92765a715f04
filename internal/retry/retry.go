// Package retry runs an operation a bounded number of times.
package retry

import (
	"context"
	"errors"
	"time"
)

// Config configures retry behavior. A Multiplier of 1 gives a fixed delay.
type Config struct {
	Attempts   int           // Total attempts including the first
	BaseDelay  time.Duration // Delay before the second attempt
	MaxDelay   time.Duration // Upper bound on the delay, 0 = no bound
	Multiplier float64       // Backoff multiplier applied after each failure
}

// Fixed returns a config that waits the same delay between every attempt
func Fixed(attempts int, delay time.Duration) Config {
	return Config{
		Attempts:   attempts,
		BaseDelay:  delay,
		MaxDelay:   delay,
		Multiplier: 1,
	}
}

// Backoff returns an exponential backoff config
func Backoff(attempts int, base, max time.Duration) Config {
	return Config{
		Attempts:   attempts,
		BaseDelay:  base,
		MaxDelay:   max,
		Multiplier: 2,
	}
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err so Do returns it without further attempts
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do executes fn until it succeeds, returns a permanent error, the attempts
// are exhausted or ctx is cancelled. The last error is returned unwrapped
// from any Permanent marker.
func Do[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := cfg.BaseDelay

	for attempt := 0; attempt < attempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		var p *permanentError
		if errors.As(err, &p) {
			return zero, p.err
		}

		// Don't retry on context cancellation
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		if attempt < attempts-1 && delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
			if cfg.Multiplier > 1 {
				delay = time.Duration(float64(delay) * cfg.Multiplier)
				if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
					delay = cfg.MaxDelay
				}
			}
		}
	}

	return zero, lastErr
}

// Run is Do for operations without a result
func Run(ctx context.Context, cfg Config, fn func() error) error {
	_, err := Do(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
