// Package backoff retries operations with exponential delay.
package backoff

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Retry returns it unwrapped
// without waiting.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry calls fn up to maxAttempts times, sleeping base, 2*base, 4*base...
// on clk between failures. It returns the first success, the last error, or
// the context error if ctx ends while waiting. A nil clk means wall time.
func Retry[T any](ctx context.Context, clk clock.Clock, maxAttempts int, base time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	if clk == nil {
		clk = clock.New()
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	for i := 0; i < maxAttempts; i++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		lastErr = err
		if i < maxAttempts-1 {
			delay := time.Duration(1<<i) * base
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-clk.After(delay):
			}
		}
	}
	return zero, lastErr
}
