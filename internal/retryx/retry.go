// Package retryx is the single retry-with-backoff utility shared by the
// store bootstrap, remote calls and the sync worker. It wraps
// sethvargo/go-retry with the policy used across the app: every error is
// retried unless explicitly marked permanent.
package retryx

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Do gives up immediately and returns the original
// error. A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs fn up to attempts times with jittered exponential backoff starting
// at baseDelay. Errors are retried unless wrapped with Permanent or the
// context ends. Once attempts are exhausted the last error is returned.
func Do(ctx context.Context, attempts uint64, baseDelay time.Duration, fn func(ctx context.Context) error) error {
	if attempts == 0 {
		attempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	b := retry.WithMaxRetries(attempts-1, retry.WithJitterPercent(10, retry.NewExponential(baseDelay)))

	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var pe *permanentError
		if errors.As(err, &pe) {
			return pe.err
		}
		return retry.RetryableError(err)
	})
}
