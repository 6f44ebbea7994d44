package util

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RetryError is returned when every attempt of a retried operation failed.
// It unwraps to the last failure.
type RetryError struct {
	Attempts int
	Last     error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetryError) Unwrap() error {
	return e.Last
}

// RetryWithContext calls fn up to maxTries times until it returns a nil error,
// or until ctx is done. If maxTries <= 0, it defaults to 1.
// Returns ctx.Err() if the context is canceled, otherwise returns the last error.
func RetryWithContext[T any](ctx context.Context, maxTries int, fn func(context.Context) (T, error)) (T, error) {
	return retry(ctx, maxTries, func(int) time.Duration { return 0 }, fn)
}

// RetryFixed behaves like RetryWithContext but sleeps delay between attempts.
func RetryFixed[T any](ctx context.Context, maxTries int, delay time.Duration, fn func(context.Context) (T, error)) (T, error) {
	return retry(ctx, maxTries, func(int) time.Duration { return delay }, fn)
}

// RetryWithBackoff makes one initial attempt plus up to retries more.
// The wait after failed attempt n (0-based) is base * 2^n.
// When all attempts fail the result is a *RetryError, also when the last
// attempt hit its own deadline. Only a done ctx is returned unwrapped.
func RetryWithBackoff[T any](ctx context.Context, retries int, base time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if retries < 0 {
		retries = 0
	}
	result, err := retry(ctx, retries+1, func(attempt int) time.Duration { return Backoff(base, attempt) }, fn)
	if err != nil && ctx.Err() == nil {
		return result, &RetryError{Attempts: retries + 1, Last: err}
	}
	return result, err
}

// Backoff returns base * 2^attempt.
func Backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 || attempt < 0 {
		return 0
	}
	return base << attempt
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func retry[T any](ctx context.Context, maxTries int, wait func(attempt int) time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if maxTries <= 0 {
		maxTries = 1
	}
	var lastErr error
	var zero T
	for i := 0; i < maxTries; i++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if isContextErr(err) && ctx.Err() != nil {
			return zero, err
		}
		lastErr = err
		if i < maxTries-1 {
			if err := SleepContext(ctx, wait(i)); err != nil {
				return zero, err
			}
		}
	}
	return zero, lastErr
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
