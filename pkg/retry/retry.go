// Package retry runs an operation until it succeeds or attempts run out.
package retry

import (
	"context"
	"time"
)

// Options configures retry behavior. Delay is fixed between attempts.
type Options struct {
	Attempts int
	Delay    time.Duration
	// Retryable decides whether an error is worth another attempt. Nil retries every error.
	Retryable func(error) bool
}

// Default is three attempts one second apart.
var Default = Options{Attempts: 3, Delay: time.Second}

// DoValue calls f until it succeeds, returning its value and the last error
// when every attempt fails.
func DoValue[T any](ctx context.Context, opts Options, f func(context.Context) (T, error)) (T, error) {
	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var (
		v   T
		err error
	)
	for attempt := 0; attempt < attempts; attempt++ {
		v, err = f(ctx)
		if err == nil {
			return v, nil
		}
		if opts.Retryable != nil && !opts.Retryable(err) {
			return v, err
		}
		if attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return v, ctx.Err()
		case <-time.After(opts.Delay):
		}
	}
	return v, err
}

// Do is DoValue for operations without a result.
func Do(ctx context.Context, opts Options, f func(context.Context) error) error {
	_, err := DoValue(ctx, opts, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, f(ctx)
	})
	return err
}
