// Package retry runs short local operations again when they fail transiently
package retry

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy defines how to retry an operation
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultPolicy suits a local database that is briefly locked by another writer
var DefaultPolicy = RetryPolicy{
	MaxAttempts:    5,
	InitialBackoff: 20 * time.Millisecond,
	MaxBackoff:     500 * time.Millisecond,
}

// IsTransientFunc defines if an error is transient and should be retried
type IsTransientFunc func(error) bool

// Do executes a function with retries according to the policy
func Do(ctx context.Context, policy RetryPolicy, isTransient IsTransientFunc, fn func() error) error {
	_, err := DoValue(ctx, policy, isTransient, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// DoValue is Do for operations that produce a result
func DoValue[T any](ctx context.Context, policy RetryPolicy, isTransient IsTransientFunc, fn func() (T, error)) (T, error) {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := policy.InitialBackoff

	var (
		result T
		err    error
	)
	for attempt := 0; attempt < attempts; attempt++ {
		result, err = fn()
		if err == nil || !isTransient(err) {
			return result, err
		}
		if attempt == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(jitter(backoff)):
			backoff = minDuration(backoff*2, policy.MaxBackoff)
		}
	}

	return result, err
}

// jitter returns backoff plus up to 50% extra
func jitter(backoff time.Duration) time.Duration {
	if backoff < 2 {
		return backoff
	}
	return backoff + time.Duration(rand.Int63n(int64(backoff/2)))
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
