package chains

import (
	"context"
	"time"
)

const (
	retryAttempts  = 3
	retryBaseDelay = time.Second
)

// withRetry runs fn up to retryAttempts times, backing off exponentially
// from base between attempts. Only transient failures are retried; the last
// error is returned once attempts are exhausted or on any permanent error.
func withRetry(ctx context.Context, base time.Duration, fn func() error) error {
	var err error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			delay := base << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			rpcRetries.Inc()
		}
		if err = fn(); err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
	}
	return err
}
