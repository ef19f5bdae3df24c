package sentryapi

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// networkBackoff is the exponential backoff schedule for NetworkError and
// ServerError retries: 250ms, 1s, 4s, each jittered by up to ±20%.
var networkBackoff = []time.Duration{250 * time.Millisecond, time.Second, 4 * time.Second}

// maxServerErrorRetries bounds ServerError retries below NetworkError's
// 3 attempts, per the spec's taxonomy ("retry twice" for 5xx).
const maxServerErrorRetries = 2

func jitter(d time.Duration) time.Duration {
	delta := float64(d) * 0.2
	offset := (rand.Float64()*2 - 1) * delta
	return d + time.Duration(offset)
}

// withRetry runs fn, retrying per the gateway's Sentry error taxonomy:
// NetworkError up to 3x with exponential backoff+jitter, RateLimited up to
// once honoring Retry-After, ServerError up to twice, AuthError/NotFound
// never retried.
func withRetry(ctx context.Context, fn func() error) error {
	var lastErr error

	var rateLimitedTried bool
	serverErrorAttempts := 0
	networkAttempt := 0

	for {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		var netErr *NetworkError
		var rl *RateLimited
		var srvErr *ServerError

		switch {
		case errors.As(err, &netErr):
			if networkAttempt >= len(networkBackoff) {
				return lastErr
			}
			wait := jitter(networkBackoff[networkAttempt])
			networkAttempt++
			if !sleep(ctx, wait) {
				return ctx.Err()
			}
			continue

		case errors.As(err, &rl):
			if rateLimitedTried {
				return lastErr
			}
			rateLimitedTried = true
			wait := time.Duration(rl.RetryAfterSeconds) * time.Second
			if wait <= 0 {
				wait = time.Second
			}
			if !sleep(ctx, wait) {
				return ctx.Err()
			}
			continue

		case errors.As(err, &srvErr):
			if serverErrorAttempts >= maxServerErrorRetries {
				return lastErr
			}
			idx := serverErrorAttempts
			if idx >= len(networkBackoff) {
				idx = len(networkBackoff) - 1
			}
			serverErrorAttempts++
			if !sleep(ctx, jitter(networkBackoff[idx])) {
				return ctx.Err()
			}
			continue

		default:
			return lastErr
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
