package backend

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/ternarybob/arbor"
)

// RetryPolicy retries transient backend failures with exponential backoff
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// NewRetryPolicy creates the default retry policy
func NewRetryPolicy(maxAttempts int) *RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryPolicy{
		MaxAttempts:       maxAttempts,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

func retryableStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	}
	return false
}

func retryable(err error) bool {
	if err == nil {
		return false
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.StatusCode)
	}
	return false
}

// backoff returns the delay before the given retry, with ±25% jitter
func (p *RetryPolicy) backoff(attempt int) time.Duration {
	d := float64(p.InitialBackoff) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if d > float64(p.MaxBackoff) {
		d = float64(p.MaxBackoff)
	}
	d += d * 0.25 * (rand.Float64()*2 - 1)
	if d < 0 {
		d = float64(p.InitialBackoff)
	}
	return time.Duration(d)
}

// Do runs fn until it succeeds, fails permanently, or attempts run out
func (p *RetryPolicy) Do(ctx context.Context, logger arbor.ILogger, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil || !retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts-1 {
			break
		}

		wait := p.backoff(attempt)
		if logger != nil {
			logger.Debug().
				Int("attempt", attempt+1).
				Err(lastErr).
				Dur("backoff", wait).
				Msg("Retrying backend request after backoff")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return lastErr
}
