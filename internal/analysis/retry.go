package analysis

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryConfig holds configuration for retry with backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts including the first. Default: 3
	MaxAttempts int
	// InitialBackoff is the wait before the second attempt. Default: 1s
	InitialBackoff time.Duration
	// MaxBackoff caps the wait between attempts. Default: 16s
	MaxBackoff time.Duration
	// BackoffMultiplier grows the wait after each attempt. Default: 2.0
	BackoffMultiplier float64
	// JitterFraction randomizes each wait by +/- this fraction. Default: 0.1
	JitterFraction float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Second,
		MaxBackoff:        16 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.1,
	}
}

type noRetryError struct {
	err error
}

func (e *noRetryError) Error() string { return e.err.Error() }
func (e *noRetryError) Unwrap() error { return e.err }

// NoRetry marks err as permanent so the retry loop stops immediately.
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return &noRetryError{err: err}
}

// retryWithBackoff runs op until it succeeds, returns a NoRetry error, the attempts
// run out, or ctx is done. It returns the last operation error, unwrapped from NoRetry.
// Deadlines of a single attempt do not stop the loop; only ctx does.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, op func(attempt int) error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = 1
	}
	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = op(attempt)
		if lastErr == nil {
			return nil
		}
		var nr *noRetryError
		if errors.As(lastErr, &nr) {
			return nr.err
		}
		if ctx.Err() != nil || attempt >= cfg.MaxAttempts {
			break
		}

		jitter := time.Duration(float64(backoff) * cfg.JitterFraction * (rand.Float64()*2 - 1))
		sleep := backoff + jitter
		if sleep < 0 {
			sleep = backoff
		}
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(sleep):
		}

		backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
		if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
	return lastErr
}
