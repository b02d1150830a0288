// Package retry provides utilities for retrying operations that may fail due
// to transient errors, used by httpclient to recover from connection-level
// failures before a request reaches the engine's own conflict-retry logic.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/auriora/tusclient/internal/logging"
	"github.com/auriora/tusclient/internal/tuserr"
)

// RetryableFunc is a function that can be retried.
type RetryableFunc func() error

// Config holds configuration for retry operations.
type Config struct {
	MaxRetries      int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	Jitter          float64
	RetryableErrors []RetryableError
	Log             logging.Logger
}

// RetryableError defines a function that determines if an error should be retried.
type RetryableError func(error) bool

// DefaultConfig returns a default retry configuration: transport failures are
// retried, protocol and precondition errors are not.
func DefaultConfig(log logging.Logger) Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
		RetryableErrors: []RetryableError{
			tuserr.IsTransportError,
			tuserr.IsIOFailure,
		},
		Log: log,
	}
}

// Do retries the given function with exponential backoff.
func Do(ctx context.Context, op RetryableFunc, config Config) error {
	var err error
	delay := config.InitialDelay

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err = op()
		if err == nil {
			return nil
		}

		shouldRetry := false
		for _, retryable := range config.RetryableErrors {
			if retryable(err) {
				shouldRetry = true
				break
			}
		}
		if !shouldRetry || attempt == config.MaxRetries {
			return err
		}

		jitterRange := float64(delay) * config.Jitter
		jitterAmount := time.Duration(rand.Float64() * jitterRange)
		actualDelay := delay + jitterAmount

		config.Log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("maxRetries", config.MaxRetries).
			Dur("delay", actualDelay).
			Msg("operation failed, retrying after delay")

		select {
		case <-time.After(actualDelay):
		case <-ctx.Done():
			return tuserr.Wrap(ctx.Err(), "retry canceled by context")
		}

		delay = time.Duration(float64(delay) * config.Multiplier)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return err
}
