// Package retry provides the retry loop layered over single-attempt bridge
// requests. The correlation engine gives exactly one attempt per request;
// callers that configure retryAttempts/retryDelay get their looping from here.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	bridgeerrors "github.com/saquib34/react-iframe-bridge/errors"
)

var (
	// Thread-safe random source for jitter
	randMu     sync.Mutex
	randSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Config provides retry configuration.
type Config struct {
	MaxAttempts int           // Total attempts including the first (0 or 1 = single attempt)
	Delay       time.Duration // Base delay between attempts
	Multiplier  float64       // Backoff multiplier per attempt (1.0 = fixed delay)
	AddJitter   bool          // Add up to 25% randomness to each delay

	// ShouldRetry decides whether a failed attempt is retried. When nil,
	// timeouts and transport failures retry; security and validation
	// failures fail immediately.
	ShouldRetry func(error) bool
}

// DefaultConfig returns sensible defaults for request retries.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		Delay:       100 * time.Millisecond,
		Multiplier:  1.0,
		AddJitter:   false,
	}
}

// Do executes fn up to cfg.MaxAttempts times.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.Delay < 0 {
		return errors.New("retry: Delay cannot be negative")
	}
	if cfg.Multiplier < 0 {
		return errors.New("retry: Multiplier cannot be negative")
	}

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = 1.0
	}
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = bridgeerrors.IsRetryable
	}

	var lastErr error
	delay := cfg.Delay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !shouldRetry(err) {
			return err
		}

		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled before attempt %d: %w", attempt+1, ctx.Err())
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		sleepDuration := delay
		if cfg.AddJitter && delay > 0 {
			randMu.Lock()
			jitter := time.Duration(randSource.Int63n(int64(delay/4) + 1))
			randMu.Unlock()
			sleepDuration = delay + jitter
		}

		if sleepDuration > 0 {
			timer := time.NewTimer(sleepDuration)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("retry cancelled during backoff for attempt %d: %w", attempt+1, ctx.Err())
			case <-timer.C:
			}
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
	}

	return fmt.Errorf("retry failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// DoWithResult executes fn with retry and returns both result and error.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var innerErr error
		result, innerErr = fn()
		return innerErr
	})
	return result, err
}
