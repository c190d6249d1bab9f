// Package retry provides exponential backoff scheduling and retry execution
// for transient failures, used by the connection engine to pace reconnect
// attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

var (
	// Thread-safe random source for jitter
	randMu     sync.Mutex
	randSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// NonRetryableError wraps errors that should not be retried
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// NonRetryable wraps an error to indicate it should not be retried
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable checks if an error is marked as non-retryable
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// Config provides backoff configuration
type Config struct {
	MaxAttempts  int           `json:"max_attempts" yaml:"max_attempts"`     // Maximum number of attempts (0 = run once)
	InitialDelay time.Duration `json:"initial_delay" yaml:"initial_delay"`   // Delay before the first retry
	MaxDelay     time.Duration `json:"max_delay" yaml:"max_delay"`           // Upper bound on any single delay
	Multiplier   float64       `json:"multiplier" yaml:"multiplier"`         // Backoff multiplier (typically 2.0)
	AddJitter    bool          `json:"add_jitter" yaml:"add_jitter"`         // Add randomness to prevent thundering herd
}

// DefaultConfig returns sensible defaults for retry operations
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

// normalized fills zero fields with defaults and clamps pathological values.
func (c Config) normalized() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.Multiplier > 1000 {
		c.Multiplier = 1000
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = c.InitialDelay
	}
	return c
}

// DelayFor returns the backoff delay preceding the given retry attempt.
// Attempt 0 yields InitialDelay; each subsequent attempt multiplies the
// previous delay, capped at MaxDelay. Jitter, when enabled, adds up to 25%.
func (c Config) DelayFor(attempt int) time.Duration {
	cfg := c.normalized()

	delay := cfg.InitialDelay
	for i := 0; i < attempt; i++ {
		next := float64(delay) * cfg.Multiplier
		if next >= float64(cfg.MaxDelay) {
			delay = cfg.MaxDelay
			break
		}
		delay = time.Duration(next)
	}

	if cfg.AddJitter && delay > 0 {
		randMu.Lock()
		jitter := time.Duration(randSource.Int63n(int64(delay/4) + 1))
		randMu.Unlock()
		delay += jitter
	}

	return delay
}

// Do executes fn with exponential backoff retry. It stops early when fn
// succeeds, when fn returns a non-retryable error, or when ctx is cancelled.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	cfg = cfg.normalized()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if IsNonRetryable(err) {
			return err
		}

		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled before attempt %d: %w", attempt, ctx.Err())
		}

		// Don't sleep after the last attempt
		if attempt == cfg.MaxAttempts {
			break
		}

		timer := time.NewTimer(cfg.DelayFor(attempt - 1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled during backoff for attempt %d: %w", attempt+1, ctx.Err())
		case <-timer.C:
		}
	}

	return fmt.Errorf("retry failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}
