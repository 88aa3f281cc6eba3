package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "xarchiver/pkg/errors"
	"xarchiver/pkg/logger"
)

// ErrExhausted is wrapped into the error returned when every attempt failed
var ErrExhausted = errors.New("retry attempts exhausted")

// Result is the outcome of a single attempt
type Result[T any] struct {
	Value     T
	Err       error
	retryable bool
}

// Ok is a successful attempt
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Retryable is a failed attempt that may be tried again
func Retryable[T any](err error) Result[T] {
	return Result[T]{Err: err, retryable: true}
}

// Fatal is a failed attempt that ends the loop
func Fatal[T any](err error) Result[T] {
	return Result[T]{Err: err}
}

// IsOk reports whether the attempt succeeded
func (r Result[T]) IsOk() bool { return r.Err == nil }

// IsRetryable reports whether the attempt failed and may be retried
func (r Result[T]) IsRetryable() bool { return r.Err != nil && r.retryable }

// Classify turns a (value, error) pair into a Result using DefaultRetryIf
func Classify[T any](v T, err error) Result[T] {
	if err == nil {
		return Ok(v)
	}
	if DefaultRetryIf(err) {
		return Retryable[T](err)
	}
	return Fatal[T](err)
}

// Operation is a single attempt. attempt starts at 1.
type Operation[T any] func(ctx context.Context, attempt int) Result[T]

// Config holds retry configuration
type Config struct {
	// MaxAttempts is the ceiling on attempts, values below 1 mean 1
	MaxAttempts int
	// Backoff strategy to use between attempts
	Backoff BackoffStrategy
	// OnRetry is called before each wait
	OnRetry func(attempt int, err error, delay time.Duration)
	// Name labels log lines
	Name string
	// Logger for retry attempts
	Logger logger.Logger
}

// DefaultConfig returns a retry configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		Backoff:     DefaultExponentialBackoff(),
		Logger:      logger.NewNopLogger(),
	}
}

// DefaultRetryIf is the default retry predicate
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}

	var typed *errs.Error
	if errors.As(err, &typed) {
		return errs.IsRetryable(typed.Kind)
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	return true
}

// Run executes op until it succeeds, returns Fatal, or the ceiling is reached.
// It returns the value, the number of attempts made and the final error.
func Run[T any](ctx context.Context, cfg Config, op Operation[T]) (T, int, error) {
	var zero T
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = DefaultExponentialBackoff()
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res := op(ctx, attempt)
		if res.IsOk() {
			if attempt > 1 {
				log.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"operation": cfg.Name,
					"attempt":   attempt,
				})
			}
			return res.Value, attempt, nil
		}

		lastErr = res.Err
		if !res.IsRetryable() {
			log.DebugWithFields("error is not retryable", map[string]interface{}{
				"operation": cfg.Name,
				"error":     res.Err.Error(),
			})
			return zero, attempt, res.Err
		}

		if attempt == maxAttempts {
			break
		}

		delay := backoff.NextDelay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, res.Err, delay)
		}

		log.WarnWithFields("retrying operation", map[string]interface{}{
			"operation":    cfg.Name,
			"attempt":      attempt,
			"error":        res.Err.Error(),
			"delay_ms":     delay.Milliseconds(),
			"max_attempts": maxAttempts,
		})

		if err := Wait(ctx, delay); err != nil {
			return zero, attempt, fmt.Errorf("retry cancelled: %w", errors.Join(err, lastErr))
		}
	}

	log.ErrorWithFields("max retry attempts exceeded", map[string]interface{}{
		"operation":  cfg.Name,
		"attempts":   maxAttempts,
		"last_error": lastErr.Error(),
	})
	return zero, maxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, maxAttempts, lastErr)
}

// Do retries an error-only operation, classifying errors with DefaultRetryIf
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error) error {
	_, _, err := Run(ctx, cfg, func(ctx context.Context, _ int) Result[struct{}] {
		return Classify(struct{}{}, op(ctx))
	})
	return err
}
