// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package resilience

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Retry executes the function with retry logic.
func Retry(ctx context.Context, config *RetryConfig, fn Executor) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		lastErr = err

		if !config.ShouldRetry(err) {
			return fmt.Errorf("non-retryable error: %w", err)
		}

		if attempt == config.MaxAttempts {
			break
		}

		if config.OnRetry != nil {
			config.OnRetry(attempt, err)
		}

		delay := config.Backoff(attempt)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("%w: last error: %v", ErrMaxAttemptsExceeded, lastErr)
}

// ConstantBackoff creates a backoff strategy with constant delay.
func ConstantBackoff(delay time.Duration) BackoffStrategy {
	return func(attempt int) time.Duration {
		return delay
	}
}

// LinearBackoff creates a backoff strategy with linear increase.
func LinearBackoff(base time.Duration, max time.Duration) BackoffStrategy {
	return func(attempt int) time.Duration {
		delay := base * time.Duration(attempt)
		if delay > max {
			delay = max
		}
		return delay
	}
}

// ExponentialBackoff creates a backoff strategy with exponential increase.
func ExponentialBackoff(base time.Duration, multiplier float64, max time.Duration) BackoffStrategy {
	return func(attempt int) time.Duration {
		delay := float64(base) * math.Pow(multiplier, float64(attempt-1))
		duration := time.Duration(delay)
		if duration > max {
			duration = max
		}
		return duration
	}
}

// DefaultShouldRetry retries on any error.
func DefaultShouldRetry(err error) bool {
	return err != nil
}

// NeverRetry never retries.
func NeverRetry(err error) bool {
	return false
}

// RetryOnSpecificErrors creates a retry predicate that only retries specific errors.
func RetryOnSpecificErrors(errors ...error) ShouldRetry {
	errorMap := make(map[error]bool)
	for _, err := range errors {
		errorMap[err] = true
	}

	return func(err error) bool {
		return errorMap[err]
	}
}
