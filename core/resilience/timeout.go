// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package resilience

import (
	"context"
)

// WithTimeout executes the function with a timeout.
func WithTimeout(ctx context.Context, config *TimeoutConfig, fn Executor) error {
	if config == nil {
		config = DefaultTimeoutConfig()
	}

	ctx, cancel := context.WithTimeout(ctx, config.Duration)
	defer cancel()

	type result struct {
		err error
	}
	resultChan := make(chan result, 1)

	go func() {
		resultChan <- result{err: fn(ctx)}
	}()

	select {
	case res := <-resultChan:
		return res.err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return ErrTimeout
		}
		return ctx.Err()
	}
}
