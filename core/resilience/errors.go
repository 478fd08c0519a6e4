// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package resilience

import "errors"

var (
	// ErrCircuitBreakerOpen is returned when the circuit breaker is open.
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

	// ErrMaxAttemptsExceeded is returned when retry attempts are exhausted.
	ErrMaxAttemptsExceeded = errors.New("maximum retry attempts exceeded")

	// ErrBulkheadFull is returned when the bulkhead is at capacity.
	ErrBulkheadFull = errors.New("bulkhead is full")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("operation timed out")
)
