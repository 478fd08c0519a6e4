// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package resilience provides resilience patterns used by the model-server
// client and storage layer to tolerate transient failures.
//
//   - Retry: re-attempt a failing operation with backoff
//   - Circuit Breaker: stop calling a consistently failing dependency
//   - Bulkhead: cap concurrent in-flight operations
//   - Timeout: bound how long a single attempt may run
//
// Retry:
//
//	cfg := &resilience.RetryConfig{
//	    MaxAttempts: 3,
//	    Backoff:     resilience.ExponentialBackoff(2*time.Second, 2.0, 60*time.Second),
//	    ShouldRetry: resilience.DefaultShouldRetry,
//	}
//	err := resilience.Retry(ctx, cfg, func(ctx context.Context) error {
//	    return client.Embed(ctx, text)
//	})
//
// Circuit Breaker:
//
//	cb := resilience.NewCircuitBreaker(nil)
//	err := cb.Execute(ctx, func(ctx context.Context) error {
//	    return client.Generate(ctx, prompt)
//	})
package resilience
