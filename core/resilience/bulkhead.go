// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package resilience

import (
	"context"
)

// Bulkhead implements the bulkhead isolation pattern.
type Bulkhead struct {
	config     *BulkheadConfig
	semaphore  chan struct{}
	queueDepth chan struct{}
}

// NewBulkhead creates a new bulkhead.
func NewBulkhead(config *BulkheadConfig) *Bulkhead {
	if config == nil {
		config = DefaultBulkheadConfig()
	}

	b := &Bulkhead{
		config:    config,
		semaphore: make(chan struct{}, config.MaxConcurrent),
	}

	if config.MaxQueueDepth > 0 {
		b.queueDepth = make(chan struct{}, config.MaxQueueDepth)
	}

	return b
}

// Execute executes the function with bulkhead isolation.
func (b *Bulkhead) Execute(ctx context.Context, fn Executor) error {
	if b.queueDepth != nil {
		select {
		case b.queueDepth <- struct{}{}:
		default:
			return ErrBulkheadFull
		}
	}
	// leaveQueue frees the queue slot once the call either gets a
	// concurrency slot or gives up waiting for one.
	leaveQueue := func() {
		if b.queueDepth != nil {
			<-b.queueDepth
		}
	}

	if b.config.Timeout > 0 {
		ctx, cancel := context.WithTimeout(ctx, b.config.Timeout)
		defer cancel()

		select {
		case b.semaphore <- struct{}{}:
			leaveQueue()
			defer func() { <-b.semaphore }()
		case <-ctx.Done():
			leaveQueue()
			if ctx.Err() == context.DeadlineExceeded {
				return ErrBulkheadFull
			}
			return ctx.Err()
		}
	} else {
		select {
		case b.semaphore <- struct{}{}:
			leaveQueue()
			defer func() { <-b.semaphore }()
		case <-ctx.Done():
			leaveQueue()
			return ctx.Err()
		}
	}

	return fn(ctx)
}

// Available returns the number of available slots.
func (b *Bulkhead) Available() int {
	return b.config.MaxConcurrent - len(b.semaphore)
}

// InProgress returns the number of in-progress executions.
func (b *Bulkhead) InProgress() int {
	return len(b.semaphore)
}

// QueueLength returns the current queue length.
func (b *Bulkhead) QueueLength() int {
	if b.queueDepth == nil {
		return 0
	}
	return len(b.queueDepth)
}
