// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package ratelimit provides a Redis-backed distributed rate limiter,
// pared down from the teacher's multi-algorithm package to the one
// shape this domain needs: a sliding window shared across every
// memory-palace process hitting the same model server, so a backfill
// or reembed run on one instance doesn't starve requests from another.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds sliding-window rate limiter configuration.
type Config struct {
	// KeyPrefix is the prefix for Redis keys.
	KeyPrefix string

	// Limit is the maximum number of requests allowed per Window.
	Limit int

	// Window is the time window duration.
	Window time.Duration
}

// DefaultConfig returns a limit of 60 requests per minute, matching
// the configuration reference's default rate_limit_per_minute.
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "memory-palace:ratelimit:",
		Limit:     60,
		Window:    time.Minute,
	}
}

// Stats holds rate limiter statistics.
type Stats struct {
	Allowed int64
	Denied  int64
}

// Distributed implements sliding-window rate limiting using a Redis
// sorted set, shared by every process pointed at the same Redis
// instance.
type Distributed struct {
	client *redis.Client
	config Config
	stats  Stats
}

// NewDistributed creates a distributed rate limiter. client must not
// be nil.
func NewDistributed(client *redis.Client, config Config) (*Distributed, error) {
	if client == nil {
		return nil, fmt.Errorf("ratelimit: redis client is required")
	}
	if config.Limit <= 0 || config.Window <= 0 {
		config = DefaultConfig()
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultConfig().KeyPrefix
	}
	return &Distributed{client: client, config: config}, nil
}

// Allow reports whether a single request for key is allowed under the
// current window, recording it immediately if so.
func (d *Distributed) Allow(ctx context.Context, key string) bool {
	now := time.Now()
	redisKey := d.config.KeyPrefix + key
	windowStart := now.Add(-d.config.Window)

	pipe := d.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	countCmd := pipe.ZCard(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		// Redis unavailable: fail open rather than blocking every
		// embedding call on a rate limiter outage.
		atomic.AddInt64(&d.stats.Allowed, 1)
		return true
	}

	if int(countCmd.Val())+1 > d.config.Limit {
		atomic.AddInt64(&d.stats.Denied, 1)
		return false
	}

	addPipe := d.client.Pipeline()
	addPipe.ZAdd(ctx, redisKey, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d", now.UnixNano()),
	})
	addPipe.Expire(ctx, redisKey, d.config.Window*2)
	if _, err := addPipe.Exec(ctx); err != nil {
		atomic.AddInt64(&d.stats.Allowed, 1)
		return true
	}

	atomic.AddInt64(&d.stats.Allowed, 1)
	return true
}

// Wait blocks until key is allowed or ctx is done, polling at an
// interval derived from the configured rate.
func (d *Distributed) Wait(ctx context.Context, key string) error {
	pollInterval := d.config.Window / time.Duration(d.config.Limit)
	if pollInterval < 10*time.Millisecond {
		pollInterval = 10 * time.Millisecond
	}

	for {
		if d.Allow(ctx, key) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Stats returns a snapshot of allowed/denied counts since construction.
func (d *Distributed) Stats() Stats {
	return Stats{
		Allowed: atomic.LoadInt64(&d.stats.Allowed),
		Denied:  atomic.LoadInt64(&d.stats.Denied),
	}
}
