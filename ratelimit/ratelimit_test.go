// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDistributed(t *testing.T, limit int) *Distributed {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	d, err := NewDistributed(client, Config{KeyPrefix: "test:", Limit: limit, Window: time.Minute})
	require.NoError(t, err)
	return d
}

func TestNewDistributed_RequiresClient(t *testing.T) {
	_, err := NewDistributed(nil, DefaultConfig())
	assert.Error(t, err)
}

func TestAllow_AllowsUpToLimitThenDenies(t *testing.T) {
	d := newTestDistributed(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, d.Allow(ctx, "embed"), "request %d should be allowed", i)
	}
	assert.False(t, d.Allow(ctx, "embed"), "request beyond the limit should be denied")

	stats := d.Stats()
	assert.Equal(t, int64(3), stats.Allowed)
	assert.Equal(t, int64(1), stats.Denied)
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	d := newTestDistributed(t, 1)
	ctx := context.Background()

	assert.True(t, d.Allow(ctx, "a"))
	assert.True(t, d.Allow(ctx, "b"))
	assert.False(t, d.Allow(ctx, "a"))
}

func TestWait_ReturnsOnceWindowAdmitsAnotherRequest(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	d, err := NewDistributed(client, Config{KeyPrefix: "test:", Limit: 1, Window: 50 * time.Millisecond})
	require.NoError(t, err)

	ctx := context.Background()
	require.True(t, d.Allow(ctx, "k"))

	mr.FastForward(100 * time.Millisecond)

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	assert.NoError(t, d.Wait(waitCtx, "k"))
}

func TestWait_ContextCancellationStopsWaiting(t *testing.T) {
	d := newTestDistributed(t, 1)
	ctx := context.Background()
	require.True(t, d.Allow(ctx, "k"))

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := d.Wait(waitCtx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
