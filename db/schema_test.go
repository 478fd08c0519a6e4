// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mperrors "github.com/memory-palace/core/pkg/errors"
)

func openTestSQLite(t *testing.T) *SQLiteBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memory-palace.db")
	backend, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return backend
}

func TestSQLiteBackend_BootstrapCreatesSchema(t *testing.T) {
	backend := openTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, backend.Bootstrap(ctx, 768, nil))

	_, err := backend.ExecContext(ctx,
		`INSERT INTO memories (instance_id, memory_type, content) VALUES (?, ?, ?)`,
		"claude-code", "fact", "the sky is blue")
	assert.NoError(t, err)
}

func TestSQLiteBackend_BootstrapIsIdempotent(t *testing.T) {
	backend := openTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, backend.Bootstrap(ctx, 768, nil))
	require.NoError(t, backend.Bootstrap(ctx, 768, nil))
}

func TestSQLiteBackend_BootstrapRejectsDimensionChange(t *testing.T) {
	backend := openTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, backend.Bootstrap(ctx, 768, nil))

	err := backend.Bootstrap(ctx, 1536, nil)
	assert.ErrorIs(t, err, mperrors.ErrDimensionMismatch)
}

func TestSQLiteBackend_ResetEmbeddingDimensionClearsAndRecords(t *testing.T) {
	backend := openTestSQLite(t)
	ctx := context.Background()
	require.NoError(t, backend.Bootstrap(ctx, 768, nil))

	_, err := backend.ExecContext(ctx,
		`INSERT INTO memories (instance_id, memory_type, content, embedding) VALUES (?, ?, ?, ?)`,
		"claude-code", "fact", "the sky is blue", `[1,0,0]`)
	require.NoError(t, err)

	require.NoError(t, backend.ResetEmbeddingDimension(ctx, 1536, nil))

	var embedding *string
	require.NoError(t, backend.QueryRowContext(ctx, `SELECT embedding FROM memories`).Scan(&embedding))
	assert.Nil(t, embedding)

	// The new dimension is now the recorded one: Bootstrap at 1536
	// succeeds, and at the old 768 fails.
	require.NoError(t, backend.Bootstrap(ctx, 1536, nil))
	err = backend.Bootstrap(ctx, 768, nil)
	assert.ErrorIs(t, err, mperrors.ErrDimensionMismatch)
}

func TestSQLiteBackend_WithTx_CommitsOnSuccess(t *testing.T) {
	backend := openTestSQLite(t)
	ctx := context.Background()
	require.NoError(t, backend.Bootstrap(ctx, 768, nil))

	err := backend.WithTx(ctx, func(tx Querier) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO memories (instance_id, memory_type, content) VALUES (?, ?, ?)`,
			"claude-desktop", "preference", "prefers dark mode")
		return err
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, backend.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestSQLiteBackend_WithTx_RollsBackOnError(t *testing.T) {
	backend := openTestSQLite(t)
	ctx := context.Background()
	require.NoError(t, backend.Bootstrap(ctx, 768, nil))

	sentinelErr := mperrors.ErrInvalidInput

	err := backend.WithTx(ctx, func(tx Querier) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO memories (instance_id, memory_type, content) VALUES (?, ?, ?)`,
			"claude-desktop", "preference", "should not persist")
		require.NoError(t, err)
		return sentinelErr
	})
	assert.ErrorIs(t, err, sentinelErr)

	var count int
	require.NoError(t, backend.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestSQLiteBackend_EdgeSelfLoopRejected(t *testing.T) {
	backend := openTestSQLite(t)
	ctx := context.Background()
	require.NoError(t, backend.Bootstrap(ctx, 768, nil))

	res, err := backend.ExecContext(ctx,
		`INSERT INTO memories (instance_id, memory_type, content) VALUES (?, ?, ?)`,
		"claude-code", "fact", "one memory")
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)

	_, err = backend.ExecContext(ctx,
		`INSERT INTO edges (source_id, target_id, relation_type) VALUES (?, ?, ?)`,
		id, id, "relates_to")
	assert.Error(t, err)
}

func TestSQLiteBackend_Dialect(t *testing.T) {
	backend := openTestSQLite(t)
	assert.Equal(t, "sqlite", backend.Dialect())
}
