// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package db

import (
	"context"
	"database/sql"

	"github.com/memory-palace/core/observability/logging"
)

// Querier is satisfied by both *sql.DB and *sql.Tx, letting callers
// write a single code path that works whether or not it runs inside a
// transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Backend is the storage-engine-agnostic surface that memory.Store,
// graph.Graph, and handoff.Bus are built against. Pool (PostgreSQL) and
// SQLiteBackend both implement it.
type Backend interface {
	Querier

	// WithTx runs fn inside a transaction, committing on success and
	// rolling back on any returned error.
	WithTx(ctx context.Context, fn func(tx Querier) error) error

	// Bootstrap creates the schema if it does not already exist and
	// records the configured embedding dimension, refusing to proceed
	// if a previously recorded dimension disagrees. log may be nil, in
	// which case tolerated failures (e.g. no HNSW support) are silently
	// swallowed instead of logged at warn.
	Bootstrap(ctx context.Context, embeddingDim int, log logging.Logger) error

	// Dialect identifies the SQL dialect ("postgres" or "sqlite") so
	// callers can select placeholder syntax and vector handling.
	Dialect() string

	// ResetEmbeddingDimension drops every stored embedding and rebuilds
	// whatever dimension-dependent schema the dialect needs, recording
	// the new dimension in schema_meta. Used by memory.Store.Reembed to
	// recover from ErrDimensionMismatch by deliberately switching models
	// instead of refusing the mismatch outright.
	ResetEmbeddingDimension(ctx context.Context, embeddingDim int, log logging.Logger) error

	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Backend = (*Pool)(nil)
	_ Backend = (*SQLiteBackend)(nil)
)
