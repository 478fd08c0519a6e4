// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package db provides the persistence layer: a PostgreSQL connection
// pool with native vector column support, a transactional-scope
// helper, idempotent schema bootstrap, and a secondary pure-Go SQLite
// backend for legacy single-file deployments.
//
// # Connecting
//
//	pool, err := db.Open(ctx, db.DefaultPoolConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pool.Close()
//
//	if err := pool.Bootstrap(ctx, 768, logger); err != nil {
//	    log.Fatal(err)
//	}
//
// # Transactional scope
//
//	err := pool.WithTx(ctx, func(tx db.Querier) error {
//	    if _, err := tx.ExecContext(ctx, `UPDATE memories SET is_archived = true WHERE id = $1`, id); err != nil {
//	        return err
//	    }
//	    _, err := tx.ExecContext(ctx, `INSERT INTO edges (...) VALUES (...)`)
//	    return err
//	})
//
// WithTx commits only if fn returns nil; any error rolls the
// transaction back and is returned unchanged, so callers can still
// compare it against sentinel errors from pkg/errors.
//
// # Vectors
//
// PostgreSQL vector columns use the pgvector text-literal format,
// encoded and decoded by EncodeVector/DecodeVector since lib/pq has no
// native vector type. The SQLite backend instead stores a JSON float
// array in a TEXT column (EncodeVectorJSON/DecodeVectorJSON) and
// expects callers to score rows with CosineSimilarity in process.
package db
