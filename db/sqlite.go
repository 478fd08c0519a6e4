// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	mperrors "github.com/memory-palace/core/pkg/errors"
	"github.com/memory-palace/core/observability/logging"

	_ "modernc.org/sqlite"
)

// sqliteSchema mirrors postgresSchema's shape with two dialect
// concessions: embedding is a TEXT column holding a JSON float array
// (no native vector type), and keywords/tags are TEXT columns holding
// JSON string arrays rather than native TEXT[].
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS schema_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS memories (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	instance_id       TEXT NOT NULL,
	project           TEXT NOT NULL DEFAULT 'life',
	memory_type       TEXT NOT NULL,
	subject           TEXT,
	content           TEXT NOT NULL,
	keywords          TEXT NOT NULL DEFAULT '[]',
	tags              TEXT NOT NULL DEFAULT '[]',
	importance        INTEGER NOT NULL DEFAULT 5 CHECK (importance BETWEEN 1 AND 10),
	source_type       TEXT NOT NULL DEFAULT 'explicit',
	source_context    TEXT,
	source_session_id TEXT,
	supersedes_id     INTEGER REFERENCES memories(id) ON DELETE SET NULL,
	embedding         TEXT,
	access_count      INTEGER NOT NULL DEFAULT 0,
	last_accessed_at  TIMESTAMP,
	expires_at        TIMESTAMP,
	is_archived       INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_memories_instance ON memories(instance_id);
CREATE INDEX IF NOT EXISTS idx_memories_instance_project ON memories(instance_id, project);
CREATE INDEX IF NOT EXISTS idx_memories_project ON memories(project);
CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(memory_type);
CREATE INDEX IF NOT EXISTS idx_memories_importance ON memories(importance DESC);

CREATE TABLE IF NOT EXISTS edges (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	source_id     INTEGER NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	target_id     INTEGER NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	relation_type TEXT NOT NULL,
	strength      REAL NOT NULL DEFAULT 1.0 CHECK (strength BETWEEN 0 AND 1),
	bidirectional INTEGER NOT NULL DEFAULT 0,
	metadata      TEXT NOT NULL DEFAULT '{}',
	created_by    TEXT,
	CHECK (source_id <> target_id),
	UNIQUE (source_id, target_id, relation_type)
);

CREATE INDEX IF NOT EXISTS idx_edges_source_relation ON edges(source_id, relation_type);

CREATE TABLE IF NOT EXISTS handoffs (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	from_instance TEXT NOT NULL,
	to_instance   TEXT NOT NULL,
	message_type  TEXT NOT NULL,
	subject       TEXT,
	content       TEXT NOT NULL,
	read_at       TIMESTAMP,
	read_by       TEXT
);

CREATE INDEX IF NOT EXISTS idx_handoffs_unread ON handoffs(to_instance) WHERE read_at IS NULL;
`

// SQLiteBackend is the secondary, pure-Go embedded-relational backend
// for legacy single-file deployments (spec.md §4.1: "a secondary
// single-file embedded-relational backend MAY be supported"). Vector
// similarity is never delegated to SQL; callers score rows in process
// with CosineSimilarity over the JSON-decoded embedding column.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite opens (creating if absent) a single-file SQLite database
// at path using the pure-Go modernc.org/sqlite driver — no cgo, so the
// binary stays statically linkable.
func OpenSQLite(ctx context.Context, path string) (*SQLiteBackend, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// SQLite allows only one writer at a time; a single connection
	// avoids SQLITE_BUSY errors under concurrent access from this
	// process without needing a busy-timeout retry loop.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := sqlDB.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteBackend{db: sqlDB}, nil
}

func (s *SQLiteBackend) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *SQLiteBackend) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func (s *SQLiteBackend) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

func (s *SQLiteBackend) WithTx(ctx context.Context, fn func(tx Querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

// Bootstrap creates the SQLite schema if absent. There is no HNSW
// index concession to make: log is accepted only to satisfy the
// Backend interface and is never used, since there is no tolerated
// failure mode on this path.
func (s *SQLiteBackend) Bootstrap(ctx context.Context, embeddingDim int, log logging.Logger) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("bootstrap schema: %w", err)
	}
	return checkOrRecordDimensionSQLite(ctx, s, embeddingDim)
}

// ResetEmbeddingDimension clears every stored embedding and records the
// new dimension in schema_meta. SQLite's embedding column is a
// dimension-agnostic JSON-in-TEXT column, so there is no column type to
// rebuild; only the stale vectors themselves need clearing, since they
// no longer match the new dimension.
func (s *SQLiteBackend) ResetEmbeddingDimension(ctx context.Context, embeddingDim int, log logging.Logger) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE memories SET embedding = NULL`); err != nil {
		return fmt.Errorf("clear embeddings: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO schema_meta (key, value) VALUES ('embedding_dimension', ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		strconv.Itoa(embeddingDim)); err != nil {
		return fmt.Errorf("record embedding dimension: %w", err)
	}
	return nil
}

func checkOrRecordDimensionSQLite(ctx context.Context, q Querier, embeddingDim int) error {
	var recorded string
	err := q.QueryRowContext(ctx, `SELECT value FROM schema_meta WHERE key = 'embedding_dimension'`).Scan(&recorded)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err := q.ExecContext(ctx,
			`INSERT INTO schema_meta (key, value) VALUES ('embedding_dimension', ?)`,
			strconv.Itoa(embeddingDim))
		if err != nil {
			return fmt.Errorf("record embedding dimension: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("read recorded embedding dimension: %w", err)
	}

	recordedDim, convErr := strconv.Atoi(recorded)
	if convErr != nil || recordedDim != embeddingDim {
		return mperrors.ErrDimensionMismatch
	}
	return nil
}

func (s *SQLiteBackend) Dialect() string { return "sqlite" }

func (s *SQLiteBackend) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *SQLiteBackend) DB() *sql.DB {
	return s.db
}
