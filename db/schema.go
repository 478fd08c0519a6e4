// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	mperrors "github.com/memory-palace/core/pkg/errors"

	"github.com/memory-palace/core/observability/logging"
)

// postgresSchema creates the memories/edges/handoffs tables plus their
// non-vector indexes. It is idempotent and safe to run on every start.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS schema_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS memories (
	id                BIGSERIAL PRIMARY KEY,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	instance_id       TEXT NOT NULL,
	project           TEXT NOT NULL DEFAULT 'life',
	memory_type       TEXT NOT NULL,
	subject           TEXT,
	content           TEXT NOT NULL,
	keywords          TEXT[] NOT NULL DEFAULT '{}',
	tags              TEXT[] NOT NULL DEFAULT '{}',
	importance        SMALLINT NOT NULL DEFAULT 5 CHECK (importance BETWEEN 1 AND 10),
	source_type       TEXT NOT NULL DEFAULT 'explicit',
	source_context    TEXT,
	source_session_id TEXT,
	supersedes_id     BIGINT REFERENCES memories(id) ON DELETE SET NULL,
	embedding         %s,
	access_count      INTEGER NOT NULL DEFAULT 0,
	last_accessed_at  TIMESTAMPTZ,
	expires_at        TIMESTAMPTZ,
	is_archived       BOOLEAN NOT NULL DEFAULT false
);

CREATE INDEX IF NOT EXISTS idx_memories_instance ON memories(instance_id);
CREATE INDEX IF NOT EXISTS idx_memories_instance_project ON memories(instance_id, project);
CREATE INDEX IF NOT EXISTS idx_memories_project ON memories(project);
CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(memory_type);
CREATE INDEX IF NOT EXISTS idx_memories_importance ON memories(importance DESC);
CREATE INDEX IF NOT EXISTS idx_memories_keywords ON memories USING GIN(keywords);
CREATE INDEX IF NOT EXISTS idx_memories_tags ON memories USING GIN(tags);

CREATE TABLE IF NOT EXISTS edges (
	id            BIGSERIAL PRIMARY KEY,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	source_id     BIGINT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	target_id     BIGINT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	relation_type TEXT NOT NULL,
	strength      REAL NOT NULL DEFAULT 1.0 CHECK (strength BETWEEN 0 AND 1),
	bidirectional BOOLEAN NOT NULL DEFAULT false,
	metadata      JSONB NOT NULL DEFAULT '{}',
	created_by    TEXT,
	CHECK (source_id <> target_id),
	UNIQUE (source_id, target_id, relation_type)
);

CREATE INDEX IF NOT EXISTS idx_edges_source_relation ON edges(source_id, relation_type);

CREATE TABLE IF NOT EXISTS handoffs (
	id            BIGSERIAL PRIMARY KEY,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	from_instance TEXT NOT NULL,
	to_instance   TEXT NOT NULL,
	message_type  TEXT NOT NULL,
	subject       TEXT,
	content       TEXT NOT NULL,
	read_at       TIMESTAMPTZ,
	read_by       TEXT
);

CREATE INDEX IF NOT EXISTS idx_handoffs_unread ON handoffs(to_instance) WHERE read_at IS NULL;
`

// hnswIndexSQL creates the cosine-similarity index on the embedding
// column. It is split from postgresSchema because pgvector's hnsw
// access method may be unavailable and that failure must be tolerated.
const hnswIndexSQL = `CREATE INDEX IF NOT EXISTS idx_memories_embedding_hnsw ON memories USING hnsw (embedding vector_cosine_ops)`

// hnswDimensionCeiling is pgvector's maximum indexable dimension for
// hnsw/ivfflat in versions prior to 0.7.0.
const hnswDimensionCeiling = 2000

// Bootstrap creates the PostgreSQL schema if absent and records the
// configured embedding dimension in schema_meta, refusing to proceed on
// a mismatch against a previously recorded value.
func (p *Pool) Bootstrap(ctx context.Context, embeddingDim int, log logging.Logger) error {
	vectorColumn := fmt.Sprintf("vector(%d)", embeddingDim)
	if _, err := p.db.ExecContext(ctx, fmt.Sprintf(postgresSchema, vectorColumn)); err != nil {
		return fmt.Errorf("bootstrap schema: %w", err)
	}

	if err := checkOrRecordDimensionPostgres(ctx, p, embeddingDim); err != nil {
		return err
	}

	if embeddingDim > hnswDimensionCeiling {
		if log != nil {
			log.Warn(ctx, "skipping HNSW index creation, embedding dimension exceeds pgvector's HNSW ceiling",
				logging.Int("dimension", embeddingDim),
				logging.Int("ceiling", hnswDimensionCeiling))
		}
		return nil
	}

	if _, err := p.db.ExecContext(ctx, hnswIndexSQL); err != nil {
		if isUnsupportedIndexMethod(err) {
			if log != nil {
				log.Warn(ctx, "HNSW index unavailable, falling back to sequential similarity scan", logging.Error(err))
			}
			return nil
		}
		return fmt.Errorf("create hnsw index: %w", err)
	}

	return nil
}

// isUnsupportedIndexMethod reports whether err indicates the hnsw
// access method or vector extension is not installed, as opposed to a
// genuine schema error that should fail bootstrap.
func isUnsupportedIndexMethod(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "access method") && strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "extension") && strings.Contains(msg, "not available") ||
		strings.Contains(msg, "type \"vector\" does not exist")
}

// ResetEmbeddingDimension drops every stored embedding, rebuilds the
// embedding column at the new dimension, and records it in schema_meta,
// for callers that have decided to switch embedding models rather than
// refuse the mismatch (see mperrors.ErrDimensionMismatch). The HNSW
// index is dropped and recreated (or skipped past the pgvector ceiling,
// same as Bootstrap). Callers are responsible for re-embedding every
// row afterward, typically via memory.Store.Reembed.
func (p *Pool) ResetEmbeddingDimension(ctx context.Context, embeddingDim int, log logging.Logger) error {
	if _, err := p.db.ExecContext(ctx, `DROP INDEX IF EXISTS idx_memories_embedding_hnsw`); err != nil {
		return fmt.Errorf("drop hnsw index: %w", err)
	}

	alterSQL := fmt.Sprintf(`ALTER TABLE memories ALTER COLUMN embedding TYPE vector(%d) USING NULL`, embeddingDim)
	if _, err := p.db.ExecContext(ctx, alterSQL); err != nil {
		return fmt.Errorf("alter embedding column: %w", err)
	}

	if _, err := p.db.ExecContext(ctx,
		`INSERT INTO schema_meta (key, value) VALUES ('embedding_dimension', $1)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		strconv.Itoa(embeddingDim)); err != nil {
		return fmt.Errorf("record embedding dimension: %w", err)
	}

	if embeddingDim > hnswDimensionCeiling {
		if log != nil {
			log.Warn(ctx, "skipping HNSW index creation, embedding dimension exceeds pgvector's HNSW ceiling",
				logging.Int("dimension", embeddingDim),
				logging.Int("ceiling", hnswDimensionCeiling))
		}
		return nil
	}

	if _, err := p.db.ExecContext(ctx, hnswIndexSQL); err != nil {
		if isUnsupportedIndexMethod(err) {
			if log != nil {
				log.Warn(ctx, "HNSW index unavailable, falling back to sequential similarity scan", logging.Error(err))
			}
			return nil
		}
		return fmt.Errorf("create hnsw index: %w", err)
	}
	return nil
}

// checkOrRecordDimensionPostgres enforces that a database only ever holds
// embeddings of one dimension at a time (spec.md's Open Question
// decision: refuse to mix dimensions, require an explicit re-embed
// workflow instead of an implicit migration).
func checkOrRecordDimensionPostgres(ctx context.Context, q Querier, embeddingDim int) error {
	var recorded string
	err := q.QueryRowContext(ctx, `SELECT value FROM schema_meta WHERE key = 'embedding_dimension'`).Scan(&recorded)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err := q.ExecContext(ctx,
			`INSERT INTO schema_meta (key, value) VALUES ('embedding_dimension', $1)`,
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
