// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/memory-palace/core/config"
	"github.com/memory-palace/core/db"
	"github.com/memory-palace/core/modelserver"
	"github.com/memory-palace/core/observability/logging"
	"github.com/memory-palace/core/observability/metrics"
	mperrors "github.com/memory-palace/core/pkg/errors"
)

// Graph owns edge creation and the auto-link policy.
type Graph struct {
	backend db.Backend
	client  *modelserver.Client
	metrics *metrics.StoreMetrics
	log     logging.Logger
	cfg     config.AutoLinkConfig
}

// New constructs a Graph.
func New(backend db.Backend, client *modelserver.Client, m *metrics.StoreMetrics, log logging.Logger, cfg config.AutoLinkConfig) *Graph {
	return &Graph{backend: backend, client: client, metrics: m, log: log, cfg: cfg}
}

// LinkMemories inserts one edge. Self-loops are rejected; duplicate
// (source, target, relation_type) triples are rejected as a conflict.
func (g *Graph) LinkMemories(ctx context.Context, p LinkParams) (*MemoryEdge, error) {
	if p.SourceID == p.TargetID {
		return nil, mperrors.ErrSelfLoop
	}
	strength := p.Strength
	if strength == 0 {
		strength = 1.0
	}

	metaJSON, err := encodeMetadata(p.Metadata)
	if err != nil {
		return nil, err
	}

	var edge MemoryEdge
	err = g.backend.WithTx(ctx, func(tx db.Querier) error {
		return insertEdge(ctx, tx, g.backend.Dialect(), p.SourceID, p.TargetID, p.RelationType, strength, p.Bidirectional, metaJSON, p.CreatedBy, &edge)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, mperrors.ErrEdgeConflict
		}
		return nil, fmt.Errorf("link memories: %w", err)
	}

	if g.metrics != nil {
		g.metrics.RecordEdgeCreated(p.RelationType, "explicit")
	}
	return &edge, nil
}

// insertEdge is the single insert path shared by LinkMemories,
// SupersedeMemory, and AutoLink's per-candidate edge creation.
func insertEdge(ctx context.Context, tx db.Querier, dialect string, sourceID, targetID int64, relationType string, strength float64, bidirectional bool, metaJSON, createdBy string, out *MemoryEdge) error {
	var query string
	if dialect == "sqlite" {
		query = `INSERT INTO edges (source_id, target_id, relation_type, strength, bidirectional, metadata, created_by)
			VALUES (?, ?, ?, ?, ?, ?, ?)`
	} else {
		query = `INSERT INTO edges (source_id, target_id, relation_type, strength, bidirectional, metadata, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at`
	}

	bidirVal := interface{}(bidirectional)
	if dialect == "sqlite" {
		if bidirectional {
			bidirVal = 1
		} else {
			bidirVal = 0
		}
	}

	if dialect == "sqlite" {
		res, err := tx.ExecContext(ctx, query, sourceID, targetID, relationType, strength, bidirVal, metaJSON, createdBy)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("read inserted edge id: %w", err)
		}
		out.ID = id
	} else {
		if err := tx.QueryRowContext(ctx, query, sourceID, targetID, relationType, strength, bidirVal, metaJSON, createdBy).Scan(&out.ID, &out.CreatedAt); err != nil {
			return err
		}
	}

	out.SourceID = sourceID
	out.TargetID = targetID
	out.RelationType = relationType
	out.Strength = strength
	out.Bidirectional = bidirectional
	out.CreatedBy = createdBy
	return nil
}

// SupersedeMemory creates a non-bidirectional supersedes edge newID ->
// oldID and, if archiveOld, archives oldID. This is the only legitimate
// producer of supersedes edges: auto-classification must never emit
// one.
func (g *Graph) SupersedeMemory(ctx context.Context, newID, oldID int64, archiveOld bool, createdBy string) (*MemoryEdge, error) {
	if newID == oldID {
		return nil, mperrors.ErrSelfLoop
	}

	var edge MemoryEdge
	err := g.backend.WithTx(ctx, func(tx db.Querier) error {
		if err := insertEdge(ctx, tx, g.backend.Dialect(), newID, oldID, "supersedes", 1.0, false, "{}", createdBy, &edge); err != nil {
			return err
		}
		if archiveOld {
			return archiveWithMarker(ctx, tx, g.backend.Dialect(), oldID, fmt.Sprintf("superseded by memory %d", newID))
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, mperrors.ErrEdgeConflict
		}
		return nil, fmt.Errorf("supersede memory: %w", err)
	}

	if g.metrics != nil {
		g.metrics.RecordEdgeCreated("supersedes", "explicit")
	}
	return &edge, nil
}

func archiveWithMarker(ctx context.Context, tx db.Querier, dialect string, id int64, marker string) error {
	var query string
	if dialect == "sqlite" {
		query = `UPDATE memories SET is_archived = 1, source_context = COALESCE(source_context, '') || ? , updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	} else {
		query = `UPDATE memories SET is_archived = true, source_context = COALESCE(source_context, '') || $1, updated_at = now() WHERE id = $2`
	}
	appended := fmt.Sprintf(" [%s]", marker)
	_, err := tx.ExecContext(ctx, query, appended, id)
	return err
}

// AutoLink implements the similarity-based linking policy run at the
// end of Remember: candidates are fetched, scored by cosine similarity
// to the new memory's embedding, partitioned into an auto-apply tier
// (edges created) and a suggest tier (surfaced, no edge), with the
// auto tier's relation types resolved through a single batched
// classification call.
func (g *Graph) AutoLink(ctx context.Context, newEmbedding []float32, p AutoLinkParams) (*AutoLinkResult, error) {
	result := &AutoLinkResult{}
	if len(newEmbedding) == 0 {
		return result, nil
	}

	candidates, newSubject, err := g.fetchCandidates(ctx, p)
	if err != nil {
		return nil, err
	}

	type scored struct {
		candidate
		score float64
	}
	var above []scored
	for _, c := range candidates {
		if c.id == p.ExcludeEdgeTo {
			continue
		}
		score := db.CosineSimilarity(newEmbedding, c.embedding)
		if score >= g.cfg.SuggestThreshold {
			above = append(above, scored{c, score})
		}
	}
	sort.Slice(above, func(i, j int) bool { return above[i].score > above[j].score })

	var autoTier, suggestTier []scored
	for _, s := range above {
		if s.score >= g.cfg.SimilarityThreshold {
			if len(autoTier) < g.cfg.MaxLinks {
				autoTier = append(autoTier, s)
			}
		} else if len(suggestTier) < g.cfg.MaxSuggestions {
			suggestTier = append(suggestTier, s)
		}
	}

	for _, s := range suggestTier {
		result.SuggestedLinks = append(result.SuggestedLinks, LinkOutcome{
			TargetID:   s.id,
			TargetSubj: s.subject,
			Score:      s.score,
		})
		if g.metrics != nil {
			g.metrics.RecordAutoLinkSuggested()
		}
	}

	if len(autoTier) == 0 {
		return result, nil
	}

	types := make(map[int64]string, len(autoTier))
	for _, s := range autoTier {
		types[s.id] = "relates_to"
	}
	if g.cfg.ClassifyEdges && g.client != nil {
		cands := make([]modelserver.Candidate, len(autoTier))
		for i, s := range autoTier {
			cands[i] = modelserver.Candidate{ID: s.id, Subject: s.subject}
		}
		if classified, err := g.client.ClassifyEdgesBatch(ctx, newSubject, cands); err == nil {
			types = classified
		}
	}

	for _, s := range autoTier {
		relationType := types[s.id]
		if relationType == "" {
			relationType = "relates_to"
		}
		bidirectional := IsSymmetric(relationType)
		metaJSON, _ := encodeMetadata(map[string]interface{}{
			"auto_linked": true,
			"method":      "embedding_similarity",
			"classified":  g.cfg.ClassifyEdges,
		})

		var edge MemoryEdge
		createErr := g.backend.WithTx(ctx, func(tx db.Querier) error {
			return insertEdge(ctx, tx, g.backend.Dialect(), p.NewMemoryID, s.id, relationType, s.score, bidirectional, metaJSON, "", &edge)
		})
		if createErr != nil {
			if isUniqueViolation(createErr) {
				continue
			}
			if g.log != nil {
				g.log.Warn(ctx, "auto-link edge creation failed", logging.Int64("target_id", s.id), logging.Error(createErr))
			}
			continue
		}

		if g.metrics != nil {
			g.metrics.RecordEdgeCreated(relationType, "auto")
		}
		result.LinksCreated = append(result.LinksCreated, LinkOutcome{
			TargetID:     s.id,
			TargetSubj:   s.subject,
			RelationType: relationType,
			Score:        s.score,
		})
	}

	return result, nil
}

// fetchCandidates returns every non-archived, embedded memory other
// than newMemoryID (optionally restricted to project), plus the new
// memory's own subject for use in batched classification prompts.
func (g *Graph) fetchCandidates(ctx context.Context, p AutoLinkParams) ([]candidate, string, error) {
	dialect := g.backend.Dialect()

	var newSubject string
	subjQuery := fmt.Sprintf(`SELECT COALESCE(subject, '') FROM memories WHERE id = %s`, db.Placeholder(dialect, 1))
	if err := g.backend.QueryRowContext(ctx, subjQuery, p.NewMemoryID).Scan(&newSubject); err != nil {
		return nil, "", fmt.Errorf("fetch new memory subject: %w", err)
	}

	var query string
	var args []interface{}
	if dialect == "sqlite" {
		query = `SELECT id, COALESCE(subject, ''), embedding FROM memories
			WHERE is_archived = 0 AND id != ? AND embedding IS NOT NULL AND embedding != ''`
		args = []interface{}{p.NewMemoryID}
		if p.Project != "" && g.cfg.SameProjectOnly {
			query += ` AND project = ?`
			args = append(args, p.Project)
		}
	} else {
		query = `SELECT id, COALESCE(subject, ''), embedding::text FROM memories
			WHERE is_archived = false AND id != $1 AND embedding IS NOT NULL`
		args = []interface{}{p.NewMemoryID}
		if p.Project != "" && g.cfg.SameProjectOnly {
			query += ` AND project = $2`
			args = append(args, p.Project)
		}
	}

	rows, err := g.backend.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("fetch auto-link candidates: %w", err)
	}
	defer rows.Close()

	var out []candidate
	for rows.Next() {
		var c candidate
		var embStr string
		if err := rows.Scan(&c.id, &c.subject, &embStr); err != nil {
			return nil, "", fmt.Errorf("scan auto-link candidate: %w", err)
		}
		var vec []float32
		if dialect == "sqlite" {
			vec, err = db.DecodeVectorJSON(embStr)
		} else {
			vec, err = db.DecodeVector(embStr)
		}
		if err != nil {
			return nil, "", fmt.Errorf("decode candidate embedding: %w", err)
		}
		c.embedding = vec
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	return out, newSubject, nil
}

func encodeMetadata(m map[string]interface{}) (string, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode edge metadata: %w", err)
	}
	return string(data), nil
}

// isUniqueViolation reports whether err indicates a violation of the
// (source_id, target_id, relation_type) uniqueness constraint, in
// either the PostgreSQL ("23505") or SQLite driver's error text.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "23505") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint")
}
