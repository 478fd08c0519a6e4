// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/memory-palace/core/db"
	"github.com/memory-palace/core/graph"
	"github.com/memory-palace/core/modelserver"
	"github.com/memory-palace/core/observability/logging"
	"github.com/memory-palace/core/observability/metrics"
	mperrors "github.com/memory-palace/core/pkg/errors"
)

// backfillConcurrency bounds how many embeddings BackfillEmbeddings
// computes in parallel.
const backfillConcurrency = 4

// Store owns memory lifecycle: creation, recall, archival, and
// embedding assignment. It is built against db.Backend rather than a
// concrete *db.Pool so callers may run against either the PostgreSQL
// or SQLite backend transparently.
type Store struct {
	backend db.Backend
	client  *modelserver.Client
	graph   *graph.Graph
	metrics *metrics.StoreMetrics
	log     logging.Logger

	autoLinkDefault  bool
	synthesisEnabled bool
	backfillLimiter  RateLimiter
}

// RateLimiter is satisfied by *ratelimit.Distributed. It is consulted
// only around the bulk embedding calls BackfillEmbeddings/Reembed
// issue; Remember's own embedding call is never throttled, since a
// single interactive write should never be held up by a backfill run
// elsewhere.
type RateLimiter interface {
	Wait(ctx context.Context, key string) error
}

// Config bundles the construction-time dependencies and policy
// defaults for a Store.
type Config struct {
	Backend          db.Backend
	Client           *modelserver.Client
	Graph            *graph.Graph
	Metrics          *metrics.StoreMetrics
	Log              logging.Logger
	AutoLinkDefault  bool
	SynthesisEnabled bool

	// BackfillLimiter, when non-nil, throttles the embedding calls
	// issued by BackfillEmbeddings/Reembed. Nil leaves backfill
	// unthrottled, bounded only by backfillConcurrency.
	BackfillLimiter RateLimiter
}

// New constructs a Store.
func New(cfg Config) *Store {
	return &Store{
		backend:          cfg.Backend,
		client:           cfg.Client,
		graph:            cfg.Graph,
		metrics:          cfg.Metrics,
		log:              cfg.Log,
		autoLinkDefault:  cfg.AutoLinkDefault,
		synthesisEnabled: cfg.SynthesisEnabled,
		backfillLimiter:  cfg.BackfillLimiter,
	}
}

// embeddingText formats the text that gets embedded for a memory:
// "[type] [project:X?] subject content".
func embeddingText(m Memory) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] ", m.MemoryType)
	if m.Project != "" && m.Project != DefaultProject {
		fmt.Fprintf(&b, "[project:%s] ", m.Project)
	}
	if m.Subject != "" {
		b.WriteString(m.Subject)
		b.WriteByte(' ')
	}
	b.WriteString(m.Content)
	return b.String()
}

// Remember validates, inserts, commits, then attempts to compute and
// persist an embedding. Embedding failure is non-fatal: the memory
// remains without a vector and is eligible for later backfill.
func (s *Store) Remember(ctx context.Context, p RememberParams) (*RememberResult, error) {
	if !validSourceTypes[p.SourceType] {
		if p.SourceType == "" {
			p.SourceType = SourceExplicit
		} else {
			return nil, mperrors.ErrUnknownSourceType.WithDetail("source_type", p.SourceType)
		}
	}
	project := p.Project
	if project == "" {
		project = DefaultProject
	}
	importance := clampImportance(p.Importance)

	m := Memory{
		InstanceID:      p.InstanceID,
		Project:         project,
		MemoryType:      p.MemoryType,
		Subject:         p.Subject,
		Content:         p.Content,
		Keywords:        p.Keywords,
		Tags:            p.Tags,
		Importance:      importance,
		SourceType:      p.SourceType,
		SourceContext:   p.SourceContext,
		SourceSessionID: p.SourceSessionID,
		SupersedesID:    p.SupersedesID,
	}

	id, err := s.insertMemory(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("remember: %w", err)
	}
	m.ID = id

	result := &RememberResult{ID: id, Subject: p.Subject}

	if s.metrics != nil {
		s.metrics.RecordRemember(p.SourceType)
	}

	var embedding []float32
	if s.client != nil {
		embedding, err = s.client.Embed(ctx, embeddingText(m))
		if err != nil {
			if s.log != nil {
				s.log.Warn(ctx, "remember: embedding failed, memory stored without a vector",
					logging.Int64("memory_id", id), logging.Error(err))
			}
		} else if err := s.persistEmbedding(ctx, id, embedding); err != nil {
			if s.log != nil {
				s.log.Warn(ctx, "remember: failed to persist computed embedding", logging.Int64("memory_id", id), logging.Error(err))
			}
			embedding = nil
		} else {
			result.Embedded = true
		}
	}

	var excludeEdgeTo int64
	if p.SupersedesID != nil && s.graph != nil {
		if err := s.existingMemory(ctx, *p.SupersedesID); err == nil {
			if _, err := s.graph.SupersedeMemory(ctx, id, *p.SupersedesID, true, p.InstanceID); err != nil && s.log != nil {
				s.log.Warn(ctx, "remember: supersede edge creation failed", logging.Int64("new_id", id), logging.Int64("old_id", *p.SupersedesID), logging.Error(err))
			} else {
				excludeEdgeTo = *p.SupersedesID
			}
		}
	}

	autoLink := s.autoLinkDefault
	if p.AutoLink != nil {
		autoLink = *p.AutoLink
	}
	if autoLink && len(embedding) > 0 && s.graph != nil {
		linkResult, err := s.graph.AutoLink(ctx, embedding, graph.AutoLinkParams{
			NewMemoryID:   id,
			Project:       project,
			ExcludeEdgeTo: excludeEdgeTo,
		})
		if err != nil {
			if s.log != nil {
				s.log.Warn(ctx, "remember: auto-link failed", logging.Int64("memory_id", id), logging.Error(err))
			}
		} else {
			for _, l := range linkResult.LinksCreated {
				result.LinksCreated = append(result.LinksCreated, LinkResult{
					TargetID: l.TargetID, TargetSubj: l.TargetSubj, RelationType: l.RelationType, Score: l.Score,
				})
			}
			for _, l := range linkResult.SuggestedLinks {
				result.SuggestedLinks = append(result.SuggestedLinks, LinkResult{
					TargetID: l.TargetID, TargetSubj: l.TargetSubj, RelationType: l.RelationType, Score: l.Score,
				})
			}
		}
	}

	return result, nil
}

func (s *Store) insertMemory(ctx context.Context, m Memory) (int64, error) {
	dialect := s.backend.Dialect()

	keywordsVal, tagsVal, err := encodeArrays(dialect, m.Keywords, m.Tags)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.backend.WithTx(ctx, func(tx db.Querier) error {
		if dialect == "sqlite" {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO memories (instance_id, project, memory_type, subject, content, keywords, tags, importance, source_type, source_context, source_session_id, supersedes_id)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				m.InstanceID, m.Project, m.MemoryType, nullString(m.Subject), m.Content, keywordsVal, tagsVal,
				m.Importance, m.SourceType, nullString(m.SourceContext), nullString(m.SourceSessionID), m.SupersedesID)
			if err != nil {
				return err
			}
			id, err = res.LastInsertId()
			return err
		}

		return tx.QueryRowContext(ctx,
			`INSERT INTO memories (instance_id, project, memory_type, subject, content, keywords, tags, importance, source_type, source_context, source_session_id, supersedes_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING id`,
			m.InstanceID, m.Project, m.MemoryType, nullString(m.Subject), m.Content, keywordsVal, tagsVal,
			m.Importance, m.SourceType, nullString(m.SourceContext), nullString(m.SourceSessionID), m.SupersedesID,
		).Scan(&id)
	})
	return id, err
}

func (s *Store) persistEmbedding(ctx context.Context, id int64, embedding []float32) error {
	dialect := s.backend.Dialect()
	var literal string
	var err error
	if dialect == "sqlite" {
		literal, err = db.EncodeVectorJSON(embedding)
	} else {
		literal = db.EncodeVector(embedding)
	}
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE memories SET embedding = %s, updated_at = %s WHERE id = %s`,
		db.Placeholder(dialect, 1), nowExpr(dialect), db.Placeholder(dialect, 2))
	_, err = s.backend.ExecContext(ctx, query, literal, id)
	return err
}

func nowExpr(dialect string) string {
	if dialect == "sqlite" {
		return "CURRENT_TIMESTAMP"
	}
	return "now()"
}

func encodeArrays(dialect string, keywords, tags []string) (interface{}, interface{}, error) {
	if dialect == "sqlite" {
		k, err := db.EncodeStringArrayJSON(keywords)
		if err != nil {
			return nil, nil, err
		}
		tg, err := db.EncodeStringArrayJSON(tags)
		if err != nil {
			return nil, nil, err
		}
		return k, tg, nil
	}
	return pq.Array(keywords), pq.Array(tags), nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// existingMemory is a minimal existence check used before creating a
// supersedes edge, so a bad supersedes_id degrades to "no edge created"
// rather than failing the whole remember call. Returns nil only if the
// row exists.
func (s *Store) existingMemory(ctx context.Context, id int64) error {
	dialect := s.backend.Dialect()
	query := fmt.Sprintf(`SELECT 1 FROM memories WHERE id = %s`, db.Placeholder(dialect, 1))
	var one int
	return s.backend.QueryRowContext(ctx, query, id).Scan(&one)
}

// Forget sets is_archived=true and, if reason is non-empty, appends
// "[ARCHIVED: reason]" to source_context. Idempotent on already-archived
// rows.
func (s *Store) Forget(ctx context.Context, id int64, reason string) error {
	dialect := s.backend.Dialect()
	marker := ""
	if reason != "" {
		marker = fmt.Sprintf(" [ARCHIVED: %s]", reason)
	}

	var query string
	if dialect == "sqlite" {
		query = `UPDATE memories SET is_archived = 1, source_context = COALESCE(source_context, '') || ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	} else {
		query = `UPDATE memories SET is_archived = true, source_context = COALESCE(source_context, '') || $1, updated_at = now() WHERE id = $2`
	}
	res, err := s.backend.ExecContext(ctx, query, marker, id)
	if err != nil {
		return fmt.Errorf("forget: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("forget: %w", err)
	}
	if n == 0 {
		return mperrors.ErrMemoryNotFound.WithDetail("id", id)
	}

	if s.metrics != nil {
		s.metrics.RecordForget("")
	}
	return nil
}

// GetByID fetches one memory by id and bumps its access counters.
func (s *Store) GetByID(ctx context.Context, id int64) (*Memory, error) {
	m, err := s.fetchByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.bumpAccess(ctx, []int64{id}); err != nil && s.log != nil {
		s.log.Warn(ctx, "get_by_id: failed to bump access counters", logging.Int64("memory_id", id), logging.Error(err))
	}
	return m, nil
}

// GetMemoriesByIDs fetches multiple memories by id, bumping access
// counters for every row found. Missing ids are reported separately
// rather than causing the whole call to fail.
func (s *Store) GetMemoriesByIDs(ctx context.Context, ids []int64) ([]Memory, []int64, error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}

	found := make(map[int64]Memory, len(ids))
	for _, id := range ids {
		m, err := s.fetchByID(ctx, id)
		if err != nil {
			continue
		}
		found[id] = *m
	}

	var memories []Memory
	var notFound []int64
	var foundIDs []int64
	for _, id := range ids {
		if m, ok := found[id]; ok {
			memories = append(memories, m)
			foundIDs = append(foundIDs, id)
		} else {
			notFound = append(notFound, id)
		}
	}

	if err := s.bumpAccess(ctx, foundIDs); err != nil && s.log != nil {
		s.log.Warn(ctx, "get_memories_by_ids: failed to bump access counters", logging.Error(err))
	}

	return memories, notFound, nil
}

func (s *Store) bumpAccess(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	dialect := s.backend.Dialect()
	for _, id := range ids {
		var query string
		if dialect == "sqlite" {
			query = `UPDATE memories SET access_count = access_count + 1, last_accessed_at = CURRENT_TIMESTAMP WHERE id = ?`
		} else {
			query = `UPDATE memories SET access_count = access_count + 1, last_accessed_at = now() WHERE id = $1`
		}
		if _, err := s.backend.ExecContext(ctx, query, id); err != nil {
			return err
		}
	}
	return nil
}

// UpdateMemory patches the named fields. If content, subject, or
// memory_type changed and regeneration is requested, the embedding is
// recomputed.
func (s *Store) UpdateMemory(ctx context.Context, p UpdateParams) (*Memory, error) {
	dialect := s.backend.Dialect()

	existing, err := s.fetchByID(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	sets := []string{}
	args := []interface{}{}
	contentChanged := false

	add := func(col string, val interface{}) {
		sets = append(sets, fmt.Sprintf("%s = %s", col, db.Placeholder(dialect, len(args)+1)))
		args = append(args, val)
	}

	if p.MemoryType != nil {
		existing.MemoryType = *p.MemoryType
		add("memory_type", *p.MemoryType)
		contentChanged = true
	}
	if p.Subject != nil {
		existing.Subject = *p.Subject
		add("subject", nullString(*p.Subject))
		contentChanged = true
	}
	if p.Content != nil {
		existing.Content = *p.Content
		add("content", *p.Content)
		contentChanged = true
	}
	if p.Keywords != nil {
		existing.Keywords = p.Keywords
		kw, _, err := encodeArrays(dialect, p.Keywords, nil)
		if err != nil {
			return nil, err
		}
		add("keywords", kw)
	}
	if p.Tags != nil {
		existing.Tags = p.Tags
		_, tg, err := encodeArrays(dialect, nil, p.Tags)
		if err != nil {
			return nil, err
		}
		add("tags", tg)
	}
	if p.Importance != nil {
		existing.Importance = clampImportance(*p.Importance)
		add("importance", existing.Importance)
	}
	if p.SourceContext != nil {
		existing.SourceContext = *p.SourceContext
		add("source_context", nullString(*p.SourceContext))
	}
	if p.ExpiresAt != nil {
		existing.ExpiresAt = p.ExpiresAt
		add("expires_at", *p.ExpiresAt)
	}

	if len(sets) > 0 {
		sets = append(sets, fmt.Sprintf("updated_at = %s", rawNow(dialect)))
		query := fmt.Sprintf("UPDATE memories SET %s WHERE id = %s", strings.Join(sets, ", "), db.Placeholder(dialect, len(args)+1))
		args = append(args, p.ID)
		if _, err := s.backend.ExecContext(ctx, query, args...); err != nil {
			return nil, fmt.Errorf("update_memory: %w", err)
		}
	}

	if contentChanged && p.RegenerateEmbedding && s.client != nil {
		embedding, err := s.client.Embed(ctx, embeddingText(*existing))
		if err == nil {
			if err := s.persistEmbedding(ctx, p.ID, embedding); err != nil && s.log != nil {
				s.log.Warn(ctx, "update_memory: failed to persist regenerated embedding", logging.Int64("memory_id", p.ID), logging.Error(err))
			} else {
				existing.Embedding = embedding
			}
		} else if s.log != nil {
			s.log.Warn(ctx, "update_memory: embedding regeneration failed", logging.Int64("memory_id", p.ID), logging.Error(err))
		}
	}

	return existing, nil
}

// rawNow returns the dialect's "current timestamp" SQL fragment for
// inlining directly into a generated SET clause (not a bound
// parameter).
func rawNow(dialect string) string {
	if dialect == "sqlite" {
		return "CURRENT_TIMESTAMP"
	}
	return "now()"
}

// Reembed recovers from ErrDimensionMismatch by deliberately switching
// embedding models: it drops every stored embedding and rebuilds the
// dimension-dependent schema (the vector column and its HNSW index on
// PostgreSQL; just the stale vectors on SQLite) at newDimension, then
// re-embeds every memory via BackfillEmbeddings. This is never run
// implicitly — a caller only reaches it by explicitly choosing to
// migrate rather than keep the old model.
func (s *Store) Reembed(ctx context.Context, newDimension int) (*BackfillResult, error) {
	if err := s.backend.ResetEmbeddingDimension(ctx, newDimension, s.log); err != nil {
		return nil, fmt.Errorf("reembed: reset dimension: %w", err)
	}
	return s.BackfillEmbeddings(ctx)
}

// BackfillEmbeddings scans all memories with a null or empty embedding
// (including archived ones) and attempts to generate and persist one,
// up to backfillConcurrency in parallel. Each row's embedding is
// committed independently rather than batched into one transaction, so
// a failure partway through does not undo earlier successes.
func (s *Store) BackfillEmbeddings(ctx context.Context) (*BackfillResult, error) {
	ids, texts, err := s.fetchUnembedded(ctx)
	if err != nil {
		return nil, fmt.Errorf("backfill_embeddings: %w", err)
	}

	result := &BackfillResult{Scanned: len(ids)}
	if len(ids) == 0 || s.client == nil {
		return result, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(backfillConcurrency)

	for i := range ids {
		id, text := ids[i], texts[i]
		g.Go(func() error {
			if s.backfillLimiter != nil {
				if err := s.backfillLimiter.Wait(gctx, "embed"); err != nil {
					return err
				}
			}
			embedding, err := s.client.Embed(gctx, text)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				if len(result.FailedIDs) < 20 {
					result.FailedIDs = append(result.FailedIDs, id)
				}
				return nil
			}
			if err := s.persistEmbedding(ctx, id, embedding); err != nil {
				result.Failed++
				if len(result.FailedIDs) < 20 {
					result.FailedIDs = append(result.FailedIDs, id)
				}
				return nil
			}
			result.Embedded++
			return nil
		})
	}

	_ = g.Wait()
	return result, nil
}

func (s *Store) fetchUnembedded(ctx context.Context) ([]int64, []string, error) {
	dialect := s.backend.Dialect()
	var query string
	if dialect == "sqlite" {
		query = `SELECT id, memory_type, project, COALESCE(subject, ''), content FROM memories WHERE embedding IS NULL OR embedding = ''`
	} else {
		query = `SELECT id, memory_type, project, COALESCE(subject, ''), content FROM memories WHERE embedding IS NULL`
	}

	rows, err := s.backend.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var ids []int64
	var texts []string
	for rows.Next() {
		var id int64
		var memType, project, subject, content string
		if err := rows.Scan(&id, &memType, &project, &subject, &content); err != nil {
			return nil, nil, err
		}
		ids = append(ids, id)
		texts = append(texts, embeddingText(Memory{MemoryType: memType, Project: project, Subject: subject, Content: content}))
	}
	return ids, texts, rows.Err()
}

// GetStats returns counts by type/instance/project, average importance,
// and the top-5 rows by access count and by creation time.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByType:     map[string]int{},
		ByInstance: map[string]int{},
		ByProject:  map[string]int{},
	}

	if err := s.backend.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE is_archived = false OR is_archived = 0`).Scan(&stats.TotalCount); err != nil {
		return nil, fmt.Errorf("get_stats: count: %w", err)
	}

	if err := fillGroupCounts(ctx, s.backend, "memory_type", stats.ByType); err != nil {
		return nil, fmt.Errorf("get_stats: by type: %w", err)
	}
	if err := fillGroupCounts(ctx, s.backend, "instance_id", stats.ByInstance); err != nil {
		return nil, fmt.Errorf("get_stats: by instance: %w", err)
	}
	if err := fillGroupCounts(ctx, s.backend, "project", stats.ByProject); err != nil {
		return nil, fmt.Errorf("get_stats: by project: %w", err)
	}

	var avg sql.NullFloat64
	if err := s.backend.QueryRowContext(ctx, `SELECT AVG(importance) FROM memories`).Scan(&avg); err != nil {
		return nil, fmt.Errorf("get_stats: average importance: %w", err)
	}
	stats.AverageImportance = avg.Float64

	mostAccessed, err := fetchSummaries(ctx, s.backend, `SELECT id, COALESCE(subject, ''), access_count, created_at FROM memories ORDER BY access_count DESC, created_at DESC LIMIT 5`)
	if err != nil {
		return nil, fmt.Errorf("get_stats: most accessed: %w", err)
	}
	stats.MostAccessed = mostAccessed

	mostRecent, err := fetchSummaries(ctx, s.backend, `SELECT id, COALESCE(subject, ''), access_count, created_at FROM memories ORDER BY created_at DESC LIMIT 5`)
	if err != nil {
		return nil, fmt.Errorf("get_stats: most recent: %w", err)
	}
	stats.MostRecent = mostRecent

	return stats, nil
}

func fillGroupCounts(ctx context.Context, backend db.Backend, column string, out map[string]int) error {
	rows, err := backend.QueryContext(ctx, fmt.Sprintf(`SELECT %s, COUNT(*) FROM memories GROUP BY %s`, column, column))
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		out[key] = count
	}
	return rows.Err()
}

func fetchSummaries(ctx context.Context, backend db.Backend, query string) ([]MemorySummary, error) {
	rows, err := backend.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MemorySummary
	for rows.Next() {
		var sum MemorySummary
		if err := rows.Scan(&sum.ID, &sum.Subject, &sum.AccessCount, &sum.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}
