// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package memory

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/memory-palace/core/db"
	"github.com/memory-palace/core/observability/logging"
	mperrors "github.com/memory-palace/core/pkg/errors"
	"github.com/memory-palace/core/synthesis"
)

// memoryColumns is the column list shared by fetchByID and every
// filtered scan in this file, kept in one place so a scan-target
// mismatch is a single-site fix.
const memoryColumns = `id, created_at, updated_at, instance_id, project, memory_type, subject, content,
	keywords, tags, importance, source_type, source_context, source_session_id, supersedes_id,
	access_count, last_accessed_at, expires_at, is_archived`

func (s *Store) fetchByID(ctx context.Context, id int64) (*Memory, error) {
	dialect := s.backend.Dialect()
	query := fmt.Sprintf(`SELECT %s, %s FROM memories WHERE id = %s`, memoryColumns, embeddingSelectExpr(dialect), db.Placeholder(dialect, 1))
	row := s.backend.QueryRowContext(ctx, query, id)
	m, err := scanMemoryRow(dialect, row)
	if err == sql.ErrNoRows {
		return nil, mperrors.ErrMemoryNotFound.WithDetail("id", id)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch memory %d: %w", id, err)
	}
	return m, nil
}

func embeddingSelectExpr(dialect string) string {
	if dialect == "sqlite" {
		return "embedding"
	}
	return "embedding::text"
}

// scanTarget is satisfied by both *sql.Row and *sql.Rows so
// scanMemoryRow can be shared between the single-row and multi-row
// paths.
type scanTarget interface {
	Scan(dest ...interface{}) error
}

func scanMemoryRow(dialect string, target scanTarget) (*Memory, error) {
	var m Memory
	var subject, sourceContext, sourceSessionID, embeddingLiteral sql.NullString
	var supersedesID sql.NullInt64
	var lastAccessedAt, expiresAt sql.NullTime
	var isArchived interface{}
	var keywordsRaw, tagsRaw interface{}

	if dialect == "sqlite" {
		var keywordsStr, tagsStr string
		keywordsRaw = &keywordsStr
		tagsRaw = &tagsStr
		var archivedInt int
		isArchived = &archivedInt

		if err := target.Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt, &m.InstanceID, &m.Project, &m.MemoryType,
			&subject, &m.Content, keywordsRaw, tagsRaw, &m.Importance, &m.SourceType, &sourceContext,
			&sourceSessionID, &supersedesID, &m.AccessCount, &lastAccessedAt, &expiresAt, isArchived,
			&embeddingLiteral); err != nil {
			return nil, err
		}
		kw, err := db.DecodeStringArrayJSON(keywordsStr)
		if err != nil {
			return nil, err
		}
		tg, err := db.DecodeStringArrayJSON(tagsStr)
		if err != nil {
			return nil, err
		}
		m.Keywords, m.Tags = kw, tg
		m.IsArchived = archivedInt != 0

		if embeddingLiteral.Valid && embeddingLiteral.String != "" {
			emb, err := db.DecodeVectorJSON(embeddingLiteral.String)
			if err != nil {
				return nil, err
			}
			m.Embedding = emb
		}
	} else {
		var keywordsArr, tagsArr pq.StringArray
		var archivedBool bool

		if err := target.Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt, &m.InstanceID, &m.Project, &m.MemoryType,
			&subject, &m.Content, &keywordsArr, &tagsArr, &m.Importance, &m.SourceType, &sourceContext,
			&sourceSessionID, &supersedesID, &m.AccessCount, &lastAccessedAt, &expiresAt, &archivedBool,
			&embeddingLiteral); err != nil {
			return nil, err
		}
		m.Keywords = []string(keywordsArr)
		m.Tags = []string(tagsArr)
		m.IsArchived = archivedBool

		if embeddingLiteral.Valid && embeddingLiteral.String != "" {
			emb, err := db.DecodeVector(embeddingLiteral.String)
			if err != nil {
				return nil, err
			}
			m.Embedding = emb
		}
	}

	m.Subject = subject.String
	m.SourceContext = sourceContext.String
	m.SourceSessionID = sourceSessionID.String
	if supersedesID.Valid {
		id := supersedesID.Int64
		m.SupersedesID = &id
	}
	if lastAccessedAt.Valid {
		t := lastAccessedAt.Time
		m.LastAccessedAt = &t
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		m.ExpiresAt = &t
	}

	return &m, nil
}

// buildFilter constructs the shared WHERE clause used by both the
// semantic and keyword-fallback recall paths from the non-vector
// recall arguments.
func buildFilter(dialect string, p RecallParams, startArg int) (clause string, args []interface{}) {
	var conds []string
	next := startArg

	ph := func() string {
		s := db.Placeholder(dialect, next)
		next++
		return s
	}

	if !p.IncludeArchived {
		conds = append(conds, fmt.Sprintf("is_archived = %s", db.BoolLiteral(dialect, false)))
	}
	if p.InstanceID != "" {
		conds = append(conds, fmt.Sprintf("instance_id = %s", ph()))
		args = append(args, p.InstanceID)
	}
	if p.Project != "" {
		conds = append(conds, fmt.Sprintf("project = %s", ph()))
		args = append(args, p.Project)
	}
	if p.MemoryType != "" {
		conds = append(conds, fmt.Sprintf("memory_type = %s", ph()))
		args = append(args, p.MemoryType)
	}
	if p.Subject != "" {
		conds = append(conds, fmt.Sprintf("subject = %s", ph()))
		args = append(args, p.Subject)
	}
	if p.MinImportance > 0 {
		conds = append(conds, fmt.Sprintf("importance >= %s", ph()))
		args = append(args, p.MinImportance)
	}

	if len(conds) == 0 {
		return "1=1", nil
	}
	return strings.Join(conds, " AND "), args
}

// Recall implements the hybrid search documented for the memory store:
// semantic search when the query embeds successfully, a keyword
// AND-scan fallback otherwise, followed by access-counter bumping and
// optional synthesis.
func (s *Store) Recall(ctx context.Context, p RecallParams) (*RecallResult, error) {
	start := time.Now()
	if p.Limit <= 0 {
		p.Limit = 20
	}
	dialect := s.backend.Dialect()

	var scored []ScoredMemory
	var searchMethod string

	var queryEmbedding []float32
	var embedErr error
	if s.client != nil && p.Query != "" {
		queryEmbedding, embedErr = s.client.Embed(ctx, "Represent this query for retrieving relevant memories: "+p.Query)
	}

	if embedErr == nil && len(queryEmbedding) > 0 {
		rows, err := s.fetchFiltered(ctx, p, dialect)
		if err != nil {
			return nil, fmt.Errorf("recall: semantic fetch: %w", err)
		}
		for _, m := range rows {
			score := -1.0
			if len(m.Embedding) > 0 {
				score = db.CosineSimilarity(queryEmbedding, m.Embedding)
			}
			scored = append(scored, ScoredMemory{Memory: m, SimilarityScore: score})
		}
		sort.SliceStable(scored, func(i, j int) bool { return scored[i].SimilarityScore > scored[j].SimilarityScore })
		if len(scored) > p.Limit {
			scored = scored[:p.Limit]
		}
		searchMethod = "semantic"
	} else {
		rows, err := s.keywordSearch(ctx, p, dialect)
		if err != nil {
			return nil, fmt.Errorf("recall: keyword fallback: %w", err)
		}
		for _, m := range rows {
			scored = append(scored, ScoredMemory{Memory: m, SimilarityScore: 0})
		}
		searchMethod = "keyword (fallback)"
	}

	var ids []int64
	for _, m := range scored {
		ids = append(ids, m.ID)
	}
	if err := s.bumpAccess(ctx, ids); err != nil && s.log != nil {
		s.log.Warn(ctx, "recall: failed to bump access counters", logging.Error(err))
	}

	if s.metrics != nil {
		s.metrics.RecordRecall(searchMethod, time.Since(start).Seconds(), len(scored))
	}

	result := &RecallResult{Count: len(scored), SearchMethod: searchMethod}

	synthesizeRequested := p.Synthesize && s.synthesisEnabled
	if !synthesizeRequested {
		result.Memories = scored
		return result, nil
	}

	if len(scored) == 0 {
		result.Summary = synthesis.PlainListFallback(nil)
		return result, nil
	}

	llmAvailable := s.client != nil && s.client.IsLLMAvailable(ctx)
	memsForSynthesis := make([]synthesis.Item, len(scored))
	scores := make(map[int64]float64, len(scored))
	for i, m := range scored {
		memsForSynthesis[i] = synthesis.Item{
			ID: m.ID, MemoryType: m.MemoryType, Subject: m.Subject, Content: m.Content,
		}
		scores[m.ID] = m.SimilarityScore
		result.MemoryIDs = append(result.MemoryIDs, m.ID)
	}

	if llmAvailable {
		summary, err := synthesis.Synthesize(ctx, s.client, memsForSynthesis, p.Query, scores)
		if err == nil {
			result.Summary = summary
			return result, nil
		}
		if s.log != nil {
			s.log.Warn(ctx, "recall: synthesis call failed, falling back to plain list", logging.Error(err))
		}
	}

	result.Summary = synthesis.PlainListFallback(memsForSynthesis)
	result.SearchMethod = searchMethod + " (no LLM)"
	return result, nil
}

func (s *Store) fetchFiltered(ctx context.Context, p RecallParams, dialect string) ([]Memory, error) {
	clause, args := buildFilter(dialect, p, 1)
	query := fmt.Sprintf(`SELECT %s, %s FROM memories WHERE %s`, memoryColumns, embeddingSelectExpr(dialect), clause)
	return s.queryMemories(ctx, dialect, query, args)
}

// keywordSearch tokenizes the query on whitespace and requires every
// token to match content, subject, or the keywords array
// (case-insensitive substring), AND-combined across tokens.
func (s *Store) keywordSearch(ctx context.Context, p RecallParams, dialect string) ([]Memory, error) {
	clause, args := buildFilter(dialect, p, 1)
	next := len(args) + 1

	tokens := strings.Fields(p.Query)
	for _, tok := range tokens {
		like := "%" + strings.ToLower(tok) + "%"
		if dialect == "sqlite" {
			clause += fmt.Sprintf(" AND (LOWER(content) LIKE %s OR LOWER(COALESCE(subject,'')) LIKE %s OR LOWER(keywords) LIKE %s)",
				db.Placeholder(dialect, next), db.Placeholder(dialect, next+1), db.Placeholder(dialect, next+2))
			args = append(args, like, like, like)
			next += 3
		} else {
			clause += fmt.Sprintf(" AND (LOWER(content) LIKE %s OR LOWER(COALESCE(subject,'')) LIKE %s OR EXISTS (SELECT 1 FROM unnest(keywords) k WHERE LOWER(k) LIKE %s))",
				db.Placeholder(dialect, next), db.Placeholder(dialect, next+1), db.Placeholder(dialect, next+2))
			args = append(args, like, like, like)
			next += 3
		}
	}

	query := fmt.Sprintf(`SELECT %s, %s FROM memories WHERE %s ORDER BY importance DESC, access_count DESC, created_at DESC LIMIT %s`,
		memoryColumns, embeddingSelectExpr(dialect), clause, db.Placeholder(dialect, next))
	args = append(args, p.Limit)

	return s.queryMemories(ctx, dialect, query, args)
}

func (s *Store) queryMemories(ctx context.Context, dialect, query string, args []interface{}) ([]Memory, error) {
	rows, err := s.backend.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		m, err := scanMemoryRow(dialect, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}
