// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memory-palace/core/modelserver"
)

func TestRecall_KeywordFallbackWithoutClient(t *testing.T) {
	s, _ := newTestStore(t, nil)
	_, err := s.Remember(context.Background(), RememberParams{
		InstanceID: "claude-code", MemoryType: "fact", Subject: "coffee", Content: "likes oat milk lattes",
	})
	require.NoError(t, err)
	_, err = s.Remember(context.Background(), RememberParams{
		InstanceID: "claude-code", MemoryType: "fact", Subject: "weather", Content: "it is sunny today",
	})
	require.NoError(t, err)

	result, err := s.Recall(context.Background(), RecallParams{Query: "oat milk"})
	require.NoError(t, err)
	assert.Equal(t, "keyword (fallback)", result.SearchMethod)
	require.Len(t, result.Memories, 1)
	assert.Equal(t, "coffee", result.Memories[0].Subject)
}

func TestRecall_SemanticPathScoresAndSorts(t *testing.T) {
	srv := embedServer(t, []float32{1, 0, 0, 0})
	client := modelserver.NewClient(modelserver.ClientConfig{BaseURL: srv.URL})
	s, _ := newTestStore(t, client)

	_, err := s.Remember(context.Background(), RememberParams{
		InstanceID: "claude-code", MemoryType: "fact", Subject: "alpha", Content: "alpha content",
	})
	require.NoError(t, err)
	_, err = s.Remember(context.Background(), RememberParams{
		InstanceID: "claude-code", MemoryType: "fact", Subject: "beta", Content: "beta content",
	})
	require.NoError(t, err)

	result, err := s.Recall(context.Background(), RecallParams{Query: "anything"})
	require.NoError(t, err)
	assert.Equal(t, "semantic", result.SearchMethod)
	assert.Len(t, result.Memories, 2)
	for _, m := range result.Memories {
		assert.InDelta(t, 1.0, m.SimilarityScore, 0.0001)
	}
}

func TestRecall_RespectsFilters(t *testing.T) {
	s, _ := newTestStore(t, nil)
	_, err := s.Remember(context.Background(), RememberParams{
		InstanceID: "claude-code", Project: "proj-a", MemoryType: "fact", Subject: "x", Content: "shared term",
	})
	require.NoError(t, err)
	_, err = s.Remember(context.Background(), RememberParams{
		InstanceID: "claude-code", Project: "proj-b", MemoryType: "fact", Subject: "y", Content: "shared term",
	})
	require.NoError(t, err)

	result, err := s.Recall(context.Background(), RecallParams{Query: "shared", Project: "proj-a"})
	require.NoError(t, err)
	require.Len(t, result.Memories, 1)
	assert.Equal(t, "proj-a", result.Memories[0].Project)
}

func TestRecall_ExcludesArchivedByDefault(t *testing.T) {
	s, _ := newTestStore(t, nil)
	res, err := s.Remember(context.Background(), RememberParams{
		InstanceID: "claude-code", MemoryType: "fact", Subject: "x", Content: "distinctive content",
	})
	require.NoError(t, err)
	require.NoError(t, s.Forget(context.Background(), res.ID, "done"))

	result, err := s.Recall(context.Background(), RecallParams{Query: "distinctive"})
	require.NoError(t, err)
	assert.Empty(t, result.Memories)

	result, err = s.Recall(context.Background(), RecallParams{Query: "distinctive", IncludeArchived: true})
	require.NoError(t, err)
	assert.Len(t, result.Memories, 1)
}

func TestRecall_SynthesizeDisabledReturnsRawMemories(t *testing.T) {
	s, _ := newTestStore(t, nil)
	_, err := s.Remember(context.Background(), RememberParams{
		InstanceID: "claude-code", MemoryType: "fact", Subject: "x", Content: "some fact",
	})
	require.NoError(t, err)

	result, err := s.Recall(context.Background(), RecallParams{Query: "fact", Synthesize: true})
	require.NoError(t, err)
	assert.Empty(t, result.Summary)
	assert.NotEmpty(t, result.Memories)
}

func TestRecall_SynthesizeWithLLMReturnsSummary(t *testing.T) {
	srv := embedServer(t, []float32{1, 0, 0, 0})
	client := modelserver.NewClient(modelserver.ClientConfig{BaseURL: srv.URL})
	s, backend := newTestStore(t, client)
	s.synthesisEnabled = true
	_ = backend

	_, err := s.Remember(context.Background(), RememberParams{
		InstanceID: "claude-code", MemoryType: "fact", Subject: "x", Content: "some fact",
	})
	require.NoError(t, err)

	result, err := s.Recall(context.Background(), RecallParams{Query: "fact", Synthesize: true})
	require.NoError(t, err)
	assert.Equal(t, "a synthesized report", result.Summary)
}

func TestRecall_SynthesizeFallsBackWithoutLLM(t *testing.T) {
	s, _ := newTestStore(t, nil)
	s.synthesisEnabled = true

	_, err := s.Remember(context.Background(), RememberParams{
		InstanceID: "claude-code", MemoryType: "fact", Subject: "x", Content: "some fact content",
	})
	require.NoError(t, err)

	result, err := s.Recall(context.Background(), RecallParams{Query: "fact", Synthesize: true})
	require.NoError(t, err)
	assert.Contains(t, result.Summary, "some fact")
	assert.Contains(t, result.SearchMethod, "no LLM")
}
