// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package graph

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memory-palace/core/config"
	"github.com/memory-palace/core/db"
	mperrors "github.com/memory-palace/core/pkg/errors"
)

func openTestBackend(t *testing.T) db.Backend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memory-palace.db")
	backend, err := db.OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	require.NoError(t, backend.Bootstrap(context.Background(), 4, nil))
	return backend
}

func insertTestMemory(t *testing.T, backend db.Backend, subject, embeddingJSON string) int64 {
	t.Helper()
	res, err := backend.ExecContext(context.Background(),
		`INSERT INTO memories (instance_id, memory_type, subject, content, embedding) VALUES (?, ?, ?, ?, ?)`,
		"claude-code", "fact", subject, subject+" content", embeddingJSON)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func defaultTestConfig() config.AutoLinkConfig {
	return config.AutoLinkConfig{
		Enabled:             true,
		SimilarityThreshold: 0.65,
		SuggestThreshold:    0.50,
		MaxLinks:            5,
		MaxSuggestions:      10,
		ClassifyEdges:       false,
	}
}

func TestLinkMemories_CreatesEdge(t *testing.T) {
	backend := openTestBackend(t)
	a := insertTestMemory(t, backend, "memory a", "")
	b := insertTestMemory(t, backend, "memory b", "")

	g := New(backend, nil, nil, nil, defaultTestConfig())
	edge, err := g.LinkMemories(context.Background(), LinkParams{
		SourceID:     a,
		TargetID:     b,
		RelationType: "relates_to",
	})
	require.NoError(t, err)
	assert.Equal(t, a, edge.SourceID)
	assert.Equal(t, b, edge.TargetID)
	assert.Equal(t, 1.0, edge.Strength)
}

func TestLinkMemories_RejectsSelfLoop(t *testing.T) {
	backend := openTestBackend(t)
	a := insertTestMemory(t, backend, "memory a", "")

	g := New(backend, nil, nil, nil, defaultTestConfig())
	_, err := g.LinkMemories(context.Background(), LinkParams{SourceID: a, TargetID: a, RelationType: "relates_to"})
	assert.ErrorIs(t, err, mperrors.ErrSelfLoop)
}

func TestLinkMemories_RejectsDuplicateTriple(t *testing.T) {
	backend := openTestBackend(t)
	a := insertTestMemory(t, backend, "memory a", "")
	b := insertTestMemory(t, backend, "memory b", "")

	g := New(backend, nil, nil, nil, defaultTestConfig())
	_, err := g.LinkMemories(context.Background(), LinkParams{SourceID: a, TargetID: b, RelationType: "relates_to"})
	require.NoError(t, err)

	_, err = g.LinkMemories(context.Background(), LinkParams{SourceID: a, TargetID: b, RelationType: "relates_to"})
	assert.ErrorIs(t, err, mperrors.ErrEdgeConflict)
}

func TestSupersedeMemory_ArchivesOldAndCreatesEdge(t *testing.T) {
	backend := openTestBackend(t)
	oldID := insertTestMemory(t, backend, "old fact", "")
	newID := insertTestMemory(t, backend, "new fact", "")

	g := New(backend, nil, nil, nil, defaultTestConfig())
	edge, err := g.SupersedeMemory(context.Background(), newID, oldID, true, "claude-code")
	require.NoError(t, err)
	assert.Equal(t, "supersedes", edge.RelationType)
	assert.False(t, edge.Bidirectional)

	var archived int
	require.NoError(t, backend.QueryRowContext(context.Background(),
		`SELECT is_archived FROM memories WHERE id = ?`, oldID).Scan(&archived))
	assert.Equal(t, 1, archived)

	var sourceContext string
	require.NoError(t, backend.QueryRowContext(context.Background(),
		`SELECT source_context FROM memories WHERE id = ?`, oldID).Scan(&sourceContext))
	assert.Contains(t, sourceContext, "superseded by memory")
}

func TestAutoLink_PartitionsAutoAndSuggestTiers(t *testing.T) {
	backend := openTestBackend(t)

	// Orthogonal-ish unit vectors at varying angles to the new memory's
	// embedding [1,0,0,0] to land one candidate above the auto
	// threshold, one in the suggest band, and one below both.
	closeMatch := insertTestMemory(t, backend, "close match", `[0.95,0.3122,0,0]`)
	suggestMatch := insertTestMemory(t, backend, "suggest match", `[0.6,0.8,0,0]`)
	_ = insertTestMemory(t, backend, "unrelated", `[0,0,1,0]`)

	g := New(backend, nil, nil, nil, defaultTestConfig())
	newID := insertTestMemory(t, backend, "new memory", `[1,0,0,0]`)

	result, err := g.AutoLink(context.Background(), []float32{1, 0, 0, 0}, AutoLinkParams{NewMemoryID: newID})
	require.NoError(t, err)

	require.Len(t, result.LinksCreated, 1)
	assert.Equal(t, closeMatch, result.LinksCreated[0].TargetID)
	assert.Equal(t, "relates_to", result.LinksCreated[0].RelationType)

	require.Len(t, result.SuggestedLinks, 1)
	assert.Equal(t, suggestMatch, result.SuggestedLinks[0].TargetID)
}

func TestAutoLink_NoEmbeddingIsNoop(t *testing.T) {
	backend := openTestBackend(t)
	g := New(backend, nil, nil, nil, defaultTestConfig())

	result, err := g.AutoLink(context.Background(), nil, AutoLinkParams{NewMemoryID: 1})
	require.NoError(t, err)
	assert.Empty(t, result.LinksCreated)
	assert.Empty(t, result.SuggestedLinks)
}

func TestAutoLink_ExcludesSupersedeTarget(t *testing.T) {
	backend := openTestBackend(t)
	supersededTarget := insertTestMemory(t, backend, "superseded", `[1,0,0,0]`)

	g := New(backend, nil, nil, nil, defaultTestConfig())
	newID := insertTestMemory(t, backend, "new memory", `[1,0,0,0]`)

	result, err := g.AutoLink(context.Background(), []float32{1, 0, 0, 0}, AutoLinkParams{
		NewMemoryID:   newID,
		ExcludeEdgeTo: supersededTarget,
	})
	require.NoError(t, err)
	assert.Empty(t, result.LinksCreated)
	assert.Empty(t, result.SuggestedLinks)
}
