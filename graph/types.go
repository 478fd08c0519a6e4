// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package graph

import "time"

// Symmetric relation types are treated as bidirectional at query time
// regardless of how they were created.
var symmetricRelationTypes = map[string]bool{
	"relates_to":  true,
	"contradicts": true,
}

// IsSymmetric reports whether relationType is treated as symmetric.
func IsSymmetric(relationType string) bool {
	return symmetricRelationTypes[relationType]
}

// MemoryEdge is a directed, optionally symmetric labeled edge between
// two memories.
type MemoryEdge struct {
	ID            int64
	CreatedAt     time.Time
	SourceID      int64
	TargetID      int64
	RelationType  string
	Strength      float64
	Bidirectional bool
	Metadata      map[string]interface{}
	CreatedBy     string
}

// LinkParams are the arguments to Graph.LinkMemories.
type LinkParams struct {
	SourceID      int64                  `json:"source_id"`
	TargetID      int64                  `json:"target_id"`
	RelationType  string                 `json:"relation_type"`
	Strength      float64                `json:"strength,omitempty"` // 0 means "use default 1.0"
	Bidirectional bool                   `json:"bidirectional,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	CreatedBy     string                 `json:"created_by,omitempty"`
}

// AutoLinkParams are the arguments to Graph.AutoLink.
type AutoLinkParams struct {
	NewMemoryID int64  `json:"new_memory_id"`
	Project     string `json:"project,omitempty"`
	// ExcludeEdgeTo, when non-zero, is a target id that must be skipped
	// because Remember already created an explicit edge to it in the
	// same call (the supersedes target).
	ExcludeEdgeTo int64 `json:"exclude_edge_to,omitempty"`
}

// AutoLinkResult is the return value of Graph.AutoLink.
type AutoLinkResult struct {
	LinksCreated   []LinkOutcome
	SuggestedLinks []LinkOutcome
}

// LinkOutcome describes one candidate surfaced by auto-linking, whether
// or not an edge was actually created for it.
type LinkOutcome struct {
	TargetID     int64
	TargetSubj   string
	RelationType string
	Score        float64
}

type candidate struct {
	id        int64
	subject   string
	embedding []float32
}
