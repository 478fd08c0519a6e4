// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package memory

import "time"

// Source type enumeration for Memory.SourceType.
const (
	SourceConversation = "conversation"
	SourceExplicit     = "explicit"
	SourceInferred     = "inferred"
	SourceObservation  = "observation"
)

// DefaultProject is the project scope assigned when none is supplied.
const DefaultProject = "life"

var validSourceTypes = map[string]bool{
	SourceConversation: true,
	SourceExplicit:     true,
	SourceInferred:     true,
	SourceObservation:  true,
}

// Memory is one stored unit of agent knowledge.
type Memory struct {
	ID              int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
	InstanceID      string
	Project         string
	MemoryType      string
	Subject         string
	Content         string
	Keywords        []string
	Tags            []string
	Importance      int
	SourceType      string
	SourceContext   string
	SourceSessionID string
	SupersedesID    *int64
	Embedding       []float32
	AccessCount     int
	LastAccessedAt  *time.Time
	ExpiresAt       *time.Time
	IsArchived      bool
}

// clampImportance enforces the 1-10 invariant, defaulting an
// out-of-range-by-absence zero value to 5.
func clampImportance(v int) int {
	if v == 0 {
		return 5
	}
	if v < 1 {
		return 1
	}
	if v > 10 {
		return 10
	}
	return v
}

// RememberParams are the arguments to Store.Remember.
type RememberParams struct {
	InstanceID      string   `json:"instance_id"`
	MemoryType      string   `json:"memory_type"`
	Content         string   `json:"content"`
	Subject         string   `json:"subject,omitempty"`
	Keywords        []string `json:"keywords,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	Importance      int      `json:"importance,omitempty"` // 0 means "use default 5"
	Project         string   `json:"project,omitempty"`
	SourceType      string   `json:"source_type,omitempty"`
	SourceContext   string   `json:"source_context,omitempty"`
	SourceSessionID string   `json:"source_session_id,omitempty"`
	SupersedesID    *int64   `json:"supersedes_id,omitempty"`

	// AutoLink overrides the configured AutoLink.Enabled default when
	// non-nil.
	AutoLink *bool `json:"auto_link,omitempty"`
}

// LinkResult describes one edge created or suggested by auto-linking,
// surfaced back through RememberResult.
type LinkResult struct {
	TargetID     int64   `json:"target_id"`
	TargetSubj   string  `json:"target_subject"`
	RelationType string  `json:"relation_type"`
	Score        float64 `json:"score"`
}

// RememberResult is the return value of Store.Remember.
type RememberResult struct {
	ID             int64        `json:"id"`
	Subject        string       `json:"subject,omitempty"`
	Embedded       bool         `json:"embedded"`
	LinksCreated   []LinkResult `json:"links_created,omitempty"`
	SuggestedLinks []LinkResult `json:"suggested_links,omitempty"`
}

// RecallParams are the arguments to Store.Recall.
type RecallParams struct {
	Query           string `json:"query"`
	InstanceID      string `json:"instance_id,omitempty"`
	Project         string `json:"project,omitempty"`
	MemoryType      string `json:"memory_type,omitempty"`
	Subject         string `json:"subject,omitempty"`
	MinImportance   int    `json:"min_importance,omitempty"`
	IncludeArchived bool   `json:"include_archived,omitempty"`
	Limit           int    `json:"limit,omitempty"`
	DetailLevel     string `json:"detail_level,omitempty"`
	Synthesize      bool   `json:"synthesize,omitempty"`
}

// ScoredMemory pairs a Memory with its similarity score from a recall
// pass (-1.0 when the row has no embedding).
type ScoredMemory struct {
	Memory
	SimilarityScore float64
}

// RecallResult is the return value of Store.Recall.
type RecallResult struct {
	Memories     []ScoredMemory `json:"memories,omitempty"`
	Summary      string         `json:"summary,omitempty"`
	Count        int            `json:"count"`
	SearchMethod string         `json:"search_method"`
	MemoryIDs    []int64        `json:"memory_ids,omitempty"`
}

// UpdateParams patches an existing memory. Nil pointer fields are left
// unchanged.
type UpdateParams struct {
	ID                  int64      `json:"id"`
	MemoryType          *string    `json:"memory_type,omitempty"`
	Subject             *string    `json:"subject,omitempty"`
	Content             *string    `json:"content,omitempty"`
	Keywords            []string   `json:"keywords,omitempty"`
	Tags                []string   `json:"tags,omitempty"`
	Importance          *int       `json:"importance,omitempty"`
	SourceContext       *string    `json:"source_context,omitempty"`
	ExpiresAt           *time.Time `json:"expires_at,omitempty"`
	RegenerateEmbedding bool       `json:"regenerate_embedding,omitempty"`
}

// BackfillResult is the return value of Store.BackfillEmbeddings.
type BackfillResult struct {
	Scanned   int     `json:"scanned"`
	Embedded  int     `json:"embedded"`
	Failed    int     `json:"failed"`
	FailedIDs []int64 `json:"failed_ids,omitempty"`
}

// Stats is the return value of Store.GetStats.
type Stats struct {
	TotalCount        int             `json:"total_count"`
	ByType            map[string]int  `json:"by_type"`
	ByInstance        map[string]int  `json:"by_instance"`
	ByProject         map[string]int  `json:"by_project"`
	AverageImportance float64         `json:"average_importance"`
	MostAccessed      []MemorySummary `json:"most_accessed"`
	MostRecent        []MemorySummary `json:"most_recent"`
}

// MemorySummary is the compact projection used in Stats' top-5 lists.
type MemorySummary struct {
	ID          int64     `json:"id"`
	Subject     string    `json:"subject,omitempty"`
	AccessCount int       `json:"access_count"`
	CreatedAt   time.Time `json:"created_at"`
}
