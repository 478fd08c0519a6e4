// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package synthesis formats a set of recalled memories into an LLM
// prompt and synthesizes a narrative report, falling back to a plain
// bullet list when no LLM is available.
package synthesis

import (
	"context"
	"fmt"
	"strings"

	"github.com/memory-palace/core/modelserver"
)

// Item is the minimal view of a memory synthesis needs: recall's
// richer Memory/ScoredMemory types are projected down to this before
// calling Synthesize, so this package never depends on package memory
// (which depends on this one).
type Item struct {
	ID         int64
	MemoryType string
	Subject    string
	Content    string
}

const lowConfidenceThreshold = 0.5

const systemPrompt = `You are synthesizing retrieved memories into a thorough, detail-preserving report for an AI agent.
Write in clear prose, preserving specific facts, names, and numbers from the source memories rather than vaguely summarizing them.
Organize the report by topic or chronology, whichever fits the material better.
If the retrieved memories are only weakly relevant to the query, say so plainly rather than overstating their relevance.`

// formatMemory renders one memory as "[similarity] [type] [id]
// [subject] \n content", full content with no truncation.
func formatMemory(m Item, score float64, hasScore bool) string {
	var b strings.Builder
	if hasScore {
		fmt.Fprintf(&b, "[%.2f] ", score)
	}
	fmt.Fprintf(&b, "[%s] [%d]", m.MemoryType, m.ID)
	if m.Subject != "" {
		fmt.Fprintf(&b, " [%s]", m.Subject)
	}
	b.WriteString("\n")
	b.WriteString(m.Content)
	return b.String()
}

// buildPrompt joins every formatted memory with a blank-line separator
// and prepends the query and a low-confidence caveat when every score
// is below lowConfidenceThreshold.
func buildPrompt(memories []Item, query string, scores map[int64]float64) string {
	var b strings.Builder
	if query != "" {
		fmt.Fprintf(&b, "Original query: %q\n\n", query)
	}

	allLowConfidence := len(scores) > 0
	for _, m := range memories {
		score, ok := scores[m.ID]
		if ok && score >= lowConfidenceThreshold {
			allLowConfidence = false
		}
		if !ok {
			allLowConfidence = false
		}
	}
	if allLowConfidence {
		b.WriteString("Note: all retrieved memories have low similarity to the query. Treat them as weak, speculative leads rather than confident matches.\n\n")
	}

	parts := make([]string, len(memories))
	for i, m := range memories {
		score, ok := scores[m.ID]
		parts[i] = formatMemory(m, score, ok)
	}
	b.WriteString(strings.Join(parts, "\n\n---\n\n"))
	return b.String()
}

// Synthesize calls the LLM to produce a narrative report over
// memories, given an optional original query and an optional
// id->similarity score map. Returns an error if the model server is
// unavailable; callers fall back to PlainListFallback.
func Synthesize(ctx context.Context, client *modelserver.Client, memories []Item, query string, scores map[int64]float64) (string, error) {
	prompt := buildPrompt(memories, query, scores)
	return client.Generate(ctx, modelserver.GenerateRequest{
		Prompt:     prompt,
		System:     systemPrompt,
		NumPredict: 1500,
	})
}

// PlainListFallback renders "- [type] (subject): first-100-chars" per
// memory, used when synthesis is requested but no LLM is available.
// An empty memories slice returns "No memories found." rather than an
// empty string.
func PlainListFallback(memories []Item) string {
	if len(memories) == 0 {
		return "No memories found."
	}

	var b strings.Builder
	for i, m := range memories {
		if i > 0 {
			b.WriteString("\n")
		}
		preview := m.Content
		if len(preview) > 100 {
			preview = preview[:100]
		}
		subject := m.Subject
		if subject == "" {
			subject = "untitled"
		}
		fmt.Fprintf(&b, "- [%s] (%s): %s", m.MemoryType, subject, preview)
	}
	return b.String()
}
