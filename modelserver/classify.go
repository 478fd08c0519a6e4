// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package modelserver

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/memory-palace/core/observability/logging"
)

// CanonicalRelationTypes is the closed set of edge labels the
// classifier is allowed to emit. "supersedes" is deliberately excluded:
// it carries destructive intent (archiving the superseded memory) and
// may only be produced by an explicit, human-initiated supersede call,
// never by automatic classification.
var CanonicalRelationTypes = []string{
	"relates_to",
	"derived_from",
	"contradicts",
	"exemplifies",
	"refines",
}

// relationAliases maps informal model output to its canonical label.
var relationAliases = map[string]string{
	"derives":       "derived_from",
	"derived":       "derived_from",
	"contradiction": "contradicts",
	"contradict":    "contradicts",
	"example_of":    "exemplifies",
	"example":       "exemplifies",
	"refinement":    "refines",
	"refine":        "refines",
	"related":       "relates_to",
	"relates":       "relates_to",
	"supersedes":    "contradicts",
	"superseded":    "contradicts",
	"supersede":     "contradicts",
}

// Candidate is one existing memory a new memory is being compared
// against for batched edge classification.
type Candidate struct {
	ID      int64
	Subject string
}

// normalizeRelationType lower-cases, trims, strips trailing punctuation,
// applies the alias map, and falls back to a fuzzy prefix match against
// the canonical set, ultimately returning "relates_to" if nothing
// matches. "supersedes" is always rewritten, never passed through.
func normalizeRelationType(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimRight(s, ".,;:!? ")
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.Trim(s, "[]#")

	if s == "supersedes" {
		return "contradicts"
	}

	for _, canon := range CanonicalRelationTypes {
		if s == canon {
			return canon
		}
	}

	if alias, ok := relationAliases[s]; ok {
		return alias
	}

	stem := s
	if i := strings.IndexFunc(s, func(r rune) bool { return !(r >= 'a' && r <= 'z' || r == '_') }); i > 0 {
		stem = s[:i]
	}
	for _, canon := range CanonicalRelationTypes {
		if strings.HasPrefix(canon, stem) || strings.HasPrefix(stem, canon) {
			return canon
		}
	}

	return "relates_to"
}

func classificationSystemPrompt() string {
	return "You classify the relationship between two memory subjects using " +
		"exactly one of these labels: relates_to, derived_from, contradicts, " +
		"exemplifies, refines. Never output \"supersedes\" — use \"contradicts\" " +
		"instead if one subject supersedes the other. Respond with only the label, " +
		"nothing else.\n\n" +
		"Examples:\n" +
		"A: \"API runs on port 8000\"  B: \"API runs on port 9000\" -> contradicts\n" +
		"A: \"uses PostgreSQL for storage\"  B: \"uses PostgreSQL with pgvector extension\" -> refines\n" +
		"A: \"prefers dark mode\"  B: \"prefers vim keybindings\" -> relates_to\n" +
		"A: \"general coding style guide\"  B: \"always use tabs in Makefiles\" -> exemplifies\n" +
		"A: \"rewrote auth middleware\"  B: \"old auth middleware stored tokens in plaintext\" -> derived_from"
}

// ClassifyEdge classifies the relationship between two memory subjects.
// Never emits "supersedes"; classification failures (model unavailable,
// unparseable output) default to "relates_to" rather than propagating,
// per spec.md's policy that classification unavailability defaults
// every edge to relates_to.
func (c *Client) ClassifyEdge(ctx context.Context, subjectA, subjectB string) (string, error) {
	model, err := c.modelFor(ctx, RoleClassification)
	if err != nil {
		return "relates_to", nil
	}

	prompt := fmt.Sprintf("A: %q\nB: %q\nLabel:", subjectA, subjectB)
	raw, err := c.Generate(ctx, GenerateRequest{
		Model:      model,
		Prompt:     prompt,
		System:     classificationSystemPrompt(),
		NumPredict: 20,
	})
	if err != nil {
		if c.log != nil {
			c.log.Warn(ctx, "edge classification failed, defaulting to relates_to", logging.Error(err))
		}
		return "relates_to", nil
	}

	return normalizeRelationType(raw), nil
}

// batchClassificationPrompt builds the single generation-call prompt
// for ClassifyEdgesBatch: one "ID|TYPE" line is expected per candidate.
func batchClassificationPrompt(newSubject string, candidates []Candidate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New memory subject: %q\n\n", newSubject)
	b.WriteString("For each numbered existing subject below, classify its relationship " +
		"to the new subject. Respond with exactly one line per item, formatted " +
		"as \"ID|TYPE\", using only these labels: relates_to, derived_from, " +
		"contradicts, exemplifies, refines. Never use \"supersedes\".\n\n")
	for _, cand := range candidates {
		fmt.Fprintf(&b, "%d: %q\n", cand.ID, cand.Subject)
	}
	return b.String()
}

// ClassifyEdgesBatch classifies the relationship between one new
// subject and up to len(candidates) existing subjects in a single
// generation call. Malformed or unknown lines are ignored; any
// candidate id missing from the model's output defaults to
// "relates_to" rather than failing the whole batch.
func (c *Client) ClassifyEdgesBatch(ctx context.Context, newSubject string, candidates []Candidate) (map[int64]string, error) {
	result := make(map[int64]string, len(candidates))
	for _, cand := range candidates {
		result[cand.ID] = "relates_to"
	}
	if len(candidates) == 0 {
		return result, nil
	}

	model, err := c.modelFor(ctx, RoleClassification)
	if err != nil {
		return result, nil
	}

	numPredict := 60 * len(candidates)
	if numPredict < 500 {
		numPredict = 500
	}

	raw, err := c.Generate(ctx, GenerateRequest{
		Model:      model,
		Prompt:     batchClassificationPrompt(newSubject, candidates),
		System:     classificationSystemPrompt(),
		NumPredict: numPredict,
	})
	if err != nil {
		if c.log != nil {
			c.log.Warn(ctx, "batched edge classification failed, defaulting all to relates_to", logging.Error(err))
		}
		return result, nil
	}

	known := make(map[int64]bool, len(candidates))
	for _, cand := range candidates {
		known[cand.ID] = true
	}

	for _, line := range strings.Split(raw, "\n") {
		parts := strings.SplitN(line, "|", 2)
		if len(parts) != 2 {
			continue
		}

		idPart := strings.Trim(strings.TrimSpace(parts[0]), "[]#")
		id, err := strconv.ParseInt(idPart, 10, 64)
		if err != nil || !known[id] {
			continue
		}

		result[id] = normalizeRelationType(parts[1])
	}

	return result, nil
}
