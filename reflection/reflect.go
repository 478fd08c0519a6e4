// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package reflection

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/memory-palace/core/memory"
	"github.com/memory-palace/core/modelserver"
	mperrors "github.com/memory-palace/core/pkg/errors"
)

const (
	maxTranscriptChars = 65000
	minTranscriptChars = 50
	minContentChars    = 10
)

var highValueTypes = map[string]bool{
	"insight":      true,
	"decision":     true,
	"architecture": true,
	"blocker":      true,
	"gotcha":       true,
}

const systemPrompt = `You extract durable, reusable memories from a conversation transcript.
Output ONLY lines of the exact form:
M|TYPE|SUBJECT|CONTENT
where TYPE is one of: fact, preference, insight, decision, architecture, blocker, gotcha, todo.
SUBJECT is a short noun phrase. CONTENT is the full, self-contained statement of the memory.
Do not include anything else: no preamble, no numbering, no explanation. One memory per line.
Skip small talk, acknowledgements, and anything not worth remembering beyond this conversation.`

// Reflect reads the transcript at p.TranscriptPath, asks the LLM to
// extract candidate memories, and persists them unless p.DryRun. On a
// transcript read failure it returns a *ReadError (never persists,
// never calls the LLM). On zero extracted lines it returns a result
// with Success=false and the raw LLM response attached, to aid
// debugging.
func Reflect(ctx context.Context, store *memory.Store, client *modelserver.Client, p Params) (*Result, error) {
	transcript, err := readTranscript(p.TranscriptPath)
	if err != nil {
		return nil, err
	}

	response, err := client.Generate(ctx, modelserver.GenerateRequest{
		Prompt:     transcript,
		System:     systemPrompt,
		NumPredict: 2000,
	})
	if err != nil {
		return nil, fmt.Errorf("reflect: generate: %w", err)
	}

	extracted := parseExtractedMemories(response)
	if len(extracted) == 0 {
		return &Result{Success: false, Error: "no valid memory lines extracted", LLMResponse: response}, nil
	}

	result := &Result{
		Success:   true,
		Extracted: len(extracted),
		ByType:    map[string]int{},
		Memories:  extracted,
	}
	for _, m := range extracted {
		result.ByType[m.MemoryType]++
	}

	if p.DryRun {
		return result, nil
	}

	for _, m := range extracted {
		res, err := store.Remember(ctx, memory.RememberParams{
			InstanceID:      p.InstanceID,
			Project:         p.Project,
			MemoryType:      m.MemoryType,
			Subject:         m.Subject,
			Content:         m.Content,
			Keywords:        m.Keywords,
			Importance:      m.Importance,
			SourceType:      memory.SourceConversation,
			SourceSessionID: p.SessionID,
		})
		if err != nil {
			continue
		}
		result.MemoryIDs = append(result.MemoryIDs, res.ID)
		if res.Embedded {
			result.Embedded++
		}
	}

	return result, nil
}

// readTranscript reads and validates a transcript file, trimming to
// maxTranscriptChars and rejecting anything below minTranscriptChars.
func readTranscript(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		kind := readErrorGeneric
		if errors.Is(err, fs.ErrNotExist) {
			kind = readErrorNotFound
		} else if errors.Is(err, fs.ErrPermission) {
			kind = readErrorPermission
		}
		return "", &ReadError{Kind: kind, Path: path, Err: err}
	}

	if !utf8.Valid(data) {
		return "", &ReadError{Kind: readErrorDecode, Path: path, Err: fmt.Errorf("not valid UTF-8")}
	}

	text := string(data)
	if len(text) > maxTranscriptChars {
		text = text[:maxTranscriptChars]
	}
	if len(strings.TrimSpace(text)) < minTranscriptChars {
		return "", mperrors.ErrTranscriptTooShort.WithDetail("path", path).WithDetail("length", len(text))
	}
	return text, nil
}

// parseExtractedMemories parses `M|TYPE|SUBJECT|CONTENT` lines from the
// LLM's response, dropping anything that doesn't match or whose content
// is too short to be useful. A blank TYPE defaults to "fact" rather than
// dropping the line.
func parseExtractedMemories(response string) []ExtractedMemory {
	var out []ExtractedMemory
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "|", 4)
		if len(parts) != 4 || parts[0] != "M" {
			continue
		}
		memType := strings.ToLower(strings.TrimSpace(parts[1]))
		subject := strings.TrimSpace(parts[2])
		content := strings.TrimSpace(parts[3])
		if len(content) < minContentChars {
			continue
		}
		if memType == "" {
			memType = "fact"
		}

		out = append(out, ExtractedMemory{
			MemoryType: memType,
			Subject:    subject,
			Content:    content,
			Keywords:   keywordsFromSubject(subject),
			Importance: importanceForType(memType),
		})
	}
	return out
}

func importanceForType(memType string) int {
	if highValueTypes[memType] {
		return 7
	}
	return 5
}

// keywordsFromSubject derives keywords as subject words longer than 3
// characters, lowercased.
func keywordsFromSubject(subject string) []string {
	var out []string
	for _, word := range strings.Fields(subject) {
		word = strings.ToLower(strings.Trim(word, ".,;:!?\"'()"))
		if len(word) > 3 {
			out = append(out, word)
		}
	}
	return out
}
