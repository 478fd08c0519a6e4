// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package synthesis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memory-palace/core/modelserver"
)

func TestPlainListFallback_TruncatesAt100Chars(t *testing.T) {
	long := ""
	for i := 0; i < 200; i++ {
		long += "x"
	}
	out := PlainListFallback([]Item{{MemoryType: "fact", Subject: "s", Content: long}})
	assert.Contains(t, out, "- [fact] (s): "+string([]byte(long)[:100]))
}

func TestPlainListFallback_UntitledWhenNoSubject(t *testing.T) {
	out := PlainListFallback([]Item{{MemoryType: "fact", Content: "short content"}})
	assert.Contains(t, out, "(untitled)")
}

func TestBuildPrompt_AddsLowConfidenceCaveatWhenAllBelowThreshold(t *testing.T) {
	memories := []Item{{ID: 1, MemoryType: "fact", Subject: "a", Content: "content a"}}
	prompt := buildPrompt(memories, "query", map[int64]float64{1: 0.2})
	assert.Contains(t, prompt, "weak, speculative leads")
}

func TestBuildPrompt_NoCaveatWhenAnyScoreAboveThreshold(t *testing.T) {
	memories := []Item{
		{ID: 1, MemoryType: "fact", Subject: "a", Content: "content a"},
		{ID: 2, MemoryType: "fact", Subject: "b", Content: "content b"},
	}
	prompt := buildPrompt(memories, "query", map[int64]float64{1: 0.2, 2: 0.9})
	assert.NotContains(t, prompt, "weak, speculative leads")
}

func TestSynthesize_CallsGenerateAndReturnsResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"models": []map[string]string{{"name": "qwen2.5:14b"}},
			})
		case "/api/generate":
			json.NewEncoder(w).Encode(map[string]string{"response": "a thorough synthesized report"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := modelserver.NewClient(modelserver.ClientConfig{BaseURL: server.URL})
	summary, err := Synthesize(context.Background(), client, []Item{{ID: 1, MemoryType: "fact", Subject: "s", Content: "c"}}, "query", map[int64]float64{1: 0.8})
	require.NoError(t, err)
	assert.Equal(t, "a thorough synthesized report", summary)
}
