// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package modelserver

// MaxEmbeddingChars is the default character budget for embedding
// input, chosen to stay safely inside common embedding models'
// context windows.
const MaxEmbeddingChars = 6000

// TruncationMarker is appended to embedding input that was cut down to
// MaxEmbeddingChars, so a caller inspecting stored text can tell it was
// shortened.
const TruncationMarker = "\n[TRUNCATED FOR EMBEDDING]"

// truncateForEmbedding cuts text to maxChars, leaving room to append
// TruncationMarker so the total never exceeds maxChars.
func truncateForEmbedding(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}

	budget := maxChars - len(TruncationMarker)
	if budget < 0 {
		budget = 0
	}
	return text[:budget] + TruncationMarker
}
