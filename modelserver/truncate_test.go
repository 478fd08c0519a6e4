// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package modelserver

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateForEmbedding_ShortTextUnchanged(t *testing.T) {
	text := "short text"
	assert.Equal(t, text, truncateForEmbedding(text, 6000))
}

func TestTruncateForEmbedding_LongTextTruncatedWithMarker(t *testing.T) {
	text := strings.Repeat("a", 7000)
	out := truncateForEmbedding(text, 6000)

	assert.LessOrEqual(t, len(out), 6000)
	assert.True(t, strings.HasSuffix(out, TruncationMarker))
}

func TestTruncateForEmbedding_ExactBoundaryUnchanged(t *testing.T) {
	text := strings.Repeat("b", 6000)
	assert.Equal(t, text, truncateForEmbedding(text, 6000))
}
