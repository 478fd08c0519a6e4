// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package reflection extracts durable memories from a conversation
// transcript by asking the LLM to emit structured lines, then persists
// whatever it finds through the memory store.
package reflection
