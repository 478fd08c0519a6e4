// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package graph owns MemoryEdge creation: explicit linking, supersede
// composites, and the similarity-driven auto-link policy run at the
// end of a Remember call.
package graph
