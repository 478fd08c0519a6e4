// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package memory owns memory lifecycle: creation with embedding
// assignment, hybrid semantic/keyword recall, archival, patch updates,
// and embedding backfill. It depends on package graph for edge
// creation (supersedes, auto-link); graph has no dependency back on
// memory.
package memory
