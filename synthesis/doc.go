// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package synthesis turns a set of recalled memories into a narrative
// report via a single LLM generation call, with a plain-list fallback
// for when no LLM is available.
package synthesis
