// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package modelserver provides an Ollama-protocol HTTP client for
// embedding generation, text generation, and edge classification, plus
// optional cloud Provider implementations (OpenAI, Anthropic) for
// deployments that route generation away from a local model server.
//
// Client tracks three independent roles — embedding, LLM, and
// classification — each with its own ordered model preference list and
// its own auto-detection cache. Detection probes /api/tags once per
// role and coalesces concurrent callers with singleflight; ClearModelCache
// forces re-detection, for use after a model server restart.
package modelserver
