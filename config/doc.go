// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package config provides configuration management for memory-palace.
//
// Precedence, lowest to highest:
//  1. Default values (DefaultConfig)
//  2. Configuration file (<data_dir>/config.json, or YAML by extension)
//  3. Environment variable overrides (MEMORY_PALACE_*, OLLAMA_HOST)
//
// # Structure
//
//   - Database: storage backend selection (postgres/sqlite) and URL
//   - ModelServer: Ollama-protocol base URL and per-role model names
//   - Synthesis: whether recall results are LLM-synthesized
//   - AutoLink: auto-linking thresholds and per-remember caps
//   - Logging, Metrics: ambient observability knobs
//   - Instances: recognized instance ids for the handoff bus
//
// # Usage
//
//	cfg, err := config.LoadFromFile(filepath.Join(dataDir, "config.json"))
//
// Or through the process-wide cache, loaded once per process:
//
//	cfg, err := config.Load(dataDir)
//	...
//	config.Clear() // force the next Load to re-read the file
package config
