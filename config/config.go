// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the complete configuration for a memory-palace instance.
type Config struct {
	DataDir     string
	Database    DatabaseConfig
	ModelServer ModelServerConfig
	Synthesis   SynthesisConfig
	AutoLink    AutoLinkConfig
	Logging     LoggingConfig
	Metrics     MetricsConfig
	Instances   InstancesConfig
	Redis       RedisConfig
}

// DatabaseConfig selects and configures the storage backend.
type DatabaseConfig struct {
	Type string // "postgres" (default) or "sqlite"
	URL  string // full connection URL; overrides the type-derived default
}

// ModelServerConfig points at the Ollama-protocol model server and names
// the preferred models for each role.
type ModelServerConfig struct {
	OllamaURL          string
	EmbeddingModel     string // explicit name, else auto-detected
	LLMModel           string // explicit name, else auto-detected
	EmbeddingDimension int    // column width; inferred from model name otherwise
	Timeout            time.Duration
}

// SynthesisConfig controls whether recall results are synthesized by the
// LLM or returned raw.
type SynthesisConfig struct {
	Enabled bool
}

// AutoLinkConfig controls automatic edge creation during Remember.
type AutoLinkConfig struct {
	Enabled              bool
	SimilarityThreshold  float64
	SuggestThreshold     float64
	MaxLinks             int
	MaxSuggestions       int
	SameProjectOnly      bool
	ClassifyEdges        bool
	ClassificationModel  string
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "json", "text"
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool
	Port    int
	Path    string
}

// InstancesConfig lists the agent instance ids recognized by the handoff
// bus. "all" is always a valid broadcast target regardless of this list.
type InstancesConfig struct {
	IDs              []string
	CurrentInstance  string
}

// RedisConfig configures the optional Redis client shared by the
// handoff bus's live pub/sub stream and the distributed rate limiter
// that throttles backfill/reembed embedding calls. Leaving Enabled false keeps both purely
// local: handoffs remain durable-but-poll-only, and the rate limiter
// is skipped entirely rather than degrading to some in-process
// substitute.
type RedisConfig struct {
	Enabled bool
	URL     string // e.g. "redis://localhost:6379/0"

	// RateLimitPerMinute bounds embedding calls issued by backfill/reembed
	// (Remember's own embedding call is never throttled). 0 disables the
	// limiter even when Redis is enabled.
	RateLimitPerMinute int
}

// DefaultConfig returns a configuration with the defaults named in the
// configuration reference: Postgres storage, an Ollama server on
// localhost, auto-linking enabled at thresholds that favor suggestion
// over silent auto-apply.
func DefaultConfig() *Config {
	return &Config{
		DataDir: defaultDataDir(),
		Database: DatabaseConfig{
			Type: "postgres",
		},
		ModelServer: ModelServerConfig{
			OllamaURL: "http://localhost:11434",
			Timeout:   30 * time.Second,
		},
		Synthesis: SynthesisConfig{
			Enabled: true,
		},
		AutoLink: AutoLinkConfig{
			Enabled:             true,
			SimilarityThreshold: 0.65,
			SuggestThreshold:    0.50,
			MaxLinks:            5,
			MaxSuggestions:      10,
			SameProjectOnly:     false,
			ClassifyEdges:       true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
		Instances: InstancesConfig{
			IDs: []string{"claude-desktop", "claude-code"},
		},
		Redis: RedisConfig{
			Enabled:            false,
			URL:                "redis://localhost:6379/0",
			RateLimitPerMinute: 60,
		},
	}
}

// defaultDataDir returns ~/.memory-palace, falling back to a relative
// directory when the home directory cannot be resolved.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".memory-palace"
	}
	return filepath.Join(home, ".memory-palace")
}
