// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFromFile loads configuration from <data_dir>/config.json (or .yaml,
// for parity with the teacher's format-sniffing loader), applies
// environment overrides, and validates the result.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.LoadEnv()
			if verr := cfg.Validate(); verr != nil {
				return nil, fmt.Errorf("invalid configuration: %w", verr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json", "":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s (use .json, .yaml, or .yml)", ext)
	}

	cfg.LoadEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadEnv applies the environment variable overrides named in the
// configuration reference. Environment variables take precedence over
// file-based configuration.
func (c *Config) LoadEnv() {
	if v := os.Getenv("MEMORY_PALACE_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("MEMORY_PALACE_DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		c.ModelServer.OllamaURL = v
	}
	if v := os.Getenv("MEMORY_PALACE_EMBEDDING_MODEL"); v != "" {
		c.ModelServer.EmbeddingModel = v
	}
	if v := os.Getenv("MEMORY_PALACE_LLM_MODEL"); v != "" {
		c.ModelServer.LLMModel = v
	}
	if v := os.Getenv("MEMORY_PALACE_INSTANCE_ID"); v != "" {
		c.Instances.CurrentInstance = v
		if !contains(c.Instances.IDs, v) {
			c.Instances.IDs = append(c.Instances.IDs, v)
		}
	}
	if v := os.Getenv("MEMORY_PALACE_REDIS_URL"); v != "" {
		c.Redis.URL = v
		c.Redis.Enabled = true
	}
}

func contains(ids []string, id string) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}

// configPath returns the conventional path to the config file within a
// data directory.
func configPath(dataDir string) string {
	return filepath.Join(dataDir, "config.json")
}
