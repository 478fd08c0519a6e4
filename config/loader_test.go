// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromFile_JSON(t *testing.T) {
	tmpDir := t.TempDir()
	cfgFile := filepath.Join(tmpDir, "config.json")

	jsonContent := `{
		"Database": {"Type": "sqlite"},
		"ModelServer": {"OllamaURL": "http://127.0.0.1:11434", "EmbeddingModel": "nomic-embed-text"},
		"AutoLink": {"Enabled": true, "SimilarityThreshold": 0.7, "SuggestThreshold": 0.5, "MaxLinks": 3, "MaxSuggestions": 10}
	}`

	if err := os.WriteFile(cfgFile, []byte(jsonContent), 0600); err != nil {
		t.Fatalf("failed to write test config file: %v", err)
	}

	cfg, err := LoadFromFile(cfgFile)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if cfg.Database.Type != "sqlite" {
		t.Errorf("Database.Type = %s, want sqlite", cfg.Database.Type)
	}
	if cfg.ModelServer.EmbeddingModel != "nomic-embed-text" {
		t.Errorf("ModelServer.EmbeddingModel = %s, want nomic-embed-text", cfg.ModelServer.EmbeddingModel)
	}
	if cfg.AutoLink.SimilarityThreshold != 0.7 {
		t.Errorf("AutoLink.SimilarityThreshold = %v, want 0.7", cfg.AutoLink.SimilarityThreshold)
	}
}

func TestLoadFromFile_MissingFileUsesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	cfg, err := LoadFromFile(filepath.Join(tmpDir, "does-not-exist.json"))
	if err != nil {
		t.Fatalf("LoadFromFile should fall back to defaults, got error: %v", err)
	}
	if cfg.Database.Type != "postgres" {
		t.Errorf("Database.Type = %s, want postgres (default)", cfg.Database.Type)
	}
}

func TestLoadFromFile_UnsupportedExtension(t *testing.T) {
	tmpDir := t.TempDir()
	cfgFile := filepath.Join(tmpDir, "config.toml")
	if err := os.WriteFile(cfgFile, []byte("type = \"sqlite\""), 0600); err != nil {
		t.Fatalf("failed to write test config file: %v", err)
	}

	if _, err := LoadFromFile(cfgFile); err == nil {
		t.Error("LoadFromFile should reject an unsupported extension")
	}
}

func TestLoadEnv_Overrides(t *testing.T) {
	t.Setenv("MEMORY_PALACE_DATA_DIR", "/tmp/mp-data")
	t.Setenv("OLLAMA_HOST", "http://remote-host:11434")
	t.Setenv("MEMORY_PALACE_EMBEDDING_MODEL", "mxbai-embed-large")
	t.Setenv("MEMORY_PALACE_INSTANCE_ID", "claude-code")

	cfg := DefaultConfig()
	cfg.LoadEnv()

	if cfg.DataDir != "/tmp/mp-data" {
		t.Errorf("DataDir = %s, want /tmp/mp-data", cfg.DataDir)
	}
	if cfg.ModelServer.OllamaURL != "http://remote-host:11434" {
		t.Errorf("ModelServer.OllamaURL = %s, want http://remote-host:11434", cfg.ModelServer.OllamaURL)
	}
	if cfg.ModelServer.EmbeddingModel != "mxbai-embed-large" {
		t.Errorf("ModelServer.EmbeddingModel = %s, want mxbai-embed-large", cfg.ModelServer.EmbeddingModel)
	}
	if cfg.Instances.CurrentInstance != "claude-code" {
		t.Errorf("Instances.CurrentInstance = %s, want claude-code", cfg.Instances.CurrentInstance)
	}
	if !contains(cfg.Instances.IDs, "claude-code") {
		t.Error("Instances.IDs should contain claude-code after env override")
	}
}

func TestLoadEnv_RedisURLEnablesRedis(t *testing.T) {
	t.Setenv("MEMORY_PALACE_REDIS_URL", "redis://cache:6379/1")

	cfg := DefaultConfig()
	cfg.LoadEnv()

	if cfg.Redis.URL != "redis://cache:6379/1" {
		t.Errorf("Redis.URL = %s, want redis://cache:6379/1", cfg.Redis.URL)
	}
	if !cfg.Redis.Enabled {
		t.Error("Redis.Enabled should be true once MEMORY_PALACE_REDIS_URL is set")
	}
}

func TestLoadEnv_EmptyLeavesDefaults(t *testing.T) {
	cfg := DefaultConfig()
	before := cfg.ModelServer.OllamaURL
	cfg.LoadEnv()
	if cfg.ModelServer.OllamaURL != before {
		t.Error("LoadEnv should not change values when no env vars are set")
	}
}
