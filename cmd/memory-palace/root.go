// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/memory-palace/core/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "memory-palace",
	Short: "Persistent semantic memory store for conversational AI agents",
	Long: `memory-palace serves, backfills, and reflects over a semantic
memory store: typed memories, a labeled knowledge graph between them,
and an inter-instance handoff mailbox, backed by an Ollama-protocol
model server for embeddings, synthesis, and edge classification.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (default <data-dir>/config.json)")
	rootCmd.PersistentFlags().String("data-dir", "", "override the configured data directory")
	rootCmd.PersistentFlags().String("db-url", "", "override the configured database URL")

	_ = viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindPFlag("db_url", rootCmd.PersistentFlags().Lookup("db-url"))
	viper.SetEnvPrefix("MEMORY_PALACE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// loadConfig resolves the config file path (flag, else <data-dir>/config.json),
// loads it, and layers the viper-bound flag/env overrides on top. File
// contents and MEMORY_PALACE_* environment variables are handled inside
// config.LoadFromFile/LoadEnv already; this layer only adds the
// CLI-specific --data-dir/--db-url flags (and their MEMORY_PALACE_DATA_DIR/
// MEMORY_PALACE_DB_URL env equivalents) viper binds underneath them.
func loadConfig() (*config.Config, error) {
	dataDir := viper.GetString("data_dir")

	path := cfgFile
	if path == "" {
		dir := dataDir
		if dir == "" {
			dir = config.DefaultConfig().DataDir
		}
		path = filepath.Join(dir, "config.json")
	}

	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, err
	}

	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if dbURL := viper.GetString("db_url"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	return cfg, nil
}
