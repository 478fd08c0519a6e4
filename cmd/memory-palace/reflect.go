// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/memory-palace/core/observability/logging"
	"github.com/memory-palace/core/reflection"
)

var (
	reflectInstanceID string
	reflectProject    string
	reflectSessionID  string
	reflectDryRun     bool
)

var reflectCmd = &cobra.Command{
	Use:   "reflect <transcript-path>",
	Short: "Extract durable memories from a conversation transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runReflect,
}

func init() {
	reflectCmd.Flags().StringVar(&reflectInstanceID, "instance", "", "instance id to attribute extracted memories to (required)")
	reflectCmd.Flags().StringVar(&reflectProject, "project", "", "project scope for extracted memories")
	reflectCmd.Flags().StringVar(&reflectSessionID, "session", "", "source session id to tag extracted memories with")
	reflectCmd.Flags().BoolVar(&reflectDryRun, "dry-run", false, "extract without persisting")
	_ = reflectCmd.MarkFlagRequired("instance")
	rootCmd.AddCommand(reflectCmd)
}

func runReflect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logging.NewStructuredLogger(logging.Level(cfg.Logging.Level))

	d, err := buildDeps(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer d.close()

	result, err := reflection.Reflect(ctx, d.Store, d.Client, reflection.Params{
		InstanceID:     reflectInstanceID,
		TranscriptPath: args[0],
		Project:        reflectProject,
		SessionID:      reflectSessionID,
		DryRun:         reflectDryRun,
	})
	if err != nil {
		return fmt.Errorf("reflect: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
