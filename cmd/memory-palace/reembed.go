// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memory-palace/core/observability/logging"
)

var reembedDimension int

var reembedCmd = &cobra.Command{
	Use:   "reembed",
	Short: "Switch embedding models: clear and recompute every embedding at a new dimension",
	Long: `reembed recovers from an embedding dimension mismatch by deliberately
rebuilding the embedding column at --dimension and re-embedding every
memory against the currently configured model server. Unlike backfill,
this discards existing embeddings rather than filling in gaps.`,
	RunE: runReembed,
}

func init() {
	reembedCmd.Flags().IntVar(&reembedDimension, "dimension", 0, "new embedding dimension (required)")
	_ = reembedCmd.MarkFlagRequired("dimension")
	rootCmd.AddCommand(reembedCmd)
}

func runReembed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logging.NewStructuredLogger(logging.Level(cfg.Logging.Level))

	d, err := buildDepsAllowingDimensionMismatch(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer d.close()

	result, err := d.Store.Reembed(ctx, reembedDimension)
	if err != nil {
		return fmt.Errorf("reembed: %w", err)
	}

	fmt.Printf("scanned=%d embedded=%d failed=%d\n", result.Scanned, result.Embedded, result.Failed)
	if len(result.FailedIDs) > 0 {
		fmt.Printf("failed ids: %v\n", result.FailedIDs)
	}
	return nil
}
