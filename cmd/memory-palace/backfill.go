// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memory-palace/core/observability/logging"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Compute and persist embeddings for memories missing one",
	RunE:  runBackfill,
}

func init() {
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, args []string) error {
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

	result, err := d.Store.BackfillEmbeddings(ctx)
	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}

	fmt.Printf("scanned=%d embedded=%d failed=%d\n", result.Scanned, result.Embedded, result.Failed)
	if len(result.FailedIDs) > 0 {
		fmt.Printf("failed ids: %v\n", result.FailedIDs)
	}
	return nil
}
