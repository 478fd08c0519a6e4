// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/memory-palace/core/internal/httpapi"
	"github.com/memory-palace/core/observability/logging"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the debug/introspection HTTP server",
	Long: `serve starts a read-only operational status server exposing
/healthz, /stats, /metrics (if enabled), and a live /handoffs/stream.
It does not expose the memory/graph/handoff RPC surface itself — that
is consumed in process through the tools package by whatever
transport embeds memory-palace as a library.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8085", "address for the debug server to listen on")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logging.NewZapLogger(logging.Level(cfg.Logging.Level))
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	d, err := buildDeps(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer d.close()

	httpCfg := httpapi.Config{
		Addr:    serveAddr,
		Store:   d.Store,
		Handoff: d.Handoff,
		Log:     log,
	}
	if cfg.Metrics.Enabled {
		httpCfg.Collector = d.Collector
	}
	server := httpapi.New(httpCfg)

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info(ctx, "serve: shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
