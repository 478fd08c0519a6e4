// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package logging

import (
	"context"
	"testing"
)

func TestNewZapLogger(t *testing.T) {
	logger, err := NewZapLogger(LevelInfo)
	if err != nil {
		t.Fatalf("NewZapLogger() error = %v", err)
	}
	if logger == nil {
		t.Fatal("NewZapLogger() returned nil")
	}
}

func TestZapLogger_ImplementsInterface(t *testing.T) {
	logger, err := NewZapLogger(LevelInfo)
	if err != nil {
		t.Fatalf("NewZapLogger() error = %v", err)
	}

	var _ Logger = logger

	ctx := context.Background()
	logger.Info(ctx, "ready", String("component", "zap"))
	logger.Warn(ctx, "still ready")
	logger.Debug(ctx, "not shown at info level")
}

func TestZapLogger_With(t *testing.T) {
	logger, err := NewZapLogger(LevelInfo)
	if err != nil {
		t.Fatalf("NewZapLogger() error = %v", err)
	}

	child := logger.With(String("instance_id", "claude-desktop"))
	if child == nil {
		t.Fatal("With() returned nil")
	}
	child.Info(context.Background(), "child logger active")
}

func TestZapLogger_SetLevel(t *testing.T) {
	logger, err := NewZapLogger(LevelWarn)
	if err != nil {
		t.Fatalf("NewZapLogger() error = %v", err)
	}

	logger.SetLevel(LevelDebug)
	if logger.level != LevelDebug {
		t.Errorf("level = %v, want LevelDebug", logger.level)
	}
}

func TestZapLogger_SetSamplingRate(t *testing.T) {
	logger, err := NewZapLogger(LevelDebug)
	if err != nil {
		t.Fatalf("NewZapLogger() error = %v", err)
	}

	logger.SetSamplingRate(2.0)
	if logger.rate != 1.0 {
		t.Errorf("rate = %v, want clamped to 1.0", logger.rate)
	}

	logger.SetSamplingRate(-1.0)
	if logger.rate != 0.0 {
		t.Errorf("rate = %v, want clamped to 0.0", logger.rate)
	}
}
