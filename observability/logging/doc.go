// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package logging provides structured logging with context propagation.
//
// NewZapLogger backs the serve command with a zap-based JSON logger.
// NewStructuredLogger is a stdlib-only logger used by the backfill,
// reembed, and reflect commands, in tests, and anywhere pulling in zap
// isn't worth it.
//
//	logger, err := logging.NewZapLogger(logging.LevelInfo)
//	ctx = logging.WithRequestID(ctx, reqID)
//	logger.Info(ctx, "memory stored", logging.String("memory_id", id))
package logging
