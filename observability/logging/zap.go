// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package logging

import (
	"context"
	"math/rand"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var zapStdout = os.Stdout

func sampleHit(rate float64) bool {
	return rand.Float64() <= rate
}

// ZapLogger adapts a zap.SugaredLogger to the Logger interface. It is the
// backend for the long-running serve command; the stdlib-only
// StructuredLogger is used by tests and by the one-shot backfill,
// reembed, and reflect commands.
type ZapLogger struct {
	mu    sync.RWMutex
	base  *zap.SugaredLogger
	atom  zap.AtomicLevel
	level Level
	rate  float64
}

// NewZapLogger builds a production JSON zap logger at the given level.
func NewZapLogger(level Level) (*ZapLogger, error) {
	atom := zap.NewAtomicLevelAt(toZapLevel(level))

	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.MessageKey = "message"
	cfg.LevelKey = "level"

	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.Lock(zapcore.AddSync(zapStdout)), atom)
	logger := zap.New(core)

	return &ZapLogger{base: logger.Sugar(), atom: atom, level: level, rate: 1.0}, nil
}

func (l *ZapLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	if l.level == LevelDebug && l.rate < 1.0 && !sampleHit(l.rate) {
		return
	}
	l.log(ctx, zap.DebugLevel, msg, fields)
}

func (l *ZapLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zap.InfoLevel, msg, fields)
}

func (l *ZapLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zap.WarnLevel, msg, fields)
}

func (l *ZapLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zap.ErrorLevel, msg, fields)
}

func (l *ZapLogger) Fatal(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zap.FatalLevel, msg, fields)
}

// With creates a child logger with persistent fields.
func (l *ZapLogger) With(fields ...Field) Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &ZapLogger{base: l.base.With(toZapArgs(fields)...), atom: l.atom, level: l.level, rate: l.rate}
}

func (l *ZapLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	l.atom.SetLevel(toZapLevel(level))
}

func (l *ZapLogger) SetSamplingRate(rate float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	l.rate = rate
}

func (l *ZapLogger) log(ctx context.Context, level zapcore.Level, msg string, fields []Field) {
	args := toZapArgs(extractContextFields(ctx))
	args = append(args, toZapArgs(fields)...)

	switch level {
	case zap.DebugLevel:
		l.base.Debugw(msg, args...)
	case zap.InfoLevel:
		l.base.Infow(msg, args...)
	case zap.WarnLevel:
		l.base.Warnw(msg, args...)
	case zap.ErrorLevel:
		l.base.Errorw(msg, args...)
	case zap.FatalLevel:
		l.base.Fatalw(msg, args...)
	}
}

func toZapArgs(fields []Field) []interface{} {
	args := make([]interface{}, 0, len(fields)*2)
	for _, f := range fields {
		args = append(args, f.Key, f.Value)
	}
	return args
}

func toZapLevel(level Level) zapcore.Level {
	switch level {
	case LevelDebug:
		return zap.DebugLevel
	case LevelInfo:
		return zap.InfoLevel
	case LevelWarn:
		return zap.WarnLevel
	case LevelError:
		return zap.ErrorLevel
	case LevelFatal:
		return zap.FatalLevel
	default:
		return zap.InfoLevel
	}
}
