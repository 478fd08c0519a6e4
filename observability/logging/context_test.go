// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package logging

import (
	"context"
	"testing"
)

func TestRequestID(t *testing.T) {
	ctx := context.Background()

	if id := GetRequestID(ctx); id != "" {
		t.Errorf("expected empty request ID, got %s", id)
	}

	ctx = WithRequestID(ctx, "req-123")
	if id := GetRequestID(ctx); id != "req-123" {
		t.Errorf("expected request ID 'req-123', got %s", id)
	}
}

func TestTraceID(t *testing.T) {
	ctx := context.Background()

	if id := GetTraceID(ctx); id != "" {
		t.Errorf("expected empty trace ID, got %s", id)
	}

	ctx = WithTraceID(ctx, "trace-456")
	if id := GetTraceID(ctx); id != "trace-456" {
		t.Errorf("expected trace ID 'trace-456', got %s", id)
	}
}

func TestInstanceID(t *testing.T) {
	ctx := context.Background()

	if id := GetInstanceID(ctx); id != "" {
		t.Errorf("expected empty instance ID, got %s", id)
	}

	ctx = WithInstanceID(ctx, "claude-desktop")
	if id := GetInstanceID(ctx); id != "claude-desktop" {
		t.Errorf("expected instance ID 'claude-desktop', got %s", id)
	}
}

func TestExtractContextFields(t *testing.T) {
	ctx := context.Background()

	fields := extractContextFields(ctx)
	if len(fields) != 0 {
		t.Errorf("expected 0 fields, got %d", len(fields))
	}

	ctx = WithRequestID(ctx, "req-123")
	ctx = WithTraceID(ctx, "trace-456")
	ctx = WithInstanceID(ctx, "claude-desktop")

	fields = extractContextFields(ctx)

	if len(fields) != 3 {
		t.Errorf("expected 3 fields, got %d", len(fields))
	}

	fieldMap := make(map[string]interface{})
	for _, f := range fields {
		fieldMap[f.Key] = f.Value
	}

	if fieldMap["request_id"] != "req-123" {
		t.Error("request_id field incorrect")
	}

	if fieldMap["trace_id"] != "trace-456" {
		t.Error("trace_id field incorrect")
	}

	if fieldMap["instance_id"] != "claude-desktop" {
		t.Error("instance_id field incorrect")
	}
}

func TestPartialContextFields(t *testing.T) {
	ctx := context.Background()

	ctx = WithRequestID(ctx, "req-123")
	ctx = WithInstanceID(ctx, "claude-desktop")

	fields := extractContextFields(ctx)

	if len(fields) != 2 {
		t.Errorf("expected 2 fields, got %d", len(fields))
	}

	fieldMap := make(map[string]interface{})
	for _, f := range fields {
		fieldMap[f.Key] = f.Value
	}

	if fieldMap["request_id"] != "req-123" {
		t.Error("request_id field incorrect")
	}

	if fieldMap["instance_id"] != "claude-desktop" {
		t.Error("instance_id field incorrect")
	}
}

func TestContextChaining(t *testing.T) {
	ctx := context.Background()

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithInstanceID(ctx, "claude-desktop")

	if GetRequestID(ctx) != "req-1" {
		t.Error("request ID not preserved in chaining")
	}

	if GetTraceID(ctx) != "trace-1" {
		t.Error("trace ID not preserved in chaining")
	}

	if GetInstanceID(ctx) != "claude-desktop" {
		t.Error("instance ID not preserved in chaining")
	}
}
