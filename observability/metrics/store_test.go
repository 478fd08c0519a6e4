// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewStoreMetrics(t *testing.T) {
	collector := NewPrometheusCollector()
	storeMetrics := NewStoreMetrics(collector)

	if storeMetrics == nil {
		t.Fatal("NewStoreMetrics() returned nil")
	}
	if storeMetrics.collector == nil {
		t.Error("collector should not be nil")
	}
}

func scrape(t *testing.T, collector Collector) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	collector.Handler().ServeHTTP(w, req)
	return w.Body.String()
}

func TestRecordRemember(t *testing.T) {
	collector := NewPrometheusCollector()
	storeMetrics := NewStoreMetrics(collector)

	storeMetrics.RecordRemember("conversation")

	body := scrape(t, collector)
	if !strings.Contains(body, MetricMemoriesRemembered) {
		t.Error("memories remembered metric not found")
	}
	if !strings.Contains(body, `source_type="conversation"`) {
		t.Error("source_type label not found")
	}
}

func TestRecordForget(t *testing.T) {
	collector := NewPrometheusCollector()
	storeMetrics := NewStoreMetrics(collector)

	storeMetrics.RecordForget("fact")

	body := scrape(t, collector)
	if !strings.Contains(body, MetricMemoriesForgotten) {
		t.Error("memories forgotten metric not found")
	}
}

func TestRecordRecall(t *testing.T) {
	collector := NewPrometheusCollector()
	storeMetrics := NewStoreMetrics(collector)

	storeMetrics.RecordRecall("hybrid", 0.042, 8)

	body := scrape(t, collector)
	if !strings.Contains(body, MetricRecallLatency) {
		t.Error("recall latency metric not found")
	}
	if !strings.Contains(body, MetricRecallResults) {
		t.Error("recall results metric not found")
	}
	if !strings.Contains(body, `method="hybrid"`) {
		t.Error("method label not found")
	}
}

func TestRecordEmbedding(t *testing.T) {
	collector := NewPrometheusCollector()
	storeMetrics := NewStoreMetrics(collector)

	storeMetrics.RecordEmbedding("nomic-embed-text", 0.310, nil)
	storeMetrics.RecordEmbedding("nomic-embed-text", 1.2, errors.New("timeout"))

	body := scrape(t, collector)
	if !strings.Contains(body, MetricEmbeddingLatency) {
		t.Error("embedding latency metric not found")
	}
	if !strings.Contains(body, MetricEmbeddingFailures) {
		t.Error("embedding failures metric not found")
	}
	if !strings.Contains(body, `model="nomic-embed-text"`) {
		t.Error("model label not found")
	}
}

func TestRecordEdgeCreated(t *testing.T) {
	collector := NewPrometheusCollector()
	storeMetrics := NewStoreMetrics(collector)

	storeMetrics.RecordEdgeCreated("relates_to", "auto")

	body := scrape(t, collector)
	if !strings.Contains(body, MetricEdgesCreated) {
		t.Error("edges created metric not found")
	}
	if !strings.Contains(body, `relation_type="relates_to"`) {
		t.Error("relation_type label not found")
	}
	if !strings.Contains(body, `tier="auto"`) {
		t.Error("tier label not found")
	}
}

func TestRecordAutoLinkSuggested(t *testing.T) {
	collector := NewPrometheusCollector()
	storeMetrics := NewStoreMetrics(collector)

	storeMetrics.RecordAutoLinkSuggested()

	body := scrape(t, collector)
	if !strings.Contains(body, MetricAutoLinkSuggested) {
		t.Error("autolink suggested metric not found")
	}
}

func TestRecordHandoff(t *testing.T) {
	collector := NewPrometheusCollector()
	storeMetrics := NewStoreMetrics(collector)

	storeMetrics.RecordHandoffSent("insight", "all")
	storeMetrics.RecordHandoffRead("claude-desktop")

	body := scrape(t, collector)
	if !strings.Contains(body, MetricHandoffsSent) {
		t.Error("handoffs sent metric not found")
	}
	if !strings.Contains(body, MetricHandoffsRead) {
		t.Error("handoffs read metric not found")
	}
	if !strings.Contains(body, `to_instance="all"`) {
		t.Error("to_instance label not found")
	}
}

func TestRecordCircuitBreakerTrip(t *testing.T) {
	collector := NewPrometheusCollector()
	storeMetrics := NewStoreMetrics(collector)

	storeMetrics.RecordCircuitBreakerTrip("model_server")

	body := scrape(t, collector)
	if !strings.Contains(body, MetricCircuitBreakerTrip) {
		t.Error("circuit breaker trip metric not found")
	}
	if !strings.Contains(body, `dependency="model_server"`) {
		t.Error("dependency label not found")
	}
}
