// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package metrics provides Prometheus-based metrics collection for the
// store, the model-server client, and the handoff bus.
//
//	collector := metrics.NewPrometheusCollector()
//
//	collector.IncrementCounter("memories_remembered_total", map[string]string{
//	    "source_type": "conversation",
//	})
//
//	collector.ObserveHistogram("embedding_latency_seconds", 0.310, map[string]string{
//	    "model": "nomic-embed-text",
//	})
//
//	http.Handle("/metrics", collector.Handler())
//
// StoreMetrics wraps a Collector with the named counters, gauges, and
// histograms the store emits during remember/recall/link/handoff
// operations.
//
//	storeMetrics := metrics.NewStoreMetrics(collector)
//	storeMetrics.RecordRecall("hybrid", 0.042, 8)
//	storeMetrics.RecordEmbedding("nomic-embed-text", 0.310, nil)
package metrics
