// Copyright (C) 2025 memory-palace contributors
// SPDX-License-Identifier: LGPL-3.0-or-later

package metrics

const (
	MetricMemoriesRemembered = "memory_palace_memories_remembered_total"
	MetricMemoriesForgotten  = "memory_palace_memories_forgotten_total"
	MetricRecallLatency      = "memory_palace_recall_latency_seconds"
	MetricRecallResults      = "memory_palace_recall_results_count"
	MetricEmbeddingLatency   = "memory_palace_embedding_latency_seconds"
	MetricEmbeddingFailures  = "memory_palace_embedding_failures_total"
	MetricEdgesCreated       = "memory_palace_edges_created_total"
	MetricAutoLinkSuggested  = "memory_palace_autolink_suggested_total"
	MetricHandoffsSent       = "memory_palace_handoffs_sent_total"
	MetricHandoffsRead       = "memory_palace_handoffs_read_total"
	MetricCircuitBreakerTrip = "memory_palace_circuit_breaker_trips_total"
)

// StoreMetrics provides named metrics for the memory store, graph layer,
// and handoff bus, and for the model-server client's embedding calls.
type StoreMetrics struct {
	collector Collector
}

// NewStoreMetrics creates a new store metrics recorder.
func NewStoreMetrics(collector Collector) *StoreMetrics {
	return &StoreMetrics{collector: collector}
}

// RecordRemember records a successful Remember call.
func (m *StoreMetrics) RecordRemember(sourceType string) {
	m.collector.IncrementCounter(MetricMemoriesRemembered, NewLabels("source_type", sourceType))
}

// RecordForget records a Forget (soft-archive) call.
func (m *StoreMetrics) RecordForget(sourceType string) {
	m.collector.IncrementCounter(MetricMemoriesForgotten, NewLabels("source_type", sourceType))
}

// RecordRecall records a Recall call: which search method served it, how
// long it took, and how many results it returned.
func (m *StoreMetrics) RecordRecall(method string, latencySeconds float64, resultCount int) {
	labels := NewLabels("method", method)
	m.collector.ObserveHistogram(MetricRecallLatency, latencySeconds, labels)
	m.collector.ObserveSummary(MetricRecallResults, float64(resultCount), labels)
}

// RecordEmbedding records an embedding call's latency, and an error label
// when it failed.
func (m *StoreMetrics) RecordEmbedding(model string, latencySeconds float64, err error) {
	labels := NewLabels("model", model)
	m.collector.ObserveHistogram(MetricEmbeddingLatency, latencySeconds, labels)
	if err != nil {
		m.collector.IncrementCounter(MetricEmbeddingFailures, labels)
	}
}

// RecordEdgeCreated records an edge created through LinkMemories or
// SupersedeMemory.
func (m *StoreMetrics) RecordEdgeCreated(relationType string, tier string) {
	m.collector.IncrementCounter(MetricEdgesCreated, NewLabels("relation_type", relationType, "tier", tier))
}

// RecordAutoLinkSuggested records an auto-link candidate placed in the
// suggestion band rather than auto-applied.
func (m *StoreMetrics) RecordAutoLinkSuggested() {
	m.collector.IncrementCounter(MetricAutoLinkSuggested, NoLabels())
}

// RecordHandoffSent records a handoff message sent between instances.
func (m *StoreMetrics) RecordHandoffSent(messageType, toInstance string) {
	m.collector.IncrementCounter(MetricHandoffsSent, NewLabels("message_type", messageType, "to_instance", toInstance))
}

// RecordHandoffRead records a handoff message marked as read.
func (m *StoreMetrics) RecordHandoffRead(fromInstance string) {
	m.collector.IncrementCounter(MetricHandoffsRead, NewLabels("from_instance", fromInstance))
}

// RecordCircuitBreakerTrip records a resilience circuit breaker opening
// against a dependency (the model server or the database).
func (m *StoreMetrics) RecordCircuitBreakerTrip(dependency string) {
	m.collector.IncrementCounter(MetricCircuitBreakerTrip, NewLabels("dependency", dependency))
}
