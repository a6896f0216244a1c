// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and instrumentation for the chat
// service.
//
// # Description
//
// This package implements Prometheus metrics for monitoring chat operations.
// Metrics include:
//   - Chat turn counters (by endpoint and status)
//   - Agent error counters (by agent)
//   - Conversation save-conflict counter
//   - Agent turn latency histograms
//   - Active websocket gauge
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "aleutian"

// Subsystem for chat metrics
const chatSubsystem = "chat"

// Endpoint labels a metric with the surface that produced it.
type Endpoint string

const (
	// EndpointWSChat is the websocket chat endpoint.
	EndpointWSChat Endpoint = "ws_chat"

	// EndpointCharChat is the character roleplay chat endpoint.
	EndpointCharChat Endpoint = "char_chat"

	// EndpointGraphQuery is the graph retrieval endpoint.
	EndpointGraphQuery Endpoint = "graph_query"
)

// ChatMetrics holds all Prometheus metrics for chat operations.
//
// # Fields
//
//   - TurnsTotal: Counter of completed chat turns by endpoint and status.
//   - AgentErrorsTotal: Counter of agent run failures by agent name.
//   - SaveConflictsTotal: Counter of lost-update conflicts on history saves.
//   - TurnDurationSeconds: Histogram of full agent turn latency.
//   - ActiveWebsockets: Gauge of currently connected chat websockets.
//
// # Thread Safety
//
// All operations are thread-safe.
type ChatMetrics struct {
	// TurnsTotal counts chat turns by endpoint and status.
	// Labels: endpoint (ws_chat, char_chat, graph_query), status (success, error)
	TurnsTotal *prometheus.CounterVec

	// AgentErrorsTotal counts agent run failures.
	// Labels: agent (character_chat, orchestrator, ...)
	AgentErrorsTotal *prometheus.CounterVec

	// SaveConflictsTotal counts concurrent-save conflicts detected while
	// persisting conversation history.
	SaveConflictsTotal prometheus.Counter

	// TurnDurationSeconds measures full agent turn latency.
	// Labels: endpoint
	TurnDurationSeconds *prometheus.HistogramVec

	// ActiveWebsockets tracks currently connected chat websockets.
	ActiveWebsockets prometheus.Gauge
}

// DefaultMetrics is the singleton instance of ChatMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *ChatMetrics

// InitMetrics initializes the default metrics instance on the default
// Prometheus registry. Call once at application startup.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *ChatMetrics {
	DefaultMetrics = newMetrics(promauto.With(prometheus.DefaultRegisterer))
	return DefaultMetrics
}

// NewMetricsWithRegistry builds an isolated ChatMetrics against a custom
// registry. Used by tests to avoid global registration conflicts.
func NewMetricsWithRegistry(reg prometheus.Registerer) *ChatMetrics {
	return newMetrics(promauto.With(reg))
}

func newMetrics(factory promauto.Factory) *ChatMetrics {
	return &ChatMetrics{
		TurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "turns_total",
				Help:      "Total chat turns by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		AgentErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "agent_errors_total",
				Help:      "Total agent run failures by agent name",
			},
			[]string{"agent"},
		),

		SaveConflictsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "save_conflicts_total",
				Help:      "Total lost-update conflicts detected while saving history",
			},
		),

		TurnDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "turn_duration_seconds",
				Help:      "Full agent turn duration in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"endpoint"},
		),

		ActiveWebsockets: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "active_websockets",
				Help:      "Number of currently connected chat websockets",
			},
		),
	}
}

// =============================================================================
// Helper Methods
// =============================================================================

// RecordTurn records a completed chat turn.
func (m *ChatMetrics) RecordTurn(endpoint Endpoint, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.TurnsTotal.WithLabelValues(string(endpoint), status).Inc()
}

// RecordAgentError records an agent run failure.
func (m *ChatMetrics) RecordAgentError(agent string) {
	m.AgentErrorsTotal.WithLabelValues(agent).Inc()
}

// RecordSaveConflict records one lost-update conflict.
func (m *ChatMetrics) RecordSaveConflict() {
	m.SaveConflictsTotal.Inc()
}

// RecordTurnDuration records the latency of a full agent turn.
func (m *ChatMetrics) RecordTurnDuration(endpoint Endpoint, seconds float64) {
	m.TurnDurationSeconds.WithLabelValues(string(endpoint)).Observe(seconds)
}

// WebsocketOpened increments the active websocket gauge.
func (m *ChatMetrics) WebsocketOpened() {
	m.ActiveWebsockets.Inc()
}

// WebsocketClosed decrements the active websocket gauge.
func (m *ChatMetrics) WebsocketClosed() {
	m.ActiveWebsockets.Dec()
}
