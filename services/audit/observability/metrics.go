// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the audit service.
//
// Metrics cover the audit lifecycle (submissions, completions, failures),
// per-stage pipeline latency, and agent oracle calls. Exposed via the
// /metrics endpoint for Prometheus scraping.
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "aleutian"
	auditSubsystem   = "audit"
)

// AuditMetrics holds all Prometheus metrics for the audit pipeline.
//
// Initialize once at startup via InitMetrics; promauto panics on
// duplicate registration.
type AuditMetrics struct {
	// AuditsTotal counts finished audits by framework and outcome.
	// Labels: framework, status (completed, failed)
	AuditsTotal *prometheus.CounterVec

	// ActiveAudits tracks audits currently in flight.
	ActiveAudits prometheus.Gauge

	// StageDurationSeconds measures pipeline stage latency.
	// Labels: stage (extraction, indexing, planning, evaluation, snapshot)
	StageDurationSeconds *prometheus.HistogramVec

	// AgentCallsTotal counts oracle calls by agent and outcome.
	// Labels: agent (planner, assessor, verifier, legacy), status
	AgentCallsTotal *prometheus.CounterVec

	// VerdictsTotal counts overall verdicts by framework and color.
	// Labels: framework, verdict (GREEN, YELLOW, RED)
	VerdictsTotal *prometheus.CounterVec

	// RequirementsEvaluated observes plan sizes after filtering.
	RequirementsEvaluated prometheus.Histogram
}

// DefaultMetrics is the singleton instance, set by InitMetrics.
var DefaultMetrics *AuditMetrics

// InitMetrics creates and registers all audit metrics. Call once at
// startup, before the pipeline handles any audit.
func InitMetrics() *AuditMetrics {
	DefaultMetrics = &AuditMetrics{
		AuditsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: auditSubsystem,
				Name:      "audits_total",
				Help:      "Total finished audits by framework and outcome",
			},
			[]string{"framework", "status"},
		),

		ActiveAudits: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: auditSubsystem,
				Name:      "active_audits",
				Help:      "Number of audits currently in flight",
			},
		),

		StageDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: auditSubsystem,
				Name:      "stage_duration_seconds",
				Help:      "Pipeline stage latency in seconds",
				Buckets:   []float64{0.05, 0.25, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),

		AgentCallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: auditSubsystem,
				Name:      "agent_calls_total",
				Help:      "Oracle calls by agent and outcome",
			},
			[]string{"agent", "status"},
		),

		VerdictsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: auditSubsystem,
				Name:      "verdicts_total",
				Help:      "Overall verdicts by framework and color",
			},
			[]string{"framework", "verdict"},
		),

		RequirementsEvaluated: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: auditSubsystem,
				Name:      "requirements_evaluated",
				Help:      "Requirements evaluated per audit after plan filtering",
				Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
			},
		),
	}
	return DefaultMetrics
}

// ObserveStage records a stage duration if metrics are initialized.
// Tests exercise the pipeline without the Prometheus registry.
func ObserveStage(stage string, seconds float64) {
	if DefaultMetrics != nil {
		DefaultMetrics.StageDurationSeconds.WithLabelValues(stage).Observe(seconds)
	}
}

// CountAgentCall records one oracle call outcome if metrics are initialized.
func CountAgentCall(agent, status string) {
	if DefaultMetrics != nil {
		DefaultMetrics.AgentCallsTotal.WithLabelValues(agent, status).Inc()
	}
}
