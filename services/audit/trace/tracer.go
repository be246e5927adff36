// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package trace records per-stage timing and structured execution
// summaries for audit pipeline runs.
//
// The LatencyTracker and ExecutionTracer here are the pipeline's own audit
// trail, persisted with the report. They are separate from OpenTelemetry
// spans, which serve live observability and are not part of the frozen
// record.
//
// # Thread Safety
//
// Both trackers are safe for concurrent use; requirement evaluations may
// run in parallel and record under their own keys.
package trace

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// =============================================================================
// Latency Tracker
// =============================================================================

// LatencyTracker measures named operation durations in milliseconds.
type LatencyTracker struct {
	mu           sync.Mutex
	measurements map[string]float64
}

// NewLatencyTracker creates an empty tracker.
func NewLatencyTracker() *LatencyTracker {
	return &LatencyTracker{measurements: make(map[string]float64)}
}

// Measure runs fn and records its wall-clock duration under name.
// The duration is recorded even when fn returns an error.
func (t *LatencyTracker) Measure(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	t.Record(name, time.Since(start))
	return err
}

// Record stores a duration measurement under name, replacing any previous
// measurement with the same name.
func (t *LatencyTracker) Record(name string, d time.Duration) {
	ms := float64(d.Microseconds()) / 1000.0
	t.mu.Lock()
	t.measurements[name] = ms
	t.mu.Unlock()
	slog.Debug("operation completed", "operation", name, "duration_ms", ms)
}

// Get returns the measurement for name, if present.
func (t *LatencyTracker) Get(name string) (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ms, ok := t.measurements[name]
	return ms, ok
}

// All returns a copy of every measurement.
func (t *LatencyTracker) All() map[string]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]float64, len(t.measurements))
	for k, v := range t.measurements {
		out[k] = v
	}
	return out
}

// Total returns the sum of all recorded measurements in milliseconds.
func (t *LatencyTracker) Total() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total float64
	for _, v := range t.measurements {
		total += v
	}
	return total
}

// =============================================================================
// Execution Tracer
// =============================================================================

// AgentExecution is the structured trace of one agent call.
type AgentExecution struct {
	AgentName     string         `json:"agent_name"`
	StartedAt     string         `json:"started_at"`
	DurationMS    float64        `json:"duration_ms"`
	InputSummary  map[string]any `json:"input_summary,omitempty"`
	OutputSummary map[string]any `json:"output_summary,omitempty"`
	Success       bool           `json:"success"`
	Error         string         `json:"error,omitempty"`
}

// RequirementEvaluation is the condensed trace of one requirement's full
// retrieve-assess-verify chain.
type RequirementEvaluation struct {
	RequirementID        string  `json:"requirement_id"`
	EvidenceChunks       int     `json:"evidence_chunks"`
	AssessmentStatus     string  `json:"assessment_status"`
	AssessmentConfidence float64 `json:"assessment_confidence"`
	VerifiedStatus       string  `json:"verified_status"`
	VerifiedConfidence   float64 `json:"verified_confidence"`
	WasDowngraded        bool    `json:"was_downgraded"`
}

// FullTrace is the complete execution trace frozen with the report.
type FullTrace struct {
	AgentExecutions        map[string][]AgentExecution `json:"agent_executions,omitempty"`
	RequirementEvaluations []RequirementEvaluation     `json:"requirement_evaluations"`
	Latencies              map[string]float64          `json:"latencies"`
	CapturedAt             string                      `json:"captured_at"`
}

// ExecutionTracer captures structured traces for one audit run.
type ExecutionTracer struct {
	mu          sync.Mutex
	executions  map[string][]AgentExecution
	evaluations map[string]RequirementEvaluation
	latency     *LatencyTracker
}

// NewExecutionTracer creates a tracer sharing the given latency tracker.
// A nil tracker gets a fresh one.
func NewExecutionTracer(latency *LatencyTracker) *ExecutionTracer {
	if latency == nil {
		latency = NewLatencyTracker()
	}
	return &ExecutionTracer{
		executions:  make(map[string][]AgentExecution),
		evaluations: make(map[string]RequirementEvaluation),
		latency:     latency,
	}
}

// Latency returns the tracker used for stage timings.
func (t *ExecutionTracer) Latency() *LatencyTracker {
	return t.latency
}

// RecordAgentExecution stores a trace entry for one agent call. Input and
// output summaries are truncated to avoid freezing large payloads.
func (t *ExecutionTracer) RecordAgentExecution(agentName string, input, output map[string]any, duration time.Duration, callErr error) {
	exec := AgentExecution{
		AgentName:     agentName,
		StartedAt:     time.Now().UTC().Add(-duration).Format(time.RFC3339),
		DurationMS:    float64(duration.Microseconds()) / 1000.0,
		InputSummary:  summarize(input),
		OutputSummary: summarize(output),
		Success:       callErr == nil,
	}
	if callErr != nil {
		exec.Error = callErr.Error()
	}

	t.mu.Lock()
	t.executions[agentName] = append(t.executions[agentName], exec)
	t.mu.Unlock()
}

// RecordRequirementEvaluation stores the condensed chain trace for one
// requirement, keyed by requirement ID so concurrent chains never collide.
func (t *ExecutionTracer) RecordRequirementEvaluation(eval RequirementEvaluation) {
	t.mu.Lock()
	t.evaluations[eval.RequirementID] = eval
	t.mu.Unlock()
}

// FullTrace assembles the frozen trace. Requirement evaluations are
// emitted in the order given by planOrder; evaluations for requirements
// missing from planOrder are appended last (should not happen in practice).
func (t *ExecutionTracer) FullTrace(planOrder []string) FullTrace {
	t.mu.Lock()
	defer t.mu.Unlock()

	evals := make([]RequirementEvaluation, 0, len(t.evaluations))
	seen := make(map[string]bool)
	for _, id := range planOrder {
		if eval, ok := t.evaluations[id]; ok {
			evals = append(evals, eval)
			seen[id] = true
		}
	}
	for id, eval := range t.evaluations {
		if !seen[id] {
			evals = append(evals, eval)
		}
	}

	execs := make(map[string][]AgentExecution, len(t.executions))
	for k, v := range t.executions {
		execs[k] = append([]AgentExecution(nil), v...)
	}

	return FullTrace{
		AgentExecutions:        execs,
		RequirementEvaluations: evals,
		Latencies:              t.latency.All(),
		CapturedAt:             time.Now().UTC().Format(time.RFC3339),
	}
}

// summarize shrinks a payload map for tracing: long strings and slices are
// replaced with size markers.
func summarize(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		switch val := v.(type) {
		case string:
			if len(val) > 100 {
				out[k] = fmt.Sprintf("<string of %d chars>", len(val))
			} else {
				out[k] = val
			}
		case []string:
			out[k] = fmt.Sprintf("<list of %d items>", len(val))
		case []any:
			out[k] = fmt.Sprintf("<list of %d items>", len(val))
		default:
			out[k] = v
		}
	}
	return out
}
