// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Audit Lifecycle
// =============================================================================

// AuditStatus is the lifecycle state of one audit run.
//
// Transitions: PENDING -> EXTRACTING -> ANALYZING -> COMPLETED | FAILED.
// FAILED is terminal and reachable from any non-terminal state; there is
// no automatic retry of a failed audit.
type AuditStatus string

const (
	AuditPending    AuditStatus = "PENDING"
	AuditExtracting AuditStatus = "EXTRACTING"
	AuditAnalyzing  AuditStatus = "ANALYZING"
	AuditCompleted  AuditStatus = "COMPLETED"
	AuditFailed     AuditStatus = "FAILED"
)

// Terminal reports whether the status admits no further transitions.
func (s AuditStatus) Terminal() bool {
	return s == AuditCompleted || s == AuditFailed
}

// validTransitions enumerates the allowed forward edges of the lifecycle.
var validTransitions = map[AuditStatus][]AuditStatus{
	AuditPending:    {AuditExtracting, AuditFailed},
	AuditExtracting: {AuditAnalyzing, AuditFailed},
	AuditAnalyzing:  {AuditCompleted, AuditFailed},
}

// CanTransition reports whether moving from s to next is legal.
func (s AuditStatus) CanTransition(next AuditStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// =============================================================================
// Audit Record
// =============================================================================

// Audit is the persisted record of one audit run.
//
// The Report field is written exactly once, at completion; the store
// rejects any later write (see snapshot.EnsureImmutability and the store's
// SaveReport). Progress is monotone non-decreasing in [0, 1] and reflects
// coarse pipeline checkpoints, not per-requirement granularity.
type Audit struct {
	ID        uuid.UUID   `json:"id"`
	Filename  string      `json:"filename"`
	Status    AuditStatus `json:"status"`
	Progress  float64     `json:"progress"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`

	// Report is the frozen result payload, nil until completion.
	Report json.RawMessage `json:"report,omitempty"`
}

// NewAudit creates a pending audit for the given filename.
func NewAudit(filename string) *Audit {
	return &Audit{
		ID:        uuid.New(),
		Filename:  filename,
		Status:    AuditPending,
		Progress:  0.0,
		CreatedAt: time.Now().UTC(),
	}
}

// Transition moves the audit to next and updates progress, validating the
// lifecycle edge and progress monotonicity.
func (a *Audit) Transition(next AuditStatus, progress float64) error {
	if !a.Status.CanTransition(next) {
		return fmt.Errorf("illegal audit transition %s -> %s", a.Status, next)
	}
	if progress < a.Progress {
		return fmt.Errorf("progress must not decrease: %.2f -> %.2f", a.Progress, progress)
	}
	if progress > 1.0 {
		progress = 1.0
	}
	a.Status = next
	a.Progress = progress
	return nil
}

// Fail moves the audit to FAILED, recording the causing error. Progress is
// left where it was; FAILED audits report how far they got.
func (a *Audit) Fail(cause error) {
	a.Status = AuditFailed
	if cause != nil {
		a.Error = cause.Error()
	}
}

// Frozen reports whether the audit already holds a report payload.
func (a *Audit) Frozen() bool {
	return len(a.Report) > 0
}

// =============================================================================
// Orchestration Result
// =============================================================================

// ResultMetadata carries execution metadata for one orchestration run.
type ResultMetadata struct {
	EvaluatedAt           string             `json:"evaluated_at"`
	EngineVersion         string             `json:"engine_version"`
	TotalRequirements     int                `json:"total_requirements"`
	EvaluatedRequirements int                `json:"evaluated_requirements"`
	TotalLatencyMS        float64            `json:"total_latency_ms"`
	Latencies             map[string]float64 `json:"latencies"`
	ExecutionTrace        json.RawMessage    `json:"execution_trace,omitempty"`
	Snapshot              json.RawMessage    `json:"snapshot,omitempty"`
}

// OrchestrationResult is the final output of the agent pipeline: one
// assessment per evaluated requirement in plan order, the deterministic
// overall verdict, and execution metadata. Immutable after creation.
type OrchestrationResult struct {
	Assessments    []Assessment   `json:"assessments"`
	OverallVerdict Verdict        `json:"overall_verdict"`
	Metadata       ResultMetadata `json:"metadata"`
}
