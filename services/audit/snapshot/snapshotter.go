// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package snapshot freezes completed audit results into immutable,
// hash-fingerprinted records.
//
// Two independent tamper-evidence guarantees are provided and must not be
// conflated:
//
//   - Per-quote hashes: every non-empty evidence quote carries its own
//     SHA-256 hash. VerifyIntegrity re-checks only these, detecting edits
//     to quotes after freezing.
//   - Top-level fingerprint: a SHA-256 over the canonical (key-sorted)
//     serialization of the whole snapshot excluding the fingerprint field.
//     VerifyFingerprint re-checks it, detecting edits to any field.
//
// A snapshot is created exactly once per audit, at pipeline completion.
// EnsureImmutability rejects re-freezing an audit that already holds a
// report.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/audit/trace"
)

// Engine identity stamped into every snapshot.
const (
	EngineName    = "Aleutian Audit Engine"
	EngineVersion = "2.0.0"

	// SnapshotVersion is the schema version of the frozen payload.
	SnapshotVersion = "1.0"
)

// ErrAuditFrozen is returned when a snapshot is requested for an audit
// that already holds a report.
var ErrAuditFrozen = fmt.Errorf("audit is frozen and cannot be modified")

// =============================================================================
// Snapshot Structure
// =============================================================================

// EngineInfo identifies the engine build that produced a snapshot.
type EngineInfo struct {
	Name           string `json:"name"`
	Version        string `json:"version"`
	EvaluationDate string `json:"evaluation_date"`
}

// FrozenAssessment is one requirement result with its evidence hash.
type FrozenAssessment struct {
	RequirementID string                     `json:"requirement_id"`
	Status        datatypes.AssessmentStatus `json:"status"`
	Confidence    float64                    `json:"confidence"`
	Reasoning     string                     `json:"reasoning"`
	EvidenceQuote string                     `json:"evidence_quote,omitempty"`
	EvidenceHash  string                     `json:"evidence_hash,omitempty"`
	PageNumbers   []int                      `json:"page_numbers"`
}

// Results groups the frozen verdict and per-requirement outcomes.
type Results struct {
	OverallVerdict datatypes.Verdict  `json:"overall_verdict"`
	Requirements   []FrozenAssessment `json:"requirements"`
}

// Metadata carries the execution trace frozen with the results.
type Metadata struct {
	ExecutionTrace       trace.FullTrace `json:"execution_trace"`
	IntegrityCheckPassed bool            `json:"integrity_check_passed"`
}

// Snapshot is the immutable record of one completed audit.
type Snapshot struct {
	SnapshotVersion string              `json:"snapshot_version"`
	AuditID         string              `json:"audit_id"`
	Engine          EngineInfo          `json:"engine"`
	Framework       datatypes.Framework `json:"framework"`
	Results         Results             `json:"results"`
	Metadata        Metadata            `json:"metadata"`
	Fingerprint     string              `json:"fingerprint"`
}

// =============================================================================
// Snapshotter
// =============================================================================

// Hash computes the SHA-256 hex digest of text. Empty text hashes to the
// empty string so absent quotes never carry a hash.
func Hash(text string) string {
	if text == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// CreateFrozenSnapshot builds the immutable snapshot for a completed
// audit: each non-empty evidence quote is hashed, and the whole structure
// is fingerprinted over its canonical serialization.
func CreateFrozenSnapshot(
	auditID uuid.UUID,
	framework datatypes.Framework,
	assessments []datatypes.Assessment,
	overallVerdict datatypes.Verdict,
	executionTrace trace.FullTrace,
) (Snapshot, error) {
	frozen := make([]FrozenAssessment, len(assessments))
	for i, a := range assessments {
		frozen[i] = FrozenAssessment{
			RequirementID: a.RequirementID,
			Status:        a.Status,
			Confidence:    a.Confidence,
			Reasoning:     a.Reasoning,
			EvidenceQuote: a.EvidenceQuote,
			EvidenceHash:  Hash(a.EvidenceQuote),
			PageNumbers:   a.PageNumbers,
		}
	}

	snap := Snapshot{
		SnapshotVersion: SnapshotVersion,
		AuditID:         auditID.String(),
		Engine: EngineInfo{
			Name:           EngineName,
			Version:        EngineVersion,
			EvaluationDate: time.Now().UTC().Format(time.RFC3339),
		},
		Framework: framework,
		Results: Results{
			OverallVerdict: overallVerdict,
			Requirements:   frozen,
		},
		Metadata: Metadata{
			ExecutionTrace:       executionTrace,
			IntegrityCheckPassed: true,
		},
	}

	fingerprint, err := computeFingerprint(snap)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to fingerprint snapshot: %w", err)
	}
	snap.Fingerprint = fingerprint
	return snap, nil
}

// VerifyIntegrity re-checks each stored evidence hash against its quote.
// It returns false on any mismatch, and on a structurally empty snapshot.
//
// Scope: per-quote hashes only. A mutation to any non-quote field (status,
// confidence, verdict) is invisible to this check; that is what
// VerifyFingerprint covers. The two checks are independent guarantees.
func VerifyIntegrity(snap Snapshot) bool {
	if snap.AuditID == "" {
		return false
	}
	for _, req := range snap.Results.Requirements {
		if req.EvidenceQuote != "" && req.EvidenceHash != "" {
			if Hash(req.EvidenceQuote) != req.EvidenceHash {
				return false
			}
		}
	}
	return true
}

// VerifyFingerprint recomputes the top-level fingerprint over the
// canonical serialization and compares it to the stored value. Any edit
// to any field after freezing fails this check.
func VerifyFingerprint(snap Snapshot) (bool, error) {
	expected, err := computeFingerprint(snap)
	if err != nil {
		return false, fmt.Errorf("failed to recompute fingerprint: %w", err)
	}
	return expected == snap.Fingerprint, nil
}

// EnsureImmutability rejects snapshot creation for an audit that already
// holds a frozen report.
func EnsureImmutability(audit *datatypes.Audit) error {
	if audit == nil {
		return fmt.Errorf("audit is nil")
	}
	if audit.Frozen() {
		return fmt.Errorf("audit %s: %w", audit.ID, ErrAuditFrozen)
	}
	return nil
}

// computeFingerprint hashes the canonical JSON form of the snapshot with
// the fingerprint field excluded. Canonicalization round-trips the struct
// through a generic map so that encoding/json emits keys in sorted order
// regardless of struct field order.
func computeFingerprint(snap Snapshot) (string, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return "", err
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", err
	}
	delete(body, "fingerprint")

	canonical, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	return Hash(string(canonical)), nil
}
