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
	"fmt"
)

// =============================================================================
// Assessment Status
// =============================================================================

// AssessmentStatus is the per-requirement compliance determination.
//
// Statuses are ordered for the purpose of the never-upgrade invariant:
// COMPLIANT > PARTIAL > NON_COMPLIANT = UNKNOWN. The verifier may move a
// status down this ordering but never up.
type AssessmentStatus string

const (
	StatusCompliant    AssessmentStatus = "COMPLIANT"
	StatusPartial      AssessmentStatus = "PARTIAL"
	StatusNonCompliant AssessmentStatus = "NON_COMPLIANT"
	StatusUnknown      AssessmentStatus = "UNKNOWN"
)

// statusRank orders statuses for upgrade detection. NON_COMPLIANT and
// UNKNOWN share the bottom rank: moving between them is neither an upgrade
// nor a downgrade.
var statusRank = map[AssessmentStatus]int{
	StatusCompliant:    2,
	StatusPartial:      1,
	StatusNonCompliant: 0,
	StatusUnknown:      0,
}

// Valid reports whether the status is one of the four known values.
func (s AssessmentStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// UpgradeOf reports whether the status would be an upgrade over prev.
func (s AssessmentStatus) UpgradeOf(prev AssessmentStatus) bool {
	return statusRank[s] > statusRank[prev]
}

// =============================================================================
// Assessment
// =============================================================================

// Assessment is the assessor's structured judgment for one requirement.
//
// The contract mirrors the assessor's decision policy: every non-UNKNOWN
// status must carry a verbatim evidence quote. UNKNOWN with a quote is a
// soft convention violation, logged but not rejected.
type Assessment struct {
	// RequirementID matches a catalog identifier.
	RequirementID string `json:"requirement_id"`

	// Status is the compliance determination.
	Status AssessmentStatus `json:"status"`

	// Confidence is the assessor's self-reported certainty in [0, 1].
	Confidence float64 `json:"confidence"`

	// EvidenceQuote is a verbatim passage from the document, or empty.
	EvidenceQuote string `json:"evidence_quote,omitempty"`

	// Reasoning is the mandatory justification for the status.
	Reasoning string `json:"reasoning"`

	// PageNumbers lists the pages the evidence was found on.
	PageNumbers []int `json:"page_numbers"`
}

// Validate checks structural invariants on the assessment.
//
// The UNKNOWN-implies-no-quote convention is deliberately not enforced
// here; it is an agent-level convention, not a hard invariant.
func (a Assessment) Validate() error {
	if a.RequirementID == "" {
		return fmt.Errorf("assessment is missing a requirement ID")
	}
	if !a.Status.Valid() {
		return fmt.Errorf("assessment for %s has invalid status %q", a.RequirementID, a.Status)
	}
	if a.Confidence < 0.0 || a.Confidence > 1.0 {
		return fmt.Errorf("assessment for %s has confidence %.3f outside [0,1]", a.RequirementID, a.Confidence)
	}
	if a.Reasoning == "" {
		return fmt.Errorf("assessment for %s is missing reasoning", a.RequirementID)
	}
	return nil
}

// Normalize clamps out-of-range confidence values into [0, 1].
//
// Oracle output occasionally drifts outside the requested range; clamping
// is safer than discarding an otherwise usable assessment.
func (a *Assessment) Normalize() {
	if a.Confidence < 0.0 {
		a.Confidence = 0.0
	}
	if a.Confidence > 1.0 {
		a.Confidence = 1.0
	}
	if a.PageNumbers == nil {
		a.PageNumbers = []int{}
	}
}

// FailedAssessment builds the fail-safe assessment used when the oracle
// call for a requirement fails: UNKNOWN at zero confidence, with the error
// recorded in the reasoning. Other requirements are unaffected.
func FailedAssessment(requirementID string, cause error) Assessment {
	return Assessment{
		RequirementID: requirementID,
		Status:        StatusUnknown,
		Confidence:    0.0,
		Reasoning:     fmt.Sprintf("Assessment failed due to error: %v", cause),
		PageNumbers:   []int{},
	}
}

// =============================================================================
// Verified Assessment
// =============================================================================

// VerifiedAssessment is the verifier's review of an assessment.
//
// Invariants (enforced by Clamp):
//   - VerifiedConfidence <= OriginalConfidence
//   - VerifiedStatus is never an upgrade of OriginalStatus
type VerifiedAssessment struct {
	RequirementID      string           `json:"requirement_id"`
	OriginalStatus     AssessmentStatus `json:"original_status"`
	VerifiedStatus     AssessmentStatus `json:"verified_status"`
	OriginalConfidence float64          `json:"original_confidence"`
	VerifiedConfidence float64          `json:"verified_confidence"`
	VerificationNotes  string           `json:"verification_notes,omitempty"`
	Approved           bool             `json:"approved"`
}

// Clamp enforces the never-upgrade invariant in code, independent of
// whatever the verification oracle returned. It returns a description of
// each correction applied, for logging.
func (v *VerifiedAssessment) Clamp() []string {
	var corrections []string
	if !v.VerifiedStatus.Valid() {
		corrections = append(corrections,
			fmt.Sprintf("invalid verified status %q replaced with original", v.VerifiedStatus))
		v.VerifiedStatus = v.OriginalStatus
	}
	if v.VerifiedStatus.UpgradeOf(v.OriginalStatus) {
		corrections = append(corrections,
			fmt.Sprintf("status upgrade %s -> %s rejected", v.OriginalStatus, v.VerifiedStatus))
		v.VerifiedStatus = v.OriginalStatus
	}
	if v.VerifiedConfidence > v.OriginalConfidence {
		corrections = append(corrections,
			fmt.Sprintf("confidence raise %.3f -> %.3f rejected", v.OriginalConfidence, v.VerifiedConfidence))
		v.VerifiedConfidence = v.OriginalConfidence
	}
	if v.VerifiedConfidence < 0.0 {
		v.VerifiedConfidence = 0.0
	}
	return corrections
}

// Downgraded reports whether verification changed the status or confidence.
func (v VerifiedAssessment) Downgraded() bool {
	return v.VerifiedStatus != v.OriginalStatus || v.VerifiedConfidence != v.OriginalConfidence
}

// ApproveUnchanged builds the fail-open verification used when the
// verification call itself fails: the original assessment stands.
func ApproveUnchanged(a Assessment, cause error) VerifiedAssessment {
	return VerifiedAssessment{
		RequirementID:      a.RequirementID,
		OriginalStatus:     a.Status,
		VerifiedStatus:     a.Status,
		OriginalConfidence: a.Confidence,
		VerifiedConfidence: a.Confidence,
		VerificationNotes:  fmt.Sprintf("Verification skipped due to error: %v", cause),
		Approved:           true,
	}
}
