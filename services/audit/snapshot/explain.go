// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
)

// Explanation helpers join frozen results back to their catalog
// requirements and spell out how the verdict followed from the
// statuses. They support report rendering and operator debugging and
// perform no evaluation of their own.

// RequirementExplanation is one frozen result joined with the catalog
// requirement it was evaluated against.
type RequirementExplanation struct {
	RequirementID   string                     `json:"requirement_id"`
	Title           string                     `json:"requirement_title,omitempty"`
	SectionRef      string                     `json:"section_ref,omitempty"`
	RequirementText string                     `json:"requirement_text,omitempty"`
	RiskLevel       datatypes.RiskLevel        `json:"risk_level,omitempty"`
	Status          datatypes.AssessmentStatus `json:"status"`
	Confidence      float64                    `json:"confidence"`
	Reasoning       string                     `json:"reasoning"`
	EvidenceQuote   string                     `json:"evidence_quote,omitempty"`
	PageNumbers     []int                      `json:"page_numbers"`
}

// ExplainRequirement joins a frozen assessment with its catalog
// requirement. The frozen record is authoritative for the identifier
// and outcome; a zero requirement leaves the catalog fields empty.
func ExplainRequirement(req datatypes.Requirement, frozen FrozenAssessment) RequirementExplanation {
	return RequirementExplanation{
		RequirementID:   frozen.RequirementID,
		Title:           req.Title,
		SectionRef:      req.SectionRef,
		RequirementText: req.Text,
		RiskLevel:       req.RiskLevel,
		Status:          frozen.Status,
		Confidence:      frozen.Confidence,
		Reasoning:       frozen.Reasoning,
		EvidenceQuote:   frozen.EvidenceQuote,
		PageNumbers:     frozen.PageNumbers,
	}
}

// VerdictExplanation spells out how the overall verdict follows from
// the frozen statuses.
type VerdictExplanation struct {
	FinalVerdict      datatypes.Verdict                  `json:"final_verdict"`
	Reason            string                             `json:"reason"`
	StatusBreakdown   map[datatypes.AssessmentStatus]int `json:"status_breakdown"`
	TotalRequirements int                                `json:"total_requirements"`
}

// ExplainVerdict counts the frozen statuses and names the rule that
// produced the verdict.
func ExplainVerdict(snap Snapshot) VerdictExplanation {
	breakdown := make(map[datatypes.AssessmentStatus]int)
	for _, req := range snap.Results.Requirements {
		breakdown[req.Status]++
	}

	var reason string
	switch {
	case breakdown[datatypes.StatusNonCompliant] > 0:
		reason = "At least one requirement is non-compliant"
	case breakdown[datatypes.StatusPartial] > 0 || breakdown[datatypes.StatusUnknown] > 0:
		reason = "Some requirements are partially compliant or unknown"
	default:
		reason = "All requirements are compliant"
	}

	return VerdictExplanation{
		FinalVerdict:      snap.Results.OverallVerdict,
		Reason:            reason,
		StatusBreakdown:   breakdown,
		TotalRequirements: len(snap.Results.Requirements),
	}
}

// FailedRequirements lists the frozen results that did not pass:
// NON_COMPLIANT and PARTIAL, in snapshot order.
func FailedRequirements(snap Snapshot) []FrozenAssessment {
	var failed []FrozenAssessment
	for _, req := range snap.Results.Requirements {
		if req.Status == datatypes.StatusNonCompliant || req.Status == datatypes.StatusPartial {
			failed = append(failed, req)
		}
	}
	return failed
}

// EvidenceChain condenses the frozen trace of one requirement's
// retrieve-assess-verify run.
type EvidenceChain struct {
	RequirementID        string  `json:"requirement_id"`
	EvidenceChunks       int     `json:"evidence_chunks"`
	AssessmentStatus     string  `json:"assessment_status"`
	AssessmentConfidence float64 `json:"assessment_confidence"`
	VerifiedStatus       string  `json:"verified_status"`
	VerifiedConfidence   float64 `json:"verified_confidence"`
	WasDowngraded        bool    `json:"was_downgraded"`
}

// EvidenceChainFor pulls the trace entry for one requirement out of
// the frozen execution trace. The second return is false when the
// requirement was never evaluated (or the snapshot predates tracing).
func EvidenceChainFor(snap Snapshot, requirementID string) (EvidenceChain, bool) {
	for _, eval := range snap.Metadata.ExecutionTrace.RequirementEvaluations {
		if eval.RequirementID == requirementID {
			return EvidenceChain{
				RequirementID:        eval.RequirementID,
				EvidenceChunks:       eval.EvidenceChunks,
				AssessmentStatus:     eval.AssessmentStatus,
				AssessmentConfidence: eval.AssessmentConfidence,
				VerifiedStatus:       eval.VerifiedStatus,
				VerifiedConfidence:   eval.VerifiedConfidence,
				WasDowngraded:        eval.WasDowngraded,
			}, true
		}
	}
	return EvidenceChain{}, false
}
