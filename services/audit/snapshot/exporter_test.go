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
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/audit/trace"
)

func testCatalogForExport() datatypes.Catalog {
	return datatypes.Catalog{
		Framework: testFramework(),
		Requirements: []datatypes.Requirement{
			{ID: "REQ-001", Title: "Explicit Consent", SectionRef: "Section 7", Text: "Processing requires consent.", RiskLevel: datatypes.RiskHigh},
			{ID: "REQ-002", Title: "Erasure Obligation", SectionRef: "Section 12", Text: "Data shall be erased on request.", RiskLevel: datatypes.RiskMedium},
		},
	}
}

// TestExportJSON_RoundTrips verifies the archival document is indented
// JSON that decodes back to the same snapshot.
func TestExportJSON_RoundTrips(t *testing.T) {
	snap, err := CreateFrozenSnapshot(uuid.New(), testFramework(), testAssessments(),
		datatypes.VerdictYellow, trace.FullTrace{})
	require.NoError(t, err)

	data, err := ExportJSON(snap)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "{\n  "), "export is indented")

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, snap.Fingerprint, decoded.Fingerprint)
	assert.Equal(t, snap.Results.OverallVerdict, decoded.Results.OverallVerdict)
}

// TestRenderMarkdown_ContainsAllSections verifies the report carries
// the engine metadata, framework, verdict, per-requirement detail, and
// the fingerprint footer.
func TestRenderMarkdown_ContainsAllSections(t *testing.T) {
	snap, err := CreateFrozenSnapshot(uuid.New(), testFramework(), testAssessments(),
		datatypes.VerdictYellow, trace.FullTrace{})
	require.NoError(t, err)

	report := RenderMarkdown(snap, testCatalogForExport())

	assert.Contains(t, report, "# Compliance Audit Report")
	assert.Contains(t, report, "## 1. Engine Metadata")
	assert.Contains(t, report, EngineName+" v"+EngineVersion)
	assert.Contains(t, report, snap.AuditID)
	assert.Contains(t, report, "## 2. Regulatory Framework")
	assert.Contains(t, report, "DPDP Act 2023")
	assert.Contains(t, report, "Effective Date: 2023-08-11")
	assert.Contains(t, report, "## OVERALL VERDICT: YELLOW")
	assert.Contains(t, report, "## 3. Detailed Requirement Assessment")
	assert.Contains(t, report, "### REQ-001 [COMPLIANT]")
	assert.Contains(t, report, "**Explicit Consent** (Section 7)")
	assert.Contains(t, report, "> We obtain explicit consent before processing personal data.")
	assert.Contains(t, report, "Page(s): 2")
	assert.Contains(t, report, "Internal Audit Trail Document - Fingerprint: "+snap.Fingerprint)
}

// TestRenderMarkdown_TruncatesHeaderFingerprint verifies the header
// shows a preview while the footer keeps the full value.
func TestRenderMarkdown_TruncatesHeaderFingerprint(t *testing.T) {
	snap, err := CreateFrozenSnapshot(uuid.New(), testFramework(), testAssessments(),
		datatypes.VerdictYellow, trace.FullTrace{})
	require.NoError(t, err)

	report := RenderMarkdown(snap, testCatalogForExport())

	assert.Contains(t, report, "Snapshot Fingerprint: "+snap.Fingerprint[:16]+"...")
	assert.NotContains(t, report, "Snapshot Fingerprint: "+snap.Fingerprint)
}

// TestRenderMarkdown_WithoutCatalogRendersIdentifiers verifies a
// rotated-away catalog degrades to identifier-only rows.
func TestRenderMarkdown_WithoutCatalogRendersIdentifiers(t *testing.T) {
	snap, err := CreateFrozenSnapshot(uuid.New(), testFramework(), testAssessments(),
		datatypes.VerdictYellow, trace.FullTrace{})
	require.NoError(t, err)

	report := RenderMarkdown(snap, datatypes.Catalog{})

	assert.Contains(t, report, "### REQ-001 [COMPLIANT]")
	assert.NotContains(t, report, "Explicit Consent")
}

// TestRenderMarkdown_ListsFailedRequirements verifies non-passing
// results are called out ahead of the detail section.
func TestRenderMarkdown_ListsFailedRequirements(t *testing.T) {
	assessments := testAssessments()
	assessments[1].Status = datatypes.StatusNonCompliant
	snap, err := CreateFrozenSnapshot(uuid.New(), testFramework(), assessments,
		datatypes.VerdictRed, trace.FullTrace{})
	require.NoError(t, err)

	report := RenderMarkdown(snap, testCatalogForExport())

	assert.Contains(t, report, "Requirements needing attention:")
	assert.Contains(t, report, "- REQ-002 [NON_COMPLIANT]")
	assert.Contains(t, report, "At least one requirement is non-compliant.")
}

// TestRenderMarkdown_NotesVerifierDowngrade verifies a downgraded
// evaluation in the frozen trace surfaces in the requirement row.
func TestRenderMarkdown_NotesVerifierDowngrade(t *testing.T) {
	frozenTrace := trace.FullTrace{
		RequirementEvaluations: []trace.RequirementEvaluation{
			{
				RequirementID:        "REQ-001",
				EvidenceChunks:       3,
				AssessmentStatus:     "COMPLIANT",
				AssessmentConfidence: 0.9,
				VerifiedStatus:       "PARTIAL",
				VerifiedConfidence:   0.5,
				WasDowngraded:        true,
			},
		},
	}
	snap, err := CreateFrozenSnapshot(uuid.New(), testFramework(), testAssessments(),
		datatypes.VerdictYellow, frozenTrace)
	require.NoError(t, err)

	report := RenderMarkdown(snap, testCatalogForExport())

	assert.Contains(t, report, "Verifier downgraded this result from COMPLIANT (confidence 0.90)")
}

// TestExplainVerdict_CountsAndReasons verifies the status breakdown and
// the named rule for each verdict color.
func TestExplainVerdict_CountsAndReasons(t *testing.T) {
	tests := []struct {
		name     string
		statuses []datatypes.AssessmentStatus
		verdict  datatypes.Verdict
		reason   string
	}{
		{
			"red on non-compliance",
			[]datatypes.AssessmentStatus{datatypes.StatusCompliant, datatypes.StatusNonCompliant},
			datatypes.VerdictRed,
			"At least one requirement is non-compliant",
		},
		{
			"yellow on uncertainty",
			[]datatypes.AssessmentStatus{datatypes.StatusCompliant, datatypes.StatusUnknown},
			datatypes.VerdictYellow,
			"Some requirements are partially compliant or unknown",
		},
		{
			"green on full compliance",
			[]datatypes.AssessmentStatus{datatypes.StatusCompliant, datatypes.StatusCompliant},
			datatypes.VerdictGreen,
			"All requirements are compliant",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assessments := make([]datatypes.Assessment, len(tc.statuses))
			for i, status := range tc.statuses {
				assessments[i] = datatypes.Assessment{
					RequirementID: "REQ-00" + string(rune('1'+i)),
					Status:        status,
					Reasoning:     "scripted",
				}
			}
			snap, err := CreateFrozenSnapshot(uuid.New(), testFramework(), assessments,
				tc.verdict, trace.FullTrace{})
			require.NoError(t, err)

			got := ExplainVerdict(snap)

			assert.Equal(t, tc.verdict, got.FinalVerdict)
			assert.Equal(t, tc.reason, got.Reason)
			assert.Equal(t, len(tc.statuses), got.TotalRequirements)
			total := 0
			for _, n := range got.StatusBreakdown {
				total += n
			}
			assert.Equal(t, len(tc.statuses), total)
		})
	}
}

// TestExplainRequirement_JoinsCatalogDetail verifies the frozen record
// stays authoritative while catalog fields fill in around it.
func TestExplainRequirement_JoinsCatalogDetail(t *testing.T) {
	snap, err := CreateFrozenSnapshot(uuid.New(), testFramework(), testAssessments(),
		datatypes.VerdictYellow, trace.FullTrace{})
	require.NoError(t, err)
	req, ok := testCatalogForExport().ByID("REQ-001")
	require.True(t, ok)

	got := ExplainRequirement(req, snap.Results.Requirements[0])

	assert.Equal(t, "REQ-001", got.RequirementID)
	assert.Equal(t, "Explicit Consent", got.Title)
	assert.Equal(t, "Section 7", got.SectionRef)
	assert.Equal(t, datatypes.RiskHigh, got.RiskLevel)
	assert.Equal(t, datatypes.StatusCompliant, got.Status)
	assert.InDelta(t, 0.9, got.Confidence, 0.001)
}

// TestFailedRequirements_FiltersPassingStatuses verifies only
// NON_COMPLIANT and PARTIAL results are listed.
func TestFailedRequirements_FiltersPassingStatuses(t *testing.T) {
	assessments := []datatypes.Assessment{
		{RequirementID: "REQ-001", Status: datatypes.StatusCompliant, Reasoning: "ok"},
		{RequirementID: "REQ-002", Status: datatypes.StatusPartial, Reasoning: "incomplete"},
		{RequirementID: "REQ-003", Status: datatypes.StatusNonCompliant, Reasoning: "contradicted"},
		{RequirementID: "REQ-004", Status: datatypes.StatusUnknown, Reasoning: "no evidence"},
	}
	snap, err := CreateFrozenSnapshot(uuid.New(), testFramework(), assessments,
		datatypes.VerdictRed, trace.FullTrace{})
	require.NoError(t, err)

	failed := FailedRequirements(snap)

	require.Len(t, failed, 2)
	assert.Equal(t, "REQ-002", failed[0].RequirementID)
	assert.Equal(t, "REQ-003", failed[1].RequirementID)
}

// TestEvidenceChainFor_HitAndMiss verifies trace lookup by requirement.
func TestEvidenceChainFor_HitAndMiss(t *testing.T) {
	frozenTrace := trace.FullTrace{
		RequirementEvaluations: []trace.RequirementEvaluation{
			{RequirementID: "REQ-001", EvidenceChunks: 2, AssessmentStatus: "COMPLIANT", VerifiedStatus: "COMPLIANT"},
		},
	}
	snap, err := CreateFrozenSnapshot(uuid.New(), testFramework(), testAssessments(),
		datatypes.VerdictYellow, frozenTrace)
	require.NoError(t, err)

	chain, ok := EvidenceChainFor(snap, "REQ-001")
	require.True(t, ok)
	assert.Equal(t, 2, chain.EvidenceChunks)
	assert.Equal(t, "COMPLIANT", chain.VerifiedStatus)

	_, ok = EvidenceChainFor(snap, "REQ-404")
	assert.False(t, ok)
}
