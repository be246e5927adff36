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
	"fmt"
	"strconv"
	"strings"

	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
)

// Exporters turn a frozen snapshot into archival artifacts: indented
// JSON for downstream tooling, and a Markdown report for human
// reviewers. Rendering reads only what the snapshot holds; nothing
// here re-evaluates or mutates frozen content.

// fingerprintPreview is how many fingerprint characters the report
// header shows; the footer carries the full value.
const fingerprintPreview = 16

// ExportJSON serializes the snapshot as indented JSON, suitable for
// filing in an evidence archive or feeding to downstream tooling.
func ExportJSON(snap Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to export snapshot: %w", err)
	}
	return data, nil
}

// RenderMarkdown renders the snapshot as a human-readable audit report.
// The catalog enriches each requirement row with its title, section
// reference, and risk level; a zero catalog renders identifiers only.
func RenderMarkdown(snap Snapshot, catalog datatypes.Catalog) string {
	var b strings.Builder

	b.WriteString("# Compliance Audit Report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", snap.Engine.EvaluationDate)

	b.WriteString("## 1. Engine Metadata\n\n")
	fmt.Fprintf(&b, "- Engine: %s v%s\n", snap.Engine.Name, snap.Engine.Version)
	fmt.Fprintf(&b, "- Audit ID: %s\n", snap.AuditID)
	fmt.Fprintf(&b, "- Snapshot Fingerprint: %s...\n\n", shortFingerprint(snap.Fingerprint))

	b.WriteString("## 2. Regulatory Framework\n\n")
	fmt.Fprintf(&b, "- Framework: %s %s\n", snap.Framework.Name, snap.Framework.Version)
	if snap.Framework.EffectiveDate != "" {
		fmt.Fprintf(&b, "- Effective Date: %s\n", snap.Framework.EffectiveDate)
	}
	b.WriteString("\n")

	explained := ExplainVerdict(snap)
	fmt.Fprintf(&b, "## OVERALL VERDICT: %s\n\n", snap.Results.OverallVerdict)
	fmt.Fprintf(&b, "%s.\n\n", explained.Reason)

	if failed := FailedRequirements(snap); len(failed) > 0 {
		b.WriteString("Requirements needing attention:\n\n")
		for _, req := range failed {
			fmt.Fprintf(&b, "- %s [%s]\n", req.RequirementID, req.Status)
		}
		b.WriteString("\n")
	}

	b.WriteString("## 3. Detailed Requirement Assessment\n\n")
	for _, frozen := range snap.Results.Requirements {
		detail, _ := catalog.ByID(frozen.RequirementID)
		writeRequirementSection(&b, snap, ExplainRequirement(detail, frozen))
	}

	fmt.Fprintf(&b, "---\n\nInternal Audit Trail Document - Fingerprint: %s\n", snap.Fingerprint)
	return b.String()
}

func writeRequirementSection(b *strings.Builder, snap Snapshot, exp RequirementExplanation) {
	fmt.Fprintf(b, "### %s [%s]\n\n", exp.RequirementID, exp.Status)
	if exp.Title != "" {
		fmt.Fprintf(b, "**%s**", exp.Title)
		if exp.SectionRef != "" {
			fmt.Fprintf(b, " (%s)", exp.SectionRef)
		}
		b.WriteString("\n\n")
	}
	if exp.RiskLevel != "" {
		fmt.Fprintf(b, "- Risk Level: %s\n", exp.RiskLevel)
	}
	fmt.Fprintf(b, "- Confidence: %.2f\n", exp.Confidence)
	fmt.Fprintf(b, "- Reasoning: %s\n", exp.Reasoning)
	if chain, ok := EvidenceChainFor(snap, exp.RequirementID); ok && chain.WasDowngraded {
		fmt.Fprintf(b, "- Verifier downgraded this result from %s (confidence %.2f)\n",
			chain.AssessmentStatus, chain.AssessmentConfidence)
	}
	if exp.EvidenceQuote != "" {
		fmt.Fprintf(b, "\n> %s\n", exp.EvidenceQuote)
		if len(exp.PageNumbers) > 0 {
			fmt.Fprintf(b, "\nPage(s): %s\n", joinPages(exp.PageNumbers))
		}
	}
	b.WriteString("\n")
}

func shortFingerprint(fingerprint string) string {
	if len(fingerprint) <= fingerprintPreview {
		return fingerprint
	}
	return fingerprint[:fingerprintPreview]
}

func joinPages(pages []int) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ", ")
}
