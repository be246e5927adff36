// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianAudit/services/audit/agents"
	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/audit/observability"
	"github.com/AleutianAI/AleutianAudit/services/audit/trace"
)

// Legacy evaluation: one oracle call per requirement, no planner and no
// verifier. Predates the agent chain; kept selectable for comparison
// runs against the same catalog.

const legacySystemPrompt = "You are a compliance verification assistant. " +
	"Given a regulatory requirement and excerpts from a company document, " +
	"decide whether the document satisfies the requirement. " +
	"Respond with a single JSON object: " +
	`{"status": "COMPLIANT"|"PARTIAL"|"NON_COMPLIANT"|"UNKNOWN", ` +
	`"confidence": <0.0-1.0>, "evidence_quote": "<verbatim quote or empty>", ` +
	`"reasoning": "<short justification>"}. ` +
	"Quote the document verbatim when citing evidence. " +
	"If the excerpts do not cover the requirement, use UNKNOWN."

func (o *Orchestrator) evaluateLegacy(ctx context.Context, req datatypes.Requirement, evidence datatypes.EvidenceBundle, tracer *trace.ExecutionTracer) datatypes.Assessment {
	if evidence.Empty() {
		return datatypes.Assessment{
			RequirementID: req.ID,
			Status:        datatypes.StatusUnknown,
			Confidence:    0.0,
			Reasoning:     "No document content matched this requirement's keywords.",
			PageNumbers:   []int{},
		}
	}

	var prompt strings.Builder
	prompt.WriteString("Requirement ")
	prompt.WriteString(req.ID)
	prompt.WriteString(" (")
	prompt.WriteString(req.SectionRef)
	prompt.WriteString("): ")
	prompt.WriteString(req.Title)
	prompt.WriteString("\n")
	prompt.WriteString(req.Text)
	prompt.WriteString("\n\nDocument excerpts:\n")
	for _, chunk := range evidence.Chunks() {
		prompt.WriteString("---\n")
		prompt.WriteString(chunk)
		prompt.WriteString("\n")
	}

	start := time.Now()
	raw, err := o.oracle.GenerateJSON(ctx, legacySystemPrompt, prompt.String())
	tracer.RecordAgentExecution("legacy_verifier",
		map[string]any{"requirement_id": req.ID, "prompt": prompt.String()},
		map[string]any{"response": raw},
		time.Since(start), err)
	if err != nil {
		observability.CountAgentCall("legacy", "error")
		return datatypes.FailedAssessment(req.ID, err)
	}

	var parsed struct {
		Status        string  `json:"status"`
		Confidence    float64 `json:"confidence"`
		EvidenceQuote string  `json:"evidence_quote"`
		Reasoning     string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(agents.ExtractJSON(raw)), &parsed); err != nil {
		observability.CountAgentCall("legacy", "malformed")
		return datatypes.FailedAssessment(req.ID, err)
	}

	assessment := datatypes.Assessment{
		RequirementID: req.ID,
		Status:        datatypes.AssessmentStatus(parsed.Status),
		Confidence:    parsed.Confidence,
		EvidenceQuote: parsed.EvidenceQuote,
		Reasoning:     parsed.Reasoning,
		PageNumbers:   evidence.Pages(),
	}
	if !assessment.Status.Valid() {
		assessment.Status = datatypes.StatusUnknown
	}
	if assessment.Reasoning == "" {
		assessment.Reasoning = "The oracle returned no reasoning."
	}
	assessment.Normalize()
	observability.CountAgentCall("legacy", string(assessment.Status))
	return assessment
}
