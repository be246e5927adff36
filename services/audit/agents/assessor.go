// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/llm"
)

var assessorTracer = otel.Tracer("aleutian.audit.agents.assessor")

// Decision policy encoded in the prompt. Order matters: the quote
// requirement (rule 5) overrides apparent confidence.
const assessorSystemPrompt = "You are a legal compliance assessment agent. " +
	"Your task is to determine if a document explicitly addresses a statutory requirement. " +
	"Rules:\n" +
	"1. Only mark COMPLIANT if explicitly stated\n" +
	"2. Mark PARTIAL if mentioned but vague\n" +
	"3. Mark NON_COMPLIANT if contradicted, or conspicuously absent where expected\n" +
	"4. Mark UNKNOWN if insufficient evidence\n" +
	"5. You MUST provide a direct quote as evidence or mark UNKNOWN\n" +
	"6. Do not infer or assume compliance"

// Assessor produces one structured compliance judgment per requirement.
//
// COMPLIANT is reserved for explicit satisfaction backed by a verbatim
// quote; UNKNOWN is the safe default, not a failure mode. Any call
// failure becomes an UNKNOWN assessment at confidence 0.0 and evaluation
// of other requirements proceeds (failure isolation).
type Assessor struct {
	client llm.Client
}

// NewAssessor creates an assessor backed by the given oracle client.
func NewAssessor(client llm.Client) *Assessor {
	return &Assessor{client: client}
}

// Assess evaluates one requirement against its evidence bundle.
//
// An empty bundle is presented to the oracle as such; with nothing to
// quote, rule 5 forces a non-COMPLIANT outcome.
func (a *Assessor) Assess(ctx context.Context, requirement datatypes.Requirement, evidence datatypes.EvidenceBundle) datatypes.Assessment {
	ctx, span := assessorTracer.Start(ctx, "Assessor.Assess")
	defer span.End()
	span.SetAttributes(
		attribute.String("requirement.id", requirement.ID),
		attribute.Int("evidence.chunks", len(evidence.Items)),
	)

	var evidenceText strings.Builder
	if evidence.Empty() {
		evidenceText.WriteString("(no evidence was retrieved for this requirement)")
	} else {
		for i, chunk := range evidence.Chunks() {
			fmt.Fprintf(&evidenceText, "Document Chunk %d: %s\n\n", i+1, chunk)
		}
	}

	userPrompt := fmt.Sprintf(
		"Requirement: %s\n\n"+
			"Evidence from Document:\n%s\n"+
			"Return JSON with this exact schema:\n"+
			"{\n"+
			"  \"requirement_id\": %q,\n"+
			"  \"status\": \"COMPLIANT|PARTIAL|NON_COMPLIANT|UNKNOWN\",\n"+
			"  \"confidence\": 0.0-1.0,\n"+
			"  \"evidence_quote\": \"direct quote or null\",\n"+
			"  \"reasoning\": \"explicit justification\",\n"+
			"  \"page_numbers\": [1, 2]\n"+
			"}",
		requirement.Text, evidenceText.String(), requirement.ID,
	)

	raw, err := a.client.GenerateJSON(ctx, assessorSystemPrompt, userPrompt)
	if err != nil {
		slog.Error("Reasoner agent failed", "requirement_id", requirement.ID, "error", err)
		return datatypes.FailedAssessment(requirement.ID, err)
	}

	var assessment datatypes.Assessment
	if err := json.Unmarshal([]byte(ExtractJSON(raw)), &assessment); err != nil {
		slog.Error("Reasoner returned malformed output", "requirement_id", requirement.ID, "error", err)
		return datatypes.FailedAssessment(requirement.ID, fmt.Errorf("malformed oracle output: %w", err))
	}

	// The oracle is told the requirement ID but may echo it wrong;
	// the bundle's ID is authoritative.
	assessment.RequirementID = requirement.ID
	assessment.Normalize()

	if !assessment.Status.Valid() {
		slog.Warn("Reasoner returned invalid status, downgrading to UNKNOWN",
			"requirement_id", requirement.ID, "status", assessment.Status)
		assessment.Status = datatypes.StatusUnknown
		assessment.Confidence = 0.0
	}

	// Rule 5: non-UNKNOWN without a verbatim quote is not defensible.
	if assessment.Status != datatypes.StatusUnknown && assessment.EvidenceQuote == "" {
		slog.Warn("Reasoner returned citable status without a quote, downgrading to UNKNOWN",
			"requirement_id", requirement.ID, "status", assessment.Status)
		assessment.Reasoning = fmt.Sprintf(
			"Downgraded to UNKNOWN: status %s was returned without a verbatim evidence quote. Original reasoning: %s",
			assessment.Status, assessment.Reasoning)
		assessment.Status = datatypes.StatusUnknown
		if assessment.Confidence > 0.4 {
			assessment.Confidence = 0.4
		}
	}

	// Nothing retrieved means nothing can be quoted: an empty bundle
	// never supports COMPLIANT or PARTIAL, nor confidence >= 0.5.
	if evidence.Empty() {
		if assessment.Status == datatypes.StatusCompliant || assessment.Status == datatypes.StatusPartial {
			slog.Warn("Reasoner claimed compliance with an empty evidence bundle, downgrading",
				"requirement_id", requirement.ID, "status", assessment.Status)
			assessment.Status = datatypes.StatusUnknown
			assessment.EvidenceQuote = ""
		}
		if assessment.Confidence >= 0.5 {
			assessment.Confidence = 0.4
		}
	}

	span.SetAttributes(
		attribute.String("assessment.status", string(assessment.Status)),
		attribute.Float64("assessment.confidence", assessment.Confidence),
	)
	return assessment
}
