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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/llm"
)

var verifierTracer = otel.Tracer("aleutian.audit.agents.verifier")

const verifierSystemPrompt = "You are a verification agent. " +
	"Your task is to check if an assessment is justified by the evidence. " +
	"You may ONLY downgrade status or confidence, never upgrade. " +
	"If evidence does not support the claim, downgrade to UNKNOWN."

// Verifier re-checks whether an assessment's cited evidence actually
// substantiates its status and confidence.
//
// The never-upgrade invariant is enforced twice: the prompt forbids
// upgrades, and VerifiedAssessment.Clamp rejects them in code whatever
// the oracle returned. If the verification call itself fails, the
// original assessment is approved unchanged (fail-open, logged).
type Verifier struct {
	client llm.Client
}

// NewVerifier creates a verifier backed by the given oracle client.
func NewVerifier(client llm.Client) *Verifier {
	return &Verifier{client: client}
}

// Verify reviews one assessment against its evidence bundle.
func (v *Verifier) Verify(ctx context.Context, assessment datatypes.Assessment, evidence datatypes.EvidenceBundle) datatypes.VerifiedAssessment {
	ctx, span := verifierTracer.Start(ctx, "Verifier.Verify")
	defer span.End()
	span.SetAttributes(
		attribute.String("requirement.id", assessment.RequirementID),
		attribute.String("original.status", string(assessment.Status)),
	)

	original, err := json.MarshalIndent(assessment, "", "  ")
	if err != nil {
		// Marshal of a plain struct does not fail in practice; treat it
		// like any other verification failure if it somehow does.
		return datatypes.ApproveUnchanged(assessment, err)
	}

	userPrompt := fmt.Sprintf(
		"Original Assessment:\n%s\n\n"+
			"Evidence Quote: %s\n\n"+
			"Task: Verify if the status and confidence are justified. "+
			"Return JSON:\n"+
			"{\n"+
			"  \"requirement_id\": %q,\n"+
			"  \"original_status\": %q,\n"+
			"  \"verified_status\": \"COMPLIANT|PARTIAL|NON_COMPLIANT|UNKNOWN\",\n"+
			"  \"original_confidence\": %.2f,\n"+
			"  \"verified_confidence\": 0.0-1.0,\n"+
			"  \"verification_notes\": \"explanation if downgraded\",\n"+
			"  \"approved\": true|false\n"+
			"}",
		string(original), assessment.EvidenceQuote,
		assessment.RequirementID, assessment.Status, assessment.Confidence,
	)

	raw, err := v.client.GenerateJSON(ctx, verifierSystemPrompt, userPrompt)
	if err != nil {
		slog.Error("Verifier agent failed, approving assessment as-is",
			"requirement_id", assessment.RequirementID, "error", err)
		return datatypes.ApproveUnchanged(assessment, err)
	}

	var verified datatypes.VerifiedAssessment
	if err := json.Unmarshal([]byte(ExtractJSON(raw)), &verified); err != nil {
		slog.Error("Verifier returned malformed output, approving assessment as-is",
			"requirement_id", assessment.RequirementID, "error", err)
		return datatypes.ApproveUnchanged(assessment, fmt.Errorf("malformed oracle output: %w", err))
	}

	// The original values are ours, not the oracle's, to restate.
	verified.RequirementID = assessment.RequirementID
	verified.OriginalStatus = assessment.Status
	verified.OriginalConfidence = assessment.Confidence

	for _, correction := range verified.Clamp() {
		slog.Warn("Verifier output corrected",
			"requirement_id", assessment.RequirementID, "correction", correction)
	}

	span.SetAttributes(
		attribute.String("verified.status", string(verified.VerifiedStatus)),
		attribute.Bool("verified.approved", verified.Approved),
		attribute.Bool("verified.downgraded", verified.Downgraded()),
	)
	return verified
}
