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
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/audit/extract"
	"github.com/AleutianAI/AleutianAudit/services/audit/snapshot"
	"github.com/AleutianAI/AleutianAudit/services/audit/store"
	"github.com/AleutianAI/AleutianAudit/services/llm"
)

// routingOracle dispatches scripted responses by agent role, recognized
// from the system prompt, and by requirement ID found in the user prompt.
type routingOracle struct {
	mu sync.Mutex

	planResponse string
	planErr      error

	// assessResponses is keyed by requirement ID.
	assessResponses map[string]string
	// assessErrs forces a call error for specific requirements.
	assessErrs map[string]error

	// verifyResponse overrides the default approve-as-echoed behavior.
	verifyResponse string

	calls []string
}

var _ llm.Client = (*routingOracle)(nil)

func (f *routingOracle) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	return "", errors.New("plain generation not used by the pipeline")
}

func (f *routingOracle) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case strings.Contains(systemPrompt, "planning agent"):
		f.calls = append(f.calls, "planner")
		return f.planResponse, f.planErr

	case strings.Contains(systemPrompt, "assessment agent"):
		for id, err := range f.assessErrs {
			if strings.Contains(userPrompt, id) {
				f.calls = append(f.calls, "assessor:"+id)
				return "", err
			}
		}
		for id, resp := range f.assessResponses {
			if strings.Contains(userPrompt, id) {
				f.calls = append(f.calls, "assessor:"+id)
				return resp, nil
			}
		}
		return "", fmt.Errorf("no scripted assessment matches prompt")

	case strings.Contains(systemPrompt, "verification agent"):
		f.calls = append(f.calls, "verifier")
		if f.verifyResponse != "" {
			return f.verifyResponse, nil
		}
		// Default: approve the assessment exactly as submitted.
		var echo struct {
			Status     datatypes.AssessmentStatus `json:"status"`
			Confidence float64                    `json:"confidence"`
		}
		start := strings.Index(userPrompt, "{")
		end := strings.Index(userPrompt, "\n\nEvidence Quote:")
		if start >= 0 && end > start {
			_ = json.Unmarshal([]byte(userPrompt[start:end]), &echo)
		}
		return fmt.Sprintf(
			`{"verified_status": %q, "verified_confidence": %.2f, "approved": true}`,
			echo.Status, echo.Confidence), nil

	case strings.Contains(systemPrompt, "verification assistant"):
		f.calls = append(f.calls, "legacy")
		for id, resp := range f.assessResponses {
			if strings.Contains(userPrompt, id) {
				return resp, nil
			}
		}
		return "", fmt.Errorf("no scripted legacy response matches prompt")
	}
	return "", fmt.Errorf("unrecognized system prompt")
}

const testDocument = "Section 1: Consent\n" +
	"We obtain explicit consent before processing personal data.\n" +
	"\n" +
	"Section 2: Erasure\n" +
	"Users may request erasure and we delete data within 30 days.\n"

func testCatalogSeed() string {
	return `
frameworks:
  - framework:
      name: GDPR
      version: "2016/679"
    requirements:
      - requirement_id: REQ-CONSENT
        title: Explicit Consent
        requirement_text: Processing requires explicit consent from the data subject.
        risk_level: CRITICAL
      - requirement_id: REQ-ERASURE
        title: Erasure Obligation
        requirement_text: Personal data shall be erased on request.
        risk_level: HIGH
`
}

func newTestOrchestrator(t *testing.T, cfg Config, oracle llm.Client) (*Orchestrator, *store.AuditStore) {
	t.Helper()
	db, err := store.Open(store.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	audits, err := store.NewAuditStore(db)
	require.NoError(t, err)
	catalogs := store.NewCatalogStore()
	require.NoError(t, catalogs.Load([]byte(testCatalogSeed())))

	o, err := NewOrchestrator(cfg, catalogs, audits,
		extract.NewSegmenter(0), NewLexicalBackend(), oracle)
	require.NoError(t, err)
	return o, audits
}

func createPendingAudit(t *testing.T, audits *store.AuditStore) *datatypes.Audit {
	t.Helper()
	audit := datatypes.NewAudit("policy.txt")
	require.NoError(t, audits.Create(context.Background(), audit))
	return audit
}

func TestRun_CompletesWithGreenVerdict(t *testing.T) {
	// Arrange
	oracle := &routingOracle{
		planResponse: `{"requirement_ids": ["REQ-CONSENT", "REQ-ERASURE"], "reasoning": "both apply"}`,
		assessResponses: map[string]string{
			"REQ-CONSENT": `{"requirement_id": "REQ-CONSENT", "status": "COMPLIANT", "confidence": 0.9,
				"evidence_quote": "We obtain explicit consent before processing personal data.",
				"reasoning": "Explicitly stated.", "page_numbers": [1]}`,
			"REQ-ERASURE": `{"requirement_id": "REQ-ERASURE", "status": "COMPLIANT", "confidence": 0.85,
				"evidence_quote": "Users may request erasure and we delete data within 30 days.",
				"reasoning": "Explicitly stated.", "page_numbers": [1]}`,
		},
	}
	o, audits := newTestOrchestrator(t, Config{}, oracle)
	audit := createPendingAudit(t, audits)

	// Act
	err := o.Run(context.Background(), audit.ID, "GDPR", testDocument)

	// Assert
	require.NoError(t, err)
	got, err := audits.Get(context.Background(), audit.ID)
	require.NoError(t, err)
	assert.Equal(t, datatypes.AuditCompleted, got.Status)
	assert.Equal(t, 1.0, got.Progress)
	require.True(t, got.Frozen())

	var result datatypes.OrchestrationResult
	require.NoError(t, json.Unmarshal(got.Report, &result))
	assert.Equal(t, datatypes.VerdictGreen, result.OverallVerdict)
	require.Len(t, result.Assessments, 2)
	// Plan order is preserved.
	assert.Equal(t, "REQ-CONSENT", result.Assessments[0].RequirementID)
	assert.Equal(t, "REQ-ERASURE", result.Assessments[1].RequirementID)
	assert.Equal(t, 2, result.Metadata.TotalRequirements)
	assert.Equal(t, 2, result.Metadata.EvaluatedRequirements)

	var snap snapshot.Snapshot
	require.NoError(t, json.Unmarshal(result.Metadata.Snapshot, &snap))
	assert.True(t, snapshot.VerifyIntegrity(snap))
	okFingerprint, err := snapshot.VerifyFingerprint(snap)
	require.NoError(t, err)
	assert.True(t, okFingerprint)
}

func TestRun_OneOracleFailureStillCompletes(t *testing.T) {
	oracle := &routingOracle{
		planResponse: `{"requirement_ids": ["REQ-CONSENT", "REQ-ERASURE"]}`,
		assessResponses: map[string]string{
			"REQ-CONSENT": `{"requirement_id": "REQ-CONSENT", "status": "COMPLIANT", "confidence": 0.9,
				"evidence_quote": "We obtain explicit consent before processing personal data.",
				"reasoning": "Explicitly stated."}`,
		},
		assessErrs: map[string]error{
			"REQ-ERASURE": errors.New("oracle timeout"),
		},
	}
	o, audits := newTestOrchestrator(t, Config{}, oracle)
	audit := createPendingAudit(t, audits)

	err := o.Run(context.Background(), audit.ID, "GDPR", testDocument)

	require.NoError(t, err)
	got, err := audits.Get(context.Background(), audit.ID)
	require.NoError(t, err)
	assert.Equal(t, datatypes.AuditCompleted, got.Status)

	var result datatypes.OrchestrationResult
	require.NoError(t, json.Unmarshal(got.Report, &result))
	// The failed requirement collapses to UNKNOWN, turning the overall
	// verdict YELLOW without sinking the audit.
	assert.Equal(t, datatypes.VerdictYellow, result.OverallVerdict)
	require.Len(t, result.Assessments, 2)
	failed := result.Assessments[1]
	assert.Equal(t, "REQ-ERASURE", failed.RequirementID)
	assert.Equal(t, datatypes.StatusUnknown, failed.Status)
	assert.Zero(t, failed.Confidence)
	assert.Contains(t, failed.Reasoning, "Assessment failed due to error")
}

func TestRun_NonCompliantRequirementTurnsVerdictRed(t *testing.T) {
	oracle := &routingOracle{
		planResponse: `{"requirement_ids": ["REQ-CONSENT"]}`,
		assessResponses: map[string]string{
			"REQ-CONSENT": `{"requirement_id": "REQ-CONSENT", "status": "NON_COMPLIANT", "confidence": 0.8,
				"evidence_quote": "We obtain explicit consent before processing personal data.",
				"reasoning": "Consent is bundled, not freely given."}`,
		},
	}
	o, audits := newTestOrchestrator(t, Config{}, oracle)
	audit := createPendingAudit(t, audits)

	require.NoError(t, o.Run(context.Background(), audit.ID, "GDPR", testDocument))

	got, err := audits.Get(context.Background(), audit.ID)
	require.NoError(t, err)
	var result datatypes.OrchestrationResult
	require.NoError(t, json.Unmarshal(got.Report, &result))
	assert.Equal(t, datatypes.VerdictRed, result.OverallVerdict)
}

func TestRun_PlannerInventionsAreFilteredOut(t *testing.T) {
	oracle := &routingOracle{
		planResponse: `{"requirement_ids": ["REQ-FABRICATED", "REQ-CONSENT"]}`,
		assessResponses: map[string]string{
			"REQ-CONSENT": `{"requirement_id": "REQ-CONSENT", "status": "COMPLIANT", "confidence": 0.9,
				"evidence_quote": "We obtain explicit consent before processing personal data.",
				"reasoning": "Explicitly stated."}`,
		},
	}
	o, audits := newTestOrchestrator(t, Config{}, oracle)
	audit := createPendingAudit(t, audits)

	require.NoError(t, o.Run(context.Background(), audit.ID, "GDPR", testDocument))

	got, err := audits.Get(context.Background(), audit.ID)
	require.NoError(t, err)
	var result datatypes.OrchestrationResult
	require.NoError(t, json.Unmarshal(got.Report, &result))
	require.Len(t, result.Assessments, 1)
	assert.Equal(t, "REQ-CONSENT", result.Assessments[0].RequirementID)
	for _, call := range oracle.calls {
		assert.NotContains(t, call, "REQ-FABRICATED")
	}
}

func TestRun_VerifierDowngradeLandsInReport(t *testing.T) {
	oracle := &routingOracle{
		planResponse: `{"requirement_ids": ["REQ-CONSENT"]}`,
		assessResponses: map[string]string{
			"REQ-CONSENT": `{"requirement_id": "REQ-CONSENT", "status": "COMPLIANT", "confidence": 0.9,
				"evidence_quote": "We obtain explicit consent before processing personal data.",
				"reasoning": "Explicitly stated."}`,
		},
		verifyResponse: `{"verified_status": "PARTIAL", "verified_confidence": 0.5,
			"verification_notes": "Quote does not cover all processing purposes.", "approved": false}`,
	}
	o, audits := newTestOrchestrator(t, Config{}, oracle)
	audit := createPendingAudit(t, audits)

	require.NoError(t, o.Run(context.Background(), audit.ID, "GDPR", testDocument))

	got, err := audits.Get(context.Background(), audit.ID)
	require.NoError(t, err)
	var result datatypes.OrchestrationResult
	require.NoError(t, json.Unmarshal(got.Report, &result))
	require.Len(t, result.Assessments, 1)
	assert.Equal(t, datatypes.StatusPartial, result.Assessments[0].Status)
	assert.Equal(t, 0.5, result.Assessments[0].Confidence)
	assert.Equal(t, datatypes.VerdictYellow, result.OverallVerdict)
}

func TestRun_UnknownFrameworkFailsTheAudit(t *testing.T) {
	o, audits := newTestOrchestrator(t, Config{}, &routingOracle{})
	audit := createPendingAudit(t, audits)

	err := o.Run(context.Background(), audit.ID, "HIPAA", testDocument)

	require.Error(t, err)
	got, getErr := audits.Get(context.Background(), audit.ID)
	require.NoError(t, getErr)
	assert.Equal(t, datatypes.AuditFailed, got.Status)
	assert.Contains(t, got.Error, "unknown framework")
	assert.False(t, got.Frozen())
}

func TestRun_EmptyDocumentFailsTheAudit(t *testing.T) {
	o, audits := newTestOrchestrator(t, Config{}, &routingOracle{
		planResponse: `{"requirement_ids": ["REQ-CONSENT"]}`,
	})
	audit := createPendingAudit(t, audits)

	err := o.Run(context.Background(), audit.ID, "GDPR", "   \n  ")

	require.Error(t, err)
	got, getErr := audits.Get(context.Background(), audit.ID)
	require.NoError(t, getErr)
	assert.Equal(t, datatypes.AuditFailed, got.Status)
}

func TestRun_PlannerFailureEvaluatesFullCatalog(t *testing.T) {
	oracle := &routingOracle{
		planErr: errors.New("rate limited"),
		assessResponses: map[string]string{
			"REQ-CONSENT": `{"requirement_id": "REQ-CONSENT", "status": "COMPLIANT", "confidence": 0.9,
				"evidence_quote": "We obtain explicit consent before processing personal data.",
				"reasoning": "Explicitly stated."}`,
			"REQ-ERASURE": `{"requirement_id": "REQ-ERASURE", "status": "PARTIAL", "confidence": 0.6,
				"evidence_quote": "Users may request erasure and we delete data within 30 days.",
				"reasoning": "Retention period for backups is not addressed."}`,
		},
	}
	o, audits := newTestOrchestrator(t, Config{}, oracle)
	audit := createPendingAudit(t, audits)

	require.NoError(t, o.Run(context.Background(), audit.ID, "GDPR", testDocument))

	got, err := audits.Get(context.Background(), audit.ID)
	require.NoError(t, err)
	var result datatypes.OrchestrationResult
	require.NoError(t, json.Unmarshal(got.Report, &result))
	assert.Len(t, result.Assessments, 2)
	assert.Equal(t, datatypes.VerdictYellow, result.OverallVerdict)
}

func TestRun_FrozenAuditCannotBeRerun(t *testing.T) {
	oracle := &routingOracle{
		planResponse: `{"requirement_ids": ["REQ-CONSENT"]}`,
		assessResponses: map[string]string{
			"REQ-CONSENT": `{"requirement_id": "REQ-CONSENT", "status": "COMPLIANT", "confidence": 0.9,
				"evidence_quote": "We obtain explicit consent before processing personal data.",
				"reasoning": "Explicitly stated."}`,
		},
	}
	o, audits := newTestOrchestrator(t, Config{}, oracle)
	audit := createPendingAudit(t, audits)
	require.NoError(t, o.Run(context.Background(), audit.ID, "GDPR", testDocument))

	first, err := audits.Get(context.Background(), audit.ID)
	require.NoError(t, err)
	require.True(t, first.Frozen())

	// A second run must be rejected without touching the frozen record.
	err = o.Run(context.Background(), audit.ID, "GDPR", testDocument)

	require.Error(t, err)
	second, getErr := audits.Get(context.Background(), audit.ID)
	require.NoError(t, getErr)
	assert.Equal(t, datatypes.AuditCompleted, second.Status)
	assert.Equal(t, first.Report, second.Report)
}

func TestRun_LegacyModeSkipsPlannerAndVerifier(t *testing.T) {
	oracle := &routingOracle{
		assessResponses: map[string]string{
			"REQ-CONSENT": `{"status": "COMPLIANT", "confidence": 0.8,
				"evidence_quote": "We obtain explicit consent before processing personal data.",
				"reasoning": "Stated."}`,
			"REQ-ERASURE": `{"status": "COMPLIANT", "confidence": 0.8,
				"evidence_quote": "Users may request erasure and we delete data within 30 days.",
				"reasoning": "Stated."}`,
		},
	}
	o, audits := newTestOrchestrator(t, Config{Mode: ModeLegacy}, oracle)
	audit := createPendingAudit(t, audits)

	require.NoError(t, o.Run(context.Background(), audit.ID, "GDPR", testDocument))

	for _, call := range oracle.calls {
		assert.NotEqual(t, "planner", call)
		assert.NotEqual(t, "verifier", call)
	}
	got, err := audits.Get(context.Background(), audit.ID)
	require.NoError(t, err)
	assert.Equal(t, datatypes.AuditCompleted, got.Status)

	var result datatypes.OrchestrationResult
	require.NoError(t, json.Unmarshal(got.Report, &result))
	assert.Equal(t, datatypes.VerdictGreen, result.OverallVerdict)
}
