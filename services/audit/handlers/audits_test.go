// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/audit/extract"
	"github.com/AleutianAI/AleutianAudit/services/audit/pipeline"
	"github.com/AleutianAI/AleutianAudit/services/audit/routes"
	"github.com/AleutianAI/AleutianAudit/services/audit/snapshot"
	"github.com/AleutianAI/AleutianAudit/services/audit/store"
	"github.com/AleutianAI/AleutianAudit/services/llm"
)

// downOracle fails every call. The agents' fail-safes turn that into
// full-catalog plans and UNKNOWN assessments, so audits still complete.
type downOracle struct{}

func (downOracle) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	return "", errors.New("oracle unavailable")
}

func (downOracle) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "", errors.New("oracle unavailable")
}

const catalogSeed = `
frameworks:
  - framework:
      name: GDPR
      version: "2016/679"
    requirements:
      - requirement_id: REQ-CONSENT
        title: Explicit Consent
        requirement_text: Processing requires explicit consent.
        risk_level: CRITICAL
`

func newTestRouter(t *testing.T) (*gin.Engine, *store.AuditStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := store.Open(store.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	audits, err := store.NewAuditStore(db)
	require.NoError(t, err)
	catalogs := store.NewCatalogStore()
	require.NoError(t, catalogs.Load([]byte(catalogSeed)))

	orch, err := pipeline.NewOrchestrator(pipeline.Config{},
		catalogs, audits, extract.NewSegmenter(0), pipeline.NewLexicalBackend(), downOracle{})
	require.NoError(t, err)

	router := gin.New()
	routes.SetupRoutes(router, audits, catalogs, orch)
	return router, audits
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSubmitAudit_AcceptsAndEventuallyCompletes(t *testing.T) {
	// Arrange
	router, _ := newTestRouter(t)
	body := `{"filename": "policy.txt", "framework": "GDPR",
		"document_text": "We obtain explicit consent before processing."}`

	// Act
	w := doRequest(router, http.MethodPost, "/v1/audits", body)

	// Assert
	require.Equal(t, http.StatusAccepted, w.Code)
	var accepted datatypes.SubmitAuditResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted.AuditID)
	assert.Equal(t, string(datatypes.AuditPending), accepted.Status)

	// The audit runs in the background; poll status until terminal.
	statusPath := "/v1/audits/" + accepted.AuditID + "/status"
	require.Eventually(t, func() bool {
		sw := doRequest(router, http.MethodGet, statusPath, "")
		if sw.Code != http.StatusOK {
			return false
		}
		var status datatypes.AuditStatusResponse
		if err := json.Unmarshal(sw.Body.Bytes(), &status); err != nil {
			return false
		}
		return status.Status == string(datatypes.AuditCompleted)
	}, 5*time.Second, 20*time.Millisecond)

	// With the oracle down, every assessment is UNKNOWN: YELLOW report.
	rw := doRequest(router, http.MethodGet, "/v1/audits/"+accepted.AuditID+"/report", "")
	require.Equal(t, http.StatusOK, rw.Code)
	var result datatypes.OrchestrationResult
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &result))
	assert.Equal(t, datatypes.VerdictYellow, result.OverallVerdict)
	require.Len(t, result.Assessments, 1)
	assert.Equal(t, datatypes.StatusUnknown, result.Assessments[0].Status)

	// The frozen snapshot verifies cleanly.
	vw := doRequest(router, http.MethodGet, "/v1/audits/"+accepted.AuditID+"/snapshot/verify", "")
	require.Equal(t, http.StatusOK, vw.Code)
	var verify datatypes.SnapshotVerifyResponse
	require.NoError(t, json.Unmarshal(vw.Body.Bytes(), &verify))
	assert.True(t, verify.QuotesIntact)
	assert.True(t, verify.FingerprintOK)
	assert.True(t, verify.VerdictConsistent)
	assert.True(t, verify.SnapshotFrozen)
}

// completeAudit submits a document and polls until the background audit
// reaches COMPLETED, returning the audit ID.
func completeAudit(t *testing.T, router *gin.Engine) string {
	t.Helper()
	body := `{"filename": "policy.txt", "framework": "GDPR",
		"document_text": "We obtain explicit consent before processing."}`
	w := doRequest(router, http.MethodPost, "/v1/audits", body)
	require.Equal(t, http.StatusAccepted, w.Code)
	var accepted datatypes.SubmitAuditResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &accepted))

	statusPath := "/v1/audits/" + accepted.AuditID + "/status"
	require.Eventually(t, func() bool {
		sw := doRequest(router, http.MethodGet, statusPath, "")
		if sw.Code != http.StatusOK {
			return false
		}
		var status datatypes.AuditStatusResponse
		if err := json.Unmarshal(sw.Body.Bytes(), &status); err != nil {
			return false
		}
		return status.Status == string(datatypes.AuditCompleted)
	}, 5*time.Second, 20*time.Millisecond)
	return accepted.AuditID
}

func TestVerifySnapshot_DetectsAlteredVerdict(t *testing.T) {
	// Arrange: complete an audit, then rewrite the stored verdict to a
	// value the stored statuses cannot produce. The snapshot payload is
	// untouched, so the fingerprint still verifies.
	router, audits := newTestRouter(t)
	auditID := completeAudit(t, router)

	id, err := uuid.Parse(auditID)
	require.NoError(t, err)
	_, err = audits.Update(context.Background(), id, func(a *datatypes.Audit) error {
		var result datatypes.OrchestrationResult
		if err := json.Unmarshal(a.Report, &result); err != nil {
			return err
		}
		result.OverallVerdict = datatypes.VerdictGreen
		altered, err := json.Marshal(result)
		if err != nil {
			return err
		}
		a.Report = altered
		return nil
	})
	require.NoError(t, err)

	// Act
	w := doRequest(router, http.MethodGet, "/v1/audits/"+auditID+"/snapshot/verify", "")

	// Assert
	require.Equal(t, http.StatusOK, w.Code)
	var verify datatypes.SnapshotVerifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &verify))
	assert.False(t, verify.VerdictConsistent)
	assert.True(t, verify.QuotesIntact)
	assert.True(t, verify.FingerprintOK)
}

func TestSubmitAudit_RejectsBadRequests(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		name string
		body string
	}{
		{"not json", "not json at all"},
		{"missing filename", `{"framework": "GDPR", "document_text": "x"}`},
		{"missing framework", `{"filename": "a.txt", "document_text": "x"}`},
		{"missing document", `{"filename": "a.txt", "framework": "GDPR"}`},
		{"unknown framework", `{"filename": "a.txt", "framework": "HIPAA", "document_text": "x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(router, http.MethodPost, "/v1/audits", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestGetAuditStatus_InvalidAndMissingIDs(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/v1/audits/not-a-uuid/status", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(router, http.MethodGet, "/v1/audits/0badc0de-0000-4000-8000-000000000000/status", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetAuditReport_PendingAuditConflicts(t *testing.T) {
	router, audits := newTestRouter(t)
	audit := datatypes.NewAudit("stuck.txt")
	require.NoError(t, audits.Create(context.Background(), audit))

	w := doRequest(router, http.MethodGet, "/v1/audits/"+audit.ID.String()+"/report", "")

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "not complete")
}

func TestGetAuditSnapshot_ExportsJSONAndMarkdown(t *testing.T) {
	// Arrange
	router, _ := newTestRouter(t)
	auditID := completeAudit(t, router)

	// Act: default format is the archival JSON document.
	jw := doRequest(router, http.MethodGet, "/v1/audits/"+auditID+"/snapshot", "")

	// Assert
	require.Equal(t, http.StatusOK, jw.Code)
	assert.Contains(t, jw.Header().Get("Content-Type"), "application/json")
	var snap snapshot.Snapshot
	require.NoError(t, json.Unmarshal(jw.Body.Bytes(), &snap))
	assert.Equal(t, auditID, snap.AuditID)
	assert.NotEmpty(t, snap.Fingerprint)
	assert.True(t, snapshot.VerifyIntegrity(snap))

	// The markdown rendering carries the report sections and the
	// catalog-joined requirement title.
	mw := doRequest(router, http.MethodGet, "/v1/audits/"+auditID+"/snapshot?format=markdown", "")
	require.Equal(t, http.StatusOK, mw.Code)
	assert.Contains(t, mw.Header().Get("Content-Type"), "text/markdown")
	body := mw.Body.String()
	assert.Contains(t, body, "# Compliance Audit Report")
	assert.Contains(t, body, "OVERALL VERDICT: YELLOW")
	assert.Contains(t, body, "Explicit Consent")
	assert.Contains(t, body, "Fingerprint: "+snap.Fingerprint)
}

func TestGetAuditSnapshot_RejectsUnknownFormat(t *testing.T) {
	router, _ := newTestRouter(t)
	auditID := completeAudit(t, router)

	w := doRequest(router, http.MethodGet, "/v1/audits/"+auditID+"/snapshot?format=pdf", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unsupported format")
}

func TestGetAuditSnapshot_RequiresFrozenReport(t *testing.T) {
	router, audits := newTestRouter(t)
	audit := datatypes.NewAudit("fresh.txt")
	require.NoError(t, audits.Create(context.Background(), audit))

	w := doRequest(router, http.MethodGet, "/v1/audits/"+audit.ID.String()+"/snapshot", "")

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestVerifySnapshot_RequiresFrozenReport(t *testing.T) {
	router, audits := newTestRouter(t)
	audit := datatypes.NewAudit("fresh.txt")
	require.NoError(t, audits.Create(context.Background(), audit))

	w := doRequest(router, http.MethodGet, "/v1/audits/"+audit.ID.String()+"/snapshot/verify", "")

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestListFrameworks_ReturnsLoadedCatalogs(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/v1/frameworks", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "GDPR")
}

func TestHealthCheck_ReturnsOK(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}
