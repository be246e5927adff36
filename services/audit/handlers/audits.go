// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the HTTP endpoints of the audit service.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianAudit/pkg/validation"
	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/audit/pipeline"
	"github.com/AleutianAI/AleutianAudit/services/audit/snapshot"
	"github.com/AleutianAI/AleutianAudit/services/audit/store"
	"github.com/AleutianAI/AleutianAudit/services/audit/verdict"
)

// SubmitAudit accepts a document and starts its audit in the background.
//
// The response is 202 with the audit ID; consumers poll the status
// endpoint. The pipeline runs detached from the request context so a
// client disconnect does not abort a running audit.
func SubmitAudit(audits *store.AuditStore, catalogs *store.CatalogStore, orch *pipeline.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.SubmitAuditRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		framework, err := validation.SanitizeFrameworkName(req.Framework)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		req.Framework = framework
		if _, ok := catalogs.Catalog(req.Framework); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown framework: " + req.Framework})
			return
		}

		audit := datatypes.NewAudit(req.Filename)
		if err := audits.Create(c.Request.Context(), audit); err != nil {
			slog.Error("Failed to create audit record", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create audit"})
			return
		}

		go func() {
			// Detached on purpose: the audit outlives the HTTP request.
			if err := orch.Run(context.Background(), audit.ID, req.Framework, req.DocumentText); err != nil {
				slog.Error("Background audit failed", "audit_id", audit.ID, "error", err)
			}
		}()

		slog.Info("Audit accepted", "audit_id", audit.ID, "framework", req.Framework, "filename", req.Filename)
		c.JSON(http.StatusAccepted, datatypes.SubmitAuditResponse{
			AuditID: audit.ID.String(),
			Status:  string(audit.Status),
		})
	}
}

// GetAuditStatus reports the lifecycle state and progress of an audit.
func GetAuditStatus(audits *store.AuditStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		audit, ok := lookupAudit(c, audits)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, datatypes.AuditStatusResponse{
			AuditID:  audit.ID.String(),
			Filename: audit.Filename,
			Status:   string(audit.Status),
			Progress: audit.Progress,
			Error:    audit.Error,
		})
	}
}

// GetAuditReport returns the frozen report of a completed audit.
func GetAuditReport(audits *store.AuditStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		audit, ok := lookupAudit(c, audits)
		if !ok {
			return
		}
		switch audit.Status {
		case datatypes.AuditCompleted:
			c.Data(http.StatusOK, "application/json", audit.Report)
		case datatypes.AuditFailed:
			c.JSON(http.StatusConflict, gin.H{"error": "audit failed", "cause": audit.Error})
		default:
			c.JSON(http.StatusConflict, gin.H{
				"error":    "audit is not complete",
				"status":   string(audit.Status),
				"progress": audit.Progress,
			})
		}
	}
}

// GetAuditSnapshot exports the frozen snapshot of a completed audit.
// The default format is the archival JSON document; ?format=markdown
// renders the human-readable report instead.
func GetAuditSnapshot(audits *store.AuditStore, catalogs *store.CatalogStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		audit, ok := lookupAudit(c, audits)
		if !ok {
			return
		}
		if !audit.Frozen() {
			c.JSON(http.StatusConflict, gin.H{"error": "audit has no frozen snapshot"})
			return
		}

		var result datatypes.OrchestrationResult
		if err := json.Unmarshal(audit.Report, &result); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "stored report is unreadable"})
			return
		}
		var snap snapshot.Snapshot
		if err := json.Unmarshal(result.Metadata.Snapshot, &snap); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "stored snapshot is unreadable"})
			return
		}

		switch format := c.DefaultQuery("format", "json"); format {
		case "json":
			data, err := snapshot.ExportJSON(snap)
			if err != nil {
				slog.Error("Snapshot export failed", "audit_id", audit.ID, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to export snapshot"})
				return
			}
			c.Data(http.StatusOK, "application/json", data)
		case "markdown":
			// The catalog may have rotated since the audit froze; the
			// report then renders identifiers without titles.
			catalog, _ := catalogs.Catalog(snap.Framework.Name)
			c.Data(http.StatusOK, "text/markdown; charset=utf-8",
				[]byte(snapshot.RenderMarkdown(snap, catalog)))
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported format: " + format})
		}
	}
}

// VerifySnapshot re-checks the frozen snapshot of a completed audit:
// per-quote evidence hashes, the whole-snapshot fingerprint, and that
// the stored verdict still re-derives from the stored statuses.
func VerifySnapshot(audits *store.AuditStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		audit, ok := lookupAudit(c, audits)
		if !ok {
			return
		}
		if !audit.Frozen() {
			c.JSON(http.StatusConflict, gin.H{"error": "audit has no frozen snapshot"})
			return
		}

		var result datatypes.OrchestrationResult
		if err := json.Unmarshal(audit.Report, &result); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "stored report is unreadable"})
			return
		}
		var snap snapshot.Snapshot
		if err := json.Unmarshal(result.Metadata.Snapshot, &snap); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "stored snapshot is unreadable"})
			return
		}

		fingerprintOK, err := snapshot.VerifyFingerprint(snap)
		if err != nil {
			slog.Error("Fingerprint verification errored", "audit_id", audit.ID, "error", err)
			fingerprintOK = false
		}
		_, verdictConsistent := verdict.Recompute(result)

		c.JSON(http.StatusOK, datatypes.SnapshotVerifyResponse{
			AuditID:           audit.ID.String(),
			QuotesIntact:      snapshot.VerifyIntegrity(snap),
			FingerprintOK:     fingerprintOK,
			VerdictConsistent: verdictConsistent,
			SnapshotFrozen:    true,
		})
	}
}

// ListFrameworks returns the frameworks whose catalogs are loaded.
func ListFrameworks(catalogs *store.CatalogStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"frameworks": catalogs.Frameworks()})
	}
}

// HealthCheck reports service liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// lookupAudit parses the :id parameter and loads the record, writing
// the error response itself when either step fails.
func lookupAudit(c *gin.Context, audits *store.AuditStore) (*datatypes.Audit, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid audit id"})
		return nil, false
	}
	audit, err := audits.Get(c.Request.Context(), id)
	if err != nil {
		if store.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "audit not found"})
		} else {
			slog.Error("Failed to load audit record", "audit_id", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load audit"})
		}
		return nil, false
	}
	return audit, true
}
