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
	"github.com/go-playground/validator/v10"
)

// MaxDocumentBytes caps the submitted document text. Policies and
// contracts fit comfortably; the cap exists to stop memory exhaustion
// through oversized payloads.
const MaxDocumentBytes = 2 * 1024 * 1024

// auditValidate is the shared validator for audit request types.
var auditValidate *validator.Validate

func init() {
	auditValidate = validator.New()
	_ = auditValidate.RegisterValidation("maxdocbytes", validateMaxDocBytes)
}

// validateMaxDocBytes checks byte length, not rune count; the cap
// guards allocation size.
func validateMaxDocBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxDocumentBytes
}

// SubmitAuditRequest is the body of POST /v1/audits.
//
// DocumentText is the extracted plain text of the document under audit,
// with optional form-feed page breaks. Framework names a catalog loaded
// at startup; submitting against an unknown framework is rejected before
// an audit record is created.
type SubmitAuditRequest struct {
	Filename     string `json:"filename" validate:"required,max=255"`
	Framework    string `json:"framework" validate:"required,max=100"`
	DocumentText string `json:"document_text" validate:"required,maxdocbytes"`
}

// Validate checks the request against its validation tags.
func (r *SubmitAuditRequest) Validate() error {
	return auditValidate.Struct(r)
}

// SubmitAuditResponse is the body returned for an accepted audit.
type SubmitAuditResponse struct {
	AuditID string `json:"audit_id"`
	Status  string `json:"status"`
}

// AuditStatusResponse is the body of GET /v1/audits/:id/status.
type AuditStatusResponse struct {
	AuditID  string  `json:"audit_id"`
	Filename string  `json:"filename"`
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
	Error    string  `json:"error,omitempty"`
}

// SnapshotVerifyResponse is the body of GET /v1/audits/:id/snapshot/verify.
// VerdictConsistent reports whether the stored overall verdict still
// derives from the stored per-requirement statuses.
type SnapshotVerifyResponse struct {
	AuditID           string `json:"audit_id"`
	QuotesIntact      bool   `json:"quotes_intact"`
	FingerprintOK     bool   `json:"fingerprint_ok"`
	VerdictConsistent bool   `json:"verdict_consistent"`
	SnapshotFrozen    bool   `json:"snapshot_frozen"`
}
