// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the data contracts shared by the audit pipeline.
//
// This package contains the domain types that flow between the planner,
// retriever, assessor, verifier, and snapshotter. Types here carry no
// behavior beyond validation and small derivation helpers; business logic
// lives in the owning services.
//
// All types are designed to be JSON-serializable because the audit report
// payload is persisted verbatim and exported to external consumers.
package datatypes

import (
	"fmt"
	"strings"
)

// =============================================================================
// Risk Levels
// =============================================================================

// RiskLevel classifies the severity of a compliance requirement.
//
// Levels are ordered: LOW < MEDIUM < HIGH < CRITICAL. The ordering is
// informational for reporting; verdict aggregation does not weight by risk.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// riskOrder maps each level to its rank for comparisons.
var riskOrder = map[RiskLevel]int{
	RiskLow:      0,
	RiskMedium:   1,
	RiskHigh:     2,
	RiskCritical: 3,
}

// Valid reports whether the level is one of the known values.
func (r RiskLevel) Valid() bool {
	_, ok := riskOrder[r]
	return ok
}

// AtLeast reports whether the level ranks at or above other.
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return riskOrder[r] >= riskOrder[other]
}

// =============================================================================
// Requirement Catalog Types
// =============================================================================

// Requirement is a single regulatory obligation from the catalog.
//
// Requirements are immutable once seeded. The ID is the stable identifier
// used throughout the pipeline; the numeric database key is an
// implementation detail of the catalog store.
type Requirement struct {
	// ID is the stable catalog identifier (e.g., "REQ-001").
	ID string `json:"requirement_id" yaml:"requirement_id" validate:"required"`

	// Title is a short human-readable name.
	Title string `json:"title" yaml:"title" validate:"required"`

	// Text is the full obligation text evaluated against the document.
	Text string `json:"requirement_text" yaml:"requirement_text" validate:"required"`

	// SectionRef points to the statutory section (e.g., "Section 6(1)").
	SectionRef string `json:"section_ref" yaml:"section_ref"`

	// RiskLevel classifies the severity of non-compliance.
	RiskLevel RiskLevel `json:"risk_level" yaml:"risk_level" validate:"required"`
}

// Keywords derives lowercase retrieval keywords from the requirement title.
//
// The keyword set drives lexical retrieval scoring. Derivation from the
// title mirrors how the catalog is curated: titles name the obligation in
// the vocabulary documents actually use ("consent", "erasure", "grievance").
func (r Requirement) Keywords() []string {
	fields := strings.Fields(strings.ToLower(r.Title))
	keywords := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:()[]\"'")
		if f != "" {
			keywords = append(keywords, f)
		}
	}
	return keywords
}

// Validate checks the requirement for structural completeness.
func (r Requirement) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("requirement is missing an ID")
	}
	if r.Title == "" {
		return fmt.Errorf("requirement %s is missing a title", r.ID)
	}
	if r.Text == "" {
		return fmt.Errorf("requirement %s is missing obligation text", r.ID)
	}
	if !r.RiskLevel.Valid() {
		return fmt.Errorf("requirement %s has unknown risk level %q", r.ID, r.RiskLevel)
	}
	return nil
}

// Framework identifies the regulatory framework a catalog belongs to.
type Framework struct {
	Name          string `json:"name" yaml:"name" validate:"required"`
	Version       string `json:"version" yaml:"version" validate:"required"`
	EffectiveDate string `json:"effective_date" yaml:"effective_date"`
	Description   string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Catalog is an immutable set of requirements for one framework.
type Catalog struct {
	Framework    Framework     `json:"framework" yaml:"framework"`
	Requirements []Requirement `json:"requirements" yaml:"requirements"`
}

// ByID returns the requirement with the given identifier, if present.
func (c Catalog) ByID(id string) (Requirement, bool) {
	for _, req := range c.Requirements {
		if req.ID == id {
			return req, true
		}
	}
	return Requirement{}, false
}

// IDSet returns the set of valid requirement identifiers.
func (c Catalog) IDSet() map[string]bool {
	ids := make(map[string]bool, len(c.Requirements))
	for _, req := range c.Requirements {
		ids[req.ID] = true
	}
	return ids
}
