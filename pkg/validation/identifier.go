// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation for identifiers that
// reach storage keys and vector index filters.
//
// Requirement IDs and framework names flow from seed files and HTTP
// requests into Badger keys and Weaviate where-filters. Validating
// them at the boundary keeps malformed or hostile identifiers out of
// those layers.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// requirementIDPattern matches catalog requirement identifiers.
// Allows: uppercase letters, digits, dots and hyphens (GDPR-ART-17,
// CCPA-1798.100). Max length: 64 characters.
var requirementIDPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,63}$`)

// frameworkNamePattern matches framework names used as catalog keys.
// Allows: letters, digits, spaces, dots and hyphens, up to 100
// characters (GDPR, CCPA, "ISO 27001").
var frameworkNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 .\-]{0,99}$`)

// ValidateRequirementID checks a catalog requirement identifier.
//
// Valid IDs are 1-64 characters of uppercase alphanumerics, dots,
// and hyphens, starting with an alphanumeric. The ID appears in
// report payloads and index filters verbatim, so the format is
// enforced at seed time.
func ValidateRequirementID(id string) error {
	if id == "" {
		return fmt.Errorf("requirement ID cannot be empty")
	}
	if !requirementIDPattern.MatchString(id) {
		return fmt.Errorf("invalid requirement ID %q (must be 1-64 uppercase alphanumeric chars, dots, or hyphens)", id)
	}
	return nil
}

// ValidateFrameworkName checks a framework name.
func ValidateFrameworkName(name string) error {
	if name == "" {
		return fmt.Errorf("framework name cannot be empty")
	}
	if !frameworkNamePattern.MatchString(name) {
		return fmt.Errorf("invalid framework name %q (must be 1-100 alphanumeric chars, spaces, dots, or hyphens)", name)
	}
	return nil
}

// SanitizeFrameworkName trims and validates a framework name from an
// HTTP request before it is used as a catalog lookup key.
func SanitizeFrameworkName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if err := ValidateFrameworkName(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}
