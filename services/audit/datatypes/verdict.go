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

// Verdict is the three-level overall compliance signal for an audit.
//
// It is always derivable from the stored per-requirement statuses via
// verdict.Aggregate; it is never an independent source of truth.
type Verdict string

const (
	// VerdictRed means at least one requirement is NON_COMPLIANT.
	VerdictRed Verdict = "RED"

	// VerdictYellow means no NON_COMPLIANT requirement exists but at
	// least one is PARTIAL or UNKNOWN.
	VerdictYellow Verdict = "YELLOW"

	// VerdictGreen means every evaluated requirement is COMPLIANT.
	VerdictGreen Verdict = "GREEN"
)
