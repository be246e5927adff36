// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package verdict derives the overall audit verdict from per-requirement
// assessment statuses.
//
// Aggregation is a pure function of the status multiset and performs no
// external calls. The verdict stored with an audit report must always be
// re-derivable from the stored statuses; Recompute exists for exactly
// that audit-time check.
package verdict

import (
	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
)

// Aggregate maps the final per-requirement statuses to an overall verdict.
//
// Rules, in priority order:
//   - any NON_COMPLIANT -> RED
//   - else any PARTIAL or UNKNOWN -> YELLOW
//   - else (all COMPLIANT, list non-empty) -> GREEN
//
// An empty list yields YELLOW: an audit that evaluated nothing proved
// nothing, and must not read as a clean pass.
func Aggregate(statuses []datatypes.AssessmentStatus) datatypes.Verdict {
	if len(statuses) == 0 {
		return datatypes.VerdictYellow
	}
	sawCaution := false
	for _, s := range statuses {
		switch s {
		case datatypes.StatusNonCompliant:
			return datatypes.VerdictRed
		case datatypes.StatusPartial, datatypes.StatusUnknown:
			sawCaution = true
		}
	}
	if sawCaution {
		return datatypes.VerdictYellow
	}
	return datatypes.VerdictGreen
}

// FromAssessments aggregates directly over a list of assessments.
func FromAssessments(assessments []datatypes.Assessment) datatypes.Verdict {
	statuses := make([]datatypes.AssessmentStatus, len(assessments))
	for i, a := range assessments {
		statuses[i] = a.Status
	}
	return Aggregate(statuses)
}

// Recompute re-derives the verdict for a stored result and reports whether
// it matches the recorded one. A mismatch means the stored payload was
// altered after freezing.
func Recompute(result datatypes.OrchestrationResult) (datatypes.Verdict, bool) {
	derived := FromAssessments(result.Assessments)
	return derived, derived == result.OverallVerdict
}
