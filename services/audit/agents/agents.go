// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agents implements the LLM-backed agents of the audit pipeline:
// planner, assessor (reasoner), and verifier.
//
// Every agent has a distinct fail-safe default matching the asymmetry of
// its risk profile:
//
//   - Planner failure falls open toward recall: evaluate the whole
//     catalog rather than skip requirements.
//   - Assessor failure falls safe toward UNKNOWN at zero confidence: no
//     false COMPLIANT can come out of a broken call.
//   - Verifier failure approves the original assessment unchanged: a
//     broken check must not block the pipeline, and it also must not
//     invent a downgrade.
//
// Do not unify these fallbacks; the asymmetry is the safety design.
package agents

import (
	"strings"
)

// ExtractJSON trims common LLM decoration (markdown fences, leading
// prose) down to the outermost JSON object. Returns the input unchanged
// when no braces are found; the caller's Unmarshal will then fail and
// trigger the agent fallback.
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return raw
	}
	return raw[start : end+1]
}
