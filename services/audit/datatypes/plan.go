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

// RequirementPlan is the planner's selection of requirements to evaluate.
//
// The planner may only select identifiers present in the catalog it was
// shown. The orchestrator filters out anything else before evaluation, so
// a plan holding invented identifiers never reaches the assessor
// (defense in depth: the planner prompt also forbids invention).
type RequirementPlan struct {
	// RequirementIDs is the ordered list of catalog identifiers to
	// evaluate. Evaluation results are reported in this order.
	RequirementIDs []string `json:"requirement_ids"`

	// Reasoning is the planner's optional explanation of the selection.
	Reasoning string `json:"reasoning,omitempty"`
}

// Filter returns a copy of the plan restricted to identifiers in valid,
// plus the identifiers that were removed. Filtering is idempotent.
func (p RequirementPlan) Filter(valid map[string]bool) (RequirementPlan, []string) {
	kept := make([]string, 0, len(p.RequirementIDs))
	var dropped []string
	seen := make(map[string]bool)
	for _, id := range p.RequirementIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if valid[id] {
			kept = append(kept, id)
		} else {
			dropped = append(dropped, id)
		}
	}
	return RequirementPlan{RequirementIDs: kept, Reasoning: p.Reasoning}, dropped
}

// FullCatalogPlan builds the fail-open plan selecting every requirement.
// Used when the planning call fails or returns malformed output: planner
// failure errs toward over-inclusion, never toward skipping requirements.
func FullCatalogPlan(catalog Catalog, reason string) RequirementPlan {
	ids := make([]string, len(catalog.Requirements))
	for i, req := range catalog.Requirements {
		ids[i] = req.ID
	}
	return RequirementPlan{RequirementIDs: ids, Reasoning: reason}
}
