// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/llm"
)

var plannerTracer = otel.Tracer("aleutian.audit.agents.planner")

const plannerSystemPrompt = "You are a compliance planning agent. " +
	"Your task is to identify which regulatory requirements are relevant " +
	"for evaluating the submitted document against the governing framework. " +
	"You must ONLY select from the provided requirement IDs. " +
	"You cannot invent new requirements."

// Planner selects the subset of the catalog relevant to the document
// under audit.
//
// Contract: the planner must not invent identifiers. Its prompt forbids
// invention, and independently of that, the orchestrator filters the
// returned plan against the catalog before evaluation proceeds. A failed
// or malformed planning call falls back to the full catalog.
type Planner struct {
	client llm.Client
}

// NewPlanner creates a planner backed by the given oracle client.
func NewPlanner(client llm.Client) *Planner {
	return &Planner{client: client}
}

// Plan selects requirements to evaluate from the catalog.
//
// The catalog must be non-empty; the orchestrator fails the audit before
// planning otherwise. The returned plan may still contain identifiers
// absent from the catalog when the oracle misbehaves; callers must filter
// it (datatypes.RequirementPlan.Filter) before use.
func (p *Planner) Plan(ctx context.Context, catalog datatypes.Catalog) datatypes.RequirementPlan {
	ctx, span := plannerTracer.Start(ctx, "Planner.Plan")
	defer span.End()
	span.SetAttributes(attribute.Int("catalog.size", len(catalog.Requirements)))

	var list strings.Builder
	for _, req := range catalog.Requirements {
		fmt.Fprintf(&list, "- %s: %s\n", req.ID, req.Title)
	}

	userPrompt := fmt.Sprintf(
		"Available Requirements:\n%s\n"+
			"Task: Select ALL requirement IDs that should be evaluated for this document. "+
			"Return a JSON object with this schema:\n"+
			"{\n"+
			"  \"requirement_ids\": [\"REQ-001\", \"REQ-002\", ...],\n"+
			"  \"reasoning\": \"Brief explanation\"\n"+
			"}",
		list.String(),
	)

	raw, err := p.client.GenerateJSON(ctx, plannerSystemPrompt, userPrompt)
	if err != nil {
		slog.Error("Planner agent failed, falling back to full catalog", "error", err)
		return datatypes.FullCatalogPlan(catalog,
			"Fallback: evaluating all requirements due to planner error")
	}

	var plan datatypes.RequirementPlan
	if err := json.Unmarshal([]byte(ExtractJSON(raw)), &plan); err != nil {
		slog.Error("Planner returned malformed output, falling back to full catalog", "error", err)
		return datatypes.FullCatalogPlan(catalog,
			"Fallback: evaluating all requirements due to malformed planner output")
	}
	if len(plan.RequirementIDs) == 0 {
		slog.Warn("Planner selected zero requirements, falling back to full catalog")
		return datatypes.FullCatalogPlan(catalog,
			"Fallback: planner selected no requirements")
	}

	span.SetAttributes(attribute.Int("plan.selected", len(plan.RequirementIDs)))
	slog.Info("Planner selected requirements", "count", len(plan.RequirementIDs))
	return plan
}
