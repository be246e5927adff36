// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/llm"
)

var hybridTracer = otel.Tracer("aleutian.audit.retrieval.hybrid")

// keywordBonus is added to a candidate's score per requirement keyword
// found in its text. Vector distance alone ranks semantic neighbors;
// the bonus pulls exact regulatory vocabulary ("erasure", "consent")
// above paraphrases of it.
const keywordBonus = 0.5

// HybridRetriever ranks segments by vector similarity against the
// requirement text, then re-ranks with a lexical keyword bonus. It is
// the preferred strategy whenever the segment index is reachable.
type HybridRetriever struct {
	client   *weaviate.Client
	embedder llm.Embedder
}

// Compile-time interface check.
var _ Retriever = (*HybridRetriever)(nil)

// NewHybridRetriever creates a retriever backed by the Weaviate segment
// index. The embedder must match the one used at indexing time.
func NewHybridRetriever(client *weaviate.Client, embedder llm.Embedder) (*HybridRetriever, error) {
	if client == nil {
		return nil, fmt.Errorf("weaviate client must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder must not be nil")
	}
	return &HybridRetriever{client: client, embedder: embedder}, nil
}

// Name identifies the strategy in evidence items and traces.
func (h *HybridRetriever) Name() string { return "hybrid" }

// Retrieve returns up to maxChunks evidence items for the requirement,
// scoped to the given audit. Segments carrying a section context are
// enriched with it so the assessor sees where a clause came from.
func (h *HybridRetriever) Retrieve(ctx context.Context, auditID uuid.UUID, req datatypes.Requirement, maxChunks int) (datatypes.EvidenceBundle, error) {
	ctx, span := hybridTracer.Start(ctx, "HybridRetriever.Retrieve")
	defer span.End()
	span.SetAttributes(
		attribute.String("audit.id", auditID.String()),
		attribute.String("requirement.id", req.ID),
	)

	if maxChunks <= 0 {
		maxChunks = DefaultMaxChunks
	}

	query := req.Title + ". " + req.Text
	vector, err := h.embedder.Embed(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query embedding failed")
		return datatypes.EvidenceBundle{}, fmt.Errorf("failed to embed requirement query: %w", err)
	}

	nearVector := h.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	fields := []graphql.Field{
		{Name: "segmentIndex"},
		{Name: "text"},
		{Name: "pages"},
		{Name: "sectionContext"},
		{Name: "_additional { distance }"},
	}

	// Fetch a wider candidate set than requested so the keyword
	// re-rank has something to work with.
	fetchLimit := maxChunks * 3

	result, err := h.client.GraphQL().Get().
		WithClassName(SegmentClassName).
		WithFields(fields...).
		WithWhere(auditFilter(auditID)).
		WithNearVector(nearVector).
		WithLimit(fetchLimit).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "vector search failed")
		return datatypes.EvidenceBundle{}, fmt.Errorf("vector search failed: %w", err)
	}
	if len(result.Errors) > 0 {
		return datatypes.EvidenceBundle{}, fmt.Errorf("vector search error: %s", result.Errors[0].Message)
	}

	items := h.parseAndRank(result, req)
	if len(items) > maxChunks {
		items = items[:maxChunks]
	}

	span.SetAttributes(attribute.Int("evidence.count", len(items)))
	slog.Debug("Hybrid retrieval complete",
		"audit_id", auditID,
		"requirement_id", req.ID,
		"count", len(items))

	return datatypes.EvidenceBundle{RequirementID: req.ID, Items: items}, nil
}

// parseAndRank converts a GraphQL response into scored evidence items,
// sorted best-first. Score is inverted distance plus keyword bonuses.
func (h *HybridRetriever) parseAndRank(result *models.GraphQLResponse, req datatypes.Requirement) []datatypes.EvidenceItem {
	get, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	objects, ok := get[SegmentClassName].([]interface{})
	if !ok {
		return nil
	}

	keywords := req.Keywords()
	items := make([]datatypes.EvidenceItem, 0, len(objects))

	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}

		seg := datatypes.Segment{}
		if v, ok := m["text"].(string); ok {
			seg.Text = v
		}
		if seg.Text == "" {
			continue
		}
		if v, ok := m["sectionContext"].(string); ok {
			seg.SectionContext = v
		}
		if v, ok := m["segmentIndex"].(float64); ok {
			seg.Index = int(v)
		}
		if raw, ok := m["pages"].([]interface{}); ok {
			for _, p := range raw {
				if pn, ok := p.(float64); ok {
					seg.Pages = append(seg.Pages, int(pn))
				}
			}
		}

		distance := 1.0
		if add, ok := m["_additional"].(map[string]interface{}); ok {
			if d, ok := add["distance"].(float64); ok {
				distance = d
			}
		}

		// Cosine distance is 0 for identical vectors, 2 for
		// opposite ones. Invert so higher is better.
		score := 1.0 / (1.0 + distance)

		lower := strings.ToLower(seg.Text)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				score += keywordBonus
			}
		}

		items = append(items, datatypes.EvidenceItem{
			Segment:  seg,
			Score:    score,
			Strategy: h.Name(),
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})
	return items
}

// auditFilter scopes queries and deletes to a single audit's segments.
func auditFilter(auditID uuid.UUID) *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{"auditId"}).
		WithOperator(filters.Equal).
		WithValueString(auditID.String())
}
