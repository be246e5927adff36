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
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
)

var lexicalTracer = otel.Tracer("aleutian.audit.retrieval.lexical")

// lengthBonusCap caps the length bonus so a segment of 500+ characters
// earns the full bonus of 1.0. The bonus prefers substantive segments
// over fragmentary ones without letting length dominate keyword hits.
const lengthBonusCap = 500

var _ Retriever = (*LexicalRetriever)(nil)

// LexicalRetriever scores segments by keyword hits, without embeddings.
//
// Used when the vector index is unavailable (constrained test
// environments, degraded deployments). Segments are held in memory per
// audit; the corpus of one document comfortably fits.
type LexicalRetriever struct {
	mu       sync.RWMutex
	segments map[uuid.UUID][]datatypes.Segment
}

// NewLexicalRetriever creates an empty lexical retriever.
func NewLexicalRetriever() *LexicalRetriever {
	return &LexicalRetriever{segments: make(map[uuid.UUID][]datatypes.Segment)}
}

// Name implements the Retriever interface.
func (r *LexicalRetriever) Name() string { return "lexical" }

// IndexSegments registers the document segments for an audit. Scan order
// is preserved; it is the tie-breaker during ranking.
func (r *LexicalRetriever) IndexSegments(auditID uuid.UUID, segments []datatypes.Segment) {
	r.mu.Lock()
	r.segments[auditID] = segments
	r.mu.Unlock()
	slog.Info("Indexed segments for lexical retrieval", "audit_id", auditID, "segments", len(segments))
}

// DropAudit releases the segments held for an audit.
func (r *LexicalRetriever) DropAudit(auditID uuid.UUID) {
	r.mu.Lock()
	delete(r.segments, auditID)
	r.mu.Unlock()
}

// Retrieve implements the Retriever interface.
//
// Each segment scores the count of requirement keywords it contains plus
// a length bonus of min(len, 500)/500. Ties break by original scan order.
// When zero segments match any keyword, the bundle widens to an unranked
// sample of the document's first segments rather than returning nothing:
// a small document is better read head-first than not at all.
func (r *LexicalRetriever) Retrieve(ctx context.Context, auditID uuid.UUID, requirement datatypes.Requirement, maxChunks int) (datatypes.EvidenceBundle, error) {
	_, span := lexicalTracer.Start(ctx, "LexicalRetriever.Retrieve")
	defer span.End()
	span.SetAttributes(attribute.String("requirement.id", requirement.ID))

	if maxChunks <= 0 {
		maxChunks = DefaultMaxChunks
	}

	r.mu.RLock()
	segments := r.segments[auditID]
	r.mu.RUnlock()

	keywords := requirement.Keywords()

	type scored struct {
		segment datatypes.Segment
		score   float64
	}
	var matches []scored
	for _, seg := range segments {
		text := strings.ToLower(seg.Text)
		hits := 0
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		length := len(text)
		if length > lengthBonusCap {
			length = lengthBonusCap
		}
		matches = append(matches, scored{
			segment: seg,
			score:   float64(hits) + float64(length)/float64(lengthBonusCap),
		})
	}

	bundle := datatypes.EvidenceBundle{RequirementID: requirement.ID}

	if len(matches) == 0 {
		// Wide-net fallback: sample the head of the document unranked.
		strategy := "lexical_wide"
		for i, seg := range segments {
			if i >= maxChunks {
				break
			}
			bundle.Items = append(bundle.Items, datatypes.EvidenceItem{
				Segment: seg, Score: 0.0, Strategy: strategy,
			})
		}
		span.SetAttributes(
			attribute.Int("evidence.chunks", len(bundle.Items)),
			attribute.Bool("evidence.widened", true),
		)
		return bundle, nil
	}

	// Stable sort keeps scan order for equal scores.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})
	if len(matches) > maxChunks {
		matches = matches[:maxChunks]
	}
	for _, m := range matches {
		bundle.Items = append(bundle.Items, datatypes.EvidenceItem{
			Segment: m.segment, Score: m.score, Strategy: "lexical",
		})
	}

	span.SetAttributes(attribute.Int("evidence.chunks", len(bundle.Items)))
	return bundle, nil
}
