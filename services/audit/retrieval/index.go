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
	"crypto/sha256"
	"fmt"
	"log/slog"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/llm"
)

var indexTracer = otel.Tracer("aleutian.audit.retrieval.index")

// SegmentClassName is the Weaviate class holding document segments.
// Segments are scoped to their audit via the auditId property; an audit
// never sees another audit's segments.
const SegmentClassName = "AuditSegment"

// SegmentIndex manages the per-audit vector index in Weaviate.
type SegmentIndex struct {
	client   *weaviate.Client
	embedder llm.Embedder
}

// NewSegmentIndex creates an index over the given Weaviate client.
func NewSegmentIndex(client *weaviate.Client, embedder llm.Embedder) (*SegmentIndex, error) {
	if client == nil {
		return nil, fmt.Errorf("weaviate client must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder must not be nil")
	}
	return &SegmentIndex{client: client, embedder: embedder}, nil
}

// Available probes whether the vector index can serve queries. The
// orchestrator selects the hybrid strategy only when this returns true.
func (x *SegmentIndex) Available(ctx context.Context) bool {
	ready, err := x.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		slog.Warn("Weaviate readiness probe failed, lexical retrieval will be used", "error", err)
		return false
	}
	return ready
}

// EnsureSchema creates the segment class if it does not exist. Vectors
// are provided by us (vectorizer "none"); Weaviate only stores them.
func (x *SegmentIndex) EnsureSchema(ctx context.Context) error {
	ctx, span := indexTracer.Start(ctx, "SegmentIndex.EnsureSchema")
	defer span.End()

	exists, err := x.client.Schema().ClassExistenceChecker().
		WithClassName(SegmentClassName).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to check segment class existence: %w", err)
	}
	if exists {
		return nil
	}

	class := &models.Class{
		Class:       SegmentClassName,
		Description: "Document segments under audit, scoped by audit ID",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{Name: "auditId", DataType: []string{"text"}},
			{Name: "segmentIndex", DataType: []string{"int"}},
			{Name: "text", DataType: []string{"text"}},
			{Name: "pages", DataType: []string{"int[]"}},
			{Name: "sectionContext", DataType: []string{"text"}},
		},
	}
	if err := x.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "class creation failed")
		return fmt.Errorf("failed to create segment class: %w", err)
	}
	slog.Info("Created Weaviate segment class", "class", SegmentClassName)
	return nil
}

// IndexSegments embeds and batch-inserts the document segments for one
// audit. Object IDs derive from the audit ID and segment text, so
// re-indexing the same document is idempotent.
func (x *SegmentIndex) IndexSegments(ctx context.Context, auditID uuid.UUID, segments []datatypes.Segment) error {
	ctx, span := indexTracer.Start(ctx, "SegmentIndex.IndexSegments")
	defer span.End()
	span.SetAttributes(
		attribute.String("audit.id", auditID.String()),
		attribute.Int("segments.count", len(segments)),
	)

	if len(segments) == 0 {
		return fmt.Errorf("no segments to index for audit %s", auditID)
	}
	if err := x.EnsureSchema(ctx); err != nil {
		return err
	}

	objects := make([]*models.Object, len(segments))
	for i, seg := range segments {
		vector, err := x.embedder.Embed(ctx, seg.Text)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to embed segment %d: %w", seg.Index, err)
		}

		hash := sha256.Sum256([]byte(auditID.String() + seg.Text))
		objUUID, _ := uuid.FromBytes(hash[:16])

		pages := make([]int64, len(seg.Pages))
		for j, p := range seg.Pages {
			pages[j] = int64(p)
		}

		objects[i] = &models.Object{
			Class:  SegmentClassName,
			ID:     strfmt.UUID(objUUID.String()),
			Vector: vector,
			Properties: map[string]interface{}{
				"auditId":        auditID.String(),
				"segmentIndex":   seg.Index,
				"text":           seg.Text,
				"pages":          pages,
				"sectionContext": seg.SectionContext,
			},
		}
	}

	resp, err := x.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "batch import failed")
		return fmt.Errorf("failed to batch import segments: %w", err)
	}
	for _, obj := range resp {
		if obj.Result != nil && obj.Result.Errors != nil && len(obj.Result.Errors.Error) > 0 {
			return fmt.Errorf("segment import error: %s", obj.Result.Errors.Error[0].Message)
		}
	}

	slog.Info("Indexed segments into Weaviate", "audit_id", auditID, "segments", len(segments))
	return nil
}

// DropAudit deletes all indexed segments for an audit.
func (x *SegmentIndex) DropAudit(ctx context.Context, auditID uuid.UUID) error {
	ctx, span := indexTracer.Start(ctx, "SegmentIndex.DropAudit")
	defer span.End()

	_, err := x.client.Batch().ObjectsBatchDeleter().
		WithClassName(SegmentClassName).
		WithWhere(auditFilter(auditID)).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to drop segments for audit %s: %w", auditID, err)
	}
	return nil
}
