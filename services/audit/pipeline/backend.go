// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/audit/retrieval"
)

// EvidenceBackend pairs a segment index with the retriever that reads it.
// The orchestrator treats indexing and retrieval as one concern; which
// backend serves an audit is decided once, at startup.
type EvidenceBackend interface {
	// Index registers the document segments for an audit.
	Index(ctx context.Context, auditID uuid.UUID, segments []datatypes.Segment) error

	// Retriever returns the retriever reading this backend's index.
	Retriever() retrieval.Retriever

	// Drop releases everything indexed for an audit.
	Drop(ctx context.Context, auditID uuid.UUID) error
}

// LexicalBackend serves retrieval from in-memory keyword matching.
// Used when the vector index is unreachable.
type LexicalBackend struct {
	retriever *retrieval.LexicalRetriever
}

var _ EvidenceBackend = (*LexicalBackend)(nil)

// NewLexicalBackend creates a backend over a fresh lexical retriever.
func NewLexicalBackend() *LexicalBackend {
	return &LexicalBackend{retriever: retrieval.NewLexicalRetriever()}
}

func (b *LexicalBackend) Index(_ context.Context, auditID uuid.UUID, segments []datatypes.Segment) error {
	b.retriever.IndexSegments(auditID, segments)
	return nil
}

func (b *LexicalBackend) Retriever() retrieval.Retriever {
	return b.retriever
}

func (b *LexicalBackend) Drop(_ context.Context, auditID uuid.UUID) error {
	b.retriever.DropAudit(auditID)
	return nil
}

// VectorBackend serves retrieval from the Weaviate segment index.
type VectorBackend struct {
	index     *retrieval.SegmentIndex
	retriever *retrieval.HybridRetriever
}

var _ EvidenceBackend = (*VectorBackend)(nil)

// NewVectorBackend pairs a segment index with its hybrid retriever.
func NewVectorBackend(index *retrieval.SegmentIndex, retriever *retrieval.HybridRetriever) *VectorBackend {
	return &VectorBackend{index: index, retriever: retriever}
}

func (b *VectorBackend) Index(ctx context.Context, auditID uuid.UUID, segments []datatypes.Segment) error {
	return b.index.IndexSegments(ctx, auditID, segments)
}

func (b *VectorBackend) Retriever() retrieval.Retriever {
	return b.retriever
}

func (b *VectorBackend) Drop(ctx context.Context, auditID uuid.UUID) error {
	return b.index.DropAudit(ctx, auditID)
}

// SelectBackend picks the vector backend when its index answers the
// readiness probe, falling back to lexical retrieval otherwise. A nil
// vector backend always selects lexical.
func SelectBackend(ctx context.Context, index *retrieval.SegmentIndex, vector *VectorBackend) EvidenceBackend {
	if index != nil && vector != nil && index.Available(ctx) {
		slog.Info("Evidence retrieval using vector index")
		return vector
	}
	slog.Info("Evidence retrieval using lexical fallback")
	return NewLexicalBackend()
}
