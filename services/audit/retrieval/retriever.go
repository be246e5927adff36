// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retrieval finds candidate evidence segments for each
// requirement under audit.
//
// Two strategies implement one capability interface and are selected once
// per audit by index availability, not by conditionals scattered through
// the pipeline:
//
//   - HybridRetriever (preferred): semantic similarity over the Weaviate
//     index plus a lexical match bonus.
//   - LexicalRetriever (fallback): pure keyword scoring over the
//     in-memory segment list, for constrained environments without a
//     vector index.
//
// Either way the output is an EvidenceBundle; an empty bundle is a
// legitimate outcome meaning the requirement is unaddressed.
package retrieval

import (
	"context"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
)

// DefaultMaxChunks is the default top-K bundle size.
const DefaultMaxChunks = 4

// Retriever is the capability interface both strategies implement.
type Retriever interface {
	// Retrieve returns the ranked evidence bundle for one requirement.
	// maxChunks <= 0 selects DefaultMaxChunks.
	Retrieve(ctx context.Context, auditID uuid.UUID, requirement datatypes.Requirement, maxChunks int) (datatypes.EvidenceBundle, error)

	// Name identifies the strategy for tracing ("hybrid", "lexical").
	Name() string
}
