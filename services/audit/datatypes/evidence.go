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

import "fmt"

// =============================================================================
// Document Segments
// =============================================================================

// Segment is one extracted text unit of the document under audit.
//
// Segments are produced by the extraction stage and indexed for retrieval.
// They carry page and section metadata so every assessment can be traced
// back to a location in the source document.
type Segment struct {
	// Index is the segment's position in original scan order.
	Index int `json:"index"`

	// Text is the segment content.
	Text string `json:"text"`

	// Pages lists the page numbers the segment spans (1-based).
	Pages []int `json:"pages"`

	// SectionContext is the enclosing section heading chain
	// (e.g., "Section 4 > 4.1 Data Retention"). May be empty.
	SectionContext string `json:"section_context,omitempty"`
}

// Enriched returns the segment text prefixed with its section context,
// the form handed to the assessment oracle.
func (s Segment) Enriched() string {
	if s.SectionContext == "" {
		return s.Text
	}
	return fmt.Sprintf("[Context: %s]\n%s", s.SectionContext, s.Text)
}

// =============================================================================
// Evidence Bundle
// =============================================================================

// EvidenceItem is one retrieved segment with its relevance score.
type EvidenceItem struct {
	Segment Segment `json:"segment"`

	// Score is the retrieval relevance score. Semantics depend on the
	// strategy that produced it; scores are comparable only within one
	// bundle.
	Score float64 `json:"score"`

	// Strategy names the retrieval strategy that selected this item
	// ("hybrid", "lexical", "lexical_wide").
	Strategy string `json:"strategy"`
}

// EvidenceBundle is the ranked evidence retrieved for one requirement.
//
// An empty Items slice is a legitimate, meaningful outcome: the document
// does not address the requirement at all.
type EvidenceBundle struct {
	RequirementID string         `json:"requirement_id"`
	Items         []EvidenceItem `json:"items"`
}

// Empty reports whether no evidence was retrieved.
func (b EvidenceBundle) Empty() bool {
	return len(b.Items) == 0
}

// Chunks returns the enriched text of each item, in rank order.
func (b EvidenceBundle) Chunks() []string {
	chunks := make([]string, len(b.Items))
	for i, item := range b.Items {
		chunks[i] = item.Segment.Enriched()
	}
	return chunks
}

// Pages returns the deduplicated page numbers across all items,
// preserving first-seen order.
func (b EvidenceBundle) Pages() []int {
	seen := make(map[int]bool)
	var pages []int
	for _, item := range b.Items {
		for _, p := range item.Segment.Pages {
			if !seen[p] {
				seen[p] = true
				pages = append(pages, p)
			}
		}
	}
	return pages
}
