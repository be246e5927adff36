// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extract turns raw document text into layout-aware segments.
//
// Documents arrive as plain text with optional form-feed page breaks
// (the convention PDF-to-text converters emit). The segmenter detects
// section headings, propagates them as section context onto following
// paragraphs, groups paragraphs into segments of bounded size, and
// records the page span of every segment. Oversized paragraphs fall
// back to a recursive character splitter.
package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
)

var segmenterTracer = otel.Tracer("aleutian.audit.extract")

const (
	// DefaultMaxSegmentChars bounds a segment's size. Segments feed LLM
	// prompts; past this size the extra text dilutes more than it informs.
	DefaultMaxSegmentChars = 1500

	// splitterOverlap is carried between sub-chunks when a single
	// paragraph exceeds the segment bound.
	splitterOverlap = 150
)

// Heading heuristics for regulatory and corporate policy documents.
var (
	// "Section 3", "Article 17(2)", "Clause 4.1", "Part II" style headings.
	namedHeadingRe = regexp.MustCompile(`(?i)^(section|article|clause|part|chapter|appendix|annex|schedule)\s+([0-9IVXLC]+[0-9a-zA-Z.()]*)\s*[:.\-–]?\s*(.*)$`)

	// "4.", "4.2", "4.2.1 Data Retention" style numbered headings. The
	// uppercase-letter requirement keeps ordinary numbered list items out.
	numberedHeadingRe = regexp.MustCompile(`^\d+(\.\d+)*\.?\s+[A-Z].{0,120}$`)

	// Markdown headings, since policies are often authored in Markdown.
	markdownHeadingRe = regexp.MustCompile(`^#{1,6}\s+(.+)$`)
)

// Segmenter groups document text into section-aware segments.
type Segmenter struct {
	maxChars int
	splitter textsplitter.TextSplitter
}

// NewSegmenter creates a segmenter with the given size bound.
// A non-positive bound selects DefaultMaxSegmentChars.
func NewSegmenter(maxChars int) *Segmenter {
	if maxChars <= 0 {
		maxChars = DefaultMaxSegmentChars
	}
	return &Segmenter{
		maxChars: maxChars,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(maxChars),
			textsplitter.WithChunkOverlap(splitterOverlap),
			textsplitter.WithSeparators([]string{"\n\n", "\n", ". ", " ", ""}),
		),
	}
}

// Segment splits raw document text into ordered segments.
//
// Form feeds ("\f") mark page boundaries; a document without them is a
// single page. Heading lines update the section context carried by the
// paragraphs that follow, and are themselves prepended to the next
// segment so the heading text remains searchable.
func (s *Segmenter) Segment(ctx context.Context, text string) ([]datatypes.Segment, error) {
	_, span := segmenterTracer.Start(ctx, "Segmenter.Segment")
	defer span.End()

	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("document contains no extractable text")
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")

	var (
		segments []datatypes.Segment
		buf      strings.Builder
		bufPages []int
		section  string
		page     = 1
	)

	flush := func() {
		body := strings.TrimSpace(buf.String())
		buf.Reset()
		pages := bufPages
		bufPages = nil
		if body == "" {
			return
		}
		for _, piece := range s.split(body) {
			segments = append(segments, datatypes.Segment{
				Index:          len(segments),
				Text:           piece,
				Pages:          append([]int(nil), pages...),
				SectionContext: section,
			})
		}
	}

	notePage := func() {
		if len(bufPages) == 0 || bufPages[len(bufPages)-1] != page {
			bufPages = append(bufPages, page)
		}
	}

	for _, rawLine := range strings.Split(text, "\n") {
		// A form feed ends the current page; text after it belongs to
		// the next one.
		for strings.Contains(rawLine, "\f") {
			before, after, _ := strings.Cut(rawLine, "\f")
			if trimmed := strings.TrimSpace(before); trimmed != "" {
				notePage()
				buf.WriteString(trimmed)
				buf.WriteString("\n")
			}
			page++
			rawLine = after
		}

		line := strings.TrimSpace(rawLine)

		if line == "" {
			// Paragraph boundary. Flush only once the segment has
			// grown past the bound, so short paragraphs group.
			if buf.Len() >= s.maxChars {
				flush()
			} else if buf.Len() > 0 {
				buf.WriteString("\n")
			}
			continue
		}

		if heading, ok := headingOf(line); ok {
			flush()
			section = heading
		}

		notePage()
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	flush()

	if len(segments) == 0 {
		return nil, fmt.Errorf("document contains no extractable text")
	}

	span.SetAttributes(
		attribute.Int("segments.count", len(segments)),
		attribute.Int("pages.count", page),
	)
	return segments, nil
}

// split breaks an oversized body into splitter chunks; bodies within
// the bound pass through untouched.
func (s *Segmenter) split(body string) []string {
	if len(body) <= s.maxChars {
		return []string{body}
	}
	chunks, err := s.splitter.SplitText(body)
	if err != nil || len(chunks) == 0 {
		// The splitter only fails on pathological separator configs;
		// keep the oversized body rather than dropping text.
		return []string{body}
	}
	return chunks
}

// headingOf reports whether the line is a section heading, and returns
// the context string to carry on subsequent segments.
func headingOf(line string) (string, bool) {
	if m := markdownHeadingRe.FindStringSubmatch(line); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	if namedHeadingRe.MatchString(line) {
		return line, true
	}
	if numberedHeadingRe.MatchString(line) {
		return line, true
	}
	return "", false
}
