// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides clients for the assessment and embedding oracles.
//
// The audit agents depend only on the interfaces here; the concrete
// backend (OpenAI-compatible API, Ollama) is selected by configuration.
package llm

import "context"

// GenerationParams tunes a single generation call.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// Client defines the standard interface for any LLM backend.
//
// GenerateJSON requests structured output: implementations must ask the
// backend for a JSON object response and return the raw JSON text. The
// agents own schema parsing and fail-safe handling; a GenerateJSON error
// or malformed payload triggers the calling agent's fallback, never a
// pipeline abort.
type Client interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
	GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Embedder produces embedding vectors for semantic retrieval.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
