// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOllamaTestServer(t *testing.T, handler func(req ollamaGenerateRequest) (int, any)) *OllamaClient {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req ollamaGenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		status, body := handler(req)
		w.WriteHeader(status)
		require.NoError(t, json.NewEncoder(w).Encode(body))
	}))
	t.Cleanup(server.Close)

	t.Setenv("OLLAMA_BASE_URL", server.URL)
	t.Setenv("OLLAMA_MODEL", "llama3.1")
	client, err := NewOllamaClient()
	require.NoError(t, err)
	return client
}

func TestNewOllamaClient_RequiresBaseURL(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "")

	_, err := NewOllamaClient()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "OLLAMA_BASE_URL")
}

func TestOllamaClient_GenerateJSON(t *testing.T) {
	// Arrange
	var captured ollamaGenerateRequest
	client := newOllamaTestServer(t, func(req ollamaGenerateRequest) (int, any) {
		captured = req
		return http.StatusOK, ollamaGenerateResponse{
			Model:    req.Model,
			Response: `{"status":"UNKNOWN"}`,
			Done:     true,
		}
	})

	// Act
	got, err := client.GenerateJSON(context.Background(), "assessment agent", "evaluate this")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, `{"status":"UNKNOWN"}`, got)
	assert.Equal(t, "json", captured.Format)
	assert.Equal(t, "assessment agent", captured.System)
	assert.Equal(t, "evaluate this", captured.Prompt)
	assert.False(t, captured.Stream)
	assert.Equal(t, 0.0, captured.Options["temperature"])
}

func TestOllamaClient_GenerateForwardsParams(t *testing.T) {
	// Arrange
	temp := float32(0.7)
	maxTokens := 256
	var captured ollamaGenerateRequest
	client := newOllamaTestServer(t, func(req ollamaGenerateRequest) (int, any) {
		captured = req
		return http.StatusOK, ollamaGenerateResponse{Response: "ok", Done: true}
	})

	// Act
	got, err := client.Generate(context.Background(), "hello", GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 0.7, captured.Options["temperature"])
	assert.Equal(t, float64(256), captured.Options["num_predict"])
}

func TestOllamaClient_ServerError(t *testing.T) {
	client := newOllamaTestServer(t, func(req ollamaGenerateRequest) (int, any) {
		return http.StatusInternalServerError, map[string]string{"error": "model not loaded"}
	})

	_, err := client.GenerateJSON(context.Background(), "s", "u")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}
