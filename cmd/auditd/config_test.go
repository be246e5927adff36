// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "auditd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadFileConfig_FullFile(t *testing.T) {
	// Arrange
	path := writeConfig(t, `
port: 9000
catalog_path: catalogs/gdpr.yaml
data_path: /var/lib/aleutian-audit
llm_backend: ollama
weaviate_url: http://weaviate:8080
pipeline_mode: legacy
max_concurrent: 8
disable_metrics: true
log_level: debug
`)

	// Act
	cfg, err := loadFileConfig(path, true)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "catalogs/gdpr.yaml", cfg.CatalogPath)
	assert.Equal(t, "ollama", cfg.LLMBackend)
	assert.Equal(t, "legacy", cfg.PipelineMode)
	assert.Equal(t, 8, cfg.MaxConcurrent)
	assert.True(t, cfg.DisableMetrics)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadFileConfig_MissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	// The default path may be absent.
	_, err := loadFileConfig(missing, false)
	assert.NoError(t, err)

	// An explicitly requested file must exist.
	_, err = loadFileConfig(missing, true)
	assert.Error(t, err)
}

func TestLoadFileConfig_Malformed(t *testing.T) {
	path := writeConfig(t, "port: [not an int")

	_, err := loadFileConfig(path, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestApplyEnvOverrides(t *testing.T) {
	// Arrange
	t.Setenv("AUDIT_PORT", "12345")
	t.Setenv("LLM_BACKEND_TYPE", "ollama")
	t.Setenv("WEAVIATE_SERVICE_URL", "http://weaviate:8080")
	t.Setenv("AUDIT_DISABLE_METRICS", "true")

	cfg := FileConfig{
		Port:        9000,
		CatalogPath: "catalogs/gdpr.yaml",
		LLMBackend:  "openai",
	}

	// Act
	cfg = applyEnvOverrides(cfg)

	// Assert: env wins where set, file values survive elsewhere.
	assert.Equal(t, 12345, cfg.Port)
	assert.Equal(t, "ollama", cfg.LLMBackend)
	assert.Equal(t, "http://weaviate:8080", cfg.WeaviateURL)
	assert.True(t, cfg.DisableMetrics)
	assert.Equal(t, "catalogs/gdpr.yaml", cfg.CatalogPath)
}

func TestApplyEnvOverrides_IgnoresBadInt(t *testing.T) {
	t.Setenv("AUDIT_PORT", "not-a-port")

	cfg := applyEnvOverrides(FileConfig{Port: 9000})

	assert.Equal(t, 9000, cfg.Port)
}

func TestToServiceConfig(t *testing.T) {
	cfg := FileConfig{
		Port:           9000,
		CatalogPath:    "catalogs/gdpr.yaml",
		DataPath:       "/tmp/audits",
		LLMBackend:     "openai",
		PipelineMode:   "agent",
		MaxConcurrent:  2,
		DisableMetrics: true,
	}

	svc := cfg.toServiceConfig()

	assert.Equal(t, 9000, svc.Port)
	assert.Equal(t, "catalogs/gdpr.yaml", svc.CatalogPath)
	assert.Equal(t, "/tmp/audits", svc.DataPath)
	assert.Equal(t, "agent", svc.PipelineMode)
	assert.Equal(t, 2, svc.MaxConcurrent)
	assert.True(t, svc.DisableMetrics)
}
