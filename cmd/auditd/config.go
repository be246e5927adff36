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
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianAudit/services/audit"
)

// FileConfig mirrors the auditd.yaml layout. Every field is optional
// except catalog_path; flags and environment variables override the
// file.
type FileConfig struct {
	Port        int    `yaml:"port"`
	CatalogPath string `yaml:"catalog_path"`
	DataPath    string `yaml:"data_path"`

	LLMBackend   string `yaml:"llm_backend"`
	WeaviateURL  string `yaml:"weaviate_url"`
	OTelEndpoint string `yaml:"otel_endpoint"`

	PipelineMode   string `yaml:"pipeline_mode"`
	MaxConcurrent  int    `yaml:"max_concurrent"`
	DisableMetrics bool   `yaml:"disable_metrics"`

	LogLevel string `yaml:"log_level"`
	LogDir   string `yaml:"log_dir"`
	GinMode  string `yaml:"gin_mode"`
}

// loadFileConfig reads an optional YAML config file. A missing file
// is not an error when the path is the default; an explicitly
// requested file must exist.
func loadFileConfig(path string, explicit bool) (FileConfig, error) {
	var cfg FileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// applyEnvOverrides layers deployment environment variables over the
// file config. Container deployments configure the service this way
// instead of mounting a YAML file.
func applyEnvOverrides(cfg FileConfig) FileConfig {
	cfg.Port = envInt("AUDIT_PORT", cfg.Port)
	cfg.CatalogPath = envString("AUDIT_CATALOG_PATH", cfg.CatalogPath)
	cfg.DataPath = envString("AUDIT_DATA_PATH", cfg.DataPath)
	cfg.LLMBackend = envString("LLM_BACKEND_TYPE", cfg.LLMBackend)
	cfg.WeaviateURL = envString("WEAVIATE_SERVICE_URL", cfg.WeaviateURL)
	cfg.OTelEndpoint = envString("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTelEndpoint)
	cfg.PipelineMode = envString("AUDIT_PIPELINE_MODE", cfg.PipelineMode)
	cfg.DisableMetrics = envBool("AUDIT_DISABLE_METRICS", cfg.DisableMetrics)
	cfg.LogLevel = envString("AUDIT_LOG_LEVEL", cfg.LogLevel)
	cfg.LogDir = envString("AUDIT_LOG_DIR", cfg.LogDir)
	return cfg
}

// toServiceConfig converts the merged file/env/flag view into the
// service's own Config. Service-side defaults fill anything left
// empty here.
func (c FileConfig) toServiceConfig() audit.Config {
	return audit.Config{
		Port:           c.Port,
		CatalogPath:    c.CatalogPath,
		DataPath:       c.DataPath,
		LLMBackend:     c.LLMBackend,
		WeaviateURL:    c.WeaviateURL,
		OTelEndpoint:   c.OTelEndpoint,
		PipelineMode:   c.PipelineMode,
		MaxConcurrent:  c.MaxConcurrent,
		DisableMetrics: c.DisableMetrics,
		GinMode:        c.GinMode,
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
