// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command auditd starts the Aleutian document audit HTTP server.
//
// Configuration is layered: auditd.yaml (optional), then environment
// variables, then flags. The only required setting is the catalog
// seed file.
//
// # Usage
//
//	# Serve with a config file
//	auditd serve --config auditd.yaml
//
//	# Serve with flags only
//	auditd serve --catalog catalogs/gdpr.yaml --port 12210
//
//	# Validate a catalog seed without starting the server
//	auditd catalog validate catalogs/gdpr.yaml
//
// # Environment Variables
//
//   - AUDIT_PORT: HTTP server port (default: 12210)
//   - AUDIT_CATALOG_PATH: requirement catalog YAML
//   - AUDIT_DATA_PATH: BadgerDB directory (default: ./data/audits)
//   - LLM_BACKEND_TYPE: oracle provider - openai, ollama (default: openai)
//   - WEAVIATE_SERVICE_URL: vector DB URL (optional; lexical fallback)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: collector (default: aleutian-otel-collector:4317)
//   - AUDIT_PIPELINE_MODE: agent or legacy (default: agent)
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianAudit/pkg/logging"
	"github.com/AleutianAI/AleutianAudit/services/audit"
	"github.com/AleutianAI/AleutianAudit/services/audit/store"
)

var (
	flagConfig   string
	flagPort     int
	flagCatalog  string
	flagData     string
	flagMode     string
	flagLogLevel string
	flagLogDir   string

	rootCmd = &cobra.Command{
		Use:   "auditd",
		Short: "Aleutian regulatory document audit service",
		Long: `auditd evaluates uploaded documents against regulatory
requirement catalogs using a multi-agent LLM pipeline and serves
the results over HTTP.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the audit HTTP server",
		RunE:  runServe,
	}

	catalogCmd = &cobra.Command{
		Use:   "catalog",
		Short: "Inspect requirement catalog seed files",
	}

	catalogValidateCmd = &cobra.Command{
		Use:   "validate [file]",
		Short: "Parse and validate a catalog seed file",
		Args:  cobra.ExactArgs(1),
		RunE:  runCatalogValidate,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("auditd: %v", err)
	}
}

func init() {
	serveCmd.Flags().StringVarP(&flagConfig, "config", "c", "auditd.yaml", "YAML config file")
	serveCmd.Flags().IntVarP(&flagPort, "port", "p", 0, "HTTP server port")
	serveCmd.Flags().StringVar(&flagCatalog, "catalog", "", "requirement catalog YAML file")
	serveCmd.Flags().StringVar(&flagData, "data", "", "BadgerDB data directory")
	serveCmd.Flags().StringVar(&flagMode, "mode", "", "pipeline mode: agent or legacy")
	serveCmd.Flags().StringVar(&flagLogLevel, "log-level", "", "minimum log level: debug, info, warn, error")
	serveCmd.Flags().StringVar(&flagLogDir, "log-dir", "", "directory for JSON log files")

	catalogCmd.AddCommand(catalogValidateCmd)
	rootCmd.AddCommand(serveCmd, catalogCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	explicit := cmd.Flags().Changed("config")
	cfg, err := loadFileConfig(flagConfig, explicit)
	if err != nil {
		return err
	}
	cfg = applyEnvOverrides(cfg)

	// Flags win over file and environment.
	if flagPort != 0 {
		cfg.Port = flagPort
	}
	if flagCatalog != "" {
		cfg.CatalogPath = flagCatalog
	}
	if flagData != "" {
		cfg.DataPath = flagData
	}
	if flagMode != "" {
		cfg.PipelineMode = flagMode
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagLogDir != "" {
		cfg.LogDir = flagLogDir
	}

	if cfg.CatalogPath == "" {
		return fmt.Errorf("catalog path is required (--catalog, AUDIT_CATALOG_PATH, or catalog_path in %s)", flagConfig)
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.LogLevel),
		LogDir:  cfg.LogDir,
		Service: "audit-service",
		JSON:    cfg.LogDir == "",
	})
	defer logger.Close()
	logger.SetProcessDefault()

	svc, err := audit.New(cfg.toServiceConfig())
	if err != nil {
		return fmt.Errorf("create audit service: %w", err)
	}
	return svc.Run()
}

func runCatalogValidate(cmd *cobra.Command, args []string) error {
	catalogs := store.NewCatalogStore()
	if err := catalogs.LoadFile(args[0]); err != nil {
		return fmt.Errorf("catalog invalid: %w", err)
	}

	for _, framework := range catalogs.Frameworks() {
		catalog, _ := catalogs.Catalog(framework.Name)
		fmt.Fprintf(os.Stdout, "%s %s: %d requirements\n",
			framework.Name, framework.Version, len(catalog.Requirements))
	}
	fmt.Fprintln(os.Stdout, "catalog OK")
	return nil
}
