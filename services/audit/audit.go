// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package audit assembles the document audit service.
//
// This package wires the components of the pipeline - catalog and audit
// stores, extraction, evidence retrieval, the agent chain, and the HTTP
// surface - into one runnable service. Components are constructed here
// and read-only afterwards.
//
// # Usage
//
//	cfg := audit.Config{Port: 12210, CatalogPath: "catalogs/gdpr.yaml"}
//	svc, err := audit.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AleutianAudit/services/audit/extract"
	"github.com/AleutianAI/AleutianAudit/services/audit/observability"
	"github.com/AleutianAI/AleutianAudit/services/audit/pipeline"
	"github.com/AleutianAI/AleutianAudit/services/audit/retrieval"
	"github.com/AleutianAI/AleutianAudit/services/audit/routes"
	"github.com/AleutianAI/AleutianAudit/services/audit/store"
	"github.com/AleutianAI/AleutianAudit/services/llm"
)

// Service is the runnable audit service.
type Service interface {
	// Run starts the HTTP server and blocks until it stops.
	Run() error

	// Router exposes the configured engine for integration tests.
	Router() *gin.Engine
}

// Config holds audit service configuration.
type Config struct {
	// Port is the HTTP server port. Default: 12210.
	Port int

	// CatalogPath is the YAML requirement seed file. Required.
	CatalogPath string

	// DataPath is the BadgerDB directory. Default: "./data/audits".
	DataPath string

	// LLMBackend selects the oracle: "openai" or "ollama".
	// Default: "openai".
	LLMBackend string

	// WeaviateURL enables the vector index when set.
	// Empty falls back to lexical retrieval.
	WeaviateURL string

	// OTelEndpoint is the OTLP gRPC collector endpoint.
	// Default: "aleutian-otel-collector:4317".
	OTelEndpoint string

	// PipelineMode selects "agent" (default) or "legacy" evaluation.
	PipelineMode string

	// MaxConcurrent bounds parallel requirement evaluations. Default: 4.
	MaxConcurrent int

	// DisableMetrics skips Prometheus metric registration. Metrics are
	// on unless this is set.
	DisableMetrics bool

	// GinMode sets the Gin framework mode ("debug", "release", "test").
	GinMode string
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12210
	}
	if cfg.DataPath == "" {
		cfg.DataPath = "./data/audits"
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "openai"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "aleutian-otel-collector:4317"
	}
	if cfg.PipelineMode == "" {
		cfg.PipelineMode = string(pipeline.ModeAgent)
	}
	if cfg.MaxConcurrent == 0 {
		cfg.MaxConcurrent = 4
	}
	return cfg
}

type service struct {
	config         Config
	router         *gin.Engine
	audits         *store.AuditStore
	catalogs       *store.CatalogStore
	orchestrator   *pipeline.Orchestrator
	weaviateClient *weaviate.Client
	oracle         llm.Client
	embedder       llm.Embedder
	tracerCleanup  func(context.Context)
	dbClose        func() error
	gcStop         chan struct{}
}

// New creates the audit service: tracing, metrics, stores, the oracle
// client, the evidence backend, and the HTTP router.
func New(cfg Config) (Service, error) {
	s := &service{config: applyConfigDefaults(cfg)}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	if !s.config.DisableMetrics {
		observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics for auditing")
	}

	if err := s.initStores(); err != nil {
		s.cleanup()
		return nil, err
	}

	if err := s.initOracle(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	// Weaviate is optional; without it retrieval degrades to lexical.
	if err := s.initWeaviate(); err != nil {
		slog.Warn("Weaviate initialization failed, using lexical retrieval", "error", err)
	}

	if err := s.initOrchestrator(); err != nil {
		s.cleanup()
		return nil, err
	}

	s.initRouter()
	return s, nil
}

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting audit server", "port", s.config.Port, "mode", s.config.PipelineMode)
	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("audit-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}
	return cleanup, nil
}

func (s *service) initStores() error {
	if s.config.CatalogPath == "" {
		return fmt.Errorf("catalog path is required")
	}
	s.catalogs = store.NewCatalogStore()
	if err := s.catalogs.LoadFile(s.config.CatalogPath); err != nil {
		return fmt.Errorf("failed to load requirement catalog: %w", err)
	}
	slog.Info("Loaded requirement catalogs", "frameworks", len(s.catalogs.Frameworks()))

	dbCfg := store.DefaultConfig(s.config.DataPath)
	db, err := store.Open(dbCfg)
	if err != nil {
		return err
	}
	s.dbClose = db.Close

	s.gcStop = make(chan struct{})
	go store.RunGC(db, dbCfg, s.gcStop)

	s.audits, err = store.NewAuditStore(db)
	return err
}

func (s *service) initOracle() error {
	var err error
	switch s.config.LLMBackend {
	case "ollama":
		var client *llm.OllamaClient
		client, err = llm.NewOllamaClient()
		s.oracle = client
		slog.Info("Using Ollama oracle backend")
	case "openai":
		var client *llm.OpenAIClient
		client, err = llm.NewOpenAIClient()
		s.oracle = client
		s.embedder = client
		slog.Info("Using OpenAI oracle backend")
	default:
		return fmt.Errorf("unknown LLM backend %q", s.config.LLMBackend)
	}
	return err
}

func (s *service) initWeaviate() error {
	weaviateURL := strings.Trim(s.config.WeaviateURL, "\"' ")
	if weaviateURL == "" {
		slog.Info("Weaviate URL not configured, using lexical retrieval")
		return nil
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return fmt.Errorf("invalid Weaviate URL: %s", weaviateURL)
	}

	s.weaviateClient, err = weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		return fmt.Errorf("failed to create Weaviate client: %w", err)
	}
	slog.Info("Weaviate client initialized", "url", weaviateURL)
	return nil
}

func (s *service) initOrchestrator() error {
	backend := s.selectBackend()

	orch, err := pipeline.NewOrchestrator(
		pipeline.Config{
			Mode:          pipeline.Mode(s.config.PipelineMode),
			MaxConcurrent: s.config.MaxConcurrent,
		},
		s.catalogs, s.audits,
		extract.NewSegmenter(0),
		backend,
		s.oracle,
	)
	if err != nil {
		return fmt.Errorf("failed to build orchestrator: %w", err)
	}
	s.orchestrator = orch
	return nil
}

// selectBackend probes the vector index and falls back to lexical
// retrieval when it is unavailable or misconfigured.
func (s *service) selectBackend() pipeline.EvidenceBackend {
	if s.weaviateClient == nil || s.embedder == nil {
		return pipeline.NewLexicalBackend()
	}

	index, err := retrieval.NewSegmentIndex(s.weaviateClient, s.embedder)
	if err != nil {
		slog.Warn("Segment index unavailable", "error", err)
		return pipeline.NewLexicalBackend()
	}
	hybrid, err := retrieval.NewHybridRetriever(s.weaviateClient, s.embedder)
	if err != nil {
		slog.Warn("Hybrid retriever unavailable", "error", err)
		return pipeline.NewLexicalBackend()
	}
	return pipeline.SelectBackend(context.Background(), index, pipeline.NewVectorBackend(index, hybrid))
}

func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("audit-service"))

	routes.SetupRoutes(s.router, s.audits, s.catalogs, s.orchestrator)
}

func (s *service) cleanup() {
	if s.gcStop != nil {
		close(s.gcStop)
		s.gcStop = nil
	}
	if s.dbClose != nil {
		if err := s.dbClose(); err != nil {
			slog.Error("failed to close audit database", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}
