// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline orchestrates the end-to-end document audit.
//
// One audit flows through extraction, indexing, planning, per-requirement
// evaluation, verdict aggregation, and snapshot freezing. The lifecycle
// record in the store advances PENDING -> EXTRACTING -> ANALYZING ->
// COMPLETED (or FAILED) with monotone progress checkpoints.
//
// Failure semantics are asymmetric on purpose:
//   - A failure scoped to one requirement (oracle error, malformed
//     output) is absorbed into that requirement's result; the audit
//     still completes.
//   - A failure of a whole stage (no catalog, extraction, indexing,
//     persistence) fails the audit.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianAudit/services/audit/agents"
	"github.com/AleutianAI/AleutianAudit/services/audit/datatypes"
	"github.com/AleutianAI/AleutianAudit/services/audit/extract"
	"github.com/AleutianAI/AleutianAudit/services/audit/observability"
	"github.com/AleutianAI/AleutianAudit/services/audit/snapshot"
	"github.com/AleutianAI/AleutianAudit/services/audit/store"
	"github.com/AleutianAI/AleutianAudit/services/audit/trace"
	"github.com/AleutianAI/AleutianAudit/services/audit/verdict"
	"github.com/AleutianAI/AleutianAudit/services/llm"
)

var pipelineTracer = otel.Tracer("aleutian.audit.pipeline")

// Mode selects the evaluation strategy.
type Mode string

const (
	// ModeAgent runs the three-agent chain: plan, assess, verify.
	ModeAgent Mode = "agent"

	// ModeLegacy runs the single-call evaluation with keyword retrieval.
	// Kept for comparison runs; not the default.
	ModeLegacy Mode = "legacy"
)

// Progress checkpoints reported on the audit record. Consumers poll
// status; checkpoint granularity is per stage, not per requirement.
const (
	progressExtracting = 0.2
	progressAnalyzing  = 0.4
	progressEvaluated  = 0.8
)

// Config controls one orchestrator instance.
type Config struct {
	// Mode selects agent-chain or legacy evaluation.
	Mode Mode

	// MaxConcurrent bounds parallel requirement evaluations.
	MaxConcurrent int

	// MaxChunks bounds evidence retrieved per requirement.
	MaxChunks int
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeAgent
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 4
	}
	if c.MaxChunks <= 0 {
		c.MaxChunks = 0 // retriever applies its own default
	}
}

// Orchestrator runs audits against a requirement catalog.
type Orchestrator struct {
	cfg       Config
	catalogs  *store.CatalogStore
	audits    *store.AuditStore
	segmenter *extract.Segmenter
	backend   EvidenceBackend

	planner  *agents.Planner
	assessor *agents.Assessor
	verifier *agents.Verifier
	oracle   llm.Client
}

// NewOrchestrator wires an orchestrator. The oracle client serves all
// three agents in agent mode and the single evaluation call in legacy
// mode.
func NewOrchestrator(
	cfg Config,
	catalogs *store.CatalogStore,
	audits *store.AuditStore,
	segmenter *extract.Segmenter,
	backend EvidenceBackend,
	oracle llm.Client,
) (*Orchestrator, error) {
	if catalogs == nil || audits == nil {
		return nil, fmt.Errorf("catalog and audit stores must not be nil")
	}
	if segmenter == nil {
		return nil, fmt.Errorf("segmenter must not be nil")
	}
	if backend == nil {
		return nil, fmt.Errorf("evidence backend must not be nil")
	}
	if oracle == nil {
		return nil, fmt.Errorf("oracle client must not be nil")
	}
	cfg.applyDefaults()
	return &Orchestrator{
		cfg:       cfg,
		catalogs:  catalogs,
		audits:    audits,
		segmenter: segmenter,
		backend:   backend,
		planner:   agents.NewPlanner(oracle),
		assessor:  agents.NewAssessor(oracle),
		verifier:  agents.NewVerifier(oracle),
		oracle:    oracle,
	}, nil
}

// Run executes the full audit for an already-created PENDING record.
//
// On success the record holds the frozen report and is COMPLETED. Any
// stage-level error marks the record FAILED with its cause and is also
// returned to the caller.
func (o *Orchestrator) Run(ctx context.Context, auditID uuid.UUID, frameworkName, documentText string) error {
	ctx, span := pipelineTracer.Start(ctx, "Orchestrator.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("audit.id", auditID.String()),
		attribute.String("audit.framework", frameworkName),
		attribute.String("audit.mode", string(o.cfg.Mode)),
	)

	if observability.DefaultMetrics != nil {
		observability.DefaultMetrics.ActiveAudits.Inc()
		defer observability.DefaultMetrics.ActiveAudits.Dec()
	}

	err := o.run(ctx, auditID, frameworkName, documentText)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "audit failed")
		if _, markErr := o.audits.MarkFailed(ctx, auditID, err); markErr != nil {
			slog.Error("Failed to record audit failure", "audit_id", auditID, "error", markErr)
		}
		if observability.DefaultMetrics != nil {
			observability.DefaultMetrics.AuditsTotal.WithLabelValues(frameworkName, "failed").Inc()
		}
		slog.Error("Audit failed", "audit_id", auditID, "framework", frameworkName, "error", err)
		return err
	}
	if observability.DefaultMetrics != nil {
		observability.DefaultMetrics.AuditsTotal.WithLabelValues(frameworkName, "completed").Inc()
	}
	return nil
}

func (o *Orchestrator) run(ctx context.Context, auditID uuid.UUID, frameworkName, documentText string) error {
	catalog, ok := o.catalogs.Catalog(frameworkName)
	if !ok {
		return fmt.Errorf("unknown framework %q", frameworkName)
	}
	if len(catalog.Requirements) == 0 {
		// Fail fast: an empty catalog would produce a report claiming
		// compliance with nothing.
		return fmt.Errorf("framework %q has an empty requirement catalog", frameworkName)
	}

	latency := trace.NewLatencyTracker()
	tracer := trace.NewExecutionTracer(latency)

	// Stage: extraction and indexing.
	if _, err := o.audits.Transition(ctx, auditID, datatypes.AuditExtracting, progressExtracting); err != nil {
		return err
	}

	var segments []datatypes.Segment
	err := latency.Measure("extraction", func() error {
		var segErr error
		segments, segErr = o.segmenter.Segment(ctx, documentText)
		return segErr
	})
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}
	observability.ObserveStage("extraction", latencySeconds(latency, "extraction"))

	err = latency.Measure("indexing", func() error {
		return o.backend.Index(ctx, auditID, segments)
	})
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	observability.ObserveStage("indexing", latencySeconds(latency, "indexing"))

	// Stage: analysis.
	if _, err := o.audits.Transition(ctx, auditID, datatypes.AuditAnalyzing, progressAnalyzing); err != nil {
		return err
	}

	plan := o.buildPlan(ctx, catalog, latency)
	observability.ObserveStage("planning", latencySeconds(latency, "planning"))
	if observability.DefaultMetrics != nil {
		observability.DefaultMetrics.RequirementsEvaluated.Observe(float64(len(plan.RequirementIDs)))
	}

	assessments, err := o.evaluatePlan(ctx, auditID, catalog, plan, tracer, latency)
	if err != nil {
		return err
	}
	observability.ObserveStage("evaluation", latencySeconds(latency, "evaluation"))

	if _, err := o.audits.Update(ctx, auditID, func(a *datatypes.Audit) error {
		a.Progress = progressEvaluated
		return nil
	}); err != nil {
		return err
	}

	// Stage: aggregate and freeze.
	current, err := o.audits.Get(ctx, auditID)
	if err != nil {
		return err
	}
	if err := snapshot.EnsureImmutability(current); err != nil {
		return err
	}

	overall := verdict.FromAssessments(assessments)
	if observability.DefaultMetrics != nil {
		observability.DefaultMetrics.VerdictsTotal.WithLabelValues(frameworkName, string(overall)).Inc()
	}

	var snap snapshot.Snapshot
	err = latency.Measure("snapshot", func() error {
		var snapErr error
		snap, snapErr = snapshot.CreateFrozenSnapshot(
			auditID, catalog.Framework, assessments, overall, tracer.FullTrace(plan.RequirementIDs))
		return snapErr
	})
	if err != nil {
		return fmt.Errorf("snapshot failed: %w", err)
	}
	observability.ObserveStage("snapshot", latencySeconds(latency, "snapshot"))

	report, err := o.buildReport(catalog, plan, assessments, overall, tracer, snap)
	if err != nil {
		return err
	}

	if _, err := o.audits.SaveReport(ctx, auditID, report); err != nil {
		return err
	}

	slog.Info("Audit completed",
		"audit_id", auditID,
		"framework", frameworkName,
		"verdict", overall,
		"requirements", len(assessments),
		"total_latency_ms", latency.Total())
	return nil
}

// buildPlan produces the filtered evaluation plan. Legacy mode skips the
// planning oracle and evaluates the whole catalog.
func (o *Orchestrator) buildPlan(ctx context.Context, catalog datatypes.Catalog, latency *trace.LatencyTracker) datatypes.RequirementPlan {
	var plan datatypes.RequirementPlan
	_ = latency.Measure("planning", func() error {
		if o.cfg.Mode == ModeLegacy {
			plan = datatypes.FullCatalogPlan(catalog, "legacy mode evaluates the full catalog")
			return nil
		}
		plan = o.planner.Plan(ctx, catalog)
		return nil
	})

	filtered, dropped := plan.Filter(catalog.IDSet())
	if len(dropped) > 0 {
		slog.Warn("Plan contained identifiers outside the catalog", "dropped", dropped)
	}
	if len(filtered.RequirementIDs) == 0 {
		// An empty filtered plan means the planner selected nothing
		// valid. Fall open to the full catalog rather than reporting
		// an audit that checked nothing.
		filtered = datatypes.FullCatalogPlan(catalog, "plan was empty after filtering")
	}
	return filtered
}

// evaluatePlan runs the per-requirement chains with bounded parallelism.
// Results come back in plan order regardless of completion order.
func (o *Orchestrator) evaluatePlan(
	ctx context.Context,
	auditID uuid.UUID,
	catalog datatypes.Catalog,
	plan datatypes.RequirementPlan,
	tracer *trace.ExecutionTracer,
	latency *trace.LatencyTracker,
) ([]datatypes.Assessment, error) {
	results := make([]datatypes.Assessment, len(plan.RequirementIDs))

	err := latency.Measure("evaluation", func() error {
		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(o.cfg.MaxConcurrent)

		for i, id := range plan.RequirementIDs {
			i, id := i, id
			g.Go(func() error {
				if gCtx.Err() != nil {
					return gCtx.Err()
				}
				req, ok := catalog.ByID(id)
				if !ok {
					// Filter guarantees this cannot happen.
					results[i] = datatypes.FailedAssessment(id, fmt.Errorf("requirement missing from catalog"))
					return nil
				}
				results[i] = o.evaluateRequirement(gCtx, auditID, req, tracer)
				return nil
			})
		}
		return g.Wait()
	})
	if err != nil {
		return nil, fmt.Errorf("evaluation aborted: %w", err)
	}
	return results, nil
}

// evaluateRequirement runs one retrieve-assess-verify chain. It never
// fails: every error collapses into the requirement's own result.
func (o *Orchestrator) evaluateRequirement(ctx context.Context, auditID uuid.UUID, req datatypes.Requirement, tracer *trace.ExecutionTracer) datatypes.Assessment {
	ctx, span := pipelineTracer.Start(ctx, "Orchestrator.evaluateRequirement")
	defer span.End()
	span.SetAttributes(attribute.String("requirement.id", req.ID))

	retriever := o.backend.Retriever()

	start := time.Now()
	evidence, err := retriever.Retrieve(ctx, auditID, req, o.cfg.MaxChunks)
	if err != nil {
		// Retrieval failure leaves the assessor with no evidence, which
		// it handles; it does not sink the requirement.
		slog.Warn("Evidence retrieval failed, assessing without evidence",
			"audit_id", auditID, "requirement_id", req.ID, "error", err)
		evidence = datatypes.EvidenceBundle{RequirementID: req.ID}
	}
	tracer.RecordAgentExecution("retriever_"+retriever.Name(),
		map[string]any{"requirement_id": req.ID},
		map[string]any{"chunks": len(evidence.Items)},
		time.Since(start), err)

	if o.cfg.Mode == ModeLegacy {
		assessment := o.evaluateLegacy(ctx, req, evidence, tracer)
		tracer.RecordRequirementEvaluation(trace.RequirementEvaluation{
			RequirementID:        req.ID,
			EvidenceChunks:       len(evidence.Items),
			AssessmentStatus:     string(assessment.Status),
			AssessmentConfidence: assessment.Confidence,
			VerifiedStatus:       string(assessment.Status),
			VerifiedConfidence:   assessment.Confidence,
		})
		return assessment
	}

	start = time.Now()
	assessment := o.assessor.Assess(ctx, req, evidence)
	tracer.RecordAgentExecution("assessor",
		map[string]any{"requirement_id": req.ID, "evidence_chunks": len(evidence.Items)},
		map[string]any{"status": string(assessment.Status), "confidence": assessment.Confidence},
		time.Since(start), nil)
	observability.CountAgentCall("assessor", string(assessment.Status))

	start = time.Now()
	verified := o.verifier.Verify(ctx, assessment, evidence)
	tracer.RecordAgentExecution("verifier",
		map[string]any{"requirement_id": req.ID, "original_status": string(assessment.Status)},
		map[string]any{"verified_status": string(verified.VerifiedStatus), "approved": verified.Approved},
		time.Since(start), nil)
	observability.CountAgentCall("verifier", string(verified.VerifiedStatus))

	final := assessment
	if !verified.Approved || verified.Downgraded() {
		final.Status = verified.VerifiedStatus
		final.Confidence = verified.VerifiedConfidence
		if verified.Downgraded() {
			slog.Info("Verification adjusted assessment",
				"requirement_id", req.ID,
				"from", assessment.Status, "to", verified.VerifiedStatus,
				"notes", verified.VerificationNotes)
		}
	}

	tracer.RecordRequirementEvaluation(trace.RequirementEvaluation{
		RequirementID:        req.ID,
		EvidenceChunks:       len(evidence.Items),
		AssessmentStatus:     string(assessment.Status),
		AssessmentConfidence: assessment.Confidence,
		VerifiedStatus:       string(verified.VerifiedStatus),
		VerifiedConfidence:   verified.VerifiedConfidence,
		WasDowngraded:        verified.Downgraded(),
	})
	return final
}

// buildReport assembles and serializes the frozen report payload.
func (o *Orchestrator) buildReport(
	catalog datatypes.Catalog,
	plan datatypes.RequirementPlan,
	assessments []datatypes.Assessment,
	overall datatypes.Verdict,
	tracer *trace.ExecutionTracer,
	snap snapshot.Snapshot,
) (json.RawMessage, error) {
	fullTrace := tracer.FullTrace(plan.RequirementIDs)
	traceJSON, err := json.Marshal(fullTrace)
	if err != nil {
		return nil, fmt.Errorf("encode execution trace: %w", err)
	}
	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	result := datatypes.OrchestrationResult{
		Assessments:    assessments,
		OverallVerdict: overall,
		Metadata: datatypes.ResultMetadata{
			EvaluatedAt:           time.Now().UTC().Format(time.RFC3339),
			EngineVersion:         snapshot.EngineVersion,
			TotalRequirements:     len(catalog.Requirements),
			EvaluatedRequirements: len(assessments),
			TotalLatencyMS:        tracer.Latency().Total(),
			Latencies:             tracer.Latency().All(),
			ExecutionTrace:        traceJSON,
			Snapshot:              snapJSON,
		},
	}

	report, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return report, nil
}

func latencySeconds(latency *trace.LatencyTracker, name string) float64 {
	ms, _ := latency.Get(name)
	return ms / 1000.0
}
