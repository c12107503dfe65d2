package core

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/creditlens/reportflow/internal/agent/config"
	"github.com/creditlens/reportflow/internal/agent/telemetry"
)

// Orchestrator drives one report session at a time through the planning
// cycle: planning controller, routed component, planning controller again,
// until the finalizer. Sessions are fully isolated; the only process-wide
// shared structure is the resolver's read-only catalog cache.
type Orchestrator struct {
	config    *config.Config
	logger    *log.Logger
	telemetry *telemetry.Telemetry

	planner    *PlanningController
	outline    *OutlineGenerator
	evaluator  *MetricEvaluator
	calculator *MetricCalculator
	finalizer  *ReportFinalizer
	resolver   *Resolver

	audit     *AuditTrail
	snapshots SnapshotStore

	processing map[string]*SessionStatus
	mu         sync.RWMutex

	semaphore chan struct{}
}

// NewOrchestrator wires the components and primes the knowledge catalog. An
// unreachable catalog is the single fatal startup error.
func NewOrchestrator(ctx context.Context, cfg *config.Config, logger *log.Logger, tele *telemetry.Telemetry, llm LLMProvider, engine KnowledgeEngine) (*Orchestrator, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	}

	resolver := NewResolver(engine)
	if _, err := resolver.Catalog(ctx); err != nil {
		return nil, fmt.Errorf("orchestrator startup: %w", err)
	}

	maxSessions := cfg.Workflow.MaxConcurrentSessions
	if maxSessions <= 0 {
		maxSessions = 1
	}

	o := &Orchestrator{
		config:     cfg,
		logger:     logger,
		telemetry:  tele,
		planner:    NewPlanningController(cfg, llm, tele),
		evaluator:  NewMetricEvaluator(),
		finalizer:  NewReportFinalizer(),
		resolver:   resolver,
		processing: make(map[string]*SessionStatus),
		semaphore:  make(chan struct{}, maxSessions),
	}
	o.outline = NewOutlineGenerator(cfg, llm, resolver, tele)
	o.calculator = NewMetricCalculator(cfg, engine, resolver, tele)
	o.audit = NewAuditTrail(cfg.Storage.File.DataDir)
	return o, nil
}

// SetSnapshotStore attaches an optional per-cycle snapshot store
func (o *Orchestrator) SetSnapshotStore(s SnapshotStore) { o.snapshots = s }

// Run executes one report session to completion and returns the final
// report, which may carry "data missing" placeholders for metrics that
// never computed.
func (o *Orchestrator) Run(ctx context.Context, req ReportRequest) (CompiledReport, error) {
	sessionID := uuid.New().String()
	started := time.Now()

	status := &SessionStatus{
		SessionID: sessionID,
		Phase:     "queued",
		StartedAt: started,
		UpdatedAt: started,
	}
	o.mu.Lock()
	o.processing[sessionID] = status
	o.mu.Unlock()

	select {
	case o.semaphore <- struct{}{}:
		defer func() { <-o.semaphore }()
	case <-ctx.Done():
		o.finishStatus(sessionID, 0, ctx.Err())
		return CompiledReport{}, ctx.Err()
	}

	o.telemetry.RecordSessionStart(sessionID)
	o.logger.Printf("session %s: %q (industry %s, %d rows)", sessionID, req.Question, req.Industry, len(req.DataSet))

	state := NewWorkflowState(sessionID, req)
	report, err := o.runLoop(ctx, state)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	o.telemetry.RecordSessionEnd(sessionID, outcome, time.Since(started), report.Summary.CoverageRate)
	o.finishStatus(sessionID, report.Summary.CoverageRate, err)
	return report, err
}

// runLoop is the planning cycle proper
func (o *Orchestrator) runLoop(ctx context.Context, state WorkflowState) (CompiledReport, error) {
	for {
		if err := ctx.Err(); err != nil {
			return CompiledReport{}, err
		}

		var decision PlanningDecision
		state, decision = o.planner.Decide(ctx, state)
		o.updateStatus(state, "planning")
		o.audit.Record(state.SessionID, "decision", decision)

		next := o.planner.Route(state)
		if decision.Intent == DecisionFinalizeReport && !decision.Fallback {
			// The oracle may finalize early, but never the other way: the
			// deterministic route always wins when it says finalize.
			next = RouteReportCompiler
		}

		switch next {
		case RouteOutlineGenerator:
			o.updateStatus(state, "outline")
			var err error
			state, err = o.outline.Generate(ctx, state)
			if err != nil {
				return CompiledReport{}, err
			}
			o.audit.Record(state.SessionID, "outline", state.OutlineDraft)

		case RouteMetricEvaluator:
			o.updateStatus(state, "evaluate")
			state = o.evaluator.Evaluate(state)

		case RouteMetricCalculator:
			o.updateStatus(state, "calculate")
			state = o.calculator.Compute(ctx, state, decision.MetricBatch)

		case RouteReportCompiler:
			o.updateStatus(state, "finalize")
			state = o.finalizer.Finalize(state)
			o.audit.Record(state.SessionID, "report", state.ReportDraft)
			o.saveSnapshot(ctx, state)
			return *state.ReportDraft, nil
		}

		o.saveSnapshot(ctx, state)
	}
}

// GetStatus returns the live status of a session
func (o *Orchestrator) GetStatus(sessionID string) (SessionStatus, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s, ok := o.processing[sessionID]
	if !ok {
		return SessionStatus{}, false
	}
	return *s, true
}

// ListStatuses returns a copy of all tracked session statuses
func (o *Orchestrator) ListStatuses() []SessionStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]SessionStatus, 0, len(o.processing))
	for _, s := range o.processing {
		out = append(out, *s)
	}
	return out
}

func (o *Orchestrator) updateStatus(state WorkflowState, phase string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.processing[state.SessionID]; ok {
		s.Phase = phase
		s.PlanningStep = state.PlanningStep
		s.CoverageRate = state.CoverageRate()
		s.UpdatedAt = time.Now()
	}
}

func (o *Orchestrator) finishStatus(sessionID string, coverage float64, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.processing[sessionID]; ok {
		s.Done = true
		s.Phase = "done"
		s.CoverageRate = coverage
		s.UpdatedAt = time.Now()
		if err != nil {
			s.Phase = "failed"
			s.Error = err.Error()
		}
	}
}

func (o *Orchestrator) saveSnapshot(ctx context.Context, state WorkflowState) {
	if o.snapshots == nil {
		return
	}
	if err := o.snapshots.SaveSnapshot(ctx, state); err != nil {
		o.logger.Printf("snapshot save failed for %s: %v", state.SessionID, err)
	}
}
