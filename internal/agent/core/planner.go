package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/creditlens/reportflow/internal/agent/config"
	"github.com/creditlens/reportflow/internal/agent/telemetry"
)

// PlanningStatus is the snapshot handed to the decision oracle each cycle
type PlanningStatus struct {
	PlanningStep      int      `json:"planning_step"`
	MaxPlanningSteps  int      `json:"max_planning_steps"`
	HasOutline        bool     `json:"has_outline"`
	OutlineVersion    int      `json:"outline_version"`
	TotalMetrics      int      `json:"total_metrics"`
	ComputedCount     int      `json:"computed_count"`
	CoverageRate      float64  `json:"coverage_rate"`
	CoverageThreshold float64  `json:"coverage_threshold"`
	PendingCount      int      `json:"pending_count"`
	ValidPending      []string `json:"valid_pending"`
	ExhaustedMetrics  []string `json:"exhausted_metrics"`
}

// PlanningController asks the decision oracle what to do next and owns the
// deterministic routing function used both as the actual router and as the
// fallback when the oracle misbehaves.
type PlanningController struct {
	config    *config.Config
	llm       LLMProvider
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewPlanningController creates a new planning controller instance
func NewPlanningController(cfg *config.Config, llm LLMProvider, tele *telemetry.Telemetry) *PlanningController {
	return &PlanningController{
		config:    cfg,
		llm:       llm,
		telemetry: tele,
		logger:    log.New(log.Writer(), "[PLANNER] ", log.LstdFlags),
	}
}

// Decide advances the planning step by exactly one, refreshes the pending
// set, consults the oracle, and returns the decision alongside the new
// state. Oracle failures of any kind degrade to the deterministic fallback;
// this method never returns an error.
func (p *PlanningController) Decide(ctx context.Context, state WorkflowState) (WorkflowState, PlanningDecision) {
	out := state.Clone()
	out.PlanningStep++
	p.telemetry.RecordPlanningCycle()

	// Pending is re-derived each cycle as requirements minus computed, so a
	// metric that failed a previous batch comes back for another attempt
	// until it hits the retry cap.
	out.PendingMetricIDs = uncomputedIDs(out)

	status := p.BuildStatus(out)

	decision, err := p.askOracle(ctx, out, status)
	if err != nil {
		fallback := p.fallbackDecision(out)
		p.logger.Printf("step %d: oracle decision unusable (%v), falling back to %s", out.PlanningStep, err, fallback.Intent)
		out.AddMessage("planning step %d: fallback decision %s (%v)", out.PlanningStep, fallback.Intent, err)
		p.telemetry.RecordDecision("fallback")
		return out, fallback
	}

	p.telemetry.RecordDecision(string(decision.Intent))
	out.AddMessage("planning step %d: decision %s (%s)", out.PlanningStep, decision.Intent, decision.Reasoning)
	p.logger.Printf("step %d: decision %s, coverage %.2f", out.PlanningStep, decision.Intent, status.CoverageRate)
	return out, decision
}

// BuildStatus computes the status snapshot for the current state
func (p *PlanningController) BuildStatus(state WorkflowState) PlanningStatus {
	maxRetry := p.config.Workflow.MaxMetricRetries
	valid := state.ValidPending(maxRetry)

	var exhausted []string
	for _, id := range state.PendingMetricIDs {
		if state.FailedMetricAttempts[id] >= maxRetry {
			exhausted = append(exhausted, id)
		}
	}

	return PlanningStatus{
		PlanningStep:      state.PlanningStep,
		MaxPlanningSteps:  p.config.Workflow.MaxPlanningSteps,
		HasOutline:        state.OutlineDraft != nil,
		OutlineVersion:    state.OutlineVersion,
		TotalMetrics:      len(state.MetricsRequirements),
		ComputedCount:     len(state.ComputedMetrics),
		CoverageRate:      state.CoverageRate(),
		CoverageThreshold: p.config.Workflow.CoverageThreshold,
		PendingCount:      len(state.PendingMetricIDs),
		ValidPending:      valid,
		ExhaustedMetrics:  exhausted,
	}
}

// Route is the deterministic routing function. Pure, never calls the
// oracle. Rule order matters:
//  1. step ceiling exceeded: force finalize (circuit breaker)
//  2. slow convergence relaxation: past the intermediate step threshold
//     with majority coverage, finalize instead of grinding on
//  3. no outline yet: generate one
//  4. outline but no requirements: seed them
//  5. dispatchable metrics below the coverage threshold: calculate
//  6. otherwise: finalize
func (p *PlanningController) Route(state WorkflowState) RouteTarget {
	wf := p.config.Workflow

	if state.PlanningStep > wf.MaxPlanningSteps {
		return RouteReportCompiler
	}
	if wf.RelaxAfterStep > 0 && state.PlanningStep > wf.RelaxAfterStep && state.CoverageRate() >= wf.RelaxCoverage {
		return RouteReportCompiler
	}
	if state.OutlineDraft == nil {
		return RouteOutlineGenerator
	}
	if len(state.MetricsRequirements) == 0 {
		return RouteMetricEvaluator
	}
	if len(state.ValidPending(wf.MaxMetricRetries)) > 0 && state.CoverageRate() < wf.CoverageThreshold {
		return RouteMetricCalculator
	}
	return RouteReportCompiler
}

// ValidateBatch filters an oracle-proposed batch down to dispatchable ids.
// Placeholder identifiers (metric_<n> not present in the requirements) mark
// the whole batch as fabricated and reject it.
func (p *PlanningController) ValidateBatch(state WorkflowState, batch []string) ([]string, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	valid := state.ValidPending(p.config.Workflow.MaxMetricRetries)
	var out []string
	for _, id := range batch {
		if _, ok := state.Requirement(id); !ok {
			if isPlaceholderID(id) {
				return nil, fmt.Errorf("batch contains placeholder id %q", id)
			}
			continue
		}
		if containsString(valid, id) {
			out = append(out, id)
		}
	}
	return out, nil
}

// askOracle performs the oracle call and the fail-closed parse
func (p *PlanningController) askOracle(ctx context.Context, state WorkflowState, status PlanningStatus) (PlanningDecision, error) {
	prompt := createPlanningPrompt(state.Question, status)

	response, err := p.llm.Generate(ctx, prompt, p.config.LLM.Model, map[string]interface{}{
		"temperature": p.config.LLM.Temperature,
		"max_tokens":  p.config.LLM.MaxTokens,
	})
	if err != nil {
		return PlanningDecision{}, fmt.Errorf("oracle call failed: %w", err)
	}

	decision, err := parseDecision(response)
	if err != nil {
		return PlanningDecision{}, err
	}

	batch, err := p.ValidateBatch(state, decision.MetricBatch)
	if err != nil {
		return PlanningDecision{}, err
	}
	decision.MetricBatch = batch

	var priority []string
	for _, id := range decision.Priority {
		if containsString(batch, id) {
			priority = append(priority, id)
		}
	}
	decision.Priority = priority

	return decision, nil
}

// fallbackDecision derives a decision from the deterministic router
func (p *PlanningController) fallbackDecision(state WorkflowState) PlanningDecision {
	d := PlanningDecision{Fallback: true, Reasoning: "deterministic fallback"}
	switch p.Route(state) {
	case RouteOutlineGenerator:
		d.Intent = DecisionGenerateOutline
	case RouteMetricEvaluator, RouteMetricCalculator:
		d.Intent = DecisionComputeMetrics
	default:
		d.Intent = DecisionFinalizeReport
	}
	return d
}

// parseDecision parses an oracle reply fail-closed: unknown decision tags or
// missing JSON force an error so the caller substitutes the fallback.
func parseDecision(response string) (PlanningDecision, error) {
	jsonStr := extractJSON(response)
	if jsonStr == "" {
		return PlanningDecision{}, fmt.Errorf("no JSON found in decision response")
	}

	var raw struct {
		Decision    string   `json:"decision"`
		Reasoning   string   `json:"reasoning"`
		NextActions []string `json:"next_actions"`
		MetricBatch []string `json:"metric_batch"`
		Priority    []string `json:"priority"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return PlanningDecision{}, fmt.Errorf("failed to parse decision JSON: %w", err)
	}

	intent := DecisionIntent(strings.TrimSpace(raw.Decision))
	switch intent {
	case DecisionGenerateOutline, DecisionComputeMetrics, DecisionFinalizeReport, DecisionClarifyRequirements:
	default:
		return PlanningDecision{}, fmt.Errorf("unknown decision tag %q", raw.Decision)
	}

	return PlanningDecision{
		Intent:      intent,
		Reasoning:   raw.Reasoning,
		NextActions: raw.NextActions,
		MetricBatch: raw.MetricBatch,
		Priority:    raw.Priority,
	}, nil
}

// isPlaceholderID reports ids of the shape metric_<digits>, which the oracle
// fabricates when it ignores the provided id list
func isPlaceholderID(id string) bool {
	rest, ok := strings.CutPrefix(id, "metric_")
	if !ok || rest == "" {
		return false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// uncomputedIDs lists requirement ids absent from computed_metrics, in
// requirement order
func uncomputedIDs(state WorkflowState) []string {
	out := make([]string, 0, len(state.MetricsRequirements))
	for _, r := range state.MetricsRequirements {
		if _, done := state.ComputedMetrics[r.MetricID]; !done {
			out = append(out, r.MetricID)
		}
	}
	return out
}
