package core

import (
	"context"
	"time"
)

// MetricRequirement describes one metric the report needs. Immutable once
// placed into an outline's global metrics.
type MetricRequirement struct {
	MetricID         string   `json:"metric_id"`
	MetricName       string   `json:"metric_name"`
	CalculationLogic string   `json:"calculation_logic"`
	RequiredFields   []string `json:"required_fields"`
	Dependencies     []string `json:"dependencies"`
}

// ReportSection is one section of the outline. MetricsNeeded holds metric_id
// references; sections may share metrics.
type ReportSection struct {
	SectionID     string   `json:"section_id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	MetricsNeeded []string `json:"metrics_needed"`
}

// ReportOutline is the section/metric structure produced by the outline
// generator. A metric_id referenced by a section but missing from
// GlobalMetrics renders as missing at report time rather than failing.
type ReportOutline struct {
	ReportTitle   string              `json:"report_title"`
	Sections      []ReportSection     `json:"sections"`
	GlobalMetrics []MetricRequirement `json:"global_metrics"`
}

// KnowledgeEntry is one record of the knowledge engine catalog
type KnowledgeEntry struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	InputField  string `json:"inputField"`
}

// CompiledSection is a section with its metric values resolved
type CompiledSection struct {
	SectionID   string                 `json:"section_id"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Metrics     map[string]interface{} `json:"metrics"`
}

// ReportSummary carries the finalizer's summary statistics
type ReportSummary struct {
	TotalSections   int     `json:"total_sections"`
	TotalMetrics    int     `json:"total_metrics"`
	ComputedMetrics int     `json:"computed_metrics"`
	CoverageRate    float64 `json:"coverage_rate"`
	PlanningSteps   int     `json:"planning_steps"`
}

// CompiledReport is the final output artifact
type CompiledReport struct {
	ReportTitle string            `json:"report_title"`
	Sections    []CompiledSection `json:"sections"`
	Summary     ReportSummary     `json:"summary"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// DecisionIntent enumerates what the decision oracle may ask for
type DecisionIntent string

const (
	DecisionGenerateOutline     DecisionIntent = "generate_outline"
	DecisionComputeMetrics      DecisionIntent = "compute_metrics"
	DecisionFinalizeReport      DecisionIntent = "finalize_report"
	DecisionClarifyRequirements DecisionIntent = "clarify_requirements"
)

// PlanningDecision is the parsed oracle reply. Fallback marks decisions
// substituted by the deterministic router after a parse or validation failure.
type PlanningDecision struct {
	Intent      DecisionIntent `json:"decision"`
	Reasoning   string         `json:"reasoning"`
	NextActions []string       `json:"next_actions"`
	MetricBatch []string       `json:"metric_batch"`
	Priority    []string       `json:"priority"`
	Fallback    bool           `json:"-"`
}

// RouteTarget names the component the router selects next
type RouteTarget string

const (
	RouteOutlineGenerator RouteTarget = "outline_generator"
	RouteMetricEvaluator  RouteTarget = "metric_evaluator"
	RouteMetricCalculator RouteTarget = "metric_calculator"
	RouteReportCompiler   RouteTarget = "report_compiler"
)

// ReportRequest is the caller-facing input for one report session
type ReportRequest struct {
	Question string                   `json:"question"`
	Industry string                   `json:"industry"`
	DataSet  []map[string]interface{} `json:"data_set"`
}

// SessionStatus is the live view of an in-flight session
type SessionStatus struct {
	SessionID    string    `json:"session_id"`
	Phase        string    `json:"phase"`
	PlanningStep int       `json:"planning_step"`
	CoverageRate float64   `json:"coverage_rate"`
	StartedAt    time.Time `json:"started_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Done         bool      `json:"done"`
	Error        string    `json:"error,omitempty"`
}

// LLMProvider is the decision oracle backend
type LLMProvider interface {
	Generate(ctx context.Context, prompt string, model string, options map[string]interface{}) (string, error)
}

// KnowledgeEngine executes named computations against an input payload.
// Catalog is fetched once per resolver and cached.
type KnowledgeEngine interface {
	Catalog(ctx context.Context) ([]KnowledgeEntry, error)
	Execute(ctx context.Context, id string, inputField string, payload interface{}) (interface{}, error)
}

// SnapshotStore persists workflow snapshots between cycles. Best effort;
// orchestration never depends on reads succeeding.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, state WorkflowState) error
	LoadSnapshot(ctx context.Context, sessionID string) (WorkflowState, bool, error)
}
