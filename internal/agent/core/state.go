package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// WorkflowState is the orchestration record threaded through every step.
// Components receive a snapshot and return a new one via Clone; no component
// mutates a snapshot another component still holds.
type WorkflowState struct {
	SessionID string                   `json:"session_id"`
	Question  string                   `json:"question"`
	Industry  string                   `json:"industry"`
	DataSet   []map[string]interface{} `json:"data_set"`

	OutlineDraft   *ReportOutline `json:"outline_draft,omitempty"`
	OutlineVersion int            `json:"outline_version"`

	MetricsRequirements  []MetricRequirement    `json:"metrics_requirements"`
	ComputedMetrics      map[string]interface{} `json:"computed_metrics"`
	PendingMetricIDs     []string               `json:"pending_metric_ids"`
	FailedMetricAttempts map[string]int         `json:"failed_metric_attempts"`

	PlanningStep int      `json:"planning_step"`
	Messages     []string `json:"messages"`
	Errors       []string `json:"errors"`

	ReportDraft *CompiledReport `json:"report_draft,omitempty"`
	Finalized   bool            `json:"finalized"`
}

// NewWorkflowState creates the initial state for one report session
func NewWorkflowState(sessionID string, req ReportRequest) WorkflowState {
	return WorkflowState{
		SessionID:            sessionID,
		Question:             req.Question,
		Industry:             req.Industry,
		DataSet:              req.DataSet,
		ComputedMetrics:      map[string]interface{}{},
		PendingMetricIDs:     []string{},
		FailedMetricAttempts: map[string]int{},
		Messages:             []string{},
		Errors:               []string{},
	}
}

// Clone produces a deep copy so the caller can mutate freely
func (s WorkflowState) Clone() WorkflowState {
	out := s

	out.DataSet = make([]map[string]interface{}, len(s.DataSet))
	for i, row := range s.DataSet {
		out.DataSet[i] = cloneMap(row)
	}

	if s.OutlineDraft != nil {
		o := cloneOutline(*s.OutlineDraft)
		out.OutlineDraft = &o
	}

	out.MetricsRequirements = make([]MetricRequirement, len(s.MetricsRequirements))
	for i, r := range s.MetricsRequirements {
		out.MetricsRequirements[i] = cloneRequirement(r)
	}

	out.ComputedMetrics = make(map[string]interface{}, len(s.ComputedMetrics))
	for k, v := range s.ComputedMetrics {
		out.ComputedMetrics[k] = cloneValue(v)
	}

	out.PendingMetricIDs = append([]string(nil), s.PendingMetricIDs...)

	out.FailedMetricAttempts = make(map[string]int, len(s.FailedMetricAttempts))
	for k, v := range s.FailedMetricAttempts {
		out.FailedMetricAttempts[k] = v
	}

	out.Messages = append([]string(nil), s.Messages...)
	out.Errors = append([]string(nil), s.Errors...)

	if s.ReportDraft != nil {
		r := cloneReport(*s.ReportDraft)
		out.ReportDraft = &r
	}

	return out
}

// CoverageRate is |computed| / |requirements|, 0 when no requirements exist
func (s WorkflowState) CoverageRate() float64 {
	if len(s.MetricsRequirements) == 0 {
		return 0
	}
	return float64(len(s.ComputedMetrics)) / float64(len(s.MetricsRequirements))
}

// ValidPending returns pending metrics whose failure count is below the
// retry cap. Metrics at the cap stay in PendingMetricIDs for accounting but
// are never dispatched again.
func (s WorkflowState) ValidPending(maxRetry int) []string {
	var out []string
	for _, id := range s.PendingMetricIDs {
		if s.FailedMetricAttempts[id] < maxRetry {
			out = append(out, id)
		}
	}
	return out
}

// Requirement looks up a metric requirement by id
func (s WorkflowState) Requirement(metricID string) (MetricRequirement, bool) {
	for _, r := range s.MetricsRequirements {
		if r.MetricID == metricID {
			return r, true
		}
	}
	return MetricRequirement{}, false
}

// AddMessage appends to the audit log with a timestamp prefix
func (s *WorkflowState) AddMessage(format string, args ...interface{}) {
	s.Messages = append(s.Messages, time.Now().UTC().Format(time.RFC3339)+" "+fmt.Sprintf(format, args...))
}

// AddError appends to the error log with a timestamp prefix
func (s *WorkflowState) AddError(format string, args ...interface{}) {
	s.Errors = append(s.Errors, time.Now().UTC().Format(time.RFC3339)+" "+fmt.Sprintf(format, args...))
}

func removeString(list []string, target string) []string {
	out := list[:0:0]
	for _, v := range list {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}

func containsString(list []string, target string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}

func cloneRequirement(r MetricRequirement) MetricRequirement {
	r.RequiredFields = append([]string(nil), r.RequiredFields...)
	r.Dependencies = append([]string(nil), r.Dependencies...)
	return r
}

func cloneOutline(o ReportOutline) ReportOutline {
	out := o
	out.Sections = make([]ReportSection, len(o.Sections))
	for i, sec := range o.Sections {
		sec.MetricsNeeded = append([]string(nil), sec.MetricsNeeded...)
		out.Sections[i] = sec
	}
	out.GlobalMetrics = make([]MetricRequirement, len(o.GlobalMetrics))
	for i, r := range o.GlobalMetrics {
		out.GlobalMetrics[i] = cloneRequirement(r)
	}
	return out
}

func cloneReport(r CompiledReport) CompiledReport {
	out := r
	out.Sections = make([]CompiledSection, len(r.Sections))
	for i, sec := range r.Sections {
		sec.Metrics = cloneMap(sec.Metrics)
		out.Sections[i] = sec
	}
	return out
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return cloneMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// NormalizeValue recursively converts wrapper numeric types (json.Number and
// the fixed-width integer/float families) into plain int64/float64 so any
// snapshot serializes as plain JSON.
func NormalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint:
		return int64(t)
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		return int64(t)
	case float32:
		return float64(t)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = NormalizeValue(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = NormalizeValue(e)
		}
		return out
	case []map[string]interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = NormalizeValue(e)
		}
		return out
	default:
		return v
	}
}
