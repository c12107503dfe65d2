package core

import "log"

// MetricEvaluator seeds the pending-metric set from an outline. Pure state
// transform, no external calls.
type MetricEvaluator struct {
	logger *log.Logger
}

func NewMetricEvaluator() *MetricEvaluator {
	return &MetricEvaluator{logger: log.New(log.Writer(), "[EVALUATOR] ", log.LstdFlags)}
}

// Evaluate copies the outline's global metrics into the requirement set and
// marks every metric pending. Idempotent: once requirements exist the state
// passes through untouched (the router should not route here again anyway).
func (e *MetricEvaluator) Evaluate(state WorkflowState) WorkflowState {
	out := state.Clone()
	if len(out.MetricsRequirements) > 0 {
		return out
	}
	if out.OutlineDraft == nil {
		out.AddError("metric evaluator invoked without an outline")
		return out
	}

	out.MetricsRequirements = make([]MetricRequirement, len(out.OutlineDraft.GlobalMetrics))
	copy(out.MetricsRequirements, out.OutlineDraft.GlobalMetrics)

	out.PendingMetricIDs = make([]string, 0, len(out.MetricsRequirements))
	for _, r := range out.MetricsRequirements {
		out.PendingMetricIDs = append(out.PendingMetricIDs, r.MetricID)
	}
	out.ComputedMetrics = map[string]interface{}{}

	out.AddMessage("metric requirements seeded: %d pending", len(out.PendingMetricIDs))
	e.logger.Printf("seeded %d metric requirements", len(out.PendingMetricIDs))
	return out
}
