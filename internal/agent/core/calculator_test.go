package core

import (
	"context"
	"errors"
	"testing"
)

func seededState(t *testing.T, ids ...string) WorkflowState {
	t.Helper()
	outline := &ReportOutline{ReportTitle: "R", Sections: []ReportSection{{SectionID: "sec_1", Title: "S", MetricsNeeded: ids}}}
	for _, id := range ids {
		outline.GlobalMetrics = append(outline.GlobalMetrics, MetricRequirement{
			MetricID:       id,
			MetricName:     id,
			RequiredFields: []string{"txAmount"},
			Dependencies:   []string{},
		})
	}
	state := NewWorkflowState("s1", ReportRequest{Question: "q", DataSet: testRows()})
	state.OutlineDraft = outline
	state.OutlineVersion = 1
	return NewMetricEvaluator().Evaluate(state)
}

func TestEvaluateSeedsPendingSet(t *testing.T) {
	state := seededState(t, "metric-total-income", "metric-total-expense")

	if len(state.MetricsRequirements) != 2 {
		t.Fatalf("expected 2 requirements, got %d", len(state.MetricsRequirements))
	}
	if len(state.PendingMetricIDs) != 2 || len(state.ComputedMetrics) != 0 {
		t.Fatalf("bad seed: pending=%v computed=%v", state.PendingMetricIDs, state.ComputedMetrics)
	}

	// Idempotent: a second run must not reset anything
	state.ComputedMetrics["metric-total-income"] = 12.0
	again := NewMetricEvaluator().Evaluate(state)
	if len(again.ComputedMetrics) != 1 {
		t.Fatalf("re-evaluation reset computed metrics")
	}
}

func TestComputeForwardProgress(t *testing.T) {
	state := seededState(t, "metric-total-income", "metric-total-expense")
	eng := &stubEngine{
		catalog:  testCatalog(),
		results:  map[string]interface{}{"metric-total-income": map[string]interface{}{"value": 160.5}},
		failures: map[string]error{"metric-total-expense": errors.New("engine 500")},
	}
	calc := NewMetricCalculator(testConfig(), eng, NewResolver(eng), testTelemetry)

	out := calc.Compute(context.Background(), state, nil)

	// Success and failure both leave the pending set
	if len(out.PendingMetricIDs) != 0 {
		t.Fatalf("batch members must leave pending, got %v", out.PendingMetricIDs)
	}
	if _, ok := out.ComputedMetrics["metric-total-income"]; !ok {
		t.Fatalf("successful metric not stored")
	}
	if out.FailedMetricAttempts["metric-total-expense"] != 1 {
		t.Fatalf("failure ledger not updated: %v", out.FailedMetricAttempts)
	}
	if _, ok := out.ComputedMetrics["metric-total-expense"]; ok {
		t.Fatalf("failed metric must not be stored")
	}
	// Coverage only moves up
	if out.CoverageRate() != 0.5 {
		t.Fatalf("expected coverage 0.5, got %v", out.CoverageRate())
	}
}

func TestComputeDropsUndefinedMetrics(t *testing.T) {
	state := seededState(t, "metric-total-income")
	state.PendingMetricIDs = append(state.PendingMetricIDs, "metric-ghost")

	eng := &stubEngine{catalog: testCatalog()}
	calc := NewMetricCalculator(testConfig(), eng, NewResolver(eng), testTelemetry)

	out := calc.Compute(context.Background(), state, []string{"metric-ghost", "metric-total-income"})
	if containsString(out.PendingMetricIDs, "metric-ghost") {
		t.Fatalf("undefined metric must be dropped from pending")
	}
	if out.FailedMetricAttempts["metric-ghost"] != 0 {
		t.Fatalf("undefined metric must not count as a failed attempt")
	}
	if len(eng.executed) != 1 {
		t.Fatalf("undefined metric must not reach the engine, executed=%v", eng.executed)
	}
}

func TestComputeWrapsAdvertisedInputField(t *testing.T) {
	state := seededState(t, "metric-agriculture-subsidy")
	eng := &stubEngine{catalog: testCatalog()}
	calc := NewMetricCalculator(testConfig(), eng, NewResolver(eng), testTelemetry)

	calc.Compute(context.Background(), state, nil)
	if len(eng.fields) != 1 || eng.fields[0] != "rows" {
		t.Fatalf("expected catalog-advertised input field, got %v", eng.fields)
	}
}

func TestComputeSkipsExhaustedMetrics(t *testing.T) {
	state := seededState(t, "metric-total-income", "metric-total-expense")
	state.FailedMetricAttempts["metric-total-expense"] = 3

	eng := &stubEngine{catalog: testCatalog()}
	calc := NewMetricCalculator(testConfig(), eng, NewResolver(eng), testTelemetry)

	out := calc.Compute(context.Background(), state, nil)
	for _, id := range eng.executed {
		if id == "metric-total-expense" {
			t.Fatalf("exhausted metric was dispatched")
		}
	}
	if _, ok := out.ComputedMetrics["metric-total-income"]; !ok {
		t.Fatalf("valid metric not computed")
	}
}

func TestComputeNormalizesResults(t *testing.T) {
	state := seededState(t, "metric-total-income")
	eng := &stubEngine{
		catalog: testCatalog(),
		results: map[string]interface{}{"metric-total-income": map[string]interface{}{"value": 7, "ratio": float32(0.5)}},
	}
	calc := NewMetricCalculator(testConfig(), eng, NewResolver(eng), testTelemetry)

	out := calc.Compute(context.Background(), state, nil)
	got := out.ComputedMetrics["metric-total-income"].(map[string]interface{})
	if _, ok := got["value"].(int64); !ok {
		t.Fatalf("expected int64 after normalization, got %T", got["value"])
	}
	if _, ok := got["ratio"].(float64); !ok {
		t.Fatalf("expected float64 after normalization, got %T", got["ratio"])
	}
}
