package core

import "testing"

func TestFinalizeRendersDataMissing(t *testing.T) {
	state := seededState(t, "metric-total-income", "metric-total-expense")
	state.OutlineDraft.Sections = append(state.OutlineDraft.Sections, ReportSection{
		SectionID:     "sec_2",
		Title:         "Expenses again",
		MetricsNeeded: []string{"metric-total-expense", "metric-dangling"},
	})
	state.ComputedMetrics["metric-total-income"] = map[string]interface{}{"value": 160.5}
	state.PendingMetricIDs = []string{"metric-total-expense"}
	state.FailedMetricAttempts["metric-total-expense"] = 3
	state.PlanningStep = 7

	out := NewReportFinalizer().Finalize(state)

	if !out.Finalized || out.ReportDraft == nil {
		t.Fatalf("state not terminal")
	}
	r := out.ReportDraft
	if len(r.Sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(r.Sections))
	}
	if r.Sections[0].Metrics["metric-total-income"] == DataMissing {
		t.Fatalf("computed metric rendered as missing")
	}
	// Failed metric renders as missing in every section referencing it
	for _, sec := range r.Sections {
		if v, ok := sec.Metrics["metric-total-expense"]; ok && v != DataMissing {
			t.Fatalf("failed metric must render %q, got %v", DataMissing, v)
		}
	}
	// Dangling references render as missing instead of failing
	if r.Sections[1].Metrics["metric-dangling"] != DataMissing {
		t.Fatalf("dangling reference must render %q", DataMissing)
	}

	sum := r.Summary
	if sum.TotalSections != 2 || sum.TotalMetrics != 2 || sum.ComputedMetrics != 1 {
		t.Fatalf("bad summary: %+v", sum)
	}
	if sum.CoverageRate != 0.5 || sum.PlanningSteps != 7 {
		t.Fatalf("bad summary: %+v", sum)
	}
}

func TestFinalizeWithoutOutline(t *testing.T) {
	state := NewWorkflowState("s1", ReportRequest{Question: "q"})
	state.PlanningStep = 31

	out := NewReportFinalizer().Finalize(state)
	if !out.Finalized || out.ReportDraft == nil {
		t.Fatalf("finalizer must always produce a draft")
	}
	if out.ReportDraft.Summary.TotalSections != 0 {
		t.Fatalf("expected empty report, got %+v", out.ReportDraft)
	}
}
