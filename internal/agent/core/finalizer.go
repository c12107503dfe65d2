package core

import (
	"log"
	"time"
)

// DataMissing is the sentinel rendered for any metric referenced by a
// section but absent from the computed set.
const DataMissing = "data missing"

// ReportFinalizer assembles sections and computed values into the output
// artifact. Pure assembly, no external calls.
type ReportFinalizer struct {
	logger *log.Logger
}

func NewReportFinalizer() *ReportFinalizer {
	return &ReportFinalizer{logger: log.New(log.Writer(), "[FINALIZER] ", log.LstdFlags)}
}

// Finalize builds the report draft and marks the state terminal. The
// workflow must not re-enter the planning controller afterwards.
func (f *ReportFinalizer) Finalize(state WorkflowState) WorkflowState {
	out := state.Clone()

	report := CompiledReport{
		ReportTitle: "Analytical Report",
		GeneratedAt: time.Now().UTC(),
	}

	if out.OutlineDraft != nil {
		if out.OutlineDraft.ReportTitle != "" {
			report.ReportTitle = out.OutlineDraft.ReportTitle
		}
		for _, sec := range out.OutlineDraft.Sections {
			compiled := CompiledSection{
				SectionID:   sec.SectionID,
				Title:       sec.Title,
				Description: sec.Description,
				Metrics:     map[string]interface{}{},
			}
			for _, id := range sec.MetricsNeeded {
				if v, ok := out.ComputedMetrics[id]; ok {
					compiled.Metrics[id] = v
				} else {
					compiled.Metrics[id] = DataMissing
				}
			}
			report.Sections = append(report.Sections, compiled)
		}
	}

	report.Summary = ReportSummary{
		TotalSections:   len(report.Sections),
		TotalMetrics:    len(out.MetricsRequirements),
		ComputedMetrics: len(out.ComputedMetrics),
		CoverageRate:    out.CoverageRate(),
		PlanningSteps:   out.PlanningStep,
	}

	out.ReportDraft = &report
	out.Finalized = true
	out.AddMessage("report finalized: %d sections, coverage %.2f, %d planning steps",
		report.Summary.TotalSections, report.Summary.CoverageRate, report.Summary.PlanningSteps)
	f.logger.Printf("report %q finalized: coverage %.2f after %d steps",
		report.ReportTitle, report.Summary.CoverageRate, report.Summary.PlanningSteps)
	return out
}
