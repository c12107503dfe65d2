package core

import (
	"fmt"
	"sort"
	"strings"
)

// createOutlinePrompt builds the outline generation prompt. The sample rows
// only contribute field names; computation always happens in the engine.
func createOutlinePrompt(question, industry string, dataSet []map[string]interface{}, catalog []KnowledgeEntry) string {
	var catalogLines []string
	for _, e := range catalog {
		catalogLines = append(catalogLines, fmt.Sprintf("- %s: %s (input field: %s)", e.ID, e.Description, e.InputField))
	}

	fields := fieldNames(dataSet)

	return fmt.Sprintf(`You are a report planning assistant for financial transaction analysis.

REPORT REQUEST: %s
INDUSTRY: %s
AVAILABLE DATA FIELDS: %s

AVAILABLE METRICS (knowledge catalog):
%s

Design a report outline. Group the metrics of each section into three buckets:
- calculation: metrics computed directly from the transaction rows
- statistical: aggregate statistics over the rows
- analysis: derived or comparative findings

REQUIREMENTS:
1. Prefer metric names that match the catalog above.
2. Each metric needs a short description of how it is calculated.
3. Keep the outline focused on the report request; 2-5 sections.

OUTPUT FORMAT (JSON only, no other text):
{
  "report_title": "...",
  "sections": [
    {
      "title": "...",
      "description": "...",
      "metrics": {
        "calculation": [{"name": "...", "description": "..."}],
        "statistical": [{"name": "...", "description": "..."}],
        "analysis": [{"name": "...", "description": "..."}]
      }
    }
  ]
}`, question, industry, strings.Join(fields, ", "), strings.Join(catalogLines, "\n"))
}

// createPlanningPrompt builds the per-cycle decision prompt from the status
// snapshot.
func createPlanningPrompt(question string, status PlanningStatus) string {
	return fmt.Sprintf(`You are the planning controller of a report generation workflow.

REPORT GOAL: %s

CURRENT STATUS:
- planning step: %d (hard ceiling %d)
- outline present: %t
- total required metrics: %d
- computed metrics: %d
- coverage rate: %.2f (finalize threshold %.2f)
- pending metrics: %d
- dispatchable pending metrics: %s
- permanently failed metrics: %s

DECISIONS:
- generate_outline: no outline exists yet
- compute_metrics: dispatch pending metrics to the calculation engine
- finalize_report: coverage is sufficient or no progress is possible
- clarify_requirements: the request is too ambiguous to proceed

OUTPUT FORMAT (JSON only, no other text):
{
  "decision": "generate_outline|compute_metrics|finalize_report|clarify_requirements",
  "reasoning": "...",
  "next_actions": ["..."],
  "metric_batch": ["metric ids to compute next, only for compute_metrics"],
  "priority": ["subset of metric_batch to compute first"]
}

Only reference metric ids from the dispatchable list above.`,
		question,
		status.PlanningStep, status.MaxPlanningSteps,
		status.HasOutline,
		status.TotalMetrics,
		status.ComputedCount,
		status.CoverageRate, status.CoverageThreshold,
		status.PendingCount,
		formatIDList(status.ValidPending),
		formatIDList(status.ExhaustedMetrics))
}

func formatIDList(ids []string) string {
	if len(ids) == 0 {
		return "(none)"
	}
	return strings.Join(ids, ", ")
}

// fieldNames enumerates the distinct keys of the sample rows, sorted for a
// stable prompt.
func fieldNames(dataSet []map[string]interface{}) []string {
	seen := map[string]bool{}
	var out []string
	for _, row := range dataSet {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	sort.Strings(out)
	return out
}
