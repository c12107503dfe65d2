package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"unicode"

	"github.com/creditlens/reportflow/internal/agent/config"
	"github.com/creditlens/reportflow/internal/agent/telemetry"
)

// OutlineGenerator turns the report request into a section/metric structure
// via the decision oracle, then deterministically repairs the result.
type OutlineGenerator struct {
	config    *config.Config
	llm       LLMProvider
	resolver  *Resolver
	telemetry *telemetry.Telemetry
	retry     RetryPolicy
	logger    *log.Logger
}

// NewOutlineGenerator creates a new outline generator instance
func NewOutlineGenerator(cfg *config.Config, llm LLMProvider, resolver *Resolver, tele *telemetry.Telemetry) *OutlineGenerator {
	return &OutlineGenerator{
		config:    cfg,
		llm:       llm,
		resolver:  resolver,
		telemetry: tele,
		retry: RetryPolicy{
			MaxAttempts:    cfg.Workflow.OutlineMaxRetries,
			InitialBackoff: cfg.Workflow.OutlineBackoff,
			Multiplier:     1.5,
			MaxBackoff:     cfg.Workflow.OutlineBackoffCap,
		},
		logger: log.New(log.Writer(), "[OUTLINE] ", log.LstdFlags),
	}
}

// rawOutline mirrors the nested bucket structure the oracle replies with
type rawOutline struct {
	ReportTitle string `json:"report_title"`
	Sections    []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Metrics     map[string][]struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"metrics"`
	} `json:"sections"`
}

// Generate produces a new state carrying an outline draft. Oracle failures
// are retried with backoff; after exhaustion a default outline built from
// the catalog is substituted, so this only fails when the catalog itself is
// unreachable.
func (g *OutlineGenerator) Generate(ctx context.Context, state WorkflowState) (WorkflowState, error) {
	out := state.Clone()

	catalog, err := g.resolver.Catalog(ctx)
	if err != nil {
		return out, err
	}

	var outline *ReportOutline
	genErr := g.retry.Do(ctx, func(ctx context.Context) error {
		o, err := g.generateOnce(ctx, state, catalog)
		if err != nil {
			return err
		}
		outline = o
		return nil
	}, func(attempt int, err error) {
		g.telemetry.RecordOutlineRetry()
		g.logger.Printf("outline attempt %d failed: %v", attempt, err)
	})

	if genErr != nil {
		g.logger.Printf("outline generation exhausted retries: %v, using default outline", genErr)
		o := g.defaultOutline(state.Question, catalog)
		outline = &o
		out.AddError("outline generation failed after %d attempts: %v", g.retry.MaxAttempts, genErr)
	}

	repairOutline(outline)

	out.OutlineDraft = outline
	out.OutlineVersion++
	out.AddMessage("outline v%d generated: %d sections, %d metrics", out.OutlineVersion, len(outline.Sections), len(outline.GlobalMetrics))
	g.logger.Printf("outline v%d ready: %d sections, %d metrics", out.OutlineVersion, len(outline.Sections), len(outline.GlobalMetrics))
	return out, nil
}

// generateOnce performs one oracle call and converts the nested reply into a
// flat outline with resolved metric ids.
func (g *OutlineGenerator) generateOnce(ctx context.Context, state WorkflowState, catalog []KnowledgeEntry) (*ReportOutline, error) {
	prompt := createOutlinePrompt(state.Question, state.Industry, state.DataSet, catalog)

	response, err := g.llm.Generate(ctx, prompt, g.config.LLM.Model, map[string]interface{}{
		"temperature": g.config.LLM.Temperature,
		"max_tokens":  g.config.LLM.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("outline oracle call failed: %w", err)
	}

	jsonStr := extractJSON(response)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON found in outline response")
	}

	var raw rawOutline
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse outline JSON: %w", err)
	}
	if len(raw.Sections) == 0 {
		return nil, fmt.Errorf("outline response has no sections")
	}

	return g.convert(ctx, raw, state.Industry)
}

// convert flattens the bucket structure. Every distinct metric name is
// resolved against the catalog; unresolved names get a synthetic requirement
// so the pipeline still has something to attempt.
func (g *OutlineGenerator) convert(ctx context.Context, raw rawOutline, industry string) (*ReportOutline, error) {
	outline := &ReportOutline{ReportTitle: raw.ReportTitle}
	seen := map[string]bool{}

	for _, rawSec := range raw.Sections {
		sec := ReportSection{
			Title:         rawSec.Title,
			Description:   rawSec.Description,
			MetricsNeeded: []string{},
		}
		for _, bucket := range []string{"calculation", "statistical", "analysis"} {
			for _, m := range rawSec.Metrics[bucket] {
				if strings.TrimSpace(m.Name) == "" {
					continue
				}
				id, err := g.resolver.Resolve(ctx, m.Name, m.Description, industry)
				if err != nil {
					return nil, err
				}
				if id == "" {
					id = m.Name
					g.logger.Printf("no catalog match for %q, using synthetic requirement", m.Name)
				}
				sec.MetricsNeeded = append(sec.MetricsNeeded, id)
				if !seen[id] {
					seen[id] = true
					outline.GlobalMetrics = append(outline.GlobalMetrics, MetricRequirement{
						MetricID:         id,
						MetricName:       m.Name,
						CalculationLogic: m.Description,
						RequiredFields:   []string{},
						Dependencies:     []string{},
					})
				}
			}
		}
		outline.Sections = append(outline.Sections, sec)
	}
	return outline, nil
}

// defaultOutline builds the fallback outline from catalog entries classified
// as basic statistical, falling back to any entries when fewer than 3 exist.
func (g *OutlineGenerator) defaultOutline(question string, catalog []KnowledgeEntry) ReportOutline {
	base := basicStatisticalEntries(catalog)
	if len(base) < 3 {
		base = catalog
	}
	if len(base) > 5 {
		base = base[:5]
	}

	sec := ReportSection{
		SectionID:     "sec_1",
		Title:         "Overview",
		Description:   "Basic statistics for: " + question,
		MetricsNeeded: []string{},
	}
	var metrics []MetricRequirement
	for _, e := range base {
		sec.MetricsNeeded = append(sec.MetricsNeeded, e.ID)
		metrics = append(metrics, MetricRequirement{
			MetricID:         e.ID,
			MetricName:       strings.TrimPrefix(e.ID, knowledgeIDPrefix),
			CalculationLogic: e.Description,
			RequiredFields:   []string{},
			Dependencies:     []string{},
		})
	}
	return ReportOutline{
		ReportTitle:   "Transaction Analysis Report",
		Sections:      []ReportSection{sec},
		GlobalMetrics: metrics,
	}
}

// basicStatisticalEntries keeps catalog entries whose descriptions speak of
// totals or counts. Matches whole words only: "counterparties" and
// "accounts" are not counting metrics.
func basicStatisticalEntries(catalog []KnowledgeEntry) []KnowledgeEntry {
	var out []KnowledgeEntry
	for _, e := range catalog {
		desc := strings.ToLower(e.Description)
		if containsWord(desc, "total") || containsWord(desc, "count") || strings.Contains(desc, "number of") {
			out = append(out, e)
		}
	}
	return out
}

func containsWord(s, word string) bool {
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if tok == word {
			return true
		}
	}
	return false
}

// repairOutline normalizes an outline in place: missing section and metric
// ids are assigned positionally, nil sequences become empty, and empty
// required-field sets are inferred from the calculation logic.
func repairOutline(o *ReportOutline) {
	for i := range o.Sections {
		if strings.TrimSpace(o.Sections[i].SectionID) == "" {
			o.Sections[i].SectionID = fmt.Sprintf("sec_%d", i+1)
		}
		if o.Sections[i].MetricsNeeded == nil {
			o.Sections[i].MetricsNeeded = []string{}
		}
	}
	for i := range o.GlobalMetrics {
		m := &o.GlobalMetrics[i]
		if strings.TrimSpace(m.MetricID) == "" {
			m.MetricID = fmt.Sprintf("metric_%d", i+1)
		}
		if m.Dependencies == nil {
			m.Dependencies = []string{}
		}
		if len(m.RequiredFields) == 0 {
			m.RequiredFields = inferRequiredFields(m.CalculationLogic)
		}
	}
}

// inferRequiredFields guesses input fields from calculation logic keywords
func inferRequiredFields(calculationLogic string) []string {
	logic := strings.ToLower(calculationLogic)
	seen := map[string]bool{}
	var out []string
	add := func(fields ...string) {
		for _, f := range fields {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	if strings.Contains(logic, "income") || strings.Contains(logic, "expense") {
		add("txAmount", "txDirection")
	}
	if strings.Contains(logic, "balance") {
		add("txBalance")
	}
	if strings.Contains(logic, "counterparty") {
		add("txCounterparty")
	}
	if strings.Contains(logic, "time") {
		add("txTime", "txDate")
	} else if strings.Contains(logic, "date") {
		add("txDate")
	}
	if strings.Contains(logic, "summary") {
		add("txSummary")
	}
	if len(out) == 0 {
		add("txAmount", "txDate")
	}
	return out
}

// extractJSON pulls the first balanced JSON object out of an oracle reply.
// Braces inside string values do not count toward the balance.
func extractJSON(response string) string {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i, ch := range response {
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
			if depth == 0 && start != -1 {
				return response[start : i+1]
			}
		}
	}
	return ""
}
