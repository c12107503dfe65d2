package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/creditlens/reportflow/internal/agent/config"
	"github.com/creditlens/reportflow/internal/agent/telemetry"
)

// stubLLM replays a scripted sequence of responses. The last response
// repeats once the script runs out.
type stubLLM struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     int
}

func (s *stubLLM) Generate(ctx context.Context, prompt, model string, options map[string]interface{}) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	if len(s.responses) == 0 {
		return "", errors.New("stub has no responses")
	}
	idx := s.calls - 1
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	return s.responses[idx], nil
}

// stubEngine serves a fixed catalog and per-id results or failures
type stubEngine struct {
	mu         sync.Mutex
	catalog    []KnowledgeEntry
	catalogErr error
	results    map[string]interface{}
	failures   map[string]error
	executed   []string
	fields     []string
}

func (s *stubEngine) Catalog(ctx context.Context) ([]KnowledgeEntry, error) {
	if s.catalogErr != nil {
		return nil, s.catalogErr
	}
	return s.catalog, nil
}

func (s *stubEngine) Execute(ctx context.Context, id, inputField string, payload interface{}) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executed = append(s.executed, id)
	s.fields = append(s.fields, inputField)
	if err, ok := s.failures[id]; ok {
		return nil, err
	}
	if v, ok := s.results[id]; ok {
		return v, nil
	}
	return map[string]interface{}{"value": 1}, nil
}

func testCatalog() []KnowledgeEntry {
	return []KnowledgeEntry{
		{ID: "metric-total-income", Description: "total income across all inflow transactions", InputField: "transactions"},
		{ID: "metric-total-expense", Description: "total expense across all outflow transactions", InputField: "transactions"},
		{ID: "metric-transaction-count", Description: "count of transactions in the data set", InputField: "transactions"},
		{ID: "metric-top3-counterparty-income", Description: "ranking of the top counterparties by income", InputField: "transactions"},
		{ID: "metric-agriculture-subsidy", Description: "agriculture subsidy income detection for farming accounts", InputField: "rows"},
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Workflow: config.WorkflowConfig{
			MaxPlanningSteps:      30,
			RelaxAfterStep:        20,
			RelaxCoverage:         0.5,
			CoverageThreshold:     0.8,
			MaxMetricRetries:      3,
			MaxConcurrentSessions: 2,
			OutlineMaxRetries:     3,
			OutlineBackoff:        time.Millisecond,
			OutlineBackoffCap:     5 * time.Millisecond,
		},
	}
}

var testTelemetry = telemetry.NewTelemetry(config.TelemetryConfig{})

func testRows() []map[string]interface{} {
	return []map[string]interface{}{
		{"txAmount": 120.5, "txDirection": "in", "txCounterparty": "acme", "txDate": "2026-01-03"},
		{"txAmount": 40.0, "txDirection": "out", "txCounterparty": "grid", "txDate": "2026-01-04"},
	}
}
