package mockengine

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/creditlens/reportflow/internal/agent/config"
	"github.com/creditlens/reportflow/internal/knowledge"
)

func sampleRows() []map[string]interface{} {
	return []map[string]interface{}{
		{"txAmount": 1000.0, "txDirection": "in", "txCounterparty": "acme corp", "txDate": "2024-01-05", "txAccount": "acc-1"},
		{"txAmount": 250.0, "txDirection": "in", "txCounterparty": "beta llc", "txDate": "2024-02-10", "txAccount": "acc-1"},
		{"txAmount": 400.0, "txDirection": "in", "txCounterparty": "acme corp", "txDate": "2024-02-18", "txAccount": "acc-2"},
		{"txAmount": 300.0, "txDirection": "out", "txCounterparty": "gamma inc", "txDate": "2024-01-20", "txAccount": "acc-1"},
		{"txAmount": 150.0, "txDirection": "out", "txCounterparty": "gamma inc", "txDate": "2024-03-02", "txAccount": "acc-2"},
	}
}

func newEngineClient(t *testing.T) (*knowledge.Client, func()) {
	t.Helper()
	srv := httptest.NewServer(NewServer().Handler())
	c := knowledge.NewClient(config.EngineConfig{BaseURL: srv.URL, Timeout: 2 * time.Second})
	return c, srv.Close
}

func TestCatalogMatchesKnowledgeBase(t *testing.T) {
	c, done := newEngineClient(t)
	defer done()

	entries, err := c.Catalog(context.Background())
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	if len(entries) != len(knowledgeBase) {
		t.Fatalf("got %d entries, want %d", len(entries), len(knowledgeBase))
	}
	for i, e := range entries {
		if e.ID != knowledgeBase[i].ID || e.InputField != knowledgeBase[i].InputField {
			t.Fatalf("entry %d: %+v", i, e)
		}
	}
}

func TestExecuteTotalIncome(t *testing.T) {
	c, done := newEngineClient(t)
	defer done()

	result, err := c.Execute(context.Background(), "metric-total-income", "transactions", sampleRows())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// Whole totals come back as int64: the JSON round trip drops the
	// fractional part and the client normalizes integral numbers.
	m := result.(map[string]interface{})
	if m["total"] != int64(1650) {
		t.Fatalf("total income = %v (%T)", m["total"], m["total"])
	}
	if m["transactions"] != int64(3) {
		t.Fatalf("inflow count = %v (%T)", m["transactions"], m["transactions"])
	}
}

func TestExecuteTopCounterparties(t *testing.T) {
	c, done := newEngineClient(t)
	defer done()

	result, err := c.Execute(context.Background(), "metric-top3-counterparty-income", "transactions", sampleRows())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	ranking := result.(map[string]interface{})["ranking"].([]interface{})
	if len(ranking) != 2 {
		t.Fatalf("got %d counterparties", len(ranking))
	}
	first := ranking[0].(map[string]interface{})
	if first["counterparty"] != "acme corp" || first["total"] != int64(1400) {
		t.Fatalf("top counterparty = %v", first)
	}
}

func TestExecuteMonthlyTrendSorted(t *testing.T) {
	c, done := newEngineClient(t)
	defer done()

	result, err := c.Execute(context.Background(), "metric-monthly-income-trend", "transactions", sampleRows())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	trend := result.(map[string]interface{})["trend"].([]interface{})
	if len(trend) != 2 {
		t.Fatalf("got %d months", len(trend))
	}
	jan := trend[0].(map[string]interface{})
	feb := trend[1].(map[string]interface{})
	if jan["month"] != "2024-01" || jan["total"] != int64(1000) {
		t.Fatalf("january = %v", jan)
	}
	if feb["month"] != "2024-02" || feb["total"] != int64(650) {
		t.Fatalf("february = %v", feb)
	}
}

func TestExecuteTimeRange(t *testing.T) {
	c, done := newEngineClient(t)
	defer done()

	result, err := c.Execute(context.Background(), "metric-time-range", "transactions", sampleRows())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	m := result.(map[string]interface{})
	if m["from"] != "2024-01-05" || m["to"] != "2024-03-02" {
		t.Fatalf("range = %v", m)
	}
}

func TestExecuteUnknownIDReportsFailure(t *testing.T) {
	c, done := newEngineClient(t)
	defer done()

	if _, err := c.Execute(context.Background(), "metric-no-such", "transactions", sampleRows()); err == nil {
		t.Fatalf("expected failure for unknown knowledge id")
	}
}

func TestExecuteMissingInputField(t *testing.T) {
	c, done := newEngineClient(t)
	defer done()

	// The catalog advertises "transactions"; sending "rows" must fail.
	if _, err := c.Execute(context.Background(), "metric-total-income", "rows", sampleRows()); err == nil {
		t.Fatalf("expected failure when payload sits under the wrong field")
	}
}

func TestExecuteEmptyDataSet(t *testing.T) {
	c, done := newEngineClient(t)
	defer done()

	result, err := c.Execute(context.Background(), "metric-transaction-count", "transactions", []map[string]interface{}{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	m := result.(map[string]interface{})
	if m["total"] != int64(0) {
		t.Fatalf("count on empty set = %v", m["total"])
	}
}

func TestSpanDays(t *testing.T) {
	if d := spanDays("2024-01-05", "2024-01-05"); d != 1 {
		t.Fatalf("same day span = %d", d)
	}
	if d := spanDays("2024-01-05", "2024-01-20"); d != 16 {
		t.Fatalf("span = %d", d)
	}
	if d := spanDays("garbage", "2024-01-20"); d != 0 {
		t.Fatalf("unparseable span = %d", d)
	}
}
