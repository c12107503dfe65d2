package core

import (
	"context"
	"errors"
	"testing"
)

func TestResolveExactMatchWinsOverScoring(t *testing.T) {
	r := NewResolver(&stubEngine{catalog: testCatalog()})

	id, err := r.Resolve(context.Background(), "total-income", "sum of all incoming amounts", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id != "metric-total-income" {
		t.Fatalf("expected exact match, got %q", id)
	}
}

func TestResolveCompoundTerm(t *testing.T) {
	r := NewResolver(&stubEngine{catalog: testCatalog()})

	id, err := r.Resolve(context.Background(), "monthly top 3 counterparty income breakdown", "", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id != "metric-top3-counterparty-income" {
		t.Fatalf("expected compound term mapping, got %q", id)
	}
}

func TestResolveCompoundTermRequiresCatalogEntry(t *testing.T) {
	// Same name, but the mapped id is not in this catalog, so the compound
	// tier must not fire and scoring takes over.
	catalog := []KnowledgeEntry{
		{ID: "metric-counterparty-ranking", Description: "top counterparty ranking by income", InputField: "transactions"},
	}
	r := NewResolver(&stubEngine{catalog: catalog})

	id, err := r.Resolve(context.Background(), "top 3 counterparty income", "ranking of counterparties", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id != "metric-counterparty-ranking" {
		t.Fatalf("expected scoring fallback, got %q", id)
	}
}

func TestResolveScoringIndustryBonus(t *testing.T) {
	catalog := []KnowledgeEntry{
		{ID: "metric-generic-subsidy", Description: "subsidy income detection", InputField: "transactions"},
		{ID: "metric-farm-subsidy", Description: "subsidy income detection for agriculture accounts", InputField: "transactions"},
	}
	r := NewResolver(&stubEngine{catalog: catalog})

	id, err := r.Resolve(context.Background(), "subsidy detection", "income from subsidy programs", "agriculture")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id != "metric-farm-subsidy" {
		t.Fatalf("expected industry bonus to win, got %q", id)
	}
}

func TestResolveScoringTieKeepsCatalogOrder(t *testing.T) {
	catalog := []KnowledgeEntry{
		{ID: "metric-a", Description: "income statistics", InputField: "transactions"},
		{ID: "metric-b", Description: "income statistics", InputField: "transactions"},
	}
	r := NewResolver(&stubEngine{catalog: catalog})

	id, err := r.Resolve(context.Background(), "income overview", "income based figure", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id != "metric-a" {
		t.Fatalf("tie must keep catalog order, got %q", id)
	}
}

func TestResolveNoMatchReturnsEmpty(t *testing.T) {
	r := NewResolver(&stubEngine{catalog: testCatalog()})

	id, err := r.Resolve(context.Background(), "zzz", "qqq", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id != "" {
		t.Fatalf("expected empty id, got %q", id)
	}
}

func TestCatalogFetchedOnceAndCached(t *testing.T) {
	eng := &stubEngine{catalog: testCatalog()}
	r := NewResolver(eng)

	for i := 0; i < 3; i++ {
		if _, err := r.Catalog(context.Background()); err != nil {
			t.Fatalf("Catalog: %v", err)
		}
	}
	// Swap in a failure; the cache must keep serving
	eng.catalogErr = errors.New("down")
	entries, err := r.Catalog(context.Background())
	if err != nil {
		t.Fatalf("cached Catalog: %v", err)
	}
	if len(entries) != len(testCatalog()) {
		t.Fatalf("expected cached entries, got %d", len(entries))
	}
}

func TestCatalogUnreachablePropagates(t *testing.T) {
	r := NewResolver(&stubEngine{catalogErr: errors.New("connection refused")})

	if _, err := r.Catalog(context.Background()); err == nil {
		t.Fatalf("expected catalog error")
	}
	if _, err := r.Resolve(context.Background(), "total income", "", ""); err == nil {
		t.Fatalf("expected resolve to surface catalog error")
	}
}

func TestInputFieldDefaultsToTransactions(t *testing.T) {
	r := NewResolver(&stubEngine{catalog: testCatalog()})

	if f := r.InputField(context.Background(), "metric-agriculture-subsidy"); f != "rows" {
		t.Fatalf("expected advertised field, got %q", f)
	}
	if f := r.InputField(context.Background(), "metric-unknown"); f != "transactions" {
		t.Fatalf("expected default field, got %q", f)
	}
}
