package core

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
)

const knowledgeIDPrefix = "metric-"

// compoundTerms maps known compound business terms to the catalog identifier
// they should resolve to. Checked after the exact-match tier.
var compoundTerms = []struct {
	term string
	id   string
}{
	{"top3 counterparty income", "metric-top3-counterparty-income"},
	{"top 3 counterparty income", "metric-top3-counterparty-income"},
	{"income expense ratio", "metric-income-expense-ratio"},
	{"monthly income trend", "metric-monthly-income-trend"},
	{"total income", "metric-total-income"},
	{"total expense", "metric-total-expense"},
	{"transaction count", "metric-transaction-count"},
	{"account count", "metric-account-count"},
	{"time range", "metric-time-range"},
}

// cueKeywords expands keyword cues detected in a metric description into
// synonym keywords used by the scoring fallback.
var cueKeywords = []struct {
	cue      string
	keywords []string
}{
	{"income", []string{"income", "revenue", "inflow"}},
	{"expense", []string{"expense", "spending", "outflow"}},
	{"ranking", []string{"top", "ranking", "largest"}},
	{"ratio", []string{"ratio", "proportion", "share"}},
	{"time range", []string{"time", "range", "span", "period"}},
	{"account", []string{"account", "card"}},
}

// Resolver maps free-form metric names to canonical knowledge identifiers
// via a three-tier fallback chain: exact identifier match, hand-mapped
// compound terms, then weighted keyword scoring. The catalog is fetched once
// and cached; after that the resolver is read-only and safe for concurrent
// use across sessions.
type Resolver struct {
	engine KnowledgeEngine
	logger *log.Logger

	once    sync.Once
	catalog []KnowledgeEntry
	loadErr error
}

// NewResolver creates a resolver bound to one catalog snapshot
func NewResolver(engine KnowledgeEngine) *Resolver {
	return &Resolver{
		engine: engine,
		logger: log.New(log.Writer(), "[RESOLVER] ", log.LstdFlags),
	}
}

// Catalog returns the cached catalog, fetching it on first use. An
// unreachable catalog is the one fatal startup condition and propagates.
func (r *Resolver) Catalog(ctx context.Context) ([]KnowledgeEntry, error) {
	r.once.Do(func() {
		entries, err := r.engine.Catalog(ctx)
		if err != nil {
			r.loadErr = fmt.Errorf("knowledge catalog unreachable: %w", err)
			return
		}
		r.catalog = entries
		r.logger.Printf("catalog loaded: %d entries", len(entries))
	})
	return r.catalog, r.loadErr
}

// InputField returns the catalog-advertised input field name for an
// identifier, defaulting to "transactions" for unknown ids.
func (r *Resolver) InputField(ctx context.Context, id string) string {
	entries, err := r.Catalog(ctx)
	if err != nil {
		return "transactions"
	}
	for _, e := range entries {
		if e.ID == id && e.InputField != "" {
			return e.InputField
		}
	}
	return "transactions"
}

// Resolve returns the canonical knowledge identifier for a metric name and
// description, or empty when no tier produces a match. The industry tag
// sharpens the scoring tier and may be empty.
func (r *Resolver) Resolve(ctx context.Context, metricName, description, industry string) (string, error) {
	entries, err := r.Catalog(ctx)
	if err != nil {
		return "", err
	}

	name := strings.ToLower(strings.TrimSpace(metricName))
	if name == "" {
		return "", nil
	}

	// Tier 1: exact identifier match with the prefix stripped
	for _, e := range entries {
		if strings.TrimPrefix(e.ID, knowledgeIDPrefix) == name {
			return e.ID, nil
		}
	}

	// Tier 2: hand-mapped compound business terms
	for _, ct := range compoundTerms {
		if strings.Contains(name, ct.term) && hasEntry(entries, ct.id) {
			return ct.id, nil
		}
	}

	// Tier 3: weighted keyword scoring
	keywords := buildKeywords(name, strings.ToLower(description))
	industry = strings.ToLower(strings.TrimSpace(industry))
	bestScore := 0
	bestID := ""
	for _, e := range entries {
		desc := strings.ToLower(e.Description)
		score := 0
		for _, kw := range keywords {
			score += strings.Count(desc, kw)
		}
		if industry != "" && strings.Contains(desc, industry) {
			score += 2
		}
		if strings.Contains(desc, name) {
			score += 3
		}
		if score > bestScore {
			bestScore = score
			bestID = e.ID
		}
	}
	if bestScore > 0 {
		return bestID, nil
	}
	return "", nil
}

func hasEntry(entries []KnowledgeEntry, id string) bool {
	for _, e := range entries {
		if e.ID == id {
			return true
		}
	}
	return false
}

// buildKeywords collects the name tokens plus synonym expansions for any cue
// present in the description. Deduplicated, insertion order preserved.
func buildKeywords(name, description string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(kw string) {
		if kw == "" || seen[kw] {
			return
		}
		seen[kw] = true
		out = append(out, kw)
	}
	for _, tok := range strings.FieldsFunc(name, func(r rune) bool {
		return r == ' ' || r == '_' || r == '-' || r == '/'
	}) {
		add(tok)
	}
	for _, cue := range cueKeywords {
		if strings.Contains(description, cue.cue) || strings.Contains(name, cue.cue) {
			for _, kw := range cue.keywords {
				add(kw)
			}
		}
	}
	return out
}
