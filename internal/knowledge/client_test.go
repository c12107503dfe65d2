package knowledge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/creditlens/reportflow/internal/agent/config"
)

func newTestClient(url string) *Client {
	return NewClient(config.EngineConfig{BaseURL: url, Timeout: 2 * time.Second, Retries: 0, Backoff: time.Millisecond})
}

func TestCatalogBareArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != metaPath || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`[{"id": "metric-total-income", "description": "total income", "inputField": "transactions"}]`))
	}))
	defer srv.Close()

	entries, err := newTestClient(srv.URL).Catalog(context.Background())
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "metric-total-income" {
		t.Fatalf("got %+v", entries)
	}
}

func TestCatalogEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": [{"id": "metric-a", "description": "a", "inputField": "rows"}]}`))
	}))
	defer srv.Close()

	entries, err := newTestClient(srv.URL).Catalog(context.Background())
	if err != nil {
		t.Fatalf("Catalog: %v", err)
	}
	if len(entries) != 1 || entries[0].InputField != "rows" {
		t.Fatalf("got %+v", entries)
	}
}

func TestCatalogServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).Catalog(context.Background()); err == nil {
		t.Fatalf("expected error on 500")
	}
}

func TestExecuteWrapsPayloadUnderInputField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != executePath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			ID    string                 `json:"id"`
			Input map[string]interface{} `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.ID != "metric-total-income" {
			t.Errorf("id = %q", req.ID)
		}
		if _, ok := req.Input["rows"]; !ok {
			t.Errorf("payload not wrapped under advertised field: %v", req.Input)
		}
		_, _ = w.Write([]byte(`{"success": true, "data": {"value": 160.5}}`))
	}))
	defer srv.Close()

	result, err := newTestClient(srv.URL).Execute(context.Background(), "metric-total-income", "rows", []map[string]interface{}{{"txAmount": 1}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	m := result.(map[string]interface{})
	if m["value"] != 160.5 {
		t.Fatalf("got %v", m)
	}
}

func TestExecuteFailureStatuses(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"http 500": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"engine failure": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"success": false, "error": "unknown knowledge id"}`))
		},
		"malformed body": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{{{`))
		},
		"empty payload": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"success": true}`))
		},
	}
	for name, handler := range cases {
		srv := httptest.NewServer(handler)
		if _, err := newTestClient(srv.URL).Execute(context.Background(), "metric-x", "transactions", nil); err == nil {
			t.Fatalf("%s: expected error", name)
		}
		srv.Close()
	}
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"success": true, "data": 7}`))
	}))
	defer srv.Close()

	c := NewClient(config.EngineConfig{BaseURL: srv.URL, Timeout: 2 * time.Second, Retries: 2, Backoff: time.Millisecond})
	result, err := c.Execute(context.Background(), "metric-x", "", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected a retry, got %d attempts", attempts)
	}
	if v, ok := result.(int64); !ok || v != 7 {
		t.Fatalf("got %T %v", result, result)
	}
}
