// Package knowledge implements the HTTP client for the rules-based
// calculation engine consumed by the report workflow.
package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/creditlens/reportflow/internal/agent/config"
	"github.com/creditlens/reportflow/internal/agent/core"
)

const (
	metaPath    = "/api/rules/getKnowledgeMeta"
	executePath = "/api/rules/executeKnowledge"
)

// Client talks to the knowledge engine over HTTP. It implements
// core.KnowledgeEngine.
type Client struct {
	baseURL string
	http    *core.HTTPClient
	logger  *log.Logger
}

// NewClient creates a client from the engine configuration
func NewClient(cfg config.EngineConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    core.NewHTTPClient(cfg.Timeout, cfg.Retries, cfg.Backoff),
		logger:  log.New(log.Writer(), "[ENGINE] ", log.LstdFlags),
	}
}

// Catalog fetches the knowledge metadata records. Accepts both a bare array
// and a {"data": [...]} envelope.
func (c *Client) Catalog(ctx context.Context) ([]core.KnowledgeEntry, error) {
	var raw json.RawMessage
	if err := c.http.DoJSON(ctx, http.MethodPost, c.baseURL+metaPath, nil, map[string]interface{}{}, &raw); err != nil {
		return nil, fmt.Errorf("getKnowledgeMeta: %w", err)
	}

	var bare []core.KnowledgeEntry
	if err := json.Unmarshal(raw, &bare); err == nil {
		return bare, nil
	}
	var envelope struct {
		Data []core.KnowledgeEntry `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("getKnowledgeMeta: malformed catalog: %w", err)
	}
	return envelope.Data, nil
}

// executeRequest is the wire shape of executeKnowledge: the payload sits
// under the input field name the catalog advertises for this id.
type executeRequest struct {
	ID    string                 `json:"id"`
	Input map[string]interface{} `json:"input"`
}

type executeResponse struct {
	Success *bool       `json:"success"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error"`
}

// Execute runs one knowledge computation. Non-2xx statuses, malformed
// bodies, and explicit success=false replies are all failures.
func (c *Client) Execute(ctx context.Context, id, inputField string, payload interface{}) (interface{}, error) {
	if inputField == "" {
		inputField = "transactions"
	}
	req := executeRequest{ID: id, Input: map[string]interface{}{inputField: payload}}

	started := time.Now()
	var resp executeResponse
	if err := c.http.DoJSON(ctx, http.MethodPost, c.baseURL+executePath, nil, req, &resp); err != nil {
		return nil, fmt.Errorf("executeKnowledge %s: %w", id, err)
	}
	if resp.Success != nil && !*resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "engine reported failure"
		}
		return nil, fmt.Errorf("executeKnowledge %s: %s", id, msg)
	}

	c.logger.Printf("%s computed in %v", id, time.Since(started))
	if resp.Data != nil {
		return core.NormalizeValue(resp.Data), nil
	}
	return nil, fmt.Errorf("executeKnowledge %s: empty result payload", id)
}
