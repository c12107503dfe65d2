// Package mockengine serves a deterministic knowledge engine for local
// development and tests. It speaks the same wire protocol as the real
// rules engine and computes every metric from the transactions it is sent.
package mockengine

import (
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Server wraps the echo instance so callers can mount it in tests or run
// it standalone.
type Server struct {
	echo   *echo.Echo
	logger *log.Logger
}

func NewServer() *Server {
	s := &Server{logger: log.New(log.Writer(), "[MOCKENGINE] ", log.LstdFlags)}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	e.POST("/api/rules/getKnowledgeMeta", s.handleMeta)
	e.POST("/api/rules/executeKnowledge", s.handleExecute)
	s.echo = e
	return s
}

// Handler exposes the underlying mux for httptest servers
func (s *Server) Handler() http.Handler { return s.echo }

// Start blocks serving on addr until the listener fails
func (s *Server) Start(addr string) error {
	s.logger.Printf("serving %d knowledge entries on %s", len(knowledgeBase), addr)
	return s.echo.Start(addr)
}

type metaEntry struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	InputField  string `json:"inputField"`
}

func (s *Server) handleMeta(c echo.Context) error {
	out := make([]metaEntry, 0, len(knowledgeBase))
	for _, k := range knowledgeBase {
		out = append(out, metaEntry{ID: k.ID, Description: k.Description, InputField: k.InputField})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": out})
}

type executeRequest struct {
	ID    string                 `json:"id"`
	Input map[string]interface{} `json:"input"`
}

func (s *Server) handleExecute(c echo.Context) error {
	var req executeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"success": false, "error": "malformed request"})
	}

	def, err := findKnowledge(req.ID)
	if err != nil {
		return c.JSON(http.StatusOK, map[string]interface{}{"success": false, "error": err.Error()})
	}

	rows, err := extractRows(req.Input, def.InputField)
	if err != nil {
		return c.JSON(http.StatusOK, map[string]interface{}{"success": false, "error": err.Error()})
	}

	s.logger.Printf("executing %s over %d rows", def.ID, len(rows))
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": def.Compute(rows)})
}

func extractRows(input map[string]interface{}, field string) ([]map[string]interface{}, error) {
	raw, ok := input[field]
	if !ok {
		return nil, fmt.Errorf("input field %q missing", field)
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("input field %q is not a list", field)
	}
	rows := make([]map[string]interface{}, 0, len(list))
	for _, item := range list {
		if row, ok := item.(map[string]interface{}); ok {
			rows = append(rows, row)
		}
	}
	return rows, nil
}
