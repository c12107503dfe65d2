package server

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/creditlens/reportflow/internal/agent/core"
	"github.com/creditlens/reportflow/internal/store"
)

type RunsHandler struct {
	Store *store.Store
	Orch  *core.Orchestrator
}

func (h *RunsHandler) Register(g *echo.Group, secret []byte) {
	g.Use(authMiddleware(secret))
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:run_id", h.get)
}

// create accepts a report request and runs it in the background. The
// response carries the run id to poll.
func (h *RunsHandler) create(c echo.Context) error {
	var req CreateRunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Question) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question is required")
	}
	if len(req.DataSet) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "data_set is required")
	}

	userID := c.Get("user_id").(string)
	runID := uuid.New().String()
	if err := h.Store.CreateRun(c.Request().Context(), runID, userID, req.Question, req.Industry); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	go h.execute(runID, core.ReportRequest{Question: req.Question, Industry: req.Industry, DataSet: req.DataSet})

	return c.JSON(http.StatusAccepted, map[string]string{"run_id": runID, "status": store.RunStatusRunning})
}

// execute drives one run to completion and records the outcome. Detached
// from the request context so closing the HTTP connection does not abort
// the session.
func (h *RunsHandler) execute(runID string, req core.ReportRequest) {
	ctx := context.Background()
	report, err := h.Orch.Run(ctx, req)
	if err != nil {
		_ = h.Store.FinishRun(ctx, runID, store.RunStatusFailed, 0, 0, nil, err.Error())
		return
	}
	if err := h.Store.FinishRun(ctx, runID, store.RunStatusSucceeded, report.Summary.CoverageRate, report.Summary.PlanningSteps, report, ""); err != nil {
		log.Printf("[HTTP] recording run %s: %v", runID, err)
	}
}

func (h *RunsHandler) list(c echo.Context) error {
	userID := c.Get("user_id").(string)
	runs, err := h.Store.ListRuns(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]RunResponse, 0, len(runs))
	for _, r := range runs {
		out = append(out, runResponse(r, false))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *RunsHandler) get(c echo.Context) error {
	userID := c.Get("user_id").(string)
	r, ok, err := h.Store.GetRun(c.Request().Context(), c.Param("run_id"), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "run not found")
	}
	return c.JSON(http.StatusOK, runResponse(r, true))
}

func runResponse(r store.Run, includeReport bool) RunResponse {
	out := RunResponse{
		ID:            r.ID,
		Question:      r.Question,
		Industry:      r.Industry,
		Status:        r.Status,
		Coverage:      r.Coverage,
		PlanningSteps: r.PlanningSteps,
		CreatedAt:     r.CreatedAt,
	}
	if r.Error.Valid {
		out.Error = r.Error.String
	}
	if r.FinishedAt.Valid {
		t := r.FinishedAt.Time
		out.FinishedAt = &t
	}
	if includeReport && len(r.Report) > 0 {
		out.Report = r.Report
	}
	return out
}
