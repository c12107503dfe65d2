package server

import (
	"net/http"
	"strings"

	"github.com/gorhill/cronexpr"
	"github.com/labstack/echo/v4"

	"github.com/creditlens/reportflow/internal/store"
)

type SchedulesHandler struct {
	Store *store.Store
}

func (h *SchedulesHandler) Register(g *echo.Group, secret []byte) {
	g.Use(authMiddleware(secret))
	g.POST("", h.create)
	g.GET("", h.list)
	g.PUT("/:schedule_id/enabled", h.setEnabled)
	g.DELETE("/:schedule_id", h.remove)
}

func (h *SchedulesHandler) create(c echo.Context) error {
	var req CreateScheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Question) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question is required")
	}
	if !validCronSpec(req.CronSpec) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid cron_spec")
	}
	if len(req.DataSet) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "data_set is required")
	}

	userID := c.Get("user_id").(string)
	id, err := h.Store.CreateSchedule(c.Request().Context(), userID, req.Question, req.Industry, req.CronSpec, req.DataSet)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, map[string]string{"schedule_id": id})
}

func (h *SchedulesHandler) list(c echo.Context) error {
	userID := c.Get("user_id").(string)
	schedules, err := h.Store.ListSchedules(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]ScheduleResponse, 0, len(schedules))
	for _, sc := range schedules {
		resp := ScheduleResponse{
			ID:        sc.ID,
			Question:  sc.Question,
			Industry:  sc.Industry,
			CronSpec:  sc.CronSpec,
			Enabled:   sc.Enabled,
			CreatedAt: sc.CreatedAt,
		}
		if sc.LastRunAt.Valid {
			t := sc.LastRunAt.Time
			resp.LastRunAt = &t
		}
		out = append(out, resp)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *SchedulesHandler) setEnabled(c echo.Context) error {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	userID := c.Get("user_id").(string)
	if err := h.Store.SetScheduleEnabled(c.Request().Context(), c.Param("schedule_id"), userID, req.Enabled); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusOK)
}

func (h *SchedulesHandler) remove(c echo.Context) error {
	userID := c.Get("user_id").(string)
	if err := h.Store.DeleteSchedule(c.Request().Context(), c.Param("schedule_id"), userID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusOK)
}

// validCronSpec accepts the aliases the scheduler understands plus anything
// cronexpr can parse
func validCronSpec(spec string) bool {
	switch spec {
	case "@daily", "@hourly":
		return true
	case "":
		return false
	}
	_, err := cronexpr.Parse(spec)
	return err == nil
}
