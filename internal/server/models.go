package server

import (
	"encoding/json"
	"time"
)

type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateRunRequest struct {
	Question string                   `json:"question"`
	Industry string                   `json:"industry"`
	DataSet  []map[string]interface{} `json:"data_set"`
}

type RunResponse struct {
	ID            string          `json:"id"`
	Question      string          `json:"question"`
	Industry      string          `json:"industry,omitempty"`
	Status        string          `json:"status"`
	Coverage      float64         `json:"coverage"`
	PlanningSteps int             `json:"planning_steps"`
	Report        json.RawMessage `json:"report,omitempty"`
	Error         string          `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
}

type CreateScheduleRequest struct {
	Question string                   `json:"question"`
	Industry string                   `json:"industry"`
	CronSpec string                   `json:"cron_spec"`
	DataSet  []map[string]interface{} `json:"data_set"`
}

type ScheduleResponse struct {
	ID        string     `json:"id"`
	Question  string     `json:"question"`
	Industry  string     `json:"industry,omitempty"`
	CronSpec  string     `json:"cron_spec"`
	Enabled   bool       `json:"enabled"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
