// Package store persists users, report runs, and report schedules in
// Postgres.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/lib/pq"
)

type Store struct {
	DB *sql.DB
}

// Run statuses persisted for report runs.
const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

// User operations
func (s *Store) CreateUser(ctx context.Context, email, hash string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2)`, email, hash)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	return
}

// Run is one report-generation request tracked end to end
type Run struct {
	ID            string
	UserID        string
	Question      string
	Industry      string
	Status        string
	Coverage      float64
	PlanningSteps int
	Report        []byte
	Error         sql.NullString
	CreatedAt     time.Time
	FinishedAt    sql.NullTime
}

func (s *Store) CreateRun(ctx context.Context, id, userID, question, industry string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO report_runs (id, user_id, question, industry, status) VALUES ($1,$2,$3,$4,$5)`,
		id, userID, question, industry, RunStatusRunning)
	return err
}

// FinishRun records the terminal outcome of a run. The report document is
// stored as jsonb; pass nil when the run failed before producing one.
func (s *Store) FinishRun(ctx context.Context, id string, status string, coverage float64, planningSteps int, report interface{}, runErr string) error {
	var doc []byte
	if report != nil {
		b, err := json.Marshal(report)
		if err != nil {
			return err
		}
		doc = b
	}
	var errVal interface{}
	if runErr != "" {
		errVal = runErr
	}
	_, err := s.DB.ExecContext(ctx, `
UPDATE report_runs
SET status=$2, coverage=$3, planning_steps=$4, report=$5, error=$6, finished_at=NOW()
WHERE id=$1`, id, status, coverage, planningSteps, doc, errVal)
	return err
}

func (s *Store) GetRun(ctx context.Context, id, userID string) (Run, bool, error) {
	var r Run
	err := s.DB.QueryRowContext(ctx, `
SELECT id, user_id, question, industry, status, COALESCE(coverage, 0), COALESCE(planning_steps, 0), report, error, created_at, finished_at
FROM report_runs WHERE id=$1 AND user_id=$2`, id, userID).
		Scan(&r.ID, &r.UserID, &r.Question, &r.Industry, &r.Status, &r.Coverage, &r.PlanningSteps, &r.Report, &r.Error, &r.CreatedAt, &r.FinishedAt)
	if err == sql.ErrNoRows {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, err
	}
	return r, true, nil
}

func (s *Store) ListRuns(ctx context.Context, userID string) ([]Run, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, user_id, question, industry, status, COALESCE(coverage, 0), COALESCE(planning_steps, 0), error, created_at, finished_at
FROM report_runs WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.UserID, &r.Question, &r.Industry, &r.Status, &r.Coverage, &r.PlanningSteps, &r.Error, &r.CreatedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Schedule triggers a recurring report run on a cron expression. DataSet
// holds the jsonb transaction rows each run is computed over.
type Schedule struct {
	ID        string
	UserID    string
	Question  string
	Industry  string
	CronSpec  string
	DataSet   []byte
	Enabled   bool
	LastRunAt sql.NullTime
	CreatedAt time.Time
}

func (s *Store) CreateSchedule(ctx context.Context, userID, question, industry, cronSpec string, dataSet interface{}) (string, error) {
	doc, err := json.Marshal(dataSet)
	if err != nil {
		return "", err
	}
	var id string
	err = s.DB.QueryRowContext(ctx,
		`INSERT INTO schedules (user_id, question, industry, cron_spec, data_set, enabled) VALUES ($1,$2,$3,$4,$5,TRUE) RETURNING id`,
		userID, question, industry, cronSpec, doc).Scan(&id)
	return id, err
}

func (s *Store) ListSchedules(ctx context.Context, userID string) ([]Schedule, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, user_id, question, industry, cron_spec, data_set, enabled, last_run_at, created_at
FROM schedules WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSchedules(rows)
}

// ListDueCandidates returns every enabled schedule; the scheduler decides
// which are actually due against their cron spec.
func (s *Store) ListDueCandidates(ctx context.Context) ([]Schedule, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, user_id, question, industry, cron_spec, data_set, enabled, last_run_at, created_at
FROM schedules WHERE enabled=TRUE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSchedules(rows)
}

func scanSchedules(rows *sql.Rows) ([]Schedule, error) {
	var out []Schedule
	for rows.Next() {
		var sc Schedule
		if err := rows.Scan(&sc.ID, &sc.UserID, &sc.Question, &sc.Industry, &sc.CronSpec, &sc.DataSet, &sc.Enabled, &sc.LastRunAt, &sc.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *Store) SetScheduleEnabled(ctx context.Context, id, userID string, enabled bool) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE schedules SET enabled=$3 WHERE id=$1 AND user_id=$2`, id, userID, enabled)
	return err
}

func (s *Store) DeleteSchedule(ctx context.Context, id, userID string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM schedules WHERE id=$1 AND user_id=$2`, id, userID)
	return err
}

// MarkScheduleRun stamps last_run_at so a tick is not dispatched twice
func (s *Store) MarkScheduleRun(ctx context.Context, id string, at time.Time) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE schedules SET last_run_at=$2 WHERE id=$1`, id, at)
	return err
}
