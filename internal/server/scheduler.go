package server

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/creditlens/reportflow/internal/agent/core"
	"github.com/creditlens/reportflow/internal/store"
)

// Scheduler fires report runs for schedules whose cron spec has come due.
// Rdb is optional; when present it takes a distributed lock so only one
// instance dispatches a given schedule.
type Scheduler struct {
	Store *store.Store
	Orch  *core.Orchestrator
	Rdb   *redis.Client
	Stop  chan struct{}

	// Interval defaults to one minute
	Interval time.Duration
}

func (s *Scheduler) Start() {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	schedules, err := s.Store.ListDueCandidates(ctx)
	if err != nil {
		return
	}
	for _, sc := range schedules {
		var last *time.Time
		if sc.LastRunAt.Valid {
			t := sc.LastRunAt.Time
			last = &t
		}
		if !isDue(sc.CronSpec, last) {
			continue
		}

		if s.Rdb != nil {
			lockKey := "reportflow:sched:lock:" + sc.ID
			ok, _ := s.Rdb.SetNX(ctx, lockKey, "1", 2*time.Minute).Result()
			if !ok {
				continue
			}
		}

		now := time.Now()
		if err := s.Store.MarkScheduleRun(ctx, sc.ID, now); err != nil {
			continue
		}
		runID := sc.ID + "-" + now.UTC().Format("20060102T150405")
		if err := s.Store.CreateRun(ctx, runID, sc.UserID, sc.Question, sc.Industry); err != nil {
			continue
		}

		go func(sc store.Schedule, runID string) {
			// jitter to avoid stampedes
			time.Sleep(time.Duration(250+int64(time.Now().UnixNano()%250)) * time.Millisecond)
			var rows []map[string]interface{}
			if err := json.Unmarshal(sc.DataSet, &rows); err != nil {
				_ = s.Store.FinishRun(ctx, runID, store.RunStatusFailed, 0, 0, nil, "schedule data set unreadable: "+err.Error())
				return
			}
			req := core.ReportRequest{Question: sc.Question, Industry: sc.Industry, DataSet: rows}
			report, err := s.Orch.Run(ctx, req)
			if err != nil {
				_ = s.Store.FinishRun(ctx, runID, store.RunStatusFailed, 0, 0, nil, err.Error())
				return
			}
			if err := s.Store.FinishRun(ctx, runID, store.RunStatusSucceeded, report.Summary.CoverageRate, report.Summary.PlanningSteps, report, ""); err != nil {
				log.Printf("[SCHED] recording run %s: %v", runID, err)
			}
		}(sc, runID)
	}
}

// isDue determines if a schedule with cronSpec should run now based on the
// last run time. Supports "@daily", "@hourly", and standard 5-field cron
// expressions.
func isDue(cronSpec string, last *time.Time) bool {
	now := time.Now()
	switch cronSpec {
	case "@daily":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			// Fallback: treat as @daily if invalid
			if last == nil {
				return true
			}
			return now.Sub(*last) >= 24*time.Hour
		}
		if last == nil {
			return true
		}
		next := expr.Next(*last)
		return !next.After(now)
	}
}
