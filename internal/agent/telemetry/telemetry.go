package telemetry

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/creditlens/reportflow/internal/agent/config"
)

// Telemetry provides monitoring for report sessions and external calls
type Telemetry struct {
	config config.TelemetryConfig
	logger *log.Logger

	sessionsStarted   prometheus.Counter
	sessionsCompleted *prometheus.CounterVec
	planningCycles    prometheus.Counter
	oracleDecisions   *prometheus.CounterVec
	metricResults     *prometheus.CounterVec
	outlineRetries    prometheus.Counter
	sessionDuration   prometheus.Histogram
	finalCoverage     prometheus.Histogram
	engineLatency     prometheus.Histogram
}

// NewTelemetry creates a new telemetry instance. Collectors are registered
// on the default registry, so exactly one instance should exist per process.
func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	t := &Telemetry{
		config: cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		sessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reportflow_sessions_started_total",
			Help: "Number of report sessions started.",
		}),
		sessionsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "reportflow_sessions_completed_total",
			Help: "Number of report sessions completed, by outcome.",
		}, []string{"outcome"}),
		planningCycles: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reportflow_planning_cycles_total",
			Help: "Number of planning controller executions.",
		}),
		oracleDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "reportflow_oracle_decisions_total",
			Help: "Decision oracle outcomes, by intent (fallback included).",
		}, []string{"intent"}),
		metricResults: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "reportflow_metric_calculations_total",
			Help: "Metric calculation attempts, by result.",
		}, []string{"result"}),
		outlineRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reportflow_outline_retries_total",
			Help: "Outline generation retry attempts.",
		}),
		sessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "reportflow_session_duration_seconds",
			Help:    "Wall-clock duration of completed sessions.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		finalCoverage: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "reportflow_final_coverage_rate",
			Help:    "Coverage rate at finalization.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		engineLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "reportflow_engine_call_seconds",
			Help:    "Latency of knowledge engine executions.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
	return t
}

// RecordSessionStart records the beginning of a report session
func (t *Telemetry) RecordSessionStart(sessionID string) {
	t.sessionsStarted.Inc()
	t.logger.Printf("session started: %s", sessionID)
}

// RecordSessionEnd records a finished session with its outcome and coverage
func (t *Telemetry) RecordSessionEnd(sessionID, outcome string, duration time.Duration, coverage float64) {
	t.sessionsCompleted.WithLabelValues(outcome).Inc()
	t.sessionDuration.Observe(duration.Seconds())
	t.finalCoverage.Observe(coverage)
	t.logger.Printf("session %s finished: outcome=%s duration=%v coverage=%.2f", sessionID, outcome, duration, coverage)
}

// RecordPlanningCycle records one planning controller execution
func (t *Telemetry) RecordPlanningCycle() {
	t.planningCycles.Inc()
}

// RecordDecision records an oracle decision (or "fallback" when the
// deterministic router substituted one)
func (t *Telemetry) RecordDecision(intent string) {
	t.oracleDecisions.WithLabelValues(intent).Inc()
}

// RecordMetricResult records a single metric calculation attempt
func (t *Telemetry) RecordMetricResult(success bool) {
	if success {
		t.metricResults.WithLabelValues("success").Inc()
	} else {
		t.metricResults.WithLabelValues("failure").Inc()
	}
}

// RecordOutlineRetry records an outline generation retry
func (t *Telemetry) RecordOutlineRetry() {
	t.outlineRetries.Inc()
}

// RecordEngineCall records one knowledge engine execution
func (t *Telemetry) RecordEngineCall(d time.Duration) {
	t.engineLatency.Observe(d.Seconds())
}

// Serve exposes /metrics on the configured port. Blocks; run in a goroutine.
func (t *Telemetry) Serve() error {
	if !t.config.Enabled {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", t.config.MetricsPort)
	t.logger.Printf("metrics listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}
