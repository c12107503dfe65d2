package core

import (
	"context"
	"log"
	"time"

	"github.com/creditlens/reportflow/internal/agent/config"
	"github.com/creditlens/reportflow/internal/agent/telemetry"
)

// MetricCalculator dispatches pending metrics to the knowledge engine in
// batches and keeps the success/failure ledger.
type MetricCalculator struct {
	config    *config.Config
	engine    KnowledgeEngine
	resolver  *Resolver
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewMetricCalculator creates a new calculator instance
func NewMetricCalculator(cfg *config.Config, engine KnowledgeEngine, resolver *Resolver, tele *telemetry.Telemetry) *MetricCalculator {
	return &MetricCalculator{
		config:    cfg,
		engine:    engine,
		resolver:  resolver,
		telemetry: tele,
		logger:    log.New(log.Writer(), "[CALCULATOR] ", log.LstdFlags),
	}
}

// Compute attempts every metric in the batch exactly once. When batch is
// empty the whole dispatchable pending set is used. Every batch member
// leaves PendingMetricIDs whether it succeeded or failed; failures only come
// back through a future planning cycle, bounded by the retry cap. That is
// the forward-progress guarantee.
func (c *MetricCalculator) Compute(ctx context.Context, state WorkflowState, batch []string) WorkflowState {
	out := state.Clone()

	if len(batch) == 0 {
		batch = out.ValidPending(c.config.Workflow.MaxMetricRetries)
	}
	if len(batch) == 0 {
		out.AddMessage("metric calculator invoked with nothing to dispatch")
		return out
	}

	successes, failures := 0, 0
	for _, id := range batch {
		if !containsString(out.PendingMetricIDs, id) {
			continue
		}

		req, ok := out.Requirement(id)
		if !ok {
			// No definition means nothing to retry either
			out.PendingMetricIDs = removeString(out.PendingMetricIDs, id)
			out.AddError("metric %s has no requirement definition, dropped", id)
			continue
		}

		inputField := c.resolver.InputField(ctx, id)
		started := time.Now()
		result, err := c.engine.Execute(ctx, id, inputField, out.DataSet)
		c.telemetry.RecordEngineCall(time.Since(started))

		out.PendingMetricIDs = removeString(out.PendingMetricIDs, id)
		if err != nil {
			failures++
			out.FailedMetricAttempts[id]++
			out.AddError("metric %s (%s) failed attempt %d: %v", id, req.MetricName, out.FailedMetricAttempts[id], err)
			c.telemetry.RecordMetricResult(false)
			c.logger.Printf("metric %s failed (attempt %d): %v", id, out.FailedMetricAttempts[id], err)
			continue
		}

		successes++
		out.ComputedMetrics[id] = NormalizeValue(result)
		c.telemetry.RecordMetricResult(true)
	}

	out.AddMessage("calculation batch done: successful_calculations=%d failed_calculations=%d coverage=%.2f",
		successes, failures, out.CoverageRate())
	c.logger.Printf("batch of %d done: %d ok, %d failed, coverage %.2f", len(batch), successes, failures, out.CoverageRate())
	return out
}
