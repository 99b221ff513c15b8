// Package scheduler implements the automation orchestrator. Each external
// trigger invokes RunCycle, which claims and runs whichever pipeline stages
// are due, records execution history and a cycle metric, and returns a
// summary. There is no internal timer loop.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/newsloom/newsloom/internal/model"
	"github.com/newsloom/newsloom/internal/state"
)

var meter = otel.GetMeterProvider().Meter("newsloom/scheduler")

// StageFunc runs one pipeline stage and returns a freeform detail map.
type StageFunc func(ctx context.Context) (map[string]any, error)

// Stage binds a job name to its implementation and timeout.
type Stage struct {
	Name    model.JobName
	Run     StageFunc
	Timeout time.Duration
}

// Orchestrator owns scheduling state: the automation switch, stage
// intervals, last-run timestamps, execution history, and the metric ring.
type Orchestrator struct {
	*Rules

	store  state.Store
	stages []Stage
	logger *slog.Logger
	now    func() time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithClock injects a clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator over the given store and stages. Stages run
// in the order given; pass them in pipeline order. rules may be shared
// with the pipeline; nil constructs a fresh accessor.
func New(store state.Store, rules *Rules, stages []Stage, logger *slog.Logger, opts ...Option) *Orchestrator {
	if rules == nil {
		rules = NewRules(store, logger)
	}
	o := &Orchestrator{
		Rules:  rules,
		store:  store,
		stages: stages,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunCycle executes one orchestration cycle: a paused automation state
// short-circuits to a no-op; otherwise every due stage runs in order, each
// isolated so one failure never blocks the rest of the cycle.
func (o *Orchestrator) RunCycle(ctx context.Context) (model.CycleResult, error) {
	cycleStart := o.now()
	result := model.CycleResult{
		CycleID:       uuid.New().String(),
		TasksExecuted: []model.JobName{},
		TaskResults:   []model.StageResult{},
	}

	st, err := o.AutomationState(ctx)
	if err != nil {
		return result, fmt.Errorf("scheduler: load automation state: %w", err)
	}
	result.State = st
	if st == model.AutomationPaused {
		o.logger.Info("cycle skipped: automation paused", "cycle_id", result.CycleID)
		return result, nil
	}

	cfg, err := o.Config(ctx)
	if err != nil {
		return result, fmt.Errorf("scheduler: load config: %w", err)
	}

	for _, stage := range o.stages {
		interval := cfg.IntervalFor(stage.Name)

		claimed, err := o.store.TryClaim(ctx, state.LastRunKey(string(stage.Name)), o.now(), interval)
		if err != nil {
			o.logger.Error("cycle: claim failed, skipping stage",
				"job", stage.Name, "error", err, "cycle_id", result.CycleID)
			continue
		}
		if !claimed {
			continue
		}

		sr := o.runStage(ctx, stage)
		result.TasksExecuted = append(result.TasksExecuted, stage.Name)
		result.TaskResults = append(result.TaskResults, sr)

		// The last-run timestamp moves to completion time regardless of
		// outcome: a failing stage waits out its own interval like a
		// healthy one instead of retrying every cycle.
		o.setLastRun(ctx, stage.Name, o.now())

		o.recordExecution(ctx, model.JobExecution{
			JobName:     stage.Name,
			Status:      sr.Status,
			DurationMs:  sr.DurationMs,
			TimestampMs: o.now().UnixMilli(),
			Detail:      executionDetail(sr),
		})
	}

	result.DurationMs = o.now().Sub(cycleStart).Milliseconds()
	o.recordCycleMetric(ctx, result)

	o.logger.Info("cycle complete",
		"cycle_id", result.CycleID,
		"tasks_executed", len(result.TasksExecuted),
		"duration_ms", result.DurationMs)
	return result, nil
}

// runStage executes one stage with its timeout, converting panics and
// timeouts into failure results so the cycle continues.
func (o *Orchestrator) runStage(ctx context.Context, stage Stage) (sr model.StageResult) {
	start := o.now()
	sr = model.StageResult{JobName: stage.Name, Status: model.ExecutionSuccess}

	defer func() {
		if r := recover(); r != nil {
			sr.Status = model.ExecutionFailure
			sr.Error = fmt.Sprintf("panic: %v", r)
			o.logger.Error("stage panicked", "job", stage.Name, "panic", r)
		}
		sr.DurationMs = o.now().Sub(start).Milliseconds()
		o.recordStageMetric(ctx, stage.Name, sr)
	}()

	runCtx := ctx
	if stage.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, stage.Timeout)
		defer cancel()
	}

	detail, err := stage.Run(runCtx)
	sr.Detail = detail
	if err != nil {
		sr.Status = model.ExecutionFailure
		sr.Error = err.Error()
		o.logger.Warn("stage failed", "job", stage.Name, "error", err)
	}
	return sr
}

func (o *Orchestrator) recordStageMetric(ctx context.Context, job model.JobName, sr model.StageResult) {
	attrs := []attribute.KeyValue{
		attribute.String("job", string(job)),
		attribute.String("status", string(sr.Status)),
	}
	if hist, err := meter.Float64Histogram("automation.stage.duration",
		otelmetric.WithUnit("ms")); err == nil {
		hist.Record(ctx, float64(sr.DurationMs), otelmetric.WithAttributes(attrs...))
	}
}

func (o *Orchestrator) recordCycleMetric(ctx context.Context, result model.CycleResult) {
	if counter, err := meter.Int64Counter("automation.cycles"); err == nil {
		counter.Add(ctx, 1)
	}

	o.recordMetric(ctx, model.Metric{
		Name:        "automation_cycle",
		Value:       float64(len(result.TasksExecuted)),
		TimestampMs: o.now().UnixMilli(),
		Metadata: map[string]any{
			"cycleId":    result.CycleID,
			"durationMs": result.DurationMs,
		},
	})
}

// executionDetail merges the stage's detail map with its error, if any.
func executionDetail(sr model.StageResult) map[string]any {
	if sr.Error == "" {
		return sr.Detail
	}
	detail := map[string]any{"error": sr.Error}
	for k, v := range sr.Detail {
		detail[k] = v
	}
	return detail
}
