package scheduler

import (
	"context"
	"encoding/json"

	"github.com/newsloom/newsloom/internal/model"
	"github.com/newsloom/newsloom/internal/state"
)

// Bounds for the newest-first history rings.
const (
	executionHistorySize = 100  // per job
	metricHistorySize    = 1000 // system-wide
)

// recordExecution prepends one execution to the job's ring and trims it.
// History is best-effort: a store error is logged, never propagated.
func (o *Orchestrator) recordExecution(ctx context.Context, exec model.JobExecution) {
	raw, err := json.Marshal(exec)
	if err != nil {
		o.logger.Error("scheduler: marshal execution", "job", exec.JobName, "error", err)
		return
	}
	key := state.ExecutionsKey(string(exec.JobName))
	if err := o.store.ListPush(ctx, key, string(raw)); err != nil {
		o.logger.Error("scheduler: record execution", "job", exec.JobName, "error", err)
		return
	}
	if err := o.store.ListTrim(ctx, key, 0, executionHistorySize-1); err != nil {
		o.logger.Warn("scheduler: trim execution history", "job", exec.JobName, "error", err)
	}
}

// recordMetric prepends one sample to the system metric ring and trims it.
func (o *Orchestrator) recordMetric(ctx context.Context, m model.Metric) {
	raw, err := json.Marshal(m)
	if err != nil {
		o.logger.Error("scheduler: marshal metric", "name", m.Name, "error", err)
		return
	}
	if err := o.store.ListPush(ctx, state.KeyMetrics, string(raw)); err != nil {
		o.logger.Error("scheduler: record metric", "name", m.Name, "error", err)
		return
	}
	if err := o.store.ListTrim(ctx, state.KeyMetrics, 0, metricHistorySize-1); err != nil {
		o.logger.Warn("scheduler: trim metric ring", "error", err)
	}
}

// Executions returns up to limit recorded runs for a job, newest first.
func (o *Orchestrator) Executions(ctx context.Context, job model.JobName, limit int) ([]model.JobExecution, error) {
	if limit <= 0 || limit > executionHistorySize {
		limit = executionHistorySize
	}
	raws, err := o.store.ListRange(ctx, state.ExecutionsKey(string(job)), 0, int64(limit-1))
	if err != nil {
		return nil, err
	}
	execs := make([]model.JobExecution, 0, len(raws))
	for _, raw := range raws {
		var exec model.JobExecution
		if err := json.Unmarshal([]byte(raw), &exec); err != nil {
			o.logger.Warn("scheduler: corrupt execution record skipped", "job", job, "error", err)
			continue
		}
		execs = append(execs, exec)
	}
	return execs, nil
}

// Metrics returns up to limit samples from the system ring, newest first.
func (o *Orchestrator) Metrics(ctx context.Context, limit int) ([]model.Metric, error) {
	if limit <= 0 || limit > metricHistorySize {
		limit = metricHistorySize
	}
	raws, err := o.store.ListRange(ctx, state.KeyMetrics, 0, int64(limit-1))
	if err != nil {
		return nil, err
	}
	metrics := make([]model.Metric, 0, len(raws))
	for _, raw := range raws {
		var m model.Metric
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			o.logger.Warn("scheduler: corrupt metric record skipped", "error", err)
			continue
		}
		metrics = append(metrics, m)
	}
	return metrics, nil
}
