package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/newsloom/newsloom/internal/model"
	"github.com/newsloom/newsloom/internal/state"
)

// AutomationState returns the global switch, defaulting to running when
// unset.
func (o *Orchestrator) AutomationState(ctx context.Context) (model.AutomationState, error) {
	raw, err := o.store.Get(ctx, state.KeyAutomationState)
	if errors.Is(err, state.ErrNotFound) {
		return model.AutomationRunning, nil
	}
	if err != nil {
		return "", err
	}
	st := model.AutomationState(raw)
	if !model.ValidAutomationState(st) {
		return "", fmt.Errorf("scheduler: corrupt automation state %q", raw)
	}
	return st, nil
}

// SetAutomationState updates the global switch.
func (o *Orchestrator) SetAutomationState(ctx context.Context, st model.AutomationState) error {
	if !model.ValidAutomationState(st) {
		return fmt.Errorf("scheduler: invalid automation state %q", st)
	}
	if err := o.store.Set(ctx, state.KeyAutomationState, string(st)); err != nil {
		return err
	}
	o.logger.Info("automation state changed", "state", st)
	return nil
}

// Config returns the scheduler config, defaulting when unset or corrupt.
func (o *Orchestrator) Config(ctx context.Context) (model.SchedulerConfig, error) {
	raw, err := o.store.Get(ctx, state.KeyConfig)
	if errors.Is(err, state.ErrNotFound) {
		return model.DefaultSchedulerConfig(), nil
	}
	if err != nil {
		return model.SchedulerConfig{}, err
	}
	var cfg model.SchedulerConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		o.logger.Warn("scheduler: corrupt config record, using defaults", "error", err)
		return model.DefaultSchedulerConfig(), nil
	}
	return cfg, nil
}

// UpdateConfig merges the non-zero fields of partial over the current
// config, persists, and returns the merged result.
func (o *Orchestrator) UpdateConfig(ctx context.Context, partial model.SchedulerConfig) (model.SchedulerConfig, error) {
	if err := partial.Validate(); err != nil {
		return model.SchedulerConfig{}, err
	}
	current, err := o.Config(ctx)
	if err != nil {
		return model.SchedulerConfig{}, err
	}
	merged := current.Merge(partial)
	raw, err := json.Marshal(merged)
	if err != nil {
		return model.SchedulerConfig{}, fmt.Errorf("scheduler: marshal config: %w", err)
	}
	if err := o.store.Set(ctx, state.KeyConfig, string(raw)); err != nil {
		return model.SchedulerConfig{}, err
	}
	return merged, nil
}

// LastRun returns the stage's last-run instant, or the zero time when the
// stage has never run.
func (o *Orchestrator) LastRun(ctx context.Context, job model.JobName) (time.Time, error) {
	raw, err := o.store.Get(ctx, state.LastRunKey(string(job)))
	if errors.Is(err, state.ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("scheduler: corrupt last-run for %s: %w", job, err)
	}
	return time.UnixMilli(ms), nil
}

// ShouldJobRun reports whether the stage is due: never run, or its interval
// has elapsed. Introspection only — RunCycle claims atomically via TryClaim.
func (o *Orchestrator) ShouldJobRun(ctx context.Context, job model.JobName, interval time.Duration) (bool, error) {
	last, err := o.LastRun(ctx, job)
	if err != nil {
		return false, err
	}
	if last.IsZero() {
		return true, nil
	}
	return o.now().Sub(last) >= interval, nil
}

func (o *Orchestrator) setLastRun(ctx context.Context, job model.JobName, t time.Time) {
	key := state.LastRunKey(string(job))
	if err := o.store.Set(ctx, key, strconv.FormatInt(t.UnixMilli(), 10)); err != nil {
		o.logger.Error("scheduler: persist last-run failed", "job", job, "error", err)
	}
}

