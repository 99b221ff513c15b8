// Package model defines the core domain types for Newsloom.
//
// Types are shared between the storage layer, the automation orchestrator,
// and the HTTP API. They use strong typing (UUIDs, time.Time, enums) and
// avoid interface{} wherever possible.
package model

import (
	"fmt"
	"time"
)

// JobName identifies one of the four automation pipeline stages.
type JobName string

const (
	JobIngest        JobName = "ingest"
	JobSignalProcess JobName = "signal-process"
	JobSynthesize    JobName = "synthesize"
	JobPublish       JobName = "publish"
)

// JobOrder is the fixed execution order of stages within a cycle.
var JobOrder = []JobName{JobIngest, JobSignalProcess, JobSynthesize, JobPublish}

// ValidJobName reports whether name is a known pipeline stage.
func ValidJobName(name JobName) bool {
	switch name {
	case JobIngest, JobSignalProcess, JobSynthesize, JobPublish:
		return true
	}
	return false
}

// AutomationState is the global on/off switch for the pipeline.
type AutomationState string

const (
	AutomationRunning AutomationState = "running"
	AutomationPaused  AutomationState = "paused"
)

// ValidAutomationState reports whether s is a legal automation state.
func ValidAutomationState(s AutomationState) bool {
	return s == AutomationRunning || s == AutomationPaused
}

// SchedulerConfig holds the minimum interval, in minutes, between runs of
// each stage. Partial updates merge over current values; zero means "keep".
type SchedulerConfig struct {
	IngestIntervalMinutes        int `json:"ingestIntervalMinutes"`
	SignalProcessIntervalMinutes int `json:"signalProcessIntervalMinutes"`
	SynthesizeIntervalMinutes    int `json:"synthesizeIntervalMinutes"`
	PublishIntervalMinutes       int `json:"publishIntervalMinutes"`
}

// DefaultSchedulerConfig returns the stock stage intervals.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		IngestIntervalMinutes:        15,
		SignalProcessIntervalMinutes: 10,
		SynthesizeIntervalMinutes:    30,
		PublishIntervalMinutes:       5,
	}
}

// IntervalFor returns the configured interval for a stage.
func (c SchedulerConfig) IntervalFor(job JobName) time.Duration {
	minutes := 0
	switch job {
	case JobIngest:
		minutes = c.IngestIntervalMinutes
	case JobSignalProcess:
		minutes = c.SignalProcessIntervalMinutes
	case JobSynthesize:
		minutes = c.SynthesizeIntervalMinutes
	case JobPublish:
		minutes = c.PublishIntervalMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// Merge overlays non-zero fields of other onto c and returns the result.
func (c SchedulerConfig) Merge(other SchedulerConfig) SchedulerConfig {
	if other.IngestIntervalMinutes > 0 {
		c.IngestIntervalMinutes = other.IngestIntervalMinutes
	}
	if other.SignalProcessIntervalMinutes > 0 {
		c.SignalProcessIntervalMinutes = other.SignalProcessIntervalMinutes
	}
	if other.SynthesizeIntervalMinutes > 0 {
		c.SynthesizeIntervalMinutes = other.SynthesizeIntervalMinutes
	}
	if other.PublishIntervalMinutes > 0 {
		c.PublishIntervalMinutes = other.PublishIntervalMinutes
	}
	return c
}

// Validate rejects negative intervals.
func (c SchedulerConfig) Validate() error {
	for _, v := range []int{
		c.IngestIntervalMinutes, c.SignalProcessIntervalMinutes,
		c.SynthesizeIntervalMinutes, c.PublishIntervalMinutes,
	} {
		if v < 0 {
			return fmt.Errorf("model: interval minutes must not be negative")
		}
	}
	return nil
}

// ExecutionStatus is the outcome of one stage run.
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailure ExecutionStatus = "failure"
)

// JobExecution is one recorded stage run. Executions are kept newest-first
// in a bounded ring per stage.
type JobExecution struct {
	JobName     JobName         `json:"jobName"`
	Status      ExecutionStatus `json:"status"`
	DurationMs  int64           `json:"durationMs"`
	TimestampMs int64           `json:"timestampMs"`
	Detail      map[string]any  `json:"detail,omitempty"`
}

// Metric is one append-only numeric sample, kept newest-first in a single
// system-wide ring.
type Metric struct {
	Name        string         `json:"name"`
	Value       float64        `json:"value"`
	TimestampMs int64          `json:"timestampMs"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// StageResult is the per-stage payload inside a cycle summary.
type StageResult struct {
	JobName    JobName         `json:"jobName"`
	Status     ExecutionStatus `json:"status"`
	DurationMs int64           `json:"durationMs"`
	Detail     map[string]any  `json:"detail,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// CycleResult summarizes one orchestrator invocation.
type CycleResult struct {
	CycleID       string          `json:"cycleId"`
	State         AutomationState `json:"automationState"`
	DurationMs    int64           `json:"durationMs"`
	TasksExecuted []JobName       `json:"tasksExecuted"`
	TaskResults   []StageResult   `json:"taskResults"`
}

// ApprovalRules governs signal triage. A signal auto-approves only when both
// its confidence and the owning source's reliability clear the thresholds.
type ApprovalRules struct {
	AutoApprovalEnabled  bool    `json:"autoApprovalEnabled"`
	ConfidenceThreshold  float64 `json:"confidenceThreshold"`
	ReliabilityThreshold float64 `json:"reliabilityThreshold"`
}

// DefaultApprovalRules returns the stock triage thresholds.
func DefaultApprovalRules() ApprovalRules {
	return ApprovalRules{
		AutoApprovalEnabled:  true,
		ConfidenceThreshold:  75,
		ReliabilityThreshold: 70,
	}
}

// PublishingRules governs the publish stage.
type PublishingRules struct {
	AutoPublishEnabled bool `json:"autoPublishEnabled"`
	MaxPerCycle        int  `json:"maxPerCycle"`
}

// DefaultPublishingRules returns the stock publishing policy.
func DefaultPublishingRules() PublishingRules {
	return PublishingRules{
		AutoPublishEnabled: true,
		MaxPerCycle:        3,
	}
}
