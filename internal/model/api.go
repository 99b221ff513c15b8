package model

import "time"

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// TriggerResponse is the body returned by POST /automation/trigger.
type TriggerResponse struct {
	Success       bool          `json:"success"`
	CycleID       string        `json:"cycleId"`
	Duration      int64         `json:"duration"`
	TasksExecuted []JobName     `json:"tasksExecuted"`
	TaskResults   []StageResult `json:"taskResults"`
}

// HealthResponse is the body returned by GET /automation/trigger.
type HealthResponse struct {
	Status          string          `json:"status"`
	AutomationState AutomationState `json:"automationState"`
	Timestamp       time.Time       `json:"timestamp"`
}

// StatusResponse is the body returned by GET /automation/status.
type StatusResponse struct {
	State  AutomationState `json:"state"`
	Config SchedulerConfig `json:"config"`
	Rules  RulesSnapshot   `json:"rules"`
}

// RulesSnapshot bundles the mutable policy records.
type RulesSnapshot struct {
	Approval   ApprovalRules   `json:"approval"`
	Publishing PublishingRules `json:"publishing"`
}

// StatusUpdateRequest is the partial body accepted by POST /automation/status.
// Only the fields present are applied; the response carries the merged state.
type StatusUpdateRequest struct {
	Action          string           `json:"action,omitempty"`
	State           AutomationState  `json:"state,omitempty"`
	Config          *SchedulerConfig `json:"config,omitempty"`
	ApprovalRules   *ApprovalRules   `json:"approvalRules,omitempty"`
	PublishingRules *PublishingRules `json:"publishingRules,omitempty"`
}

// LogEntry is one captured log record served by the logs endpoint.
type LogEntry struct {
	Level      string         `json:"level"`
	Component  string         `json:"component"`
	Message    string         `json:"message"`
	Timestamp  time.Time      `json:"timestamp"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// LogsResponse is the body returned by GET /automation/logs.
type LogsResponse struct {
	Entries []LogEntry `json:"entries"`
	Total   int        `json:"total"`
}
