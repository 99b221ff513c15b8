package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/newsloom/newsloom/internal/logbuf"
	"github.com/newsloom/newsloom/internal/model"
	"github.com/newsloom/newsloom/internal/state"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	orch   Orchestrator
	store  state.Store
	logger *slog.Logger
}

// NewHandlers creates a new Handlers.
func NewHandlers(orch Orchestrator, store state.Store, logger *slog.Logger) *Handlers {
	return &Handlers{orch: orch, store: store, logger: logger}
}

// HandleTrigger handles POST /automation/trigger: runs one orchestration
// cycle synchronously and returns its summary. Only a failure of the
// orchestrator's own bookkeeping surfaces as a 500 — stage failures are
// recorded in the summary, not raised.
func (h *Handlers) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	result, err := h.orch.RunCycle(r.Context())
	if err != nil {
		h.logger.Error("trigger: cycle failed", "error", err,
			"request_id", RequestIDFromContext(r.Context()))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		writeRaw(w, map[string]any{"success": false, "error": err.Error()})
		return
	}

	writeRaw(w, model.TriggerResponse{
		Success:       true,
		CycleID:       result.CycleID,
		Duration:      result.DurationMs,
		TasksExecuted: result.TasksExecuted,
		TaskResults:   result.TaskResults,
	})
}

// HandleTriggerHealth handles GET /automation/trigger: a liveness probe
// reporting the automation state.
func (h *Handlers) HandleTriggerHealth(w http.ResponseWriter, r *http.Request) {
	st, err := h.orch.AutomationState(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "state store unavailable")
		return
	}
	writeRaw(w, model.HealthResponse{
		Status:          "healthy",
		AutomationState: st,
		Timestamp:       time.Now().UTC(),
	})
}

// HandleStatus handles GET /automation/status.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := h.statusSnapshot(r)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "state store unavailable")
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// HandleStatusUpdate handles POST /automation/status: applies whichever of
// state, config, approval rules, and publishing rules are present in the
// partial body, then returns the merged snapshot.
func (h *Handlers) HandleStatusUpdate(w http.ResponseWriter, r *http.Request) {
	var req model.StatusUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "malformed request body: "+err.Error())
		return
	}

	ctx := r.Context()
	if req.Action == "setState" || req.State != "" {
		if !model.ValidAutomationState(req.State) {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
				"state must be \"running\" or \"paused\"")
			return
		}
		if err := h.orch.SetAutomationState(ctx, req.State); err != nil {
			writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to update state")
			return
		}
	}
	if req.Config != nil {
		if _, err := h.orch.UpdateConfig(ctx, *req.Config); err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
			return
		}
	}
	if req.ApprovalRules != nil {
		if err := h.orch.SetApprovalRules(ctx, *req.ApprovalRules); err != nil {
			writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to update approval rules")
			return
		}
	}
	if req.PublishingRules != nil {
		if err := h.orch.SetPublishingRules(ctx, *req.PublishingRules); err != nil {
			writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to update publishing rules")
			return
		}
	}

	resp, err := h.statusSnapshot(r)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "state store unavailable")
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// HandleLogs handles GET /automation/logs with limit, component, and level
// query filters.
func (h *Handlers) HandleLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 100
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, total, err := logbuf.Recent(r.Context(), h.store, limit, q.Get("component"), q.Get("level"))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "state store unavailable")
		return
	}
	if entries == nil {
		entries = []model.LogEntry{}
	}
	writeJSON(w, r, http.StatusOK, model.LogsResponse{Entries: entries, Total: total})
}

func (h *Handlers) statusSnapshot(r *http.Request) (model.StatusResponse, error) {
	ctx := r.Context()
	st, err := h.orch.AutomationState(ctx)
	if err != nil {
		return model.StatusResponse{}, err
	}
	cfg, err := h.orch.Config(ctx)
	if err != nil {
		return model.StatusResponse{}, err
	}
	return model.StatusResponse{
		State:  st,
		Config: cfg,
		Rules: model.RulesSnapshot{
			Approval:   h.orch.ApprovalRules(ctx),
			Publishing: h.orch.PublishingRules(ctx),
		},
	}, nil
}
