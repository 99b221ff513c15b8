package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/newsloom/newsloom/internal/model"
	"github.com/newsloom/newsloom/internal/state"
)

// Orchestrator is the control-plane surface the HTTP layer needs.
// *scheduler.Orchestrator satisfies it.
type Orchestrator interface {
	RunCycle(ctx context.Context) (model.CycleResult, error)
	AutomationState(ctx context.Context) (model.AutomationState, error)
	SetAutomationState(ctx context.Context, st model.AutomationState) error
	Config(ctx context.Context) (model.SchedulerConfig, error)
	UpdateConfig(ctx context.Context, partial model.SchedulerConfig) (model.SchedulerConfig, error)
	ApprovalRules(ctx context.Context) model.ApprovalRules
	SetApprovalRules(ctx context.Context, rules model.ApprovalRules) error
	PublishingRules(ctx context.Context) model.PublishingRules
	SetPublishingRules(ctx context.Context, rules model.PublishingRules) error
}

// Server is the Newsloom automation HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// ServerConfig holds all dependencies and configuration for creating a Server.
type ServerConfig struct {
	Orchestrator  Orchestrator
	Store         state.Store
	Logger        *slog.Logger
	TriggerSecret string

	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(cfg.Orchestrator, cfg.Store, cfg.Logger)

	authed := func(next http.Handler) http.Handler {
		return bearerAuth(cfg.TriggerSecret, next)
	}

	mux := http.NewServeMux()

	// Trigger: POST runs a cycle (bearer-auth), GET is an open liveness probe.
	mux.Handle("POST /automation/trigger", authed(http.HandlerFunc(h.HandleTrigger)))
	mux.HandleFunc("GET /automation/trigger", h.HandleTriggerHealth)

	// Status record: reads and partial updates, both operator-auth.
	mux.Handle("GET /automation/status", authed(http.HandlerFunc(h.HandleStatus)))
	mux.Handle("POST /automation/status", authed(http.HandlerFunc(h.HandleStatusUpdate)))

	// Captured log ring.
	mux.Handle("GET /automation/logs", authed(http.HandlerFunc(h.HandleLogs)))

	// Middleware chain (outermost executes first):
	// request ID → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// writeRaw writes a bare JSON body without the standard envelope. The
// trigger and health responses are consumed by external schedulers that
// expect flat payloads.
func writeRaw(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}
