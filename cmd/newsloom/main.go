package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/newsloom/newsloom/internal/config"
	"github.com/newsloom/newsloom/internal/governor"
	"github.com/newsloom/newsloom/internal/lifecycle"
	"github.com/newsloom/newsloom/internal/logbuf"
	"github.com/newsloom/newsloom/internal/model"
	"github.com/newsloom/newsloom/internal/pipeline"
	"github.com/newsloom/newsloom/internal/scheduler"
	"github.com/newsloom/newsloom/internal/server"
	"github.com/newsloom/newsloom/internal/state"
	"github.com/newsloom/newsloom/internal/storage"
	"github.com/newsloom/newsloom/internal/telemetry"
	"github.com/newsloom/newsloom/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("NEWSLOOM_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, baseLogger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("newsloom starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Probe the shared state store; falls back to in-process storage with
	// a one-time warning when Redis is unreachable.
	store := state.New(ctx, cfg.RedisURL, baseLogger)
	defer func() { _ = store.Close() }()

	// From here on, log through the capturing handler so the logs endpoint
	// can serve recent entries.
	logger := slog.New(logbuf.NewHandler(baseLogger.Handler(), store))
	slog.SetDefault(logger)

	// Connect to the database and apply pending migrations.
	db, err := storage.New(ctx, cfg.DatabaseURL, logger.With("component", "storage"))
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	gov := governor.New(db, logger.With("component", "governor"),
		governor.WithLimits(governor.Limits{
			PerItemUSD: cfg.PerItemLimitUSD,
			DailyUSD:   cfg.DailyLimitUSD,
			MonthlyUSD: cfg.MonthlyLimitUSD,
		}),
		governor.WithBreakerPolicy(cfg.BreakerFailureLimit, cfg.BreakerResetWindow),
	)

	life := lifecycle.New(db, logger.With("component", "lifecycle"))
	rules := scheduler.NewRules(store, logger.With("component", "scheduler"))

	var deliverer pipeline.Deliverer
	if cfg.WebhookURL != "" {
		deliverer = pipeline.NewWebhookDeliverer(cfg.WebhookURL, cfg.WebhookTimeout)
		logger.Info("delivery webhook enabled", "url", cfg.WebhookURL)
	} else {
		logger.Info("delivery webhook disabled (no NEWSLOOM_WEBHOOK_URL)")
	}

	pipe := pipeline.New(pipeline.Config{
		Store:     db,
		Lifecycle: life,
		Governor:  gov,
		Rules:     rules,
		Deliverer: deliverer,
		Logger:    logger.With("component", "pipeline"),
		BatchSize: cfg.StageBatchSize,
	})

	stages := []scheduler.Stage{
		{Name: model.JobIngest, Run: pipe.Ingest, Timeout: cfg.IngestTimeout},
		{Name: model.JobSignalProcess, Run: pipe.ProcessSignals, Timeout: cfg.ProcessTimeout},
		{Name: model.JobSynthesize, Run: pipe.Synthesize, Timeout: cfg.SynthesizeTimeout},
		{Name: model.JobPublish, Run: pipe.Publish, Timeout: cfg.PublishTimeout},
	}
	orch := scheduler.New(store, rules, stages, logger.With("component", "scheduler"))

	srv := server.New(server.ServerConfig{
		Orchestrator:  orch,
		Store:         store,
		Logger:        logger.With("component", "http"),
		TriggerSecret: cfg.TriggerSecret,
		Port:          cfg.Port,
		ReadTimeout:   cfg.ReadTimeout,
		WriteTimeout:  cfg.WriteTimeout,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	// Graceful shutdown: stop accepting new triggers and drain any cycle
	// still in flight before the store and pool close.
	slog.Info("newsloom shutting down")

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer httpCancel()
	if err := srv.Shutdown(httpCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	slog.Info("newsloom stopped")
	return nil
}
