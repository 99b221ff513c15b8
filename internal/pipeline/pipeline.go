// Package pipeline implements the four automation stages: ingest,
// signal-process, synthesize, publish. Stages call out through narrow
// collaborator interfaces (feed fetching, AI composition, delivery) and
// consult the governor before any paid or failure-prone external call.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/newsloom/newsloom/internal/governor"
	"github.com/newsloom/newsloom/internal/lifecycle"
	"github.com/newsloom/newsloom/internal/model"
)

// Item is one fetched feed entry, pre-scored by the fetcher.
type Item struct {
	Title      string
	URL        string
	Summary    string
	Confidence float64
}

// Fetcher pulls new items from a source since its last checkpoint.
type Fetcher interface {
	Fetch(ctx context.Context, src model.Source) ([]Item, error)
}

// Draft is the output of one composition call.
type Draft struct {
	Title string
	Body  string
}

// Usage reports what a composition call cost.
type Usage struct {
	Model        string
	PromptName   string
	InputTokens  int
	OutputTokens int
	CostUsd      float64
}

// Composer turns an approved signal into an article draft. Implementations
// wrap an AI provider; the call is paid and must be governor-gated.
type Composer interface {
	Compose(ctx context.Context, sig model.Signal) (Draft, Usage, error)
}

// Deliverer pushes a published article to external platforms. Delivery is
// fire-and-forget with at-least-once semantics; consumers are assumed
// idempotent.
type Deliverer interface {
	Deliver(ctx context.Context, art model.Article) error
}

// ContentStore is the persistence surface the stages need beyond the
// lifecycle service. *storage.DB satisfies it.
type ContentStore interface {
	GetSource(ctx context.Context, id uuid.UUID) (model.Source, error)
	CreateSignal(ctx context.Context, sourceID uuid.UUID, title, url, summary string, confidence float64) (model.Signal, error)
	ListSignalsByStatus(ctx context.Context, status model.SignalStatus, limit int) ([]model.Signal, error)
	CreateArticle(ctx context.Context, signalID *uuid.UUID, title, body string) (model.Article, error)
	ListDraftArticles(ctx context.Context, limit int) ([]model.Article, error)
	HasArticleForSignal(ctx context.Context, signalID uuid.UUID) (bool, error)
}

// RulesProvider supplies the current mutable policy records.
type RulesProvider interface {
	ApprovalRules(ctx context.Context) model.ApprovalRules
	PublishingRules(ctx context.Context) model.PublishingRules
}

// Pipeline bundles the stage implementations and their shared dependencies.
type Pipeline struct {
	store     ContentStore
	life      *lifecycle.Service
	gov       *governor.Governor
	rules     RulesProvider
	fetcher   Fetcher
	composer  Composer
	deliverer Deliverer
	logger    *slog.Logger

	batchSize int
}

// Config holds Pipeline dependencies.
type Config struct {
	Store     ContentStore
	Lifecycle *lifecycle.Service
	Governor  *governor.Governor
	Rules     RulesProvider
	Fetcher   Fetcher
	Composer  Composer
	Deliverer Deliverer
	Logger    *slog.Logger
	BatchSize int // max signals/articles handled per stage run; <=0 means 25
}

// New creates a Pipeline.
func New(cfg Config) *Pipeline {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 25
	}
	return &Pipeline{
		store:     cfg.Store,
		life:      cfg.Lifecycle,
		gov:       cfg.Governor,
		rules:     cfg.Rules,
		fetcher:   cfg.Fetcher,
		composer:  cfg.Composer,
		deliverer: cfg.Deliverer,
		logger:    cfg.Logger,
		batchSize: batch,
	}
}
