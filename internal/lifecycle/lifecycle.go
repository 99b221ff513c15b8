// Package lifecycle implements the status state machines for the three
// content entities: sources (active / auto-disabled), signals
// (pending / flagged / approved / archived), and articles
// (draft / published). It also hosts the triage policy.
//
// Each entity's status is advanced by exactly one pipeline stage, so no two
// stages ever write the same status field concurrently.
package lifecycle

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/newsloom/newsloom/internal/model"
)

// Store is the persistence surface the lifecycle machines need.
// *storage.DB satisfies it.
type Store interface {
	GetSource(ctx context.Context, id uuid.UUID) (model.Source, error)
	ListIngestableSources(ctx context.Context) ([]model.Source, error)
	RecordSourceSuccess(ctx context.Context, id uuid.UUID) error
	RecordSourceFailure(ctx context.Context, id uuid.UUID) (model.Source, error)

	GetSignal(ctx context.Context, id uuid.UUID) (model.Signal, error)
	UpdateSignalStatus(ctx context.Context, id uuid.UUID, status model.SignalStatus) error

	GetArticle(ctx context.Context, id uuid.UUID) (model.Article, error)
	PublishArticle(ctx context.Context, id uuid.UUID) (model.Article, error)
	UnpublishArticle(ctx context.Context, id uuid.UUID) error
}

// Service advances entity lifecycles through the Store.
type Service struct {
	store  Store
	logger *slog.Logger
}

// New creates a lifecycle service.
func New(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// ActiveSources returns sources eligible for ingestion: active and not
// auto-disabled.
func (s *Service) ActiveSources(ctx context.Context) ([]model.Source, error) {
	return s.store.ListIngestableSources(ctx)
}

// RecordSourceSuccess zeroes a source's failure streak.
func (s *Service) RecordSourceSuccess(ctx context.Context, id uuid.UUID) error {
	return s.store.RecordSourceSuccess(ctx, id)
}

// RecordSourceFailure bumps a source's failure streak. Crossing the limit
// auto-disables the source; the flag is sticky and only cleared manually.
// Returns true when this call tripped the disable.
func (s *Service) RecordSourceFailure(ctx context.Context, id uuid.UUID) (bool, error) {
	src, err := s.store.RecordSourceFailure(ctx, id)
	if err != nil {
		return false, err
	}
	tripped := src.AutoDisabled && src.ConsecutiveFailures == model.SourceFailureLimit
	if tripped {
		s.logger.Warn("source auto-disabled after repeated ingest failures",
			"source_id", id, "source", src.Name, "failures", src.ConsecutiveFailures)
	}
	return tripped, nil
}

// SetSignalStatus moves a signal to the given status. Only the four legal
// values pass validation; anything else is rejected without a write. No
// transition table is enforced here: operators may move between any two
// legal states, and which transitions are sensible is the triage policy's
// concern.
func (s *Service) SetSignalStatus(ctx context.Context, id uuid.UUID, status model.SignalStatus) error {
	return s.store.UpdateSignalStatus(ctx, id, status)
}

// PublishArticle flips a draft to published exactly once. Re-publishing a
// non-draft returns storage.ErrAlreadyPublished and leaves published_at
// untouched.
func (s *Service) PublishArticle(ctx context.Context, id uuid.UUID) (model.Article, error) {
	art, err := s.store.PublishArticle(ctx, id)
	if err != nil {
		return model.Article{}, err
	}
	s.logger.Info("article published", "article_id", art.ID, "published_at", art.PublishedAt)
	return art, nil
}

// UnpublishArticle flips an article back to draft without resetting
// published_at. Manual path only.
func (s *Service) UnpublishArticle(ctx context.Context, id uuid.UUID) error {
	return s.store.UnpublishArticle(ctx, id)
}
