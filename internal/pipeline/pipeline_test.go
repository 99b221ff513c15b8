package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsloom/newsloom/internal/governor"
	"github.com/newsloom/newsloom/internal/lifecycle"
	"github.com/newsloom/newsloom/internal/model"
	"github.com/newsloom/newsloom/internal/storage"
)

// contentStore is an in-memory stand-in for *storage.DB covering both the
// pipeline's and the lifecycle service's persistence surfaces.
type contentStore struct {
	sources  map[uuid.UUID]*model.Source
	signals  map[uuid.UUID]*model.Signal
	articles map[uuid.UUID]*model.Article
	order    []uuid.UUID // signal creation order, oldest first
}

func newContentStore() *contentStore {
	return &contentStore{
		sources:  make(map[uuid.UUID]*model.Source),
		signals:  make(map[uuid.UUID]*model.Signal),
		articles: make(map[uuid.UUID]*model.Article),
	}
}

func (s *contentStore) addSource(src model.Source) model.Source {
	if src.ID == uuid.Nil {
		src.ID = uuid.New()
	}
	s.sources[src.ID] = &src
	return src
}

func (s *contentStore) addSignal(sig model.Signal) model.Signal {
	if sig.ID == uuid.Nil {
		sig.ID = uuid.New()
	}
	s.signals[sig.ID] = &sig
	s.order = append(s.order, sig.ID)
	return sig
}

func (s *contentStore) addArticle(art model.Article) model.Article {
	if art.ID == uuid.Nil {
		art.ID = uuid.New()
	}
	s.articles[art.ID] = &art
	return art
}

func (s *contentStore) GetSource(_ context.Context, id uuid.UUID) (model.Source, error) {
	src, ok := s.sources[id]
	if !ok {
		return model.Source{}, storage.ErrNotFound
	}
	return *src, nil
}

func (s *contentStore) ListIngestableSources(_ context.Context) ([]model.Source, error) {
	var out []model.Source
	for _, src := range s.sources {
		if src.Ingestable() {
			out = append(out, *src)
		}
	}
	return out, nil
}

func (s *contentStore) RecordSourceSuccess(_ context.Context, id uuid.UUID) error {
	src, ok := s.sources[id]
	if !ok {
		return storage.ErrNotFound
	}
	src.ConsecutiveFailures = 0
	return nil
}

func (s *contentStore) RecordSourceFailure(_ context.Context, id uuid.UUID) (model.Source, error) {
	src, ok := s.sources[id]
	if !ok {
		return model.Source{}, storage.ErrNotFound
	}
	src.ConsecutiveFailures++
	if src.ConsecutiveFailures >= model.SourceFailureLimit {
		src.AutoDisabled = true
	}
	return *src, nil
}

func (s *contentStore) CreateSignal(_ context.Context, sourceID uuid.UUID, title, url, summary string, confidence float64) (model.Signal, error) {
	return s.addSignal(model.Signal{
		SourceID:        sourceID,
		Title:           title,
		URL:             url,
		Summary:         summary,
		Status:          model.SignalPending,
		ConfidenceScore: confidence,
	}), nil
}

func (s *contentStore) GetSignal(_ context.Context, id uuid.UUID) (model.Signal, error) {
	sig, ok := s.signals[id]
	if !ok {
		return model.Signal{}, storage.ErrNotFound
	}
	return *sig, nil
}

func (s *contentStore) ListSignalsByStatus(_ context.Context, status model.SignalStatus, limit int) ([]model.Signal, error) {
	var out []model.Signal
	for _, id := range s.order {
		if len(out) == limit {
			break
		}
		if s.signals[id].Status == status {
			out = append(out, *s.signals[id])
		}
	}
	return out, nil
}

func (s *contentStore) UpdateSignalStatus(_ context.Context, id uuid.UUID, status model.SignalStatus) error {
	if !model.ValidSignalStatus(status) {
		return model.ErrInvalidStatus
	}
	sig, ok := s.signals[id]
	if !ok {
		return storage.ErrNotFound
	}
	sig.Status = status
	return nil
}

func (s *contentStore) CreateArticle(_ context.Context, signalID *uuid.UUID, title, body string) (model.Article, error) {
	return s.addArticle(model.Article{
		SignalID: signalID,
		Title:    title,
		Body:     body,
		IsDraft:  true,
	}), nil
}

func (s *contentStore) GetArticle(_ context.Context, id uuid.UUID) (model.Article, error) {
	art, ok := s.articles[id]
	if !ok {
		return model.Article{}, storage.ErrNotFound
	}
	return *art, nil
}

func (s *contentStore) ListDraftArticles(_ context.Context, limit int) ([]model.Article, error) {
	var out []model.Article
	for _, art := range s.articles {
		if len(out) == limit {
			break
		}
		if art.IsDraft {
			out = append(out, *art)
		}
	}
	return out, nil
}

func (s *contentStore) HasArticleForSignal(_ context.Context, signalID uuid.UUID) (bool, error) {
	for _, art := range s.articles {
		if art.SignalID != nil && *art.SignalID == signalID {
			return true, nil
		}
	}
	return false, nil
}

func (s *contentStore) PublishArticle(_ context.Context, id uuid.UUID) (model.Article, error) {
	art, ok := s.articles[id]
	if !ok {
		return model.Article{}, storage.ErrNotFound
	}
	if !art.IsDraft {
		return model.Article{}, storage.ErrAlreadyPublished
	}
	now := time.Now().UTC()
	art.IsDraft = false
	art.PublishedAt = &now
	return *art, nil
}

func (s *contentStore) UnpublishArticle(_ context.Context, id uuid.UUID) error {
	art, ok := s.articles[id]
	if !ok {
		return storage.ErrNotFound
	}
	art.IsDraft = true
	return nil
}

// zeroLedger reports no spend and accepts every record.
type zeroLedger struct {
	records []model.SpendRecord
}

func (l *zeroLedger) AppendSpendRecord(_ context.Context, rec model.SpendRecord) error {
	l.records = append(l.records, rec)
	return nil
}
func (l *zeroLedger) SumSpendSince(context.Context, time.Time) (float64, error) { return 0, nil }
func (l *zeroLedger) SumSpendForItem(context.Context, uuid.UUID) (float64, error) {
	return 0, nil
}

// cappedLedger reports spend at the given levels.
type cappedLedger struct {
	zeroLedger
	daily float64
}

func (l *cappedLedger) SumSpendSince(context.Context, time.Time) (float64, error) {
	return l.daily, nil
}

type fetcherFunc func(ctx context.Context, src model.Source) ([]Item, error)

func (f fetcherFunc) Fetch(ctx context.Context, src model.Source) ([]Item, error) {
	return f(ctx, src)
}

type composerFunc func(ctx context.Context, sig model.Signal) (Draft, Usage, error)

func (f composerFunc) Compose(ctx context.Context, sig model.Signal) (Draft, Usage, error) {
	return f(ctx, sig)
}

type delivererFunc func(ctx context.Context, art model.Article) error

func (f delivererFunc) Deliver(ctx context.Context, art model.Article) error { return f(ctx, art) }

// staticRules serves fixed policy records.
type staticRules struct {
	approval   model.ApprovalRules
	publishing model.PublishingRules
}

func (r staticRules) ApprovalRules(context.Context) model.ApprovalRules     { return r.approval }
func (r staticRules) PublishingRules(context.Context) model.PublishingRules { return r.publishing }

// newTestPipeline fills in whatever dependencies the test did not supply:
// a fresh content store, a zero-spend governor, a lifecycle service over the
// store, and default policy records.
func newTestPipeline(t *testing.T, cfg Config) *Pipeline {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := newContentStore()
	if cfg.Store == nil {
		cfg.Store = store
	} else {
		store = cfg.Store.(*contentStore)
	}
	if cfg.Governor == nil {
		cfg.Governor = governor.New(&zeroLedger{}, logger)
	}
	if cfg.Lifecycle == nil {
		cfg.Lifecycle = lifecycle.New(store, logger)
	}
	if cfg.Rules == nil {
		cfg.Rules = staticRules{
			approval:   model.DefaultApprovalRules(),
			publishing: model.DefaultPublishingRules(),
		}
	}
	cfg.Logger = logger
	return New(cfg)
}

func TestIngestCreatesSignalsAndTracksHealth(t *testing.T) {
	store := newContentStore()
	good := store.addSource(model.Source{Name: "good", Active: true, ReliabilityScore: 90})
	bad := store.addSource(model.Source{Name: "bad", Active: true})

	p := newTestPipeline(t, Config{
		Store: store,
		Fetcher: fetcherFunc(func(_ context.Context, src model.Source) ([]Item, error) {
			if src.ID == bad.ID {
				return nil, errors.New("timeout")
			}
			return []Item{
				{Title: "a", URL: "https://x/a", Confidence: 80},
				{Title: "b", URL: "https://x/b", Confidence: 60},
			}, nil
		}),
	})

	detail, err := p.Ingest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, detail["sources"])
	assert.Equal(t, 2, detail["signals_created"])
	assert.Equal(t, 1, detail["fetch_failures"])

	assert.Equal(t, 0, store.sources[good.ID].ConsecutiveFailures)
	assert.Equal(t, 1, store.sources[bad.ID].ConsecutiveFailures)

	pending, _ := store.ListSignalsByStatus(context.Background(), model.SignalPending, 10)
	assert.Len(t, pending, 2)
}

func TestIngestSkipsWithoutFetcher(t *testing.T) {
	p := newTestPipeline(t, Config{})

	detail, err := p.Ingest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "no_fetcher", detail["skipped"])
}

func TestIngestSkipsWhenCircuitOpen(t *testing.T) {
	store := newContentStore()
	store.addSource(model.Source{Name: "feed", Active: true})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gov := governor.New(&zeroLedger{}, logger, governor.WithBreakerPolicy(1, time.Minute))
	gov.RecordFailure() // trips a limit-1 breaker

	fetched := false
	p := newTestPipeline(t, Config{
		Store:    store,
		Governor: gov,
		Fetcher: fetcherFunc(func(context.Context, model.Source) ([]Item, error) {
			fetched = true
			return nil, nil
		}),
	})

	detail, err := p.Ingest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "circuit_open", detail["skipped"])
	assert.False(t, fetched)
}

func TestIngestStopsWhenBreakerOpensMidLoop(t *testing.T) {
	store := newContentStore()
	store.addSource(model.Source{Name: "one", Active: true})
	store.addSource(model.Source{Name: "two", Active: true})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gov := governor.New(&zeroLedger{}, logger, governor.WithBreakerPolicy(1, time.Minute))

	var fetches int
	p := newTestPipeline(t, Config{
		Store:    store,
		Governor: gov,
		Fetcher: fetcherFunc(func(context.Context, model.Source) ([]Item, error) {
			fetches++
			return nil, errors.New("down")
		}),
	})

	detail, err := p.Ingest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fetches, "second source must not be fetched after the breaker opens")
	assert.Equal(t, "circuit_open", detail["stopped"])
}

func TestProcessSignalsTriage(t *testing.T) {
	store := newContentStore()
	reliable := store.addSource(model.Source{Active: true, ReliabilityScore: 90})
	shaky := store.addSource(model.Source{Active: true, ReliabilityScore: 40})

	high := store.addSignal(model.Signal{SourceID: reliable.ID, Status: model.SignalPending, ConfidenceScore: 80})
	low := store.addSignal(model.Signal{SourceID: reliable.ID, Status: model.SignalPending, ConfidenceScore: 50})
	unreliable := store.addSignal(model.Signal{SourceID: shaky.ID, Status: model.SignalPending, ConfidenceScore: 95})
	done := store.addSignal(model.Signal{SourceID: reliable.ID, Status: model.SignalApproved, ConfidenceScore: 99})

	p := newTestPipeline(t, Config{Store: store})

	detail, err := p.ProcessSignals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, detail["pending"])
	assert.Equal(t, 1, detail["approved"])
	assert.Equal(t, 2, detail["flagged"])

	assert.Equal(t, model.SignalApproved, store.signals[high.ID].Status)
	assert.Equal(t, model.SignalFlagged, store.signals[low.ID].Status)
	assert.Equal(t, model.SignalFlagged, store.signals[unreliable.ID].Status)
	assert.Equal(t, model.SignalApproved, store.signals[done.ID].Status, "non-pending signals untouched")
}

func TestSynthesizeCreatesArticles(t *testing.T) {
	store := newContentStore()
	src := store.addSource(model.Source{Active: true})
	sig := store.addSignal(model.Signal{SourceID: src.ID, Status: model.SignalApproved, Title: "headline"})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := &zeroLedger{}
	gov := governor.New(ledger, logger)

	p := newTestPipeline(t, Config{
		Store:    store,
		Governor: gov,
		Composer: composerFunc(func(_ context.Context, s model.Signal) (Draft, Usage, error) {
			return Draft{Title: "Article: " + s.Title, Body: "text"},
				Usage{Model: "gpt-4o-mini", CostUsd: 0.02, InputTokens: 500, OutputTokens: 800},
				nil
		}),
	})

	detail, err := p.Synthesize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, detail["articles_created"])

	require.Len(t, store.articles, 1)
	for _, art := range store.articles {
		assert.True(t, art.IsDraft)
		require.NotNil(t, art.SignalID)
		assert.Equal(t, sig.ID, *art.SignalID)
	}

	// Usage landed in the ledger with the signal as the item scope.
	require.Len(t, ledger.records, 1)
	assert.Equal(t, 0.02, ledger.records[0].CostUsd)
	require.NotNil(t, ledger.records[0].ItemID)
	assert.Equal(t, sig.ID, *ledger.records[0].ItemID)

	// A second run finds the article already exists and composes nothing.
	detail, err = p.Synthesize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, detail["articles_created"])
	assert.Len(t, store.articles, 1)
}

func TestSynthesizeSkipsWithoutComposer(t *testing.T) {
	p := newTestPipeline(t, Config{})

	detail, err := p.Synthesize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "no_composer", detail["skipped"])
}

func TestSynthesizeDefersOnCostLimit(t *testing.T) {
	store := newContentStore()
	src := store.addSource(model.Source{Active: true})
	sig := store.addSignal(model.Signal{SourceID: src.ID, Status: model.SignalApproved})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gov := governor.New(&cappedLedger{daily: 10}, logger) // at the default daily ceiling

	composed := false
	p := newTestPipeline(t, Config{
		Store:    store,
		Governor: gov,
		Composer: composerFunc(func(context.Context, model.Signal) (Draft, Usage, error) {
			composed = true
			return Draft{}, Usage{}, nil
		}),
	})

	detail, err := p.Synthesize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, detail["deferred_cost"])
	assert.False(t, composed, "no paid call may happen over the ceiling")
	assert.Empty(t, store.articles)
	// The signal stays approved for a later cycle.
	assert.Equal(t, model.SignalApproved, store.signals[sig.ID].Status)
}

func TestSynthesizeComposeFailureFeedsBreaker(t *testing.T) {
	store := newContentStore()
	src := store.addSource(model.Source{Active: true})
	store.addSignal(model.Signal{SourceID: src.ID, Status: model.SignalApproved})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gov := governor.New(&zeroLedger{}, logger, governor.WithBreakerPolicy(1, time.Minute))

	p := newTestPipeline(t, Config{
		Store:    store,
		Governor: gov,
		Composer: composerFunc(func(context.Context, model.Signal) (Draft, Usage, error) {
			return Draft{}, Usage{}, errors.New("provider 500")
		}),
	})

	detail, err := p.Synthesize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, detail["compose_failures"])
	assert.True(t, gov.IsCircuitOpen())
	assert.Empty(t, store.articles)
}

func TestPublishPromotesAndDelivers(t *testing.T) {
	store := newContentStore()
	draft := store.addArticle(model.Article{Title: "ready", IsDraft: true})
	store.addArticle(model.Article{Title: "already out", IsDraft: false})

	var delivered []uuid.UUID
	p := newTestPipeline(t, Config{
		Store: store,
		Deliverer: delivererFunc(func(_ context.Context, art model.Article) error {
			delivered = append(delivered, art.ID)
			return nil
		}),
	})

	detail, err := p.Publish(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, detail["drafts"])
	assert.Equal(t, 1, detail["published"])
	assert.Equal(t, 1, detail["delivered"])

	assert.False(t, store.articles[draft.ID].IsDraft)
	require.NotNil(t, store.articles[draft.ID].PublishedAt)
	assert.Equal(t, []uuid.UUID{draft.ID}, delivered)
}

func TestPublishDeliveryFailureStillPublishes(t *testing.T) {
	store := newContentStore()
	draft := store.addArticle(model.Article{Title: "ready", IsDraft: true})

	p := newTestPipeline(t, Config{
		Store: store,
		Deliverer: delivererFunc(func(context.Context, model.Article) error {
			return errors.New("webhook 503")
		}),
	})

	detail, err := p.Publish(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, detail["published"])
	assert.Equal(t, 0, detail["delivered"])
	assert.False(t, store.articles[draft.ID].IsDraft, "delivery failure must not roll back the publish")
}

func TestPublishRespectsAutoPublishDisabled(t *testing.T) {
	store := newContentStore()
	store.addArticle(model.Article{IsDraft: true})

	p := newTestPipeline(t, Config{
		Store: store,
		Rules: staticRules{
			approval:   model.DefaultApprovalRules(),
			publishing: model.PublishingRules{AutoPublishEnabled: false},
		},
	})

	detail, err := p.Publish(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "auto_publish_disabled", detail["skipped"])
	for _, art := range store.articles {
		assert.True(t, art.IsDraft)
	}
}

func TestPublishHonorsMaxPerCycle(t *testing.T) {
	store := newContentStore()
	for i := 0; i < 5; i++ {
		store.addArticle(model.Article{IsDraft: true})
	}

	p := newTestPipeline(t, Config{
		Store: store,
		Rules: staticRules{
			approval:   model.DefaultApprovalRules(),
			publishing: model.PublishingRules{AutoPublishEnabled: true, MaxPerCycle: 2},
		},
	})

	detail, err := p.Publish(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, detail["published"])

	var stillDraft int
	for _, art := range store.articles {
		if art.IsDraft {
			stillDraft++
		}
	}
	assert.Equal(t, 3, stillDraft)
}
