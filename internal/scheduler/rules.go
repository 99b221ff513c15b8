package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/newsloom/newsloom/internal/model"
	"github.com/newsloom/newsloom/internal/state"
)

// Rules is the store-backed access point for the mutable policy records.
// It is constructed separately from the Orchestrator so the pipeline stages
// can read policy without a dependency cycle; the Orchestrator embeds it.
type Rules struct {
	store  state.Store
	logger *slog.Logger
}

// NewRules creates a Rules accessor over the store.
func NewRules(store state.Store, logger *slog.Logger) *Rules {
	return &Rules{store: store, logger: logger}
}

// ApprovalRules returns the current triage policy, defaulting when unset.
func (r *Rules) ApprovalRules(ctx context.Context) model.ApprovalRules {
	rules := model.DefaultApprovalRules()
	r.loadJSON(ctx, state.KeyApprovalRules, &rules)
	return rules
}

// SetApprovalRules replaces the triage policy.
func (r *Rules) SetApprovalRules(ctx context.Context, rules model.ApprovalRules) error {
	return r.storeJSON(ctx, state.KeyApprovalRules, rules)
}

// PublishingRules returns the current publish policy, defaulting when unset.
func (r *Rules) PublishingRules(ctx context.Context) model.PublishingRules {
	rules := model.DefaultPublishingRules()
	r.loadJSON(ctx, state.KeyPublishingRules, &rules)
	return rules
}

// SetPublishingRules replaces the publish policy.
func (r *Rules) SetPublishingRules(ctx context.Context, rules model.PublishingRules) error {
	return r.storeJSON(ctx, state.KeyPublishingRules, rules)
}

func (r *Rules) loadJSON(ctx context.Context, key string, target any) {
	raw, err := r.store.Get(ctx, key)
	if errors.Is(err, state.ErrNotFound) {
		return
	}
	if err != nil {
		r.logger.Warn("scheduler: load record failed, using defaults", "key", key, "error", err)
		return
	}
	if err := json.Unmarshal([]byte(raw), target); err != nil {
		r.logger.Warn("scheduler: corrupt record, using defaults", "key", key, "error", err)
	}
}

func (r *Rules) storeJSON(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("scheduler: marshal %s: %w", key, err)
	}
	return r.store.Set(ctx, key, string(raw))
}
