package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsloom/newsloom/internal/model"
	"github.com/newsloom/newsloom/internal/state"
)

func TestRulesDefaultWhenUnset(t *testing.T) {
	r := NewRules(state.NewMemoryStore(), testLogger())
	ctx := context.Background()

	assert.Equal(t, model.DefaultApprovalRules(), r.ApprovalRules(ctx))
	assert.Equal(t, model.DefaultPublishingRules(), r.PublishingRules(ctx))
}

func TestRulesRoundTrip(t *testing.T) {
	r := NewRules(state.NewMemoryStore(), testLogger())
	ctx := context.Background()

	approval := model.ApprovalRules{
		AutoApprovalEnabled:  false,
		ConfidenceThreshold:  90,
		ReliabilityThreshold: 85,
	}
	require.NoError(t, r.SetApprovalRules(ctx, approval))
	assert.Equal(t, approval, r.ApprovalRules(ctx))

	publishing := model.PublishingRules{AutoPublishEnabled: false, MaxPerCycle: 1}
	require.NoError(t, r.SetPublishingRules(ctx, publishing))
	assert.Equal(t, publishing, r.PublishingRules(ctx))
}

func TestRulesCorruptRecordFallsBack(t *testing.T) {
	store := state.NewMemoryStore()
	r := NewRules(store, testLogger())
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, state.KeyApprovalRules, "{corrupt"))
	assert.Equal(t, model.DefaultApprovalRules(), r.ApprovalRules(ctx))
}
