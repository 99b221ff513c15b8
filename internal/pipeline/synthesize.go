package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/newsloom/newsloom/internal/model"
)

// Synthesize turns approved signals into draft articles. Every composition
// call is paid, so both governor gates apply: the breaker first, then the
// spend ceilings with the signal as the per-item scope. A failed cost check
// is a normal "not now" — the signal stays approved and is retried on a
// later cycle once spend allows.
func (p *Pipeline) Synthesize(ctx context.Context) (map[string]any, error) {
	detail := map[string]any{}

	if p.composer == nil {
		detail["skipped"] = "no_composer"
		return detail, nil
	}
	approved, err := p.store.ListSignalsByStatus(ctx, model.SignalApproved, p.batchSize)
	if err != nil {
		return detail, err
	}

	var created, deferred, failures int
	for _, sig := range approved {
		exists, err := p.store.HasArticleForSignal(ctx, sig.ID)
		if err != nil {
			p.logger.Error("synthesize: article lookup", "error", err, "signal_id", sig.ID)
			continue
		}
		if exists {
			continue
		}

		if p.gov.IsCircuitOpen() {
			p.logger.Info("synthesize stopped: circuit breaker open")
			detail["stopped"] = "circuit_open"
			break
		}

		itemID := sig.ID
		if decision := p.gov.CheckCostLimits(ctx, &itemID); !decision.Allowed {
			p.logger.Info("synthesize deferred: cost limit",
				"signal_id", sig.ID, "reason", decision.Reason)
			deferred++
			continue
		}

		draft, usage, err := p.composer.Compose(ctx, sig)
		if err != nil {
			failures++
			p.gov.RecordFailure()
			p.logger.Warn("synthesize: compose failed", "error", err, "signal_id", sig.ID)
			continue
		}
		p.gov.RecordSuccess()
		p.gov.RecordUsage(ctx, model.SpendRecord{
			ID:           uuid.New(),
			ItemID:       &itemID,
			Model:        usage.Model,
			PromptName:   usage.PromptName,
			InputTokens:  usage.InputTokens,
			OutputTokens: usage.OutputTokens,
			CostUsd:      usage.CostUsd,
			CreatedAt:    time.Now().UTC(),
		})

		if _, err := p.store.CreateArticle(ctx, &itemID, draft.Title, draft.Body); err != nil {
			p.logger.Error("synthesize: create article", "error", err, "signal_id", sig.ID)
			continue
		}
		created++
	}

	detail["approved"] = len(approved)
	detail["articles_created"] = created
	detail["deferred_cost"] = deferred
	detail["compose_failures"] = failures
	return detail, nil
}
