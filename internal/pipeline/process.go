package pipeline

import (
	"context"

	"github.com/google/uuid"

	"github.com/newsloom/newsloom/internal/lifecycle"
	"github.com/newsloom/newsloom/internal/model"
)

// ProcessSignals triages pending signals: each is auto-approved or flagged
// for manual review based on its confidence and the owning source's
// reliability against the current approval rules.
func (p *Pipeline) ProcessSignals(ctx context.Context) (map[string]any, error) {
	detail := map[string]any{}
	rules := p.rules.ApprovalRules(ctx)

	pending, err := p.store.ListSignalsByStatus(ctx, model.SignalPending, p.batchSize)
	if err != nil {
		return detail, err
	}

	reliability := make(map[uuid.UUID]float64)
	var approved, flagged int
	for _, sig := range pending {
		rel, ok := reliability[sig.SourceID]
		if !ok {
			src, err := p.store.GetSource(ctx, sig.SourceID)
			if err != nil {
				p.logger.Error("triage: load source", "error", err, "signal_id", sig.ID)
				continue
			}
			rel = src.ReliabilityScore
			reliability[sig.SourceID] = rel
		}

		outcome := lifecycle.Triage(rules, sig.ConfidenceScore, rel)
		status := lifecycle.StatusFor(outcome)
		if err := p.life.SetSignalStatus(ctx, sig.ID, status); err != nil {
			p.logger.Error("triage: set signal status", "error", err, "signal_id", sig.ID)
			continue
		}
		if status == model.SignalApproved {
			approved++
		} else {
			flagged++
		}
	}

	detail["pending"] = len(pending)
	detail["approved"] = approved
	detail["flagged"] = flagged
	return detail, nil
}
