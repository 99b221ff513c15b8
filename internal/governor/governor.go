// Package governor gates every paid external call behind two checks: spend
// ceilings evaluated before spending, and a circuit breaker driven by call
// outcomes. Both live on an explicit Governor instance constructed once per
// process; there is no package-level state.
package governor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/newsloom/newsloom/internal/model"
)

// Ledger is the spend-ledger surface the governor needs. *storage.DB
// satisfies it.
type Ledger interface {
	AppendSpendRecord(ctx context.Context, rec model.SpendRecord) error
	SumSpendSince(ctx context.Context, since time.Time) (float64, error)
	SumSpendForItem(ctx context.Context, itemID uuid.UUID) (float64, error)
}

// Limits are the configurable spend ceilings in USD.
type Limits struct {
	PerItemUSD float64
	DailyUSD   float64
	MonthlyUSD float64
}

// DefaultLimits returns the stock ceilings.
func DefaultLimits() Limits {
	return Limits{PerItemUSD: 0.50, DailyUSD: 10, MonthlyUSD: 100}
}

// CostDecision is the outcome of a ceiling check. Not-allowed is a normal
// "not now" signal, never an error.
type CostDecision struct {
	Allowed      bool    `json:"allowed"`
	Reason       string  `json:"reason,omitempty"`
	CurrentSpend float64 `json:"currentSpend,omitempty"`
	Limit        float64 `json:"limit,omitempty"`
}

var meter = otel.GetMeterProvider().Meter("newsloom/governor")

// Governor holds the spend ceilings and the process-local breaker state.
// Breaker state is deliberately not persisted: a restart starts closed.
type Governor struct {
	ledger Ledger
	limits Limits
	logger *slog.Logger
	now    func() time.Time

	breaker breaker
}

// Option customizes a Governor.
type Option func(*Governor)

// WithLimits overrides the default spend ceilings.
func WithLimits(l Limits) Option {
	return func(g *Governor) { g.limits = l }
}

// WithClock injects a clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Governor) {
		g.now = now
		g.breaker.now = now
	}
}

// WithBreakerPolicy overrides the failure threshold and reset window.
func WithBreakerPolicy(failureLimit int, resetWindow time.Duration) Option {
	return func(g *Governor) {
		g.breaker.failureLimit = failureLimit
		g.breaker.resetWindow = resetWindow
	}
}

// New creates a Governor over the given ledger.
func New(ledger Ledger, logger *slog.Logger, opts ...Option) *Governor {
	g := &Governor{
		ledger: ledger,
		limits: DefaultLimits(),
		logger: logger,
		now:    time.Now,
		breaker: breaker{
			now:          time.Now,
			failureLimit: defaultFailureLimit,
			resetWindow:  defaultResetWindow,
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Limits returns the configured ceilings.
func (g *Governor) Limits() Limits { return g.limits }

// CheckCostLimits sums ledger spend over the current calendar day and month
// (server local time) and, when itemID is given, over that item's records.
// The first breached ceiling wins, checked daily → monthly → per-item.
//
// A ledger query error fails open: availability is preferred over
// enforcement during a store outage, at the cost of the governor being
// blind for that window. The failure is logged loudly so it is visible.
func (g *Governor) CheckCostLimits(ctx context.Context, itemID *uuid.UUID) CostDecision {
	now := g.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	daily, err := g.ledger.SumSpendSince(ctx, dayStart)
	if err != nil {
		g.logger.Error("governor: daily spend query failed, failing open", "error", err)
		return CostDecision{Allowed: true}
	}
	if daily >= g.limits.DailyUSD {
		return CostDecision{
			Allowed:      false,
			Reason:       fmt.Sprintf("daily spend limit reached ($%.2f of $%.2f)", daily, g.limits.DailyUSD),
			CurrentSpend: daily,
			Limit:        g.limits.DailyUSD,
		}
	}

	monthly, err := g.ledger.SumSpendSince(ctx, monthStart)
	if err != nil {
		g.logger.Error("governor: monthly spend query failed, failing open", "error", err)
		return CostDecision{Allowed: true}
	}
	if monthly >= g.limits.MonthlyUSD {
		return CostDecision{
			Allowed:      false,
			Reason:       fmt.Sprintf("monthly spend limit reached ($%.2f of $%.2f)", monthly, g.limits.MonthlyUSD),
			CurrentSpend: monthly,
			Limit:        g.limits.MonthlyUSD,
		}
	}

	if itemID != nil {
		item, err := g.ledger.SumSpendForItem(ctx, *itemID)
		if err != nil {
			g.logger.Error("governor: per-item spend query failed, failing open", "error", err, "item_id", *itemID)
			return CostDecision{Allowed: true}
		}
		if item >= g.limits.PerItemUSD {
			return CostDecision{
				Allowed:      false,
				Reason:       fmt.Sprintf("per-item spend limit reached ($%.2f of $%.2f)", item, g.limits.PerItemUSD),
				CurrentSpend: item,
				Limit:        g.limits.PerItemUSD,
			}
		}
	}

	return CostDecision{Allowed: true}
}

// RecordUsage appends a spend record to the ledger. Spend tracking is
// best-effort and never fails the caller's business operation: an append
// error is logged and swallowed.
func (g *Governor) RecordUsage(ctx context.Context, rec model.SpendRecord) {
	if err := rec.Validate(); err != nil {
		g.logger.Warn("governor: dropping invalid spend record", "error", err)
		return
	}
	if err := g.ledger.AppendSpendRecord(ctx, rec); err != nil {
		g.logger.Error("governor: spend record append failed", "error", err,
			"model", rec.Model, "cost_usd", rec.CostUsd)
		return
	}
	if counter, err := meter.Float64Counter("governor.spend.usd"); err == nil {
		counter.Add(ctx, rec.CostUsd, otelmetric.WithAttributes(
			attribute.String("model", rec.Model),
			attribute.String("prompt", rec.PromptName),
		))
	}
}

// RecordFailure increments the consecutive-failure count and returns true
// exactly when this call trips the breaker open.
func (g *Governor) RecordFailure() bool {
	opened := g.breaker.recordFailure()
	if opened {
		g.logger.Warn("governor: circuit breaker opened",
			"failures", g.breaker.failureLimit,
			"reset_window", g.breaker.resetWindow)
	}
	return opened
}

// RecordSuccess resets the failure streak and closes the breaker.
func (g *Governor) RecordSuccess() {
	g.breaker.recordSuccess()
}

// IsCircuitOpen reports the breaker state, auto-closing once the reset
// window has elapsed since it opened.
func (g *Governor) IsCircuitOpen() bool {
	return g.breaker.isOpen()
}
