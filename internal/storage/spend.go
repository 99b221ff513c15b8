package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/newsloom/newsloom/internal/model"
)

// AppendSpendRecord inserts one entry into the append-only spend ledger.
func (db *DB) AppendSpendRecord(ctx context.Context, rec model.SpendRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO spend_records (id, item_id, model, prompt_name, input_tokens, output_tokens, cost_usd, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.ItemID, rec.Model, rec.PromptName,
		rec.InputTokens, rec.OutputTokens, rec.CostUsd, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: append spend record: %w", err)
	}
	return nil
}

// SumSpendSince returns total cost of ledger entries created at or after the
// given instant.
func (db *DB) SumSpendSince(ctx context.Context, since time.Time) (float64, error) {
	var total float64
	err := db.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(cost_usd), 0) FROM spend_records WHERE created_at >= $1`, since,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("storage: sum spend since: %w", err)
	}
	return total, nil
}

// SumSpendForItem returns total cost of all ledger entries for one item.
func (db *DB) SumSpendForItem(ctx context.Context, itemID uuid.UUID) (float64, error) {
	var total float64
	err := db.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(cost_usd), 0) FROM spend_records WHERE item_id = $1`, itemID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("storage: sum spend for item: %w", err)
	}
	return total, nil
}
