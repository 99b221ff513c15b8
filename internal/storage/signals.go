package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/newsloom/newsloom/internal/model"
)

const signalColumns = `id, source_id, title, url, summary, status, confidence_score, created_at, updated_at`

// CreateSignal inserts a new signal in the pending state.
func (db *DB) CreateSignal(ctx context.Context, sourceID uuid.UUID, title, url, summary string, confidence float64) (model.Signal, error) {
	now := time.Now().UTC()
	sig := model.Signal{
		ID:              uuid.New(),
		SourceID:        sourceID,
		Title:           title,
		URL:             url,
		Summary:         summary,
		Status:          model.SignalPending,
		ConfidenceScore: confidence,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO signals (id, source_id, title, url, summary, status, confidence_score, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sig.ID, sig.SourceID, sig.Title, sig.URL, sig.Summary,
		string(sig.Status), sig.ConfidenceScore, sig.CreatedAt, sig.UpdatedAt,
	)
	if err != nil {
		return model.Signal{}, fmt.Errorf("storage: create signal: %w", err)
	}
	return sig, nil
}

// GetSignal retrieves a signal by ID.
func (db *DB) GetSignal(ctx context.Context, id uuid.UUID) (model.Signal, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+signalColumns+` FROM signals WHERE id = $1`, id)
	sig, err := scanSignal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Signal{}, ErrNotFound
		}
		return model.Signal{}, fmt.Errorf("storage: get signal: %w", err)
	}
	return sig, nil
}

// ListSignalsByStatus returns signals in the given status, oldest first so
// the pipeline drains backlogs in arrival order.
func (db *DB) ListSignalsByStatus(ctx context.Context, status model.SignalStatus, limit int) ([]model.Signal, error) {
	if !model.ValidSignalStatus(status) {
		return nil, model.ErrInvalidStatus
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+signalColumns+` FROM signals WHERE status = $1
		 ORDER BY created_at LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list signals: %w", err)
	}
	defer rows.Close()

	var signals []model.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan signal: %w", err)
		}
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}

// UpdateSignalStatus sets a signal's status. Values outside the legal set
// are rejected before any write; the record is never mutated on rejection.
func (db *DB) UpdateSignalStatus(ctx context.Context, id uuid.UUID, status model.SignalStatus) error {
	if !model.ValidSignalStatus(status) {
		return fmt.Errorf("%w: %q", model.ErrInvalidStatus, status)
	}
	tag, err := db.pool.Exec(ctx,
		`UPDATE signals SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("storage: update signal status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSignal(row pgx.Row) (model.Signal, error) {
	var sig model.Signal
	err := row.Scan(
		&sig.ID, &sig.SourceID, &sig.Title, &sig.URL, &sig.Summary,
		&sig.Status, &sig.ConfidenceScore, &sig.CreatedAt, &sig.UpdatedAt,
	)
	return sig, err
}
