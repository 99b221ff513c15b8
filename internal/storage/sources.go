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

const sourceColumns = `id, name, feed_url, active, auto_disabled, consecutive_failures,
	 reliability_score, last_ingested_at, last_successful_ingest_at, created_at`

// CreateSource inserts a new ingestion source and returns it.
func (db *DB) CreateSource(ctx context.Context, name, feedURL string, reliability float64) (model.Source, error) {
	src := model.Source{
		ID:               uuid.New(),
		Name:             name,
		FeedURL:          feedURL,
		Active:           true,
		ReliabilityScore: reliability,
		CreatedAt:        time.Now().UTC(),
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO sources (id, name, feed_url, active, auto_disabled, consecutive_failures, reliability_score, created_at)
		 VALUES ($1, $2, $3, $4, false, 0, $5, $6)`,
		src.ID, src.Name, src.FeedURL, src.Active, src.ReliabilityScore, src.CreatedAt,
	)
	if err != nil {
		return model.Source{}, fmt.Errorf("storage: create source: %w", err)
	}
	return src, nil
}

// GetSource retrieves a source by ID.
func (db *DB) GetSource(ctx context.Context, id uuid.UUID) (model.Source, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE id = $1`, id)
	src, err := scanSource(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Source{}, ErrNotFound
		}
		return model.Source{}, fmt.Errorf("storage: get source: %w", err)
	}
	return src, nil
}

// ListIngestableSources returns sources with active=true AND auto_disabled=false.
func (db *DB) ListIngestableSources(ctx context.Context) ([]model.Source, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+sourceColumns+` FROM sources
		 WHERE active = true AND auto_disabled = false
		 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("storage: list ingestable sources: %w", err)
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// RecordSourceSuccess resets the failure streak and stamps both ingest
// checkpoints after a successful fetch.
func (db *DB) RecordSourceSuccess(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	tag, err := db.pool.Exec(ctx,
		`UPDATE sources SET consecutive_failures = 0, last_ingested_at = $1, last_successful_ingest_at = $1
		 WHERE id = $2`, now, id)
	if err != nil {
		return fmt.Errorf("storage: record source success: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordSourceFailure increments the failure streak and stamps the ingest
// attempt. When the new streak reaches the limit the source is auto-disabled;
// the flag is sticky until manually cleared. Returns the updated source.
func (db *DB) RecordSourceFailure(ctx context.Context, id uuid.UUID) (model.Source, error) {
	now := time.Now().UTC()
	row := db.pool.QueryRow(ctx,
		`UPDATE sources
		 SET consecutive_failures = consecutive_failures + 1,
		     auto_disabled = auto_disabled OR (consecutive_failures + 1 >= $1),
		     last_ingested_at = $2
		 WHERE id = $3
		 RETURNING `+sourceColumns,
		model.SourceFailureLimit, now, id)
	src, err := scanSource(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Source{}, ErrNotFound
		}
		return model.Source{}, fmt.Errorf("storage: record source failure: %w", err)
	}
	return src, nil
}

// ReactivateSource clears the auto-disable flag and failure streak. This is
// the manual intervention path; nothing in the pipeline calls it.
func (db *DB) ReactivateSource(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE sources SET auto_disabled = false, consecutive_failures = 0 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("storage: reactivate source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSource(row pgx.Row) (model.Source, error) {
	var src model.Source
	err := row.Scan(
		&src.ID, &src.Name, &src.FeedURL, &src.Active, &src.AutoDisabled,
		&src.ConsecutiveFailures, &src.ReliabilityScore,
		&src.LastIngestedAt, &src.LastSuccessfulIngestAt, &src.CreatedAt,
	)
	return src, err
}
