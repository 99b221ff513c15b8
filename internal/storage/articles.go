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

// ErrAlreadyPublished is returned when publishing an article whose draft
// flag is already cleared. published_at is left untouched.
var ErrAlreadyPublished = errors.New("storage: article already published")

const articleColumns = `id, signal_id, title, body, is_draft, published_at, created_at`

// CreateArticle inserts a new draft article synthesized from a signal.
func (db *DB) CreateArticle(ctx context.Context, signalID *uuid.UUID, title, body string) (model.Article, error) {
	art := model.Article{
		ID:        uuid.New(),
		SignalID:  signalID,
		Title:     title,
		Body:      body,
		IsDraft:   true,
		CreatedAt: time.Now().UTC(),
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO articles (id, signal_id, title, body, is_draft, created_at)
		 VALUES ($1, $2, $3, $4, true, $5)`,
		art.ID, art.SignalID, art.Title, art.Body, art.CreatedAt,
	)
	if err != nil {
		return model.Article{}, fmt.Errorf("storage: create article: %w", err)
	}
	return art, nil
}

// GetArticle retrieves an article by ID.
func (db *DB) GetArticle(ctx context.Context, id uuid.UUID) (model.Article, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE id = $1`, id)
	art, err := scanArticle(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Article{}, ErrNotFound
		}
		return model.Article{}, fmt.Errorf("storage: get article: %w", err)
	}
	return art, nil
}

// ListDraftArticles returns draft articles oldest first.
func (db *DB) ListDraftArticles(ctx context.Context, limit int) ([]model.Article, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE is_draft = true
		 ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list draft articles: %w", err)
	}
	defer rows.Close()

	var articles []model.Article
	for rows.Next() {
		art, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan article: %w", err)
		}
		articles = append(articles, art)
	}
	return articles, rows.Err()
}

// HasArticleForSignal reports whether a signal already has an article, so
// the synthesize stage never produces duplicates.
func (db *DB) HasArticleForSignal(ctx context.Context, signalID uuid.UUID) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM articles WHERE signal_id = $1)`, signalID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("storage: article exists for signal: %w", err)
	}
	return exists, nil
}

// PublishArticle flips is_draft to false and stamps published_at, exactly
// once. The conditional update is the one-way guard: re-publishing a
// non-draft affects no rows and returns ErrAlreadyPublished.
func (db *DB) PublishArticle(ctx context.Context, id uuid.UUID) (model.Article, error) {
	now := time.Now().UTC()
	row := db.pool.QueryRow(ctx,
		`UPDATE articles SET is_draft = false, published_at = $1
		 WHERE id = $2 AND is_draft = true
		 RETURNING `+articleColumns, now, id)
	art, err := scanArticle(row)
	if err == nil {
		return art, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Article{}, fmt.Errorf("storage: publish article: %w", err)
	}

	// No rows: either the article is missing or it is already published.
	if _, getErr := db.GetArticle(ctx, id); getErr != nil {
		return model.Article{}, getErr
	}
	return model.Article{}, ErrAlreadyPublished
}

// UnpublishArticle flips an article back to draft. published_at is kept:
// there is no republish cycle that resets it. Rare, manual-only.
func (db *DB) UnpublishArticle(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE articles SET is_draft = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("storage: unpublish article: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanArticle(row pgx.Row) (model.Article, error) {
	var art model.Article
	err := row.Scan(
		&art.ID, &art.SignalID, &art.Title, &art.Body,
		&art.IsDraft, &art.PublishedAt, &art.CreatedAt,
	)
	return art, err
}
