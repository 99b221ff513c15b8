package pipeline

import (
	"context"
	"errors"

	"github.com/newsloom/newsloom/internal/storage"
)

// Publish promotes draft articles to published and hands each one to the
// deliverer. Delivery errors are logged and swallowed: the article is
// published either way, and downstream consumers are idempotent under
// at-least-once delivery.
func (p *Pipeline) Publish(ctx context.Context) (map[string]any, error) {
	detail := map[string]any{}
	rules := p.rules.PublishingRules(ctx)

	if !rules.AutoPublishEnabled {
		detail["skipped"] = "auto_publish_disabled"
		return detail, nil
	}

	limit := rules.MaxPerCycle
	if limit <= 0 {
		limit = p.batchSize
	}
	drafts, err := p.store.ListDraftArticles(ctx, limit)
	if err != nil {
		return detail, err
	}

	var published, delivered int
	for _, draft := range drafts {
		art, err := p.life.PublishArticle(ctx, draft.ID)
		if err != nil {
			// A concurrent publish already won; nothing to do.
			if errors.Is(err, storage.ErrAlreadyPublished) {
				continue
			}
			p.logger.Error("publish: publish article", "error", err, "article_id", draft.ID)
			continue
		}
		published++

		if p.deliverer == nil {
			continue
		}
		if err := p.deliverer.Deliver(ctx, art); err != nil {
			p.logger.Warn("publish: delivery failed", "error", err, "article_id", art.ID)
			continue
		}
		delivered++
	}

	detail["drafts"] = len(drafts)
	detail["published"] = published
	detail["delivered"] = delivered
	return detail, nil
}
