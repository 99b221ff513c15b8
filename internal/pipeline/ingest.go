package pipeline

import (
	"context"
)

// Ingest pulls new items from every ingestable source and records each
// fetch outcome against both the governor's breaker and the source's own
// failure streak. An open breaker skips the whole stage rather than
// hammering failing feeds.
func (p *Pipeline) Ingest(ctx context.Context) (map[string]any, error) {
	detail := map[string]any{}

	if p.fetcher == nil {
		detail["skipped"] = "no_fetcher"
		return detail, nil
	}
	if p.gov.IsCircuitOpen() {
		p.logger.Info("ingest skipped: circuit breaker open")
		detail["skipped"] = "circuit_open"
		return detail, nil
	}

	sources, err := p.life.ActiveSources(ctx)
	if err != nil {
		return detail, err
	}

	var created, failures int
	for _, src := range sources {
		items, err := p.fetcher.Fetch(ctx, src)
		if err != nil {
			failures++
			p.gov.RecordFailure()
			if _, ferr := p.life.RecordSourceFailure(ctx, src.ID); ferr != nil {
				p.logger.Error("ingest: record source failure", "error", ferr, "source_id", src.ID)
			}
			p.logger.Warn("ingest: fetch failed", "error", err, "source", src.Name)
			if p.gov.IsCircuitOpen() {
				detail["stopped"] = "circuit_open"
				break
			}
			continue
		}

		p.gov.RecordSuccess()
		if err := p.life.RecordSourceSuccess(ctx, src.ID); err != nil {
			p.logger.Error("ingest: record source success", "error", err, "source_id", src.ID)
		}

		for _, item := range items {
			if _, err := p.store.CreateSignal(ctx, src.ID, item.Title, item.URL, item.Summary, item.Confidence); err != nil {
				p.logger.Error("ingest: create signal", "error", err, "source", src.Name, "url", item.URL)
				continue
			}
			created++
		}
	}

	detail["sources"] = len(sources)
	detail["signals_created"] = created
	detail["fetch_failures"] = failures
	return detail, nil
}
