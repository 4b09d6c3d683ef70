// Package harvest drives the crawl-and-merge pipeline: pagination over
// listing collections, per-item detail enrichment, and the terminal
// dedup/merge into the persisted dataset.
package harvest

import (
	"context"
	"log/slog"
	"time"

	"github.com/anim8or/GameGleaner/config"
	"github.com/anim8or/GameGleaner/fetch"
	"github.com/anim8or/GameGleaner/models"
	"github.com/anim8or/GameGleaner/parse"
	"github.com/anim8or/GameGleaner/store"
	"github.com/anim8or/GameGleaner/thumbs"
)

// Harvester composes the paginator, enricher, thumbnail cache, and
// dataset store into one run. It is the sole writer of the persisted
// dataset: all collections accumulate into a single terminal
// load-merge-save.
type Harvester struct {
	cfg       *config.Config
	paginator *Paginator
	enricher  *Enricher
	store     *store.Store
	metrics   *Metrics

	now func() time.Time
}

// New builds a Harvester from its collaborators. Metrics may be nil.
func New(cfg *config.Config, client fetch.Client, st *store.Store, metrics *Metrics) (*Harvester, error) {
	cache := thumbs.NewCache(cfg.ThumbnailDir, client)
	enricher, err := NewEnricher(cfg, client, cache, metrics)
	if err != nil {
		return nil, err
	}
	return &Harvester{
		cfg:       cfg,
		paginator: NewPaginator(cfg, client, metrics),
		enricher:  enricher,
		store:     st,
		metrics:   metrics,
		now:       time.Now,
	}, nil
}

// Run harvests every configured collection and persists the merged
// dataset. A collection failure truncates that collection and is
// recorded on the result; remaining collections still proceed. Store
// failures are fatal and returned.
func (h *Harvester) Run(ctx context.Context) (*models.HarvestResult, error) {
	result := &models.HarvestResult{StartTime: h.now()}
	scrapeDate := result.StartTime.Format("2006-01-02")

	var all []models.EnrichedRecord
	for _, coll := range h.cfg.Collections {
		result.Collections = append(result.Collections, string(coll.Name))
		adapter := adapterFor(coll.Format)

		slog.Info("harvesting collection",
			slog.String("listing", string(coll.Name)),
			slog.String("url", coll.BaseURL),
		)

		stubs, err := h.paginator.Paginate(ctx, coll, adapter, scrapeDate)
		if err != nil {
			slog.Warn("collection truncated",
				slog.String("listing", string(coll.Name)),
				slog.Int("stubs", len(stubs)),
				slog.Any("error", err),
			)
			result.FailedCollections = append(result.FailedCollections, string(coll.Name))
		}

		unique := dedupeByURL(stubs)
		result.StubCount += len(unique)

		records := h.enricher.EnrichAll(ctx, unique, adapter)
		all = append(all, records...)

		if ctx.Err() != nil {
			// Interrupted: stop producing, keep what completed.
			break
		}
	}

	result.EnrichedCount = len(all)
	result.SkippedCount = result.StubCount - len(all)

	existing, err := h.store.Load()
	if err != nil {
		return result, err
	}
	merged := store.Merge(existing, all)
	if err := h.store.Save(merged); err != nil {
		return result, err
	}

	result.MergedRows = len(merged)
	result.NewRows = len(merged) - len(existing)
	result.EndTime = h.now()
	h.metrics.SetDatasetRows(len(merged))

	slog.Info("harvest complete",
		slog.Int("stubs", result.StubCount),
		slog.Int("enriched", result.EnrichedCount),
		slog.Int("skipped", result.SkippedCount),
		slog.Int("rows", result.MergedRows),
		slog.Int("new_rows", result.NewRows),
		slog.Duration("elapsed", result.EndTime.Sub(result.StartTime)),
	)
	return result, nil
}

func adapterFor(format string) parse.Adapter {
	if format == "json" {
		return parse.JSONAdapter{}
	}
	return parse.ItchAdapter{}
}

// dedupeByURL drops stubs whose detail URL was already seen in this
// collection, keeping the first occurrence in emission order. Enrichment
// is the expensive step; the same detail page must never be fetched for
// two stubs of the same collection.
func dedupeByURL(stubs []models.StubRecord) []models.StubRecord {
	seen := make(map[string]struct{}, len(stubs))
	out := make([]models.StubRecord, 0, len(stubs))
	for _, stub := range stubs {
		if stub.DetailURL == "" {
			continue
		}
		if _, ok := seen[stub.DetailURL]; ok {
			continue
		}
		seen[stub.DetailURL] = struct{}{}
		out = append(out, stub)
	}
	return out
}
