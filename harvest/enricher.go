package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/anim8or/GameGleaner/config"
	"github.com/anim8or/GameGleaner/fetch"
	"github.com/anim8or/GameGleaner/models"
	"github.com/anim8or/GameGleaner/parse"
	"github.com/anim8or/GameGleaner/thumbs"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
)

// detailAttrs are the enrichment attributes of one detail URL, cached so
// a detail page is fetched at most once per run even when the same item
// appears in several listing collections.
type detailAttrs struct {
	author        string
	price         *float64
	currency      string
	isFree        bool
	genres        []string
	thumbnailURL  string
	thumbnailPath string
}

// Enricher resolves stub records into enriched records by fetching and
// parsing each item's detail page and caching its thumbnail.
type Enricher struct {
	cfg     *config.Config
	client  fetch.Client
	thumbs  *thumbs.Cache
	metrics *Metrics
	memo    *lru.Cache[string, *detailAttrs]
}

// NewEnricher builds an Enricher. The memo is bounded by
// cfg.DedupeMaxSize so a pathological run cannot grow without limit.
func NewEnricher(cfg *config.Config, client fetch.Client, cache *thumbs.Cache, metrics *Metrics) (*Enricher, error) {
	memo, err := lru.New[string, *detailAttrs](cfg.DedupeMaxSize)
	if err != nil {
		return nil, fmt.Errorf("enrichment memo: %w", err)
	}
	return &Enricher{
		cfg:     cfg,
		client:  client,
		thumbs:  cache,
		metrics: metrics,
		memo:    memo,
	}, nil
}

// Enrich resolves one stub. Fetch and parse failures surface as an error
// so the caller can skip the item; price text that merely fails to parse
// is not an error, it degrades to free.
func (e *Enricher) Enrich(ctx context.Context, stub models.StubRecord, adapter parse.DetailParser) (*models.EnrichedRecord, error) {
	attrs, ok := e.memo.Get(stub.DetailURL)
	if !ok {
		fetched, err := e.fetchDetail(ctx, stub, adapter)
		if err != nil {
			return nil, err
		}
		attrs = fetched
		e.memo.Add(stub.DetailURL, attrs)
	}

	return &models.EnrichedRecord{
		StubRecord:    stub,
		Author:        attrs.author,
		Price:         attrs.price,
		Currency:      attrs.currency,
		IsFree:        attrs.isFree,
		Genres:        attrs.genres,
		ThumbnailURL:  attrs.thumbnailURL,
		ThumbnailPath: attrs.thumbnailPath,
	}, nil
}

func (e *Enricher) fetchDetail(ctx context.Context, stub models.StubRecord, adapter parse.DetailParser) (*detailAttrs, error) {
	resp, err := e.client.Fetch(ctx, stub.DetailURL)
	if err != nil {
		return nil, fmt.Errorf("detail fetch: %w", err)
	}
	pageURL, err := url.Parse(resp.URL)
	if err != nil {
		return nil, fmt.Errorf("detail url: %w", err)
	}

	detail, err := adapter.ParseDetail(pageURL, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("detail parse: %w", err)
	}

	price, currency, free := parse.ParsePrice(detail.PriceText)

	path := ""
	if detail.ThumbnailURL != "" {
		path = e.thumbs.GetOrFetch(ctx, detail.ThumbnailURL, stub.Title, stub.ScrapeDate)
		if path == "" {
			e.metrics.IncThumbnail("missing")
		} else {
			e.metrics.IncThumbnail("stored")
		}
	}

	return &detailAttrs{
		author:        detail.Author,
		price:         price,
		currency:      currency,
		isFree:        free,
		genres:        detail.Genres,
		thumbnailURL:  detail.ThumbnailURL,
		thumbnailPath: path,
	}, nil
}

// EnrichAll enriches stubs with bounded parallelism, preserving stub
// order in the output. Failed items are logged and skipped; one item's
// failure never aborts the batch.
func (e *Enricher) EnrichAll(ctx context.Context, stubs []models.StubRecord, adapter parse.DetailParser) []models.EnrichedRecord {
	results := make([]*models.EnrichedRecord, len(stubs))

	g := new(errgroup.Group)
	g.SetLimit(e.cfg.Parallelism)
	for i, stub := range stubs {
		g.Go(func() error {
			record, err := e.Enrich(ctx, stub, adapter)
			if err != nil {
				slog.Warn("skipping item",
					slog.String("title", stub.Title),
					slog.String("url", stub.DetailURL),
					slog.Any("error", err),
				)
				e.metrics.IncSkipped()
				return nil
			}
			results[i] = record
			e.metrics.IncEnriched()
			return nil
		})
	}
	g.Wait()

	out := make([]models.EnrichedRecord, 0, len(stubs))
	for _, record := range results {
		if record != nil {
			out = append(out, *record)
		}
	}
	return out
}
