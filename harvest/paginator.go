package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/anim8or/GameGleaner/config"
	"github.com/anim8or/GameGleaner/fetch"
	"github.com/anim8or/GameGleaner/models"
	"github.com/anim8or/GameGleaner/parse"
)

// Paginator walks one listing collection page by page, emitting stub
// records until the source runs out of pages or the configured bound is
// reached.
type Paginator struct {
	cfg     *config.Config
	client  fetch.Client
	metrics *Metrics
}

// NewPaginator builds a Paginator fetching through client.
func NewPaginator(cfg *config.Config, client fetch.Client, metrics *Metrics) *Paginator {
	return &Paginator{cfg: cfg, client: client, metrics: metrics}
}

// Paginate harvests stubs from coll. Page 1 is the collection base URL
// with a page query parameter; later pages follow the adapter's
// next-page pointer. A fetch failure aborts the collection but the stubs
// gathered so far are returned alongside the error, so partial progress
// still flows downstream. Termination without error happens when the
// adapter reports no next page, a page yields zero stubs, or MaxPages is
// reached.
func (p *Paginator) Paginate(ctx context.Context, coll config.Collection, adapter parse.ListingParser, scrapeDate string) ([]models.StubRecord, error) {
	pageURL, err := withPage(coll.BaseURL, 1)
	if err != nil {
		return nil, fmt.Errorf("collection %s: %w", coll.Name, err)
	}

	slug := slugify(string(coll.Name))
	var stubs []models.StubRecord

	for page := 1; page <= p.cfg.MaxPages; page++ {
		resp, err := p.client.Fetch(ctx, pageURL)
		if err != nil {
			return stubs, fmt.Errorf("collection %s page %d: %w", coll.Name, page, err)
		}
		p.metrics.IncPage(coll.Name)

		base, err := url.Parse(resp.URL)
		if err != nil {
			return stubs, fmt.Errorf("collection %s page %d: %w", coll.Name, page, err)
		}

		items, next, err := adapter.ParseListing(base, resp.Body)
		if err != nil {
			// Malformed listing markup degrades to an empty page.
			slog.Warn("listing parse failed",
				slog.String("listing", string(coll.Name)),
				slog.Int("page", page),
				slog.Any("error", err),
			)
			break
		}
		if len(items) == 0 {
			break
		}

		sourcePage := fmt.Sprintf("%s_page_%d", slug, page)
		for _, item := range items {
			stubs = append(stubs, models.StubRecord{
				Title:      item.Title,
				DetailURL:  item.DetailURL,
				Listing:    coll.Name,
				SourcePage: sourcePage,
				ScrapeDate: scrapeDate,
			})
		}
		p.metrics.AddStubs(coll.Name, len(items))

		if next == "" {
			break
		}
		pageURL = next
	}

	return stubs, nil
}

var slugChars = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(name string) string {
	slug := slugChars.ReplaceAllString(strings.ToLower(name), "_")
	return strings.Trim(slug, "_")
}

func withPage(base string, page int) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("page", fmt.Sprint(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
