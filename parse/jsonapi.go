package parse

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// JSONAdapter parses sources that expose their listings as a JSON API
// instead of markup. The schema mirrors the common shape of such feeds:
// a games array plus an optional next_page pointer.
type JSONAdapter struct{}

var _ Adapter = JSONAdapter{}

type jsonListing struct {
	Games []struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	} `json:"games"`
	NextPage string `json:"next_page"`
}

type jsonDetail struct {
	Author   string   `json:"author"`
	Price    string   `json:"price"`
	Genres   []string `json:"genres"`
	CoverURL string   `json:"cover_url"`
}

// ParseListing decodes one page of the JSON listing feed.
func (JSONAdapter) ParseListing(pageURL *url.URL, body []byte) ([]ListingItem, string, error) {
	var page jsonListing
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, "", fmt.Errorf("decode listing feed: %w", err)
	}

	var items []ListingItem
	for _, g := range page.Games {
		title := strings.TrimSpace(g.Title)
		detailURL := resolve(pageURL, strings.TrimSpace(g.URL))
		if title == "" || detailURL == "" {
			continue
		}
		items = append(items, ListingItem{Title: title, DetailURL: detailURL})
	}
	return items, resolve(pageURL, page.NextPage), nil
}

// ParseDetail decodes one item document from the JSON feed.
func (JSONAdapter) ParseDetail(pageURL *url.URL, body []byte) (*Detail, error) {
	var doc jsonDetail
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode detail document: %w", err)
	}

	return &Detail{
		Author:       strings.TrimSpace(doc.Author),
		PriceText:    strings.TrimSpace(doc.Price),
		Genres:       uniqueStrings(doc.Genres),
		ThumbnailURL: resolve(pageURL, strings.TrimSpace(doc.CoverURL)),
	}, nil
}
