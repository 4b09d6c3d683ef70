package parse

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ItchAdapter parses itch.io listing and detail markup with CSS
// selectors. Selector fragility stays inside this file; the pipeline only
// sees stubs and details.
type ItchAdapter struct{}

var _ Adapter = ItchAdapter{}

// ParseListing extracts game cells and the next-page link from a listing
// page body.
func (ItchAdapter) ParseListing(pageURL *url.URL, body []byte) ([]ListingItem, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("parse listing page: %w", err)
	}

	var items []ListingItem
	doc.Find(".game_cell").Each(func(_ int, cell *goquery.Selection) {
		link := cell.Find(".game_title a").First()
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		detailURL := resolve(pageURL, href)
		if title == "" || detailURL == "" {
			return
		}
		items = append(items, ListingItem{Title: title, DetailURL: detailURL})
	})

	next := ""
	if href, ok := doc.Find("a.next_page").First().Attr("href"); ok {
		next = resolve(pageURL, href)
	}
	return items, next, nil
}

// ParseDetail extracts author, price text, genre tags, and the thumbnail
// URL from a game detail page body.
func (ItchAdapter) ParseDetail(pageURL *url.URL, body []byte) (*Detail, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse detail page: %w", err)
	}

	detail := &Detail{}

	var genres []string
	doc.Find(".game_info_panel_widget tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		label := strings.TrimSpace(cells.Eq(0).Text())
		value := cells.Eq(1)
		switch label {
		case "Author", "Authors":
			if detail.Author == "" {
				detail.Author = strings.TrimSpace(value.Find("a").First().Text())
				if detail.Author == "" {
					detail.Author = strings.TrimSpace(value.Text())
				}
			}
		case "Genre", "Tags":
			value.Find("a").Each(func(_ int, a *goquery.Selection) {
				genres = append(genres, strings.TrimSpace(a.Text()))
			})
		}
	})
	detail.Genres = uniqueStrings(genres)

	detail.PriceText = strings.TrimSpace(doc.Find(".buy_row .dollars").First().Text())
	if detail.PriceText == "" {
		if content, ok := doc.Find(`[itemprop="price"]`).First().Attr("content"); ok {
			detail.PriceText = strings.TrimSpace(content)
		}
	}

	if img, ok := doc.Find(`meta[property="og:image"]`).First().Attr("content"); ok {
		detail.ThumbnailURL = resolve(pageURL, strings.TrimSpace(img))
	}

	return detail, nil
}
