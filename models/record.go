// Package models defines data structures for the harvester.
package models

import "time"

// ListingType names the listing collection a record was observed in.
type ListingType string

// Listing collections harvested by default.
const (
	ListingPopular    ListingType = "Popular"
	ListingTopSellers ListingType = "Top Sellers"
)

// StubRecord is the minimal identity extracted from a listing page,
// pending detail enrichment.
type StubRecord struct {
	Title      string      `csv:"title" json:"title"`
	DetailURL  string      `csv:"url" json:"url"`
	Listing    ListingType `csv:"listing_type" json:"listing_type"`
	SourcePage string      `csv:"source_page" json:"source_page"`
	ScrapeDate string      `csv:"scrape_date" json:"scrape_date"`
}

// EnrichedRecord is a StubRecord combined with the attributes harvested
// from the item's detail page. Price is nil when the item is free or the
// price text could not be parsed; Price and Currency are either both set
// or both absent.
type EnrichedRecord struct {
	StubRecord

	Author        string   `csv:"author" json:"author"`
	Price         *float64 `csv:"price" json:"price"`
	Currency      string   `csv:"currency" json:"currency"`
	IsFree        bool     `csv:"is_free" json:"is_free"`
	Genres        []string `csv:"genres" json:"genres"`
	ThumbnailURL  string   `csv:"thumbnail_url" json:"thumbnail_url"`
	ThumbnailPath string   `csv:"thumbnail_path" json:"thumbnail_path"`
}

// Key is the dedup identity: the same item observed in the same listing
// context. ScrapeDate and SourcePage are provenance, not identity.
func (r *EnrichedRecord) Key() string {
	return r.DetailURL + "\x1f" + string(r.Listing)
}

// HarvestResult summarizes one harvester run.
type HarvestResult struct {
	StartTime time.Time
	EndTime   time.Time

	Collections       []string
	FailedCollections []string

	StubCount     int
	EnrichedCount int
	SkippedCount  int
	MergedRows    int
	NewRows       int
}

// Failed reports whether any collection could not be harvested completely.
func (r *HarvestResult) Failed() bool {
	return len(r.FailedCollections) > 0
}
