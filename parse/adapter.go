// Package parse turns raw page bodies into harvest records. The two
// capability interfaces here are the only contract the pipeline has with
// the source document format; any adapter implementing both is a drop-in
// replacement.
package parse

import "net/url"

// ListingItem is one stub parsed from a listing page entry. DetailURL is
// absolute; entries whose URL cannot be resolved are dropped by the
// adapter, never emitted with an empty key.
type ListingItem struct {
	Title     string
	DetailURL string
}

// Detail holds the enrichment attributes parsed from one detail page.
// Missing fields stay at their zero value; absence is not an error.
type Detail struct {
	Author       string
	PriceText    string
	Genres       []string
	ThumbnailURL string
}

// ListingParser extracts stubs and the next-page pointer from one listing
// page. next is empty when the page has no next-page pointer.
type ListingParser interface {
	ParseListing(pageURL *url.URL, body []byte) (items []ListingItem, next string, err error)
}

// DetailParser extracts enrichment attributes from one detail page.
type DetailParser interface {
	ParseDetail(pageURL *url.URL, body []byte) (*Detail, error)
}

// Adapter is a full parsing capability for one source format.
type Adapter interface {
	ListingParser
	DetailParser
}

// resolve absolutizes href against the page URL. Returns "" when href is
// empty or unparseable.
func resolve(pageURL *url.URL, href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := pageURL.ResolveReference(ref)
	if abs.Host == "" {
		return ""
	}
	return abs.String()
}

// uniqueStrings keeps the first occurrence of each value, case-preserved.
func uniqueStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
