package harvest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anim8or/GameGleaner/config"
	"github.com/anim8or/GameGleaner/fetch"
	"github.com/anim8or/GameGleaner/models"
)

// fakeClient serves canned bodies keyed by URL, counting calls.
type fakeClient struct {
	mu    sync.Mutex
	pages map[string]string
	errs  map[string]error
	calls map[string]int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		pages: make(map[string]string),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (f *fakeClient) Fetch(_ context.Context, rawURL string) (*fetch.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[rawURL]++
	if err, ok := f.errs[rawURL]; ok {
		return nil, err
	}
	body, ok := f.pages[rawURL]
	if !ok {
		return nil, fetch.ErrHTTPStatus{Code: 404, Err: fmt.Errorf("no page for %s", rawURL)}
	}
	return &fetch.Response{URL: rawURL, StatusCode: 200, Body: []byte(body)}, nil
}

func (f *fakeClient) callCount(rawURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[rawURL]
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Collections = []config.Collection{
		{Name: models.ListingPopular, BaseURL: "http://market.test/games/popular", Format: "html"},
	}
	cfg.MaxPages = 10
	cfg.Parallelism = 2
	cfg.Delay = 0
	cfg.RandomDelay = 0
	cfg.MaxRetries = 0
	cfg.RetryBackoff = time.Millisecond
	cfg.DataDir = dir
	cfg.DatasetFile = filepath.Join(dir, "combined.csv")
	cfg.ThumbnailDir = filepath.Join(dir, "thumbnails")
	return cfg
}

type fixtureGame struct {
	title string
	url   string
}

func listingPage(games []fixtureGame, next string) string {
	var b strings.Builder
	b.WriteString(`<html><body>`)
	for _, g := range games {
		fmt.Fprintf(&b, `<div class="game_cell"><div class="game_title"><a href="%s">%s</a></div></div>`, g.url, g.title)
	}
	if next != "" {
		fmt.Fprintf(&b, `<a class="next_page" href="%s">Next</a>`, next)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

func detailPage(author, price, thumbnail string, genres ...string) string {
	var b strings.Builder
	b.WriteString(`<html><head>`)
	if thumbnail != "" {
		fmt.Fprintf(&b, `<meta property="og:image" content="%s"/>`, thumbnail)
	}
	b.WriteString(`</head><body>`)
	if price != "" {
		fmt.Fprintf(&b, `<div class="buy_row"><span class="dollars">%s</span></div>`, price)
	}
	b.WriteString(`<table class="game_info_panel_widget">`)
	if author != "" {
		fmt.Fprintf(&b, `<tr><td>Author</td><td><a href="/dev">%s</a></td></tr>`, author)
	}
	if len(genres) > 0 {
		b.WriteString(`<tr><td>Genre</td><td>`)
		for _, g := range genres {
			fmt.Fprintf(&b, `<a href="/g">%s</a>`, g)
		}
		b.WriteString(`</td></tr>`)
	}
	b.WriteString(`</table></body></html>`)
	return b.String()
}
