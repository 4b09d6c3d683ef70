// Package thumbs caches downloaded thumbnail images on local disk so a
// distinct source URL is fetched at most once, within a run and across
// runs. Entries are never evicted.
package thumbs

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/anim8or/GameGleaner/fetch"
	"github.com/cespare/xxhash/v2"
)

// maxIdentityLen bounds the sanitized identity component so filenames
// stay within filesystem limits.
const maxIdentityLen = 50

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Cache is a content-addressed local store for thumbnails.
type Cache struct {
	dir    string
	client fetch.Client
}

// NewCache builds a Cache rooted at dir, downloading through client.
func NewCache(dir string, client fetch.Client) *Cache {
	return &Cache{dir: dir, client: client}
}

// GetOrFetch returns the local path for the thumbnail at rawURL,
// downloading it only when no cached file exists. A failed download
// returns "" rather than an error; a missing thumbnail is a tolerable
// degradation, not a fatal defect.
func (c *Cache) GetOrFetch(ctx context.Context, rawURL, hint, date string) string {
	if rawURL == "" {
		return ""
	}

	target := filepath.Join(c.dir, c.filename(rawURL, hint, date))
	if _, err := os.Stat(target); err == nil {
		return target
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		slog.Warn("thumbnail dir", slog.String("dir", c.dir), slog.Any("error", err))
		return ""
	}

	resp, err := c.client.Fetch(ctx, rawURL)
	if err != nil {
		slog.Warn("thumbnail download failed",
			slog.String("url", rawURL),
			slog.Any("error", err),
		)
		return ""
	}

	if err := writeAtomic(target, resp.Body); err != nil {
		slog.Warn("thumbnail write failed",
			slog.String("path", target),
			slog.Any("error", err),
		)
		return ""
	}
	return target
}

// filename derives a deterministic name for rawURL. The readable part
// comes from the URL's last path segment when it carries a usable base
// name (stable across runs regardless of scrape date), falling back to
// the scrape date plus the sanitized identity hint. A hash of the full
// URL is always appended: image hosts reuse dimension-style segments
// like 347x500.png across items, so the segment alone does not identify
// the source URL.
func (c *Cache) filename(rawURL, hint, date string) string {
	segment := ""
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		segment = path.Base(u.Path)
		if segment == "." || segment == "/" {
			segment = ""
		}
	}

	base := segment
	ext := ""
	if i := strings.LastIndex(segment, "."); i > 0 {
		base = segment[:i]
		ext = sanitize(segment[i+1:])
	}
	if ext == "" || len(ext) > 5 {
		ext = "img"
	}

	name := truncate(sanitize(base), maxIdentityLen)
	if name == "" || name == "_" {
		name = date + "_" + truncate(sanitize(hint), maxIdentityLen)
	}
	sum := fmt.Sprintf("%08x", uint32(xxhash.Sum64String(rawURL)))
	return name + "-" + sum + "." + ext
}

func sanitize(s string) string {
	return unsafeChars.ReplaceAllString(s, "_")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// writeAtomic writes data to a temp file in the target directory and
// renames it into place, so a concurrent reader never sees a partial
// file.
func writeAtomic(target string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".thumb-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
