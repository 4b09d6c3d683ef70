// Package config holds the immutable run configuration for the harvester.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/anim8or/GameGleaner/models"
)

// Collection is one listing collection to harvest.
type Collection struct {
	Name    models.ListingType
	BaseURL string
	Format  string // html or json
}

// Config holds harvester configuration. It is built once at startup and
// never mutated afterwards.
type Config struct {
	Collections     []Collection
	MaxPages        int
	Parallelism     int
	Delay           time.Duration
	RandomDelay     time.Duration
	Timeout         time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
	DedupeMaxSize   int

	DataDir      string
	DatasetFile  string
	ThumbnailDir string

	UserAgent   string
	MetricsAddr string
	Verbose     bool
}

// DefaultConfig returns conservative defaults for the itch.io target.
func DefaultConfig() *Config {
	return &Config{
		Collections: []Collection{
			{Name: models.ListingTopSellers, BaseURL: "https://itch.io/games/top-sellers", Format: "html"},
			{Name: models.ListingPopular, BaseURL: "https://itch.io/games/popular", Format: "html"},
		},
		MaxPages:        2,
		Parallelism:     4,
		Delay:           1 * time.Second,
		RandomDelay:     500 * time.Millisecond,
		Timeout:         15 * time.Second,
		MaxRetries:      2,
		RetryBackoff:    500 * time.Millisecond,
		RetryBackoffMax: 8 * time.Second,
		DedupeMaxSize:   100_000,
		DataDir:         "data",
		DatasetFile:     filepath.Join("data", "combined.csv"),
		ThumbnailDir:    filepath.Join("data", "thumbnails"),
		UserAgent:       "GameGleaner/1.0 (+https://github.com/anim8or/GameGleaner)",
		MetricsAddr:     "",
		Verbose:         false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if len(c.Collections) == 0 {
		return fmt.Errorf("at least one listing collection is required")
	}
	seen := make(map[models.ListingType]struct{}, len(c.Collections))
	for _, coll := range c.Collections {
		if coll.Name == "" {
			return fmt.Errorf("collection name cannot be empty")
		}
		if _, dup := seen[coll.Name]; dup {
			return fmt.Errorf("duplicate collection %q", coll.Name)
		}
		seen[coll.Name] = struct{}{}

		parsed, err := url.Parse(coll.BaseURL)
		if err != nil {
			return fmt.Errorf("collection %q: invalid base URL: %w", coll.Name, err)
		}
		if parsed.Host == "" {
			return fmt.Errorf("collection %q: base URL must include a host", coll.Name)
		}
		if coll.Format != "html" && coll.Format != "json" {
			return fmt.Errorf("collection %q: format must be html or json", coll.Name)
		}
	}

	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.DatasetFile == "" {
		return fmt.Errorf("dataset file cannot be empty")
	}
	if c.ThumbnailDir == "" {
		return fmt.Errorf("thumbnail directory cannot be empty")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	return nil
}

// EnvString reads a string override from the environment.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// EnvInt reads an integer override from the environment.
func EnvInt(key string) (int, bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return parsed, true, nil
}
