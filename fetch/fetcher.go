// Package fetch provides rate-limited, retrying HTTP retrieval for the
// harvest pipeline. A single Fetcher is shared by pagination, detail
// enrichment, and thumbnail downloads so the inter-request delay holds
// across the whole run regardless of caller concurrency.
package fetch

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/anim8or/GameGleaner/config"
	"github.com/gocolly/colly/v2"
)

// Response is the raw result of one successful fetch.
type Response struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Client is the retrieval capability the pipeline depends on.
type Client interface {
	Fetch(ctx context.Context, rawURL string) (*Response, error)
}

// Fetcher retrieves URLs through a colly collector configured with the
// polite-delay limit rule. Calls are serialized; the delay is measured
// from the end of the previous request.
type Fetcher struct {
	cfg       *config.Config
	collector *colly.Collector
	metrics   *Metrics

	mu   sync.Mutex
	last capture
}

type capture struct {
	status int
	body   []byte
	err    error
}

var _ Client = (*Fetcher)(nil)

// NewFetcher builds a Fetcher configured from cfg. Metrics may be nil.
func NewFetcher(cfg *config.Config, metrics *Metrics) (*Fetcher, error) {
	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, err
	}

	f := &Fetcher{
		cfg:       cfg,
		collector: collector,
		metrics:   metrics,
	}

	collector.OnResponse(func(r *colly.Response) {
		f.last.status = r.StatusCode
		f.last.body = r.Body
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			f.last.status = r.StatusCode
		}
		f.last.err = err
	})

	return f, nil
}

// WithTransport swaps the underlying transport. Used by tests.
func (f *Fetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

// Fetch retrieves rawURL, retrying transient failures up to the
// configured bound with exponential backoff. On exhaustion the last
// classified error is returned. Cancellation is observed between
// attempts and during backoff; an in-flight request runs on until the
// collector's request timeout.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	attempts := f.cfg.MaxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if attempt > 1 {
			f.metrics.IncRetries()
			slog.Debug("retrying fetch",
				slog.String("url", rawURL),
				slog.Int("attempt", attempt),
				slog.Any("error", lastErr),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.backoff(attempt - 1)):
			}
		}

		f.last = capture{}
		f.metrics.IncRequest("started")
		start := time.Now()
		visitErr := f.collector.Visit(rawURL)
		f.metrics.ObserveDuration(time.Since(start))

		if visitErr == nil && f.last.err == nil {
			return &Response{
				URL:        rawURL,
				StatusCode: f.last.status,
				Body:       f.last.body,
			}, nil
		}

		err := f.last.err
		if err == nil {
			err = visitErr
		}
		classified := Classify(err, f.last.status)
		f.metrics.IncError(Label(classified))
		lastErr = classified

		if !Retryable(classified) {
			return nil, classified
		}
	}

	return nil, lastErr
}

func (f *Fetcher) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := f.cfg.RetryBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := f.cfg.RetryBackoffMax; max > 0 && delay > max {
		delay = max
	}
	return delay
}
