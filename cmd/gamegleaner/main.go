package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/anim8or/GameGleaner/config"
	"github.com/anim8or/GameGleaner/fetch"
	"github.com/anim8or/GameGleaner/harvest"
	"github.com/anim8or/GameGleaner/models"
	"github.com/anim8or/GameGleaner/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	defaultCfg := config.DefaultConfig()

	pagesDefault := defaultCfg.MaxPages
	if value, ok, err := config.EnvInt("GLEANER_PAGES"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid GLEANER_PAGES: %v\n", err)
		os.Exit(1)
	} else if ok {
		pagesDefault = value
	}
	parallelDefault := defaultCfg.Parallelism
	if value, ok, err := config.EnvInt("GLEANER_PARALLEL"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid GLEANER_PARALLEL: %v\n", err)
		os.Exit(1)
	} else if ok {
		parallelDefault = value
	}
	dataDirDefault := defaultCfg.DataDir
	if value, ok := config.EnvString("GLEANER_DATA_DIR"); ok {
		dataDirDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("GLEANER_METRICS_ADDR"); ok {
		metricsDefault = value
	}

	maxPages := flag.Int("pages", pagesDefault, "Maximum listing pages per collection")
	parallelism := flag.Int("parallel", parallelDefault, "Number of concurrent detail enrichments")
	delayMs := flag.Int("delay", int(defaultCfg.Delay/time.Millisecond), "Minimum delay between requests (milliseconds)")
	randomDelayMs := flag.Int("random-delay", int(defaultCfg.RandomDelay/time.Millisecond), "Random jitter added to delay (milliseconds)")
	maxRetries := flag.Int("max-retries", defaultCfg.MaxRetries, "Maximum retry attempts per URL")
	retryBackoffMs := flag.Int("retry-backoff", int(defaultCfg.RetryBackoff/time.Millisecond), "Initial retry backoff (milliseconds)")
	retryBackoffMaxMs := flag.Int("retry-backoff-max", int(defaultCfg.RetryBackoffMax/time.Millisecond), "Maximum retry backoff (milliseconds)")
	dataDir := flag.String("data-dir", dataDirDefault, "Directory for the dataset and thumbnails")
	collections := flag.String("collections", "", "Collections to harvest as name=url pairs, comma separated (default: itch.io top sellers and popular)")
	format := flag.String("format", "html", "Source format for configured collections: html or json")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	logger, level := newLogger(*verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	cfg := defaultCfg
	cfg.MaxPages = *maxPages
	cfg.Parallelism = *parallelism
	cfg.Delay = time.Duration(*delayMs) * time.Millisecond
	cfg.RandomDelay = time.Duration(*randomDelayMs) * time.Millisecond
	cfg.MaxRetries = *maxRetries
	cfg.RetryBackoff = time.Duration(*retryBackoffMs) * time.Millisecond
	cfg.RetryBackoffMax = time.Duration(*retryBackoffMaxMs) * time.Millisecond
	cfg.DataDir = *dataDir
	cfg.DatasetFile = filepath.Join(*dataDir, "combined.csv")
	cfg.ThumbnailDir = filepath.Join(*dataDir, "thumbnails")
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose
	if *collections != "" {
		parsed, err := parseCollections(*collections, *format)
		if err != nil {
			slog.Error("invalid collections flag", slog.Any("error", err))
			os.Exit(1)
		}
		cfg.Collections = parsed
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("starting harvest",
		slog.Int("collections", len(cfg.Collections)),
		slog.Int("pages", cfg.MaxPages),
		slog.Int("workers", cfg.Parallelism),
		slog.String("dataset", cfg.DatasetFile),
	)

	registry := prometheus.NewRegistry()
	fetcher, err := fetch.NewFetcher(cfg, fetch.NewMetrics(registry))
	if err != nil {
		slog.Error("initialising fetcher", slog.Any("error", err))
		os.Exit(1)
	}

	harvester, err := harvest.New(cfg, fetcher, store.NewStore(cfg.DatasetFile), harvest.NewMetrics(registry))
	if err != nil {
		slog.Error("initialising harvester", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	result, err := harvester.Run(ctx)
	if err != nil {
		slog.Error("harvest failed", slog.Any("error", err))
		os.Exit(1)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(result, cfg.DatasetFile)

	if result.Failed() {
		os.Exit(1)
	}
}

func parseCollections(raw, format string) ([]config.Collection, error) {
	var out []config.Collection
	for _, pair := range strings.Split(raw, ",") {
		name, baseURL, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || name == "" || baseURL == "" {
			return nil, fmt.Errorf("malformed collection %q, want name=url", pair)
		}
		out = append(out, config.Collection{
			Name:    models.ListingType(name),
			BaseURL: baseURL,
			Format:  strings.ToLower(format),
		})
	}
	return out, nil
}

func printSummary(result *models.HarvestResult, datasetFile string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Harvest complete")
	fmt.Printf("  Collections:   %d (%d failed)\n", len(result.Collections), len(result.FailedCollections))
	if len(result.FailedCollections) > 0 {
		fmt.Printf("  Failed:        %v\n", result.FailedCollections)
	}
	fmt.Printf("  Stubs:         %d\n", result.StubCount)
	fmt.Printf("  Enriched:      %d\n", result.EnrichedCount)
	fmt.Printf("  Skipped:       %d\n", result.SkippedCount)
	fmt.Printf("  Dataset rows:  %d (%d new)\n", result.MergedRows, result.NewRows)
	fmt.Printf("  Duration:      %v\n", result.EndTime.Sub(result.StartTime))
	fmt.Printf("  Output file:   %s\n", datasetFile)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
