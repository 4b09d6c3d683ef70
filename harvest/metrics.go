package harvest

import (
	"github.com/anim8or/GameGleaner/models"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the harvest pipeline.
type Metrics struct {
	PagesTotal      *prometheus.CounterVec
	StubsTotal      *prometheus.CounterVec
	EnrichedTotal   prometheus.Counter
	SkippedTotal    prometheus.Counter
	ThumbnailsTotal *prometheus.CounterVec
	DatasetRows     prometheus.Gauge
}

// NewMetrics constructs the harvest collectors and registers them on reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gleaner_pages_total",
			Help: "Listing pages fetched, by collection.",
		},
		[]string{"listing"},
	)
	stubs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gleaner_stubs_total",
			Help: "Stub records emitted by pagination, by collection.",
		},
		[]string{"listing"},
	)
	enriched := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gleaner_enriched_total",
			Help: "Records successfully enriched from detail pages.",
		},
	)
	skipped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gleaner_skipped_total",
			Help: "Items skipped after detail fetch or parse failure.",
		},
	)
	thumbnails := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gleaner_thumbnails_total",
			Help: "Thumbnail cache resolutions by outcome.",
		},
		[]string{"outcome"},
	)
	rows := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gleaner_dataset_rows",
			Help: "Rows in the merged dataset after the terminal save.",
		},
	)

	reg.MustRegister(pages, stubs, enriched, skipped, thumbnails, rows)

	return &Metrics{
		PagesTotal:      pages,
		StubsTotal:      stubs,
		EnrichedTotal:   enriched,
		SkippedTotal:    skipped,
		ThumbnailsTotal: thumbnails,
		DatasetRows:     rows,
	}
}

// IncPage counts one fetched listing page.
func (m *Metrics) IncPage(listing models.ListingType) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(string(listing)).Inc()
}

// AddStubs counts stub records emitted for a collection.
func (m *Metrics) AddStubs(listing models.ListingType, n int) {
	if m == nil {
		return
	}
	m.StubsTotal.WithLabelValues(string(listing)).Add(float64(n))
}

// IncEnriched counts one successfully enriched record.
func (m *Metrics) IncEnriched() {
	if m == nil {
		return
	}
	m.EnrichedTotal.Inc()
}

// IncSkipped counts one item skipped after a per-item failure.
func (m *Metrics) IncSkipped() {
	if m == nil {
		return
	}
	m.SkippedTotal.Inc()
}

// IncThumbnail counts one thumbnail resolution outcome.
func (m *Metrics) IncThumbnail(outcome string) {
	if m == nil {
		return
	}
	m.ThumbnailsTotal.WithLabelValues(outcome).Inc()
}

// SetDatasetRows records the merged dataset size.
func (m *Metrics) SetDatasetRows(n int) {
	if m == nil {
		return
	}
	m.DatasetRows.Set(float64(n))
}
