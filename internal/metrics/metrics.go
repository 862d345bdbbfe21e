package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/alvmarrod/linkscope/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "linkscope"

// Tracker holds and manages pipeline run metrics. Every counter is kept in
// the run summary and mirrored to a Prometheus registry.
type Tracker struct {
	mu   sync.Mutex
	data storage.RunMetrics

	registry     *prometheus.Registry
	records      *prometheus.CounterVec
	links        *prometheus.CounterVec
	observations prometheus.Counter
	sites        prometheus.Gauge
	enrichments  *prometheus.CounterVec
}

// NewTracker creates a new metrics tracker for runID
func NewTracker(runID string) *Tracker {
	t := &Tracker{
		data: storage.RunMetrics{
			RunID:     runID,
			StartTime: time.Now(),
		},
		registry: prometheus.NewRegistry(),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_records_total",
			Help:      "Archive records processed, by outcome",
		}, []string{"outcome"}),
		links: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "links_extracted_total",
			Help:      "External links extracted, by link kind",
		}, []string{"kind"}),
		observations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_aggregated_total",
			Help:      "Stored link observations read by the aggregation pass",
		}),
		sites: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sites_aggregated",
			Help:      "Distinct sites in the last aggregation",
		}),
		enrichments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "site_enrichments_total",
			Help:      "Site enrichments, by outcome",
		}, []string{"outcome"}),
	}

	t.registry.MustRegister(t.records, t.links, t.observations, t.sites, t.enrichments)
	return t
}

// Registry returns the Prometheus registry holding the run counters
func (t *Tracker) Registry() *prometheus.Registry {
	return t.registry
}

// Handler serves the run counters in the Prometheus exposition format
func (t *Tracker) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// IncrementRecordsRead counts a response record handed to the extractor
func (t *Tracker) IncrementRecordsRead() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.RecordsRead++
	t.records.WithLabelValues("read").Inc()
}

// IncrementRecordsSkipped counts a record without extractable content
func (t *Tracker) IncrementRecordsSkipped() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.RecordsSkipped++
	t.records.WithLabelValues("skipped").Inc()
}

// IncrementRecordsFailed counts a record the extractor could not process
func (t *Tracker) IncrementRecordsFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.RecordsFailed++
	t.records.WithLabelValues("failed").Inc()
}

// AddLinks counts extracted links, homepage of them pointing at a site root
func (t *Tracker) AddLinks(total, homepage int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.LinksExtracted += total
	t.data.HomepageLinks += homepage
	t.links.WithLabelValues("homepage").Add(float64(homepage))
	t.links.WithLabelValues("subsection").Add(float64(total - homepage))
}

// RecordAggregation stores the outcome of an aggregation pass
func (t *Tracker) RecordAggregation(observations, sites, enriched, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.ObservationsRead += observations
	t.data.SitesAggregated = sites
	t.data.SitesEnriched += enriched
	t.data.EnrichmentFailures += failed
	t.observations.Add(float64(observations))
	t.sites.Set(float64(sites))
	t.enrichments.WithLabelValues("enriched").Add(float64(enriched))
	t.enrichments.WithLabelValues("failed").Add(float64(failed))
}

// GetSnapshot returns a copy of current metrics
func (t *Tracker) GetSnapshot() storage.RunMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.data
}

// WriteToFile exports metrics to a JSON file
func (t *Tracker) WriteToFile(path, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data.EndTime = time.Now()
	t.data.TerminationReason = reason

	jsonData, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}

	return nil
}

// LogProgress formats current metrics for the periodic progress log
func (t *Tracker) LogProgress() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return fmt.Sprintf("Records: %d read, %d skipped, %d failed | Links: %d (%d homepage) | Sites: %d aggregated, %d enriched",
		t.data.RecordsRead,
		t.data.RecordsSkipped,
		t.data.RecordsFailed,
		t.data.LinksExtracted,
		t.data.HomepageLinks,
		t.data.SitesAggregated,
		t.data.SitesEnriched,
	)
}
