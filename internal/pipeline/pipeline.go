package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/alvmarrod/linkscope/internal/aggregate"
	"github.com/alvmarrod/linkscope/internal/archive"
	"github.com/alvmarrod/linkscope/internal/config"
	"github.com/alvmarrod/linkscope/internal/enrich"
	"github.com/alvmarrod/linkscope/internal/extractor"
	"github.com/alvmarrod/linkscope/internal/metrics"
	"github.com/alvmarrod/linkscope/internal/report"
	"github.com/alvmarrod/linkscope/internal/site"
	"github.com/alvmarrod/linkscope/internal/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Pipeline runs extraction, aggregation and the metrics export against one store
type Pipeline struct {
	cfg       *config.Config
	store     *storage.Storage
	tracker   *metrics.Tracker
	client    *http.Client
	extractor *extractor.Extractor
	engine    *aggregate.Engine
	reporter  *report.Writer
	runID     string
}

// Option customizes a pipeline
type Option func(*options)

type options struct {
	resolver enrich.Resolver
	client   *http.Client
	runID    string
}

// WithResolver replaces the system DNS resolver used for geolocation
func WithResolver(r enrich.Resolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithHTTPClient replaces the HTTP client shared by the enrichment providers
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// WithRunID fixes the run identifier instead of generating one
func WithRunID(id string) Option {
	return func(o *options) { o.runID = id }
}

// NewRunID returns a fresh run identifier
func NewRunID() string {
	return uuid.NewString()
}

// New wires the pipeline components from cfg
func New(cfg *config.Config, store *storage.Storage, tracker *metrics.Tracker, opts ...Option) (*Pipeline, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.client == nil {
		o.client = &http.Client{Timeout: cfg.RequestTimeout()}
	}
	if o.runID == "" {
		o.runID = tracker.GetSnapshot().RunID
	}
	if o.runID == "" {
		o.runID = NewRunID()
	}

	reporter, err := report.NewWriter(cfg.ReportDir, cfg.ReportPartitions, cfg.ReportFormats)
	if err != nil {
		return nil, fmt.Errorf("failed to configure report writer: %w", err)
	}

	store.SetBatchSize(cfg.BatchSize)

	service := enrich.NewService(
		enrich.NewGeolocator(o.client, cfg.GeoEndpoint, o.resolver),
		enrich.NewCategorizer(o.client, cfg.CategorizeEndpoint, cfg.CategorizeAPIKey),
	)

	return &Pipeline{
		cfg:       cfg,
		store:     store,
		tracker:   tracker,
		client:    o.client,
		extractor: extractor.New(),
		engine:    aggregate.NewEngine(service, cfg.EnrichWorkers),
		reporter:  reporter,
		runID:     o.runID,
	}, nil
}

// RunID returns the identifier the aggregates of this pipeline are stored under
func (p *Pipeline) RunID() string {
	return p.runID
}

// Run executes extraction, aggregation and the metrics export in order
func (p *Pipeline) Run(ctx context.Context) error {
	logrus.Infof("Starting run %s", p.runID)

	if err := p.Extract(ctx); err != nil {
		return err
	}
	if _, err := p.Aggregate(ctx); err != nil {
		return err
	}
	if _, err := p.Report(ctx, p.runID); err != nil {
		return err
	}

	logrus.Infof("Run %s complete", p.runID)
	return nil
}

// Extract walks the archive directory and stores every external link found
func (p *Pipeline) Extract(ctx context.Context) error {
	if err := p.cfg.RequireArchiveDir(); err != nil {
		return err
	}

	stopProgress := p.startProgress()
	defer stopProgress()

	batch := make([]storage.LinkObservation, 0, p.cfg.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.store.InsertLinks(ctx, batch); err != nil {
			return fmt.Errorf("failed to store links: %w", err)
		}
		batch = batch[:0]
		return nil
	}

	err := archive.Walk(ctx, p.cfg.ArchiveDir, func(rec *archive.Record) error {
		pages := p.extractor.Extract(rec)

		if rec.Type() != archive.TypeResponse {
			p.tracker.IncrementRecordsSkipped()
			return nil
		}
		if len(pages) == 0 {
			p.tracker.IncrementRecordsFailed()
			return nil
		}
		p.tracker.IncrementRecordsRead()

		total, homepage := 0, 0
		for _, links := range pages {
			for _, link := range links {
				obs := storage.LinkObservation{URL: link, IsHomepage: site.IsHomepage(link)}
				if obs.IsHomepage {
					homepage++
				}
				total++
				batch = append(batch, obs)
			}
		}
		p.tracker.AddLinks(total, homepage)

		if len(batch) >= p.cfg.BatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("link extraction failed: %w", err)
	}

	if err := flush(); err != nil {
		return err
	}

	stats := p.extractor.Stats()
	logrus.Infof("Extraction complete: %d pages, %d skipped, %d failed, %d links", stats.Pages, stats.Skipped, stats.Failed, stats.Links)
	return nil
}

// Aggregate folds every stored observation into per-site aggregates,
// enriches them and stores them under the run ID
func (p *Pipeline) Aggregate(ctx context.Context) (map[string]storage.SiteAggregate, error) {
	blocklist := enrich.FetchBlocklist(ctx, p.client, p.cfg.BlocklistURL)

	sites, err := p.engine.Aggregate(ctx, p.store, blocklist)
	if err != nil {
		return nil, fmt.Errorf("aggregation failed: %w", err)
	}

	stats := p.engine.Stats()
	p.tracker.RecordAggregation(stats.Observations, stats.Sites, stats.Enriched, stats.Failed)
	logrus.WithFields(logrus.Fields{
		"run":      p.runID,
		"sites":    stats.Sites,
		"enriched": stats.Enriched,
		"failed":   stats.Failed,
	}).Info("Aggregation complete")

	if err := p.engine.Table().Flush(ctx, p.store, p.runID); err != nil {
		return nil, err
	}

	return sites, nil
}

// Report computes the summary of runID, or of the latest run when runID is
// empty, and writes it to the report directory
func (p *Pipeline) Report(ctx context.Context, runID string) ([]string, error) {
	if runID == "" {
		latest, err := p.store.LatestRunID(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to find latest run: %w", err)
		}
		if latest == "" {
			return nil, fmt.Errorf("no aggregated runs to report")
		}
		runID = latest
	}

	rows, err := p.store.FetchRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch aggregates of run %s: %w", runID, err)
	}

	summary := report.Compute(runID, rows)
	paths, err := p.reporter.Write(summary)
	if err != nil {
		return nil, fmt.Errorf("failed to write metrics report: %w", err)
	}
	return paths, nil
}

// startProgress logs tracker progress periodically until the returned
// function is called
func (p *Pipeline) startProgress() func() {
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(p.cfg.ProgressInterval())
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				logrus.Info(p.tracker.LogProgress())
			case <-stop:
				return
			}
		}
	}()

	return func() {
		close(stop)
		<-done
	}
}
