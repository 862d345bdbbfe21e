package aggregate

import (
	"context"
	"fmt"
	"sync"

	"github.com/alvmarrod/linkscope/internal/enrich"
	"github.com/alvmarrod/linkscope/internal/site"
	"github.com/alvmarrod/linkscope/internal/storage"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// LinkSource iterates over every stored link observation
type LinkSource interface {
	EachLink(ctx context.Context, fn func(storage.LinkObservation) error) error
}

// Enricher gathers the site-level signals of one primary link
type Enricher interface {
	Enrich(ctx context.Context, primaryLink string, blocklist enrich.Blocklist) (enrich.Enrichment, error)
}

// Stats counts what the last Aggregate call did
type Stats struct {
	Observations int
	Skipped      int
	Sites        int
	Enriched     int
	Failed       int
}

// Engine folds link observations into per-site aggregates
type Engine struct {
	enricher Enricher
	workers  int

	mu    sync.Mutex
	stats Stats
	table *SiteTable
}

// NewEngine creates an engine enriching on at most workers goroutines
func NewEngine(enricher Enricher, workers int) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{enricher: enricher, workers: workers}
}

// Aggregate reads every observation from src and returns one aggregate per
// primary link. Homepage sites are enriched once each, using blocklist for
// the ad heuristic. Only store iteration errors and cancellation are fatal.
func (e *Engine) Aggregate(ctx context.Context, src LinkSource, blocklist enrich.Blocklist) (map[string]storage.SiteAggregate, error) {
	table := NewSiteTable()
	var stats Stats
	var queue []string
	queued := make(map[string]bool)

	err := src.EachLink(ctx, func(obs storage.LinkObservation) error {
		stats.Observations++

		primary, subsection, err := site.Split(obs.URL)
		if err != nil {
			logrus.WithField("url", obs.URL).Warnf("Skipping observation: %v", err)
			stats.Skipped++
			return nil
		}

		if obs.IsHomepage {
			table.Register(primary)
			if !queued[primary] {
				queued[primary] = true
				queue = append(queue, primary)
			}
			return nil
		}

		table.Observe(primary, subsection)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read link observations: %w", err)
	}

	logrus.Infof("Folded %d observations into %d sites, enriching %d homepage sites with %d workers",
		stats.Observations, table.Len(), len(queue), e.workers)

	enriched, failed, err := e.enrichAll(ctx, table, queue, blocklist)
	if err != nil {
		return nil, err
	}

	stats.Sites = table.Len()
	stats.Enriched = enriched
	stats.Failed = failed

	e.mu.Lock()
	e.stats = stats
	e.table = table
	e.mu.Unlock()

	return table.Snapshot(), nil
}

// enrichAll runs the enricher on the queued sites and applies the results
// in queue order
func (e *Engine) enrichAll(ctx context.Context, table *SiteTable, queue []string, blocklist enrich.Blocklist) (int, int, error) {
	type outcome struct {
		result enrich.Enrichment
		err    error
	}
	results := make([]outcome, len(queue))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, primary := range queue {
		i, primary := i, primary
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i].err = err
				return nil
			}
			results[i].result, results[i].err = e.enricher.Enrich(gctx, primary, blocklist)
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return 0, 0, fmt.Errorf("enrichment interrupted: %w", err)
	}

	enriched, failed := 0, 0
	for i, primary := range queue {
		if results[i].err != nil {
			logrus.WithField("site", primary).Errorf("Error enriching site: %v", results[i].err)
			failed++
			continue
		}
		table.Apply(primary, results[i].result)
		enriched++
	}

	return enriched, failed, nil
}

// Stats returns the counters of the last Aggregate call
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Table returns the site table of the last Aggregate call, nil before the
// first one
func (e *Engine) Table() *SiteTable {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.table
}
