package aggregate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alvmarrod/linkscope/internal/enrich"
	"github.com/alvmarrod/linkscope/internal/storage"
	"github.com/sirupsen/logrus"
)

// AggregateWriter persists one run's aggregates; *storage.Storage satisfies it
type AggregateWriter interface {
	InsertAggregated(ctx context.Context, runID string, data map[string]storage.SiteAggregate) error
}

// SiteTable holds per-site aggregates in memory while a run is folded.
// Missing sites are created with defaults on first touch.
type SiteTable struct {
	sites map[string]*storage.SiteAggregate
	order []string // primary links in first-seen order
	mu    sync.RWMutex
}

// NewSiteTable creates an empty site table
func NewSiteTable() *SiteTable {
	return &SiteTable{
		sites: make(map[string]*storage.SiteAggregate),
	}
}

// getOrCreate must be called with mu held
func (st *SiteTable) getOrCreate(primaryLink string) (*storage.SiteAggregate, bool) {
	if agg, exists := st.sites[primaryLink]; exists {
		return agg, false
	}

	agg := storage.NewSiteAggregate()
	st.sites[primaryLink] = agg
	st.order = append(st.order, primaryLink)
	return agg, true
}

// Register makes sure primaryLink has an entry. It reports whether the
// entry was created by this call.
func (st *SiteTable) Register(primaryLink string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	_, created := st.getOrCreate(primaryLink)
	return created
}

// Observe counts one visit of subsection on primaryLink
func (st *SiteTable) Observe(primaryLink, subsection string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	agg, _ := st.getOrCreate(primaryLink)
	agg.Frequency++
	if subsection != "" {
		agg.Subsections[subsection]++
	}
}

// Apply overwrites the enrichment fields of primaryLink
func (st *SiteTable) Apply(primaryLink string, e enrich.Enrichment) {
	st.mu.Lock()
	defer st.mu.Unlock()

	agg, _ := st.getOrCreate(primaryLink)
	agg.Country = e.Country
	agg.Category = e.Category
	agg.IsAd = e.IsAd
}

// Get returns a copy of the aggregate of primaryLink, nil when absent
func (st *SiteTable) Get(primaryLink string) *storage.SiteAggregate {
	st.mu.RLock()
	defer st.mu.RUnlock()

	agg, exists := st.sites[primaryLink]
	if !exists {
		return nil
	}
	aggCopy := copyAggregate(agg)
	return &aggCopy
}

// Len returns the number of sites in the table
func (st *SiteTable) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()

	return len(st.sites)
}

// Keys returns the primary links in first-seen order
func (st *SiteTable) Keys() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()

	return append([]string(nil), st.order...)
}

// Snapshot returns an independent copy of every aggregate
func (st *SiteTable) Snapshot() map[string]storage.SiteAggregate {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := make(map[string]storage.SiteAggregate, len(st.sites))
	for key, agg := range st.sites {
		out[key] = copyAggregate(agg)
	}
	return out
}

// Flush writes every aggregate to the store under runID
func (st *SiteTable) Flush(ctx context.Context, store AggregateWriter, runID string) error {
	startTime := time.Now()
	logrus.Info("Starting flush of site aggregates to database...")

	snapshot := st.Snapshot()
	if err := store.InsertAggregated(ctx, runID, snapshot); err != nil {
		return fmt.Errorf("failed to flush site aggregates: %w", err)
	}

	logrus.Infof("Flush complete: %d sites written in %v", len(snapshot), time.Since(startTime))
	return nil
}

func copyAggregate(agg *storage.SiteAggregate) storage.SiteAggregate {
	aggCopy := *agg
	aggCopy.Subsections = make(map[string]int, len(agg.Subsections))
	for path, count := range agg.Subsections {
		aggCopy.Subsections[path] = count
	}
	if agg.Category != nil {
		category := *agg.Category
		aggCopy.Category = &category
	}
	return aggCopy
}
