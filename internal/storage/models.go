package storage

import "time"

// UnknownCountry is the country of a site that could not be geolocated
const UnknownCountry = "Unknown"

// LinkObservation is one external link discovered on one captured page
type LinkObservation struct {
	URL        string
	IsHomepage bool
}

// SiteAggregate is the per-site rollup built by the aggregation engine
type SiteAggregate struct {
	Frequency   int
	Subsections map[string]int
	Country     string
	Category    *string
	IsAd        bool
}

// NewSiteAggregate returns an aggregate holding the defaults of a site that
// has not been enriched yet
func NewSiteAggregate() *SiteAggregate {
	return &SiteAggregate{
		Subsections: make(map[string]int),
		Country:     UnknownCountry,
	}
}

// AggregateRow is a persisted aggregate as read back from the store
type AggregateRow struct {
	RunID       string
	PrimaryLink string
	Frequency   int
	Subsections map[string]int
	Country     string
	Category    *string
	IsAdBased   bool
	CreatedAt   time.Time
}

// RunMetrics tracks pipeline statistics for export on exit
type RunMetrics struct {
	RunID              string    `json:"run_id"`
	StartTime          time.Time `json:"start_time"`
	EndTime            time.Time `json:"end_time"`
	RecordsRead        int       `json:"records_read"`
	RecordsSkipped     int       `json:"records_skipped"`
	RecordsFailed      int       `json:"records_failed"`
	LinksExtracted     int       `json:"links_extracted"`
	HomepageLinks      int       `json:"homepage_links"`
	ObservationsRead   int       `json:"observations_read"`
	SitesAggregated    int       `json:"sites_aggregated"`
	SitesEnriched      int       `json:"sites_enriched"`
	EnrichmentFailures int       `json:"enrichment_failures"`
	TerminationReason  string    `json:"termination_reason"`
}
