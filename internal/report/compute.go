package report

import (
	"fmt"
	"sort"

	"github.com/alvmarrod/linkscope/internal/storage"
)

const (
	topDomainsLimit    = 10
	topCategoriesLimit = 5
)

// DomainFrequency is one entry of the most visited sites ranking
type DomainFrequency struct {
	PrimaryLink string `json:"primary_link"`
	Frequency   int    `json:"frequency"`
}

// CategoryCount is one entry of the category ranking
type CategoryCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Summary holds the analytics computed over one run's aggregates
type Summary struct {
	RunID               string            `json:"run_id"`
	Sites               int               `json:"sites_total"`
	TopDomains          []DomainFrequency `json:"top_10_domains"`
	CountryDistribution map[string]int    `json:"country_distribution"`
	AdBasedPercentage   float64           `json:"ad_based_percentage"`
	TopCategories       []CategoryCount   `json:"top_5_categories"`
	CategorizedSites    int               `json:"categorized_sites"`
}

// Compute builds the summary of rows. Rankings break ties by name so the
// result does not depend on row order.
func Compute(runID string, rows []storage.AggregateRow) Summary {
	s := Summary{
		RunID:               runID,
		Sites:               len(rows),
		CountryDistribution: make(map[string]int),
	}

	adBased := 0
	categories := make(map[string]int)
	domains := make([]DomainFrequency, 0, len(rows))

	for _, row := range rows {
		domains = append(domains, DomainFrequency{PrimaryLink: row.PrimaryLink, Frequency: row.Frequency})
		s.CountryDistribution[row.Country]++
		if row.IsAdBased {
			adBased++
		}
		if row.Category != nil {
			categories[*row.Category]++
			s.CategorizedSites++
		}
	}

	sort.Slice(domains, func(i, j int) bool {
		if domains[i].Frequency != domains[j].Frequency {
			return domains[i].Frequency > domains[j].Frequency
		}
		return domains[i].PrimaryLink < domains[j].PrimaryLink
	})
	if len(domains) > topDomainsLimit {
		domains = domains[:topDomainsLimit]
	}
	s.TopDomains = domains

	ranked := make([]CategoryCount, 0, len(categories))
	for name, count := range categories {
		ranked = append(ranked, CategoryCount{Name: name, Count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Name < ranked[j].Name
	})
	if len(ranked) > topCategoriesLimit {
		ranked = ranked[:topCategoriesLimit]
	}
	s.TopCategories = ranked

	if len(rows) > 0 {
		s.AdBasedPercentage = float64(adBased) / float64(len(rows)) * 100
	}

	return s
}

// Flatten turns the summary into a single row of scalar columns:
// rankings become key_index_field, distributions become key_value.
func (s Summary) Flatten() map[string]any {
	flat := map[string]any{
		"run_id":              s.RunID,
		"sites_total":         s.Sites,
		"ad_based_percentage": s.AdBasedPercentage,
		"categorized_sites":   s.CategorizedSites,
	}
	for i, d := range s.TopDomains {
		flat[fmt.Sprintf("top_10_domains_%d_primary_link", i)] = d.PrimaryLink
		flat[fmt.Sprintf("top_10_domains_%d_frequency", i)] = d.Frequency
	}
	for country, count := range s.CountryDistribution {
		flat["country_distribution_"+country] = count
	}
	for _, c := range s.TopCategories {
		flat["top_5_categories_"+c.Name] = c.Count
	}
	return flat
}
