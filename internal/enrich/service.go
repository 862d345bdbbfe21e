package enrich

import (
	"context"
	"fmt"

	"github.com/alvmarrod/linkscope/internal/site"
	"github.com/sirupsen/logrus"
)

// Locator geolocates a host
type Locator interface {
	Locate(ctx context.Context, host string) CountryResult
}

// SiteCategorizer categorizes a site by its primary link
type SiteCategorizer interface {
	Categorize(ctx context.Context, siteURL string) CategoryResult
}

// Enrichment holds the site-level signals gathered for one primary link
type Enrichment struct {
	Country  string
	Category *string
	IsAd     bool
}

// Service combines the providers into the per-site enrichment step
type Service struct {
	locator     Locator
	categorizer SiteCategorizer
}

// NewService creates the enrichment service
func NewService(locator Locator, categorizer SiteCategorizer) *Service {
	return &Service{locator: locator, categorizer: categorizer}
}

// Enrich geolocates and categorizes a site. The ad heuristic is consulted
// only when no category was found. Provider failures degrade to defaults;
// an error is returned only for an unusable primary link or a done context.
func (s *Service) Enrich(ctx context.Context, primaryLink string, blocklist Blocklist) (Enrichment, error) {
	host, err := site.Host(primaryLink)
	if err != nil {
		return Enrichment{}, err
	}

	country := s.locator.Locate(ctx, host)
	if country.Status == StatusFailed {
		logrus.Debugf("Geolocation failed for %s: %v", host, country.Err)
	}

	category := s.categorizer.Categorize(ctx, primaryLink)
	if category.Status == StatusFailed {
		logrus.Debugf("Categorization failed for %s: %v", primaryLink, category.Err)
	}

	if err := ctx.Err(); err != nil {
		return Enrichment{}, fmt.Errorf("enrichment of %s interrupted: %w", primaryLink, err)
	}

	result := Enrichment{Country: country.Country}
	if category.Status == StatusFound {
		name := category.Name
		result.Category = &name
	} else {
		result.IsAd = blocklist.Matches(host)
	}

	return result, nil
}
