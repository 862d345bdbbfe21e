package enrich

import (
	"context"
	"net/http"
	"net/url"
)

// Categorizer asks a website categorization service for the topic of a site
type Categorizer struct {
	client   *http.Client
	endpoint string
	apiKey   string
}

type categoryCandidate struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

type categorizeResponse struct {
	Categories []categoryCandidate `json:"categories"`
}

// NewCategorizer creates a categorizer. An empty apiKey disables it.
func NewCategorizer(client *http.Client, endpoint, apiKey string) *Categorizer {
	return &Categorizer{client: client, endpoint: endpoint, apiKey: apiKey}
}

// Enabled reports whether a credential is configured
func (c *Categorizer) Enabled() bool {
	return c.apiKey != ""
}

// Categorize returns the highest-confidence category of siteURL
func (c *Categorizer) Categorize(ctx context.Context, siteURL string) CategoryResult {
	if !c.Enabled() {
		return CategoryResult{Status: StatusEmpty}
	}

	params := url.Values{}
	params.Add("apiKey", c.apiKey)
	params.Add("url", siteURL)

	var result categorizeResponse
	if err := getJSON(ctx, c.client, c.endpoint+"?"+params.Encode(), &result); err != nil {
		return CategoryResult{Status: StatusFailed, Err: err}
	}

	if len(result.Categories) == 0 {
		return CategoryResult{Status: StatusEmpty}
	}

	best := result.Categories[0]
	for _, candidate := range result.Categories[1:] {
		if candidate.Confidence > best.Confidence {
			best = candidate
		}
	}

	return CategoryResult{Status: StatusFound, Name: best.Name}
}
