package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Status is the outcome of a single provider call
type Status int

const (
	// StatusFound means the provider produced a value
	StatusFound Status = iota
	// StatusEmpty means the provider answered but had nothing, or was not configured
	StatusEmpty
	// StatusFailed means the call itself failed
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusEmpty:
		return "empty"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// CountryResult is the outcome of a geolocation lookup. Country is always
// set, to storage.UnknownCountry when nothing was found.
type CountryResult struct {
	Status  Status
	IP      string
	Country string
	Err     error
}

// CategoryResult is the outcome of a categorization call
type CategoryResult struct {
	Status Status
	Name   string
	Err    error
}

// statusError is returned by getJSON for non-2xx answers
type statusError struct {
	Code   int
	Status string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected response: %s", e.Status)
}

// getJSON performs a GET and decodes a 2xx JSON body into dst
func getJSON(ctx context.Context, client *http.Client, reqURL string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &statusError{Code: resp.StatusCode, Status: resp.Status}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
