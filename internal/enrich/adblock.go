package enrich

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

// DefaultKeywords are the fragments that mark a domain as ad-related on their own
var DefaultKeywords = []string{"ad", "ads", "advert", "advertising", "banner", "click", "track", "pixel"}

// Blocklist holds the domain fragments and keywords of the ad-domain heuristic
type Blocklist struct {
	Domains  []string
	Keywords []string
}

// NewBlocklist builds a blocklist from domains plus the default keywords
func NewBlocklist(domains []string) Blocklist {
	return Blocklist{Domains: domains, Keywords: DefaultKeywords}
}

// Matches reports whether domain contains a listed domain or a keyword
func (b Blocklist) Matches(domain string) bool {
	domain = strings.ToLower(domain)
	for _, entry := range b.Domains {
		if entry != "" && strings.Contains(domain, entry) {
			return true
		}
	}
	for _, keyword := range b.Keywords {
		if keyword != "" && strings.Contains(domain, keyword) {
			return true
		}
	}
	return false
}

// ParseBlocklist reads Adblock-style filter rules and returns the domains of
// rules written as ||domain^
func ParseBlocklist(r io.Reader) ([]string, error) {
	var domains []string

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "||") {
			continue
		}
		end := strings.IndexByte(line, '^')
		if end < 0 {
			continue
		}
		if domain := strings.ToLower(line[2:end]); domain != "" {
			domains = append(domains, domain)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read blocklist: %w", err)
	}
	return domains, nil
}

// FetchBlocklist downloads and parses the list at listURL. Failures are
// logged and degrade to a keyword-only blocklist.
func FetchBlocklist(ctx context.Context, client *http.Client, listURL string) Blocklist {
	domains, err := fetchBlocklistDomains(ctx, client, listURL)
	if err != nil {
		logrus.Warnf("Failed to download ad domain list: %v", err)
		return NewBlocklist(nil)
	}

	logrus.Infof("Ad domain list loaded: %d domains", len(domains))
	return NewBlocklist(domains)
}

func fetchBlocklistDomains(ctx context.Context, client *http.Client, listURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{Code: resp.StatusCode, Status: resp.Status}
	}

	return ParseBlocklist(resp.Body)
}
