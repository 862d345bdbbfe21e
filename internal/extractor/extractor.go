package extractor

import (
	"fmt"
	"io"
	"net/url"
	"sort"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/alvmarrod/linkscope/internal/archive"
	"github.com/sirupsen/logrus"
)

// Record is a captured page as seen by the extractor
type Record interface {
	Type() string
	TargetURI() string
	Payload() (io.Reader, error)
}

// Stats counts what the extractor has seen so far
type Stats struct {
	Pages   int
	Skipped int
	Failed  int
	Links   int
}

// Extractor finds cross-domain links on captured pages
type Extractor struct {
	mu    sync.Mutex
	stats Stats
}

// New creates an extractor
func New() *Extractor {
	return &Extractor{}
}

// Extract returns the external links of a response record keyed by the page
// URL. Other record types, and records that fail to parse, yield an empty map.
func (e *Extractor) Extract(rec Record) map[string][]string {
	links := make(map[string][]string)

	if rec.Type() != archive.TypeResponse {
		e.count(func(s *Stats) { s.Skipped++ })
		return links
	}

	pageURL := rec.TargetURI()
	found, err := e.extractPage(rec, pageURL)
	if err != nil {
		logrus.WithField("url", pageURL).Errorf("Error processing page: %v", err)
		e.count(func(s *Stats) { s.Failed++ })
		return links
	}

	links[pageURL] = found
	e.count(func(s *Stats) {
		s.Pages++
		s.Links += len(found)
	})
	return links
}

func (e *Extractor) extractPage(rec Record, pageURL string) ([]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid target uri: %w", err)
	}
	if !base.IsAbs() || base.Host == "" {
		return nil, fmt.Errorf("target uri %q is not absolute", pageURL)
	}

	payload, err := rec.Payload()
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	// A single unresolvable href fails the whole page
	seen := make(map[string]bool)
	var resolveErr error
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")

		link, err := resolve(base, href)
		if err != nil {
			resolveErr = fmt.Errorf("failed to resolve href %q: %w", href, err)
			return false
		}

		if IsExternal(base, link) {
			seen[link.String()] = true
		}
		return true
	})
	if resolveErr != nil {
		return nil, resolveErr
	}

	found := make([]string, 0, len(seen))
	for link := range seen {
		found = append(found, link)
	}
	sort.Strings(found)

	return found, nil
}

// Stats returns a snapshot of the extractor counters
func (e *Extractor) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

func (e *Extractor) count(update func(*Stats)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	update(&e.stats)
}
