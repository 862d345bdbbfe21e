package capture

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/alvmarrod/linkscope/internal/archive"
	"github.com/alvmarrod/linkscope/internal/extractor"
	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"
)

// Options configures a capture run
type Options struct {
	Dir             string
	Workers         int
	RequestTimeout  time.Duration
	UserAgent       string
	MaxDepth        int // 1 captures the seeds only
	MaxHostsPerRoot int
}

// Stats summarizes a capture run
type Stats struct {
	Path   string
	Pages  int
	Failed int
}

// Capturer fetches pages with colly and stores every response as a WARC
// response record
type Capturer struct {
	opts    Options
	limiter *HostLimiter
	now     func() time.Time

	mu     sync.Mutex
	writer *archive.Writer
	stats  Stats
}

// New creates a capturer
func New(opts Options) *Capturer {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxDepth < 1 {
		opts.MaxDepth = 1
	}
	return &Capturer{
		opts:    opts,
		limiter: NewHostLimiter(opts.MaxHostsPerRoot),
		now:     time.Now,
	}
}

// setupColly configures the collector with callbacks
func (c *Capturer) setupColly(ctx context.Context) (*colly.Collector, error) {
	collector := colly.NewCollector(
		colly.Async(true),
		colly.MaxDepth(c.opts.MaxDepth),
	)
	if c.opts.UserAgent != "" {
		collector.UserAgent = c.opts.UserAgent
	}
	if c.opts.RequestTimeout > 0 {
		collector.SetRequestTimeout(c.opts.RequestTimeout)
	}

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: c.opts.Workers,
	}); err != nil {
		return nil, fmt.Errorf("failed to set capture limits: %w", err)
	}

	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})

	// Follow external links while depth allows
	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		if e.Request.Depth >= c.opts.MaxDepth {
			return
		}

		link, err := url.Parse(e.Request.AbsoluteURL(e.Attr("href")))
		if err != nil || (link.Scheme != "http" && link.Scheme != "https") {
			return
		}
		if !extractor.IsExternal(e.Request.URL, link) {
			return
		}

		domain, err := extractor.ExtractDomain(link.String())
		if err != nil || domain == "" {
			return
		}
		if !c.limiter.Add(RootDomain(domain), strings.ToLower(link.Host)) {
			logrus.Debugf("Host limit reached for %s, skipping %s", RootDomain(domain), link)
			return
		}

		if err := e.Request.Visit(link.String()); err != nil {
			logrus.Debugf("Not following %s: %v", link, err)
		}
	})

	collector.OnResponse(func(r *colly.Response) {
		pageURL := r.Request.URL.String()
		var header http.Header
		if r.Headers != nil {
			header = *r.Headers
		}

		rec := archive.NewResponseRecord(pageURL, r.StatusCode, header, r.Body)
		if err := c.write(rec); err != nil {
			logrus.WithField("url", pageURL).Errorf("Failed to store capture: %v", err)
			c.count(func(s *Stats) { s.Failed++ })
			return
		}

		domain, _ := extractor.ExtractDomain(pageURL)
		logrus.Infof("Captured %s (depth=%d, status=%d, %d bytes)", domain, r.Request.Depth, r.StatusCode, len(r.Body))
		c.count(func(s *Stats) { s.Pages++ })
	})

	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.Request != nil {
			logrus.Errorf("Capture failed for %s: %v (status: %d)", r.Request.URL, err, r.StatusCode)
		} else {
			logrus.Errorf("Capture failed with nil response: %v", err)
		}
		c.count(func(s *Stats) { s.Failed++ })
	})

	return collector, nil
}

// Run captures seeds (and linked pages up to MaxDepth) into a new
// capture-<timestamp>.warc.gz file in the capture directory
func (c *Capturer) Run(ctx context.Context, seeds []string) (Stats, error) {
	if err := os.MkdirAll(c.opts.Dir, 0755); err != nil {
		return Stats{}, fmt.Errorf("failed to create capture directory: %w", err)
	}

	path := filepath.Join(c.opts.Dir, fmt.Sprintf("capture-%s.warc.gz", c.now().UTC().Format("20060102T150405")))
	file, err := os.Create(path)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to create capture file: %w", err)
	}

	c.mu.Lock()
	c.writer = archive.NewWriter(file)
	c.stats = Stats{Path: path}
	c.mu.Unlock()

	collector, err := c.setupColly(ctx)
	if err != nil {
		file.Close()
		os.Remove(path)
		return Stats{}, err
	}

	logrus.Infof("Capturing %d seeds with %d workers into %s", len(seeds), c.opts.Workers, path)
	for _, seed := range seeds {
		if u, err := url.Parse(seed); err == nil && u.Hostname() != "" {
			c.limiter.Add(RootDomain(strings.ToLower(u.Hostname())), strings.ToLower(u.Host))
		}
		if err := collector.Visit(seed); err != nil {
			logrus.Warnf("Visit failed for %s: %v", seed, err)
			c.count(func(s *Stats) { s.Failed++ })
		}
	}
	collector.Wait()

	if err := file.Close(); err != nil {
		return c.Stats(), fmt.Errorf("failed to close capture file: %w", err)
	}

	stats := c.Stats()
	if stats.Pages == 0 {
		os.Remove(path)
		stats.Path = ""
	}
	logrus.Infof("Capture complete: %d pages stored, %d failed", stats.Pages, stats.Failed)

	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("capture interrupted: %w", err)
	}
	return stats, nil
}

func (c *Capturer) write(rec *archive.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writer.WriteRecord(rec)
}

func (c *Capturer) count(update func(*Stats)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	update(&c.stats)
}

// Stats returns the counters of the current or last run
func (c *Capturer) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
