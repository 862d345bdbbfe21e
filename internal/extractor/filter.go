package extractor

import (
	"net/url"
	"strings"
)

// hostKey returns the lower-cased authority host (with port) used to compare pages and links
func hostKey(u *url.URL) string {
	return strings.ToLower(u.Host)
}

// IsExternal reports whether link points to a different, non-empty host than source
func IsExternal(source, link *url.URL) bool {
	linkHost := hostKey(link)
	return linkHost != "" && linkHost != hostKey(source)
}

// ExtractDomain extracts the lower-cased hostname from a URL string.
// Relative and host-less URLs yield an empty domain.
func ExtractDomain(urlStr string) (string, error) {
	// Handle protocol-relative URLs
	if strings.HasPrefix(urlStr, "//") {
		urlStr = "https:" + urlStr
	}

	parsed, err := url.Parse(urlStr)
	if err != nil {
		return "", err
	}

	return strings.ToLower(parsed.Hostname()), nil
}

// resolve turns an href into an absolute URL relative to base
func resolve(base *url.URL, href string) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return nil, err
	}
	return base.ResolveReference(ref), nil
}
