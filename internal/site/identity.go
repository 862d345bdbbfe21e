package site

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidURL is returned when a link cannot be parsed into scheme, host and path
var ErrInvalidURL = errors.New("invalid url")

func parse(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	return u, nil
}

// PrimaryLink returns the scheme://host key a link is grouped under
func PrimaryLink(raw string) (string, error) {
	u, err := parse(raw)
	if err != nil {
		return "", err
	}
	return u.Scheme + "://" + u.Host, nil
}

// Subsection returns the path of a link, possibly empty
func Subsection(raw string) (string, error) {
	u, err := parse(raw)
	if err != nil {
		return "", err
	}
	return u.Path, nil
}

// Split returns both the primary link and the subsection of a link
func Split(raw string) (primary, subsection string, err error) {
	u, err := parse(raw)
	if err != nil {
		return "", "", err
	}
	return u.Scheme + "://" + u.Host, u.Path, nil
}

// IsHomepage reports whether a link points at the root of its site.
// Links that do not parse are never homepages.
func IsHomepage(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Path == "" || u.Path == "/"
}

// Host extracts the lower-cased hostname (no port) of a link
func Host(raw string) (string, error) {
	u, err := parse(raw)
	if err != nil {
		return "", err
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("%w: no host in %q", ErrInvalidURL, raw)
	}
	return host, nil
}
