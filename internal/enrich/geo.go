package enrich

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/alvmarrod/linkscope/internal/storage"
)

// Resolver resolves host names; *net.Resolver satisfies it
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Geolocator maps a host to the country its address is registered in
type Geolocator struct {
	resolver Resolver
	client   *http.Client
	endpoint string
}

// NewGeolocator creates a geolocator querying endpoint/{ip}/json.
// A nil resolver uses the system resolver.
func NewGeolocator(client *http.Client, endpoint string, resolver Resolver) *Geolocator {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Geolocator{
		resolver: resolver,
		client:   client,
		endpoint: strings.TrimSuffix(endpoint, "/"),
	}
}

// LookupIP resolves host, preferring an IPv4 address. It returns nil when
// the host does not resolve.
func (g *Geolocator) LookupIP(ctx context.Context, host string) net.IP {
	addrs, err := g.resolver.LookupIPAddr(ctx, host)
	if err != nil || len(addrs) == 0 {
		return nil
	}
	for _, addr := range addrs {
		if v4 := addr.IP.To4(); v4 != nil {
			return v4
		}
	}
	return addrs[0].IP
}

// Country asks the geolocation service for the country of ip
func (g *Geolocator) Country(ctx context.Context, ip net.IP) CountryResult {
	if ip == nil {
		return CountryResult{Status: StatusEmpty, Country: storage.UnknownCountry}
	}

	var body struct {
		Country string `json:"country"`
	}
	if err := getJSON(ctx, g.client, fmt.Sprintf("%s/%s/json", g.endpoint, ip), &body); err != nil {
		return CountryResult{Status: StatusFailed, IP: ip.String(), Country: storage.UnknownCountry, Err: err}
	}
	if body.Country == "" {
		return CountryResult{Status: StatusEmpty, IP: ip.String(), Country: storage.UnknownCountry}
	}

	return CountryResult{Status: StatusFound, IP: ip.String(), Country: body.Country}
}

// Locate resolves host and geolocates the resulting address
func (g *Geolocator) Locate(ctx context.Context, host string) CountryResult {
	return g.Country(ctx, g.LookupIP(ctx, host))
}
