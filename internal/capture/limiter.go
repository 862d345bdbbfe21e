package capture

import (
	"strings"
	"sync"
)

// HostLimiter enforces a maximum number of distinct hosts per root domain
type HostLimiter struct {
	maxPerRoot int
	mu         sync.Mutex
	// rootDomain -> set of hosts
	hosts map[string]map[string]bool
}

// NewHostLimiter creates a new host limiter. maxPerRoot < 1 disables the limit.
func NewHostLimiter(maxPerRoot int) *HostLimiter {
	return &HostLimiter{
		maxPerRoot: maxPerRoot,
		hosts:      make(map[string]map[string]bool),
	}
}

// Add registers host under rootDomain. It returns false when the root
// already holds the maximum number of other hosts.
func (hl *HostLimiter) Add(rootDomain, host string) bool {
	hl.mu.Lock()
	defer hl.mu.Unlock()

	set := hl.hosts[rootDomain]
	if set == nil {
		set = make(map[string]bool)
		hl.hosts[rootDomain] = set
	}

	if set[host] {
		return true
	}
	if hl.maxPerRoot > 0 && len(set) >= hl.maxPerRoot {
		return false
	}

	set[host] = true
	return true
}

// Count returns the number of hosts registered for a root domain
func (hl *HostLimiter) Count(rootDomain string) int {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	return len(hl.hosts[rootDomain])
}

// RootDomain extracts the last two labels of a domain.
// Example: blog.example.com -> example.com
func RootDomain(domain string) string {
	parts := strings.Split(domain, ".")
	if len(parts) >= 2 {
		return parts[len(parts)-2] + "." + parts[len(parts)-1]
	}
	return domain
}
