package prospects

import (
	"fmt"
	"strings"

	"github.com/leadfoundry/siteauditor/internal/audit"
)

// DefaultExclusions are hosts that show up in scraped prospect lists but
// are never audit targets: directories, social networks, aggregators.
func DefaultExclusions() []string {
	return []string{
		"facebook.com", "*.facebook.com",
		"linkedin.com", "*.linkedin.com",
		"instagram.com",
		"x.com", "twitter.com",
		"yelp.com", "*.yelp.com",
		"yellowpages.com",
		"google.com", "*.google.com",
		"angi.com",
		"thumbtack.com",
		"bbb.org", "*.bbb.org",
	}
}

// HostFilter matches hosts against exclusion patterns. A pattern is an
// exact host, or a suffix written as "*.domain" or ".domain" which also
// matches the bare domain.
type HostFilter struct {
	exact    map[string]struct{}
	suffixes []string
}

// Skipped records a prospect dropped by the filter, with the reason.
type Skipped struct {
	Request audit.Request
	Reason  string
}

// NewHostFilter compiles the patterns. An empty pattern list yields a
// nil filter, which excludes nothing.
func NewHostFilter(patterns []string) *HostFilter {
	f := &HostFilter{exact: make(map[string]struct{})}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		if value == "" {
			continue
		}
		switch {
		case strings.HasPrefix(value, "*."):
			f.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			f.addSuffix(strings.TrimPrefix(value, "."))
		default:
			f.exact[value] = struct{}{}
		}
	}
	if len(f.exact) == 0 && len(f.suffixes) == 0 {
		return nil
	}
	return f
}

func (f *HostFilter) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range f.suffixes {
		if existing == suffix {
			return
		}
	}
	f.suffixes = append(f.suffixes, suffix)
}

// Excluded reports whether the host matches any pattern.
func (f *HostFilter) Excluded(host string) bool {
	if f == nil {
		return false
	}
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return false
	}
	if _, ok := f.exact[host]; ok {
		return true
	}
	for _, suffix := range f.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// Apply splits prospects into auditable requests and skipped entries.
func (f *HostFilter) Apply(reqs []audit.Request) (kept []audit.Request, skipped []Skipped) {
	if f == nil {
		return reqs, nil
	}
	for _, req := range reqs {
		host := audit.HostOf(req.URL)
		if f.Excluded(host) {
			skipped = append(skipped, Skipped{
				Request: req,
				Reason:  fmt.Sprintf("host %s is on the exclusion list", host),
			})
			continue
		}
		kept = append(kept, req)
	}
	return kept, skipped
}
