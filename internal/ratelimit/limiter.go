// Package ratelimit paces page loads per host so an audit batch never
// hammers a single site.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/leadfoundry/siteauditor/internal/audit"
	"github.com/leadfoundry/siteauditor/internal/telemetry"
)

// Limiter hands out one token bucket per host. Hosts it has not seen
// before get the default rate.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// New builds a limiter allowing qps requests per second per host. A
// non-positive qps disables pacing; burst defaults to 1.
func New(qps float64, burst int) *Limiter {
	r := rate.Limit(qps)
	if qps <= 0 {
		r = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
	}
}

// Wait blocks until the URL's host has a token, respecting the context.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := audit.HostOf(rawURL)
	if host == "" {
		host = "unknown"
	}

	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if delay := time.Since(start); delay > time.Millisecond {
		telemetry.ObserveRateLimitDelay(host, delay)
	}
	return nil
}
