// Package static loads pages over plain HTTP for environments without a
// browser. Static captures carry no screenshots, and pages that turn
// out to be JavaScript application shells are flagged so body-derived
// signals can be treated as unmeasurable.
package static

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/leadfoundry/siteauditor/internal/audit"
	"github.com/leadfoundry/siteauditor/internal/backoff"
	"github.com/leadfoundry/siteauditor/internal/ratelimit"
	"github.com/leadfoundry/siteauditor/internal/telemetry"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// HostQPS paces loads per host; 0 disables pacing.
	HostQPS float64
}

// Loader implements audit.PageLoader with a colly collector. Each load
// clones the base collector, so loads never share callback state.
type Loader struct {
	cfg       Config
	log       *zap.Logger
	retry     *backoff.Policy
	hosts     *ratelimit.Limiter
	transport http.RoundTripper
	base      *colly.Collector
}

var _ audit.PageLoader = (*Loader)(nil)

// New builds a static loader. A nil retry policy gets the defaults.
func New(cfg Config, retry *backoff.Policy, log *zap.Logger) *Loader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if retry == nil {
		retry = backoff.NewPolicy()
	}
	if log == nil {
		log = zap.NewNop()
	}

	base := colly.NewCollector(colly.Async(false))
	base.IgnoreRobotsTxt = true
	transport := newHTTPTransport()
	base.WithTransport(transport)

	return &Loader{
		cfg:       cfg,
		log:       log,
		retry:     retry,
		hosts:     ratelimit.New(cfg.HostQPS, 1),
		transport: transport,
		base:      base,
	}
}

// Load fetches the page, retrying transient transport failures. HTTP
// status outcomes are final: a 403 is the site's answer, not a glitch.
func (l *Loader) Load(ctx context.Context, url string) (*audit.PageCapture, error) {
	if err := l.hosts.Wait(ctx, url); err != nil {
		return nil, audit.ClassifyErr(url, err)
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		capture, err := l.fetchOnce(ctx, url)
		if err == nil {
			capture.JSShell = LooksLikeShell(capture.RawHTML)
			telemetry.ObservePageLoad("static", capture.LoadTime)
			l.log.Debug("page fetched",
				zap.String("url", url),
				zap.Int("status", capture.StatusCode),
				zap.Duration("load_time", capture.LoadTime),
				zap.Bool("js_shell", capture.JSShell))
			return capture, nil
		}

		var lerr *audit.LoadError
		if errors.As(err, &lerr) {
			return nil, err
		}
		lastErr = err
		if !l.retry.ShouldRetry(err, attempt) {
			break
		}
		l.log.Debug("retrying fetch",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if serr := l.retry.Sleep(ctx, attempt-1); serr != nil {
			break
		}
	}
	return nil, audit.ClassifyErr(url, lastErr)
}

func (l *Loader) fetchOnce(ctx context.Context, url string) (*audit.PageCapture, error) {
	collector := l.base.Clone()
	collector.IgnoreRobotsTxt = true
	if l.cfg.UserAgent != "" {
		collector.UserAgent = l.cfg.UserAgent
	}
	collector.SetRequestTimeout(l.cfg.Timeout)
	collector.WithTransport(l.transport)

	var (
		capture   *audit.PageCapture
		errStatus int
		fetchErr  error
	)
	start := time.Now()
	collector.OnResponse(func(r *colly.Response) {
		capture = &audit.PageCapture{
			RawHTML:    string(r.Body),
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			LoadTime:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			errStatus = r.StatusCode
		}
		fetchErr = err
	})

	if err := l.runCollector(ctx, collector, url); err != nil {
		if lerr := audit.ClassifyStatus(url, errStatus); lerr != nil {
			lerr.Err = err
			return nil, lerr
		}
		return nil, err
	}
	if capture == nil {
		if fetchErr != nil {
			return nil, fetchErr
		}
		return nil, fmt.Errorf("no response captured for %s", url)
	}
	return capture, nil
}

func (l *Loader) runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("static fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit %s: %w", url, err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
