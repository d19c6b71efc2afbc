// Package headless loads pages with a real browser so JavaScript-built
// sites produce their true markup, and captures the screenshots the
// visual judgment needs.
package headless

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/leadfoundry/siteauditor/internal/audit"
	"github.com/leadfoundry/siteauditor/internal/ratelimit"
	"github.com/leadfoundry/siteauditor/internal/telemetry"
)

const (
	defaultNavTimeout = 45 * time.Second

	// settleDelay gives client-side frameworks a beat to paint after the
	// body is ready, before the DOM and screenshots are captured.
	settleDelay = 500 * time.Millisecond

	// salvageTimeout bounds the second capture attempt after a
	// navigation deadline passed with the document already in hand.
	salvageTimeout = 5 * time.Second

	screenshotTimeout = 10 * time.Second

	desktopWidth  = 1920
	desktopHeight = 1080
	mobileWidth   = 375
	mobileHeight  = 812
	mobileScale   = 3
)

// Config controls the behavior of the headless loader.
type Config struct {
	// MaxParallel bounds concurrent browser tabs; 0 means unbounded.
	MaxParallel int
	UserAgent   string
	NavTimeout  time.Duration
	// HostQPS paces loads per host; 0 disables pacing.
	HostQPS float64
}

// Loader implements audit.PageLoader on headless Chrome via chromedp.
// One warm browser serves all loads; each load runs in its own tab.
type Loader struct {
	cfg     Config
	log     *zap.Logger
	limiter chan struct{}
	hosts   *ratelimit.Limiter

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

var _ audit.PageLoader = (*Loader)(nil)

// New starts the browser and verifies it is usable.
func New(cfg Config, log *zap.Logger) (*Loader, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = defaultNavTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &Loader{
		cfg:           cfg,
		log:           log,
		limiter:       limiter,
		hosts:         ratelimit.New(cfg.HostQPS, 1),
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Close tears down the browser and its allocator.
func (l *Loader) Close() {
	l.browserCancel()
	l.allocCancel()
}

// Load navigates to the URL in a fresh tab and captures the rendered
// DOM, response status, load time, and both screenshots. When the
// navigation deadline passes after the document response arrived, the
// partially loaded DOM is salvaged instead of reported as a timeout.
func (l *Loader) Load(ctx context.Context, url string) (*audit.PageCapture, error) {
	if err := l.acquire(ctx); err != nil {
		return nil, err
	}
	defer l.release()

	if err := l.hosts.Wait(ctx, url); err != nil {
		return nil, audit.ClassifyErr(url, err)
	}

	tabCtx, cancelTab := chromedp.NewContext(l.browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, l.navTimeout())
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	meta := newResponseMeta()
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	var (
		html     string
		title    string
		finalURL string
		readyAt  time.Time
	)
	start := time.Now()
	err := chromedp.Run(taskCtx,
		l.setupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(context.Context) error {
			readyAt = time.Now()
			return nil
		}),
		chromedp.Sleep(settleDelay),
		chromedp.Location(&finalURL),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		status, _ := meta.snapshot()
		if !salvageable(err, status, ctx.Err()) {
			return nil, classifyNavigation(url, err)
		}
		salvageCtx, cancelSalvage := context.WithTimeout(tabCtx, salvageTimeout)
		defer cancelSalvage()
		serr := chromedp.Run(salvageCtx,
			chromedp.Location(&finalURL),
			chromedp.Title(&title),
			chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		)
		if serr != nil || strings.TrimSpace(html) == "" {
			return nil, &audit.LoadError{Kind: audit.LoadErrTimeout, URL: url, Err: err}
		}
		l.log.Info("salvaged partial DOM after navigation timeout",
			zap.String("url", url),
			zap.Duration("elapsed", time.Since(start)))
	}

	loadTime := time.Since(start)
	if !readyAt.IsZero() {
		loadTime = readyAt.Sub(start)
	}

	status, responseURL := meta.snapshotWithFallbacks(url, finalURL)
	if lerr := audit.ClassifyStatus(url, status); lerr != nil {
		return nil, lerr
	}

	capture := &audit.PageCapture{
		RawHTML:    html,
		Title:      title,
		FinalURL:   responseURL,
		StatusCode: status,
		LoadTime:   loadTime,
		Rendered:   true,
	}
	l.takeScreenshots(tabCtx, url, capture)

	telemetry.ObservePageLoad("headless", loadTime)
	l.log.Debug("page loaded",
		zap.String("url", url),
		zap.Int("status", status),
		zap.Duration("load_time", loadTime))
	return capture, nil
}

func (l *Loader) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if l.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(l.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// takeScreenshots captures the desktop full-page shot and the mobile
// viewport shot. Failures leave the fields nil; they never fail a load.
func (l *Loader) takeScreenshots(tabCtx context.Context, url string, capture *audit.PageCapture) {
	shotCtx, cancel := context.WithTimeout(tabCtx, screenshotTimeout)
	defer cancel()

	var desktop []byte
	if err := chromedp.Run(shotCtx,
		chromedp.EmulateViewport(desktopWidth, desktopHeight),
		chromedp.FullScreenshot(&desktop, 100),
	); err != nil {
		l.log.Warn("desktop screenshot failed", zap.String("url", url), zap.Error(err))
	} else {
		capture.DesktopShot = desktop
	}

	var mobile []byte
	if err := chromedp.Run(shotCtx,
		emulation.SetDeviceMetricsOverride(mobileWidth, mobileHeight, mobileScale, true),
		chromedp.CaptureScreenshot(&mobile),
	); err != nil {
		l.log.Warn("mobile screenshot failed", zap.String("url", url), zap.Error(err))
	} else {
		capture.MobileShot = mobile
	}
}

func (l *Loader) acquire(ctx context.Context) error {
	if l.limiter == nil {
		return nil
	}
	select {
	case l.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return &audit.LoadError{Kind: audit.LoadErrCanceled, Err: fmt.Errorf("tab slot wait: %w", ctx.Err())}
	}
}

func (l *Loader) release() {
	if l.limiter == nil {
		return
	}
	select {
	case <-l.limiter:
	default:
	}
}

func (l *Loader) navTimeout() time.Duration {
	if l.cfg.NavTimeout > 0 {
		return l.cfg.NavTimeout
	}
	return defaultNavTimeout
}

// salvageable reports whether a failed navigation still left usable
// content in the tab: the task deadline expired, the caller has not
// canceled, and the document response was observed.
func salvageable(err error, status int, callerErr error) bool {
	return errors.Is(err, context.DeadlineExceeded) && callerErr == nil && status != 0
}

// classifyNavigation maps a chromedp navigation failure to a LoadError.
// Chrome reports transport problems as net::ERR_* strings rather than
// typed errors.
func classifyNavigation(url string, err error) *audit.LoadError {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "ERR_NAME_NOT_RESOLVED"),
		strings.Contains(msg, "ERR_NAME_RESOLUTION_FAILED"),
		strings.Contains(msg, "ERR_DNS_"):
		return &audit.LoadError{Kind: audit.LoadErrDNS, URL: url, Err: err}
	case strings.Contains(msg, "ERR_CONNECTION_TIMED_OUT"),
		strings.Contains(msg, "ERR_TIMED_OUT"):
		return &audit.LoadError{Kind: audit.LoadErrTimeout, URL: url, Err: err}
	case strings.Contains(msg, "ERR_CONNECTION_"),
		strings.Contains(msg, "ERR_SSL_"),
		strings.Contains(msg, "ERR_CERT_"),
		strings.Contains(msg, "ERR_ADDRESS_"),
		strings.Contains(msg, "ERR_SOCKET_"):
		return &audit.LoadError{Kind: audit.LoadErrConnection, URL: url, Err: err}
	case strings.Contains(msg, "ERR_ABORTED"):
		return &audit.LoadError{Kind: audit.LoadErrCanceled, URL: url, Err: err}
	}
	return audit.ClassifyErr(url, err)
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

// capture records the first document response; redirect chains surface
// later document events that must not overwrite it.
func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != 0 {
		return
	}
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
}

func (m *responseMeta) snapshot() (int, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, m.url
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, string) {
	status, url := m.snapshot()
	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}
	if status == 0 {
		status = 200
	}
	return status, url
}
