// Package telemetry unifies OpenTelemetry tracing (Google Cloud) and
// Prometheus metrics for the audit service.
package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	texporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

var (
	auditorSitesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditor_sites_total",
			Help: "Total number of site audits, labeled by site and outcome.",
		},
		[]string{"site", "outcome"},
	)

	auditorSiteDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auditor_site_duration_seconds",
			Help:    "Histogram of end-to-end audit durations, labeled by outcome.",
			Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"outcome"},
	)

	auditorScorePoints = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "auditor_score_points",
			Help:    "Histogram of total audit scores on the 0-100 scale.",
			Buckets: []float64{20, 40, 60, 75, 85, 100},
		},
	)

	auditorTiersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditor_tiers_total",
			Help: "Total number of scored audits, labeled by recommendation tier.",
		},
		[]string{"tier"},
	)

	auditorPageLoadSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auditor_page_load_seconds",
			Help:    "Histogram of page load durations, labeled by fetch mode.",
			Buckets: []float64{0.5, 1, 2, 3, 5, 8, 15, 30},
		},
		[]string{"mode"},
	)

	auditorJudgeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auditor_judge_requests_total",
			Help: "Total number of visual judgment requests, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	auditorActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "auditor_active_workers",
			Help: "Number of workers currently running an audit.",
		},
	)

	auditorRateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auditor_rate_limit_delays_seconds",
			Help:    "Histogram of per-host rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

var (
	initOnce  sync.Once
	traceProv *sdktrace.TracerProvider
	meterProv *metric.MeterProvider
	initErr   error
)

// Settings identifies the service to the tracing backend. A ProjectID
// enables direct export to Google Cloud Trace; without one, spans stay
// in-process.
type Settings struct {
	ServiceName string
	Version     string
	ProjectID   string
	Region      string
}

// InitTelemetry sets up tracing and bridges OpenTelemetry metrics into
// the Prometheus registry used by the custom collectors above. Safe to
// call more than once; later calls return the first result.
func InitTelemetry(ctx context.Context, s Settings) (*sdktrace.TracerProvider, *metric.MeterProvider, error) {
	initOnce.Do(func() {
		attrs := []resource.Option{
			resource.WithAttributes(
				semconv.ServiceName(s.ServiceName),
				semconv.ServiceVersion(s.Version),
			),
		}
		if s.ProjectID != "" {
			attrs = append(attrs, resource.WithAttributes(
				semconv.CloudAccountID(s.ProjectID),
				semconv.CloudRegion(s.Region),
				semconv.CloudProviderGCP,
				semconv.CloudPlatformGCPCloudRun,
			))
		}
		res, err := resource.New(ctx, attrs...)
		if err != nil {
			initErr = fmt.Errorf("create telemetry resource: %w", err)
			return
		}

		var traceExporter sdktrace.SpanExporter
		if s.ProjectID != "" {
			traceExporter, err = texporter.New(texporter.WithProjectID(s.ProjectID))
			if err != nil {
				initErr = fmt.Errorf("create google trace exporter: %w", err)
				return
			}
		}

		opts := []sdktrace.TracerProviderOption{
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		}
		if traceExporter != nil {
			opts = append(opts, sdktrace.WithBatcher(traceExporter))
		}

		tp := sdktrace.NewTracerProvider(opts...)
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(
			propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
		)

		// Bridge OTel metrics onto the registry promauto already uses so
		// everything lands on the same /metrics endpoint.
		promExporter, err := otelprom.New(
			otelprom.WithRegisterer(prometheus.DefaultRegisterer),
		)
		if err != nil {
			initErr = fmt.Errorf("create prometheus exporter: %w", err)
			return
		}

		mp := metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(promExporter),
		)
		otel.SetMeterProvider(mp)
		traceProv = tp
		meterProv = mp
	})
	return traceProv, meterProv, initErr
}

// SanitizeSite extracts a lowercase hostname for use as a metric label.
// Invalid input returns "unknown".
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveAudit records one finished audit.
func ObserveAudit(site, outcome string, duration time.Duration) {
	auditorSitesTotal.WithLabelValues(SanitizeSite(site), outcome).Inc()
	auditorSiteDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveScore records a scored audit's total and tier.
func ObserveScore(score float64, tier string) {
	auditorScorePoints.Observe(score)
	auditorTiersTotal.WithLabelValues(tier).Inc()
}

// ObservePageLoad records how long one page load took.
func ObservePageLoad(mode string, duration time.Duration) {
	auditorPageLoadSeconds.WithLabelValues(mode).Observe(duration.Seconds())
}

// ObserveJudgeRequest records the outcome of a visual judgment call.
func ObserveJudgeRequest(outcome string) {
	auditorJudgeRequestsTotal.WithLabelValues(outcome).Inc()
}

// IncActiveWorkers increments the active worker count.
func IncActiveWorkers() {
	auditorActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active worker count.
func DecActiveWorkers() {
	auditorActiveWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	auditorRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest records metrics for a served HTTP request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
