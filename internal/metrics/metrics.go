// Package metrics exposes Prometheus collectors for the crawler service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerPagesTotal          *prometheus.CounterVec
	crawlerBytesTotal          *prometheus.CounterVec
	crawlerItemsTotal          *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	crawlerTasksTotal          *prometheus.CounterVec
	crawlerActiveWorkers       prometheus.Gauge
	crawlerFetchSeconds        *prometheus.HistogramVec
	crawlerHeadlessPromotions  prometheus.Counter
	idsIssuedTotal             prometheus.Counter
	idClockRegressionsTotal    prometheus.Counter
	slugAttemptsTotal          prometheus.Counter
	slugExhaustionsTotal       prometheus.Counter
	rateLimitDelaySeconds      *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of pages crawled, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		crawlerBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		crawlerItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_items_total",
				Help: "Total number of listing items extracted, labeled by site.",
			},
			[]string{"site"},
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

		crawlerTasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_tasks_total",
				Help: "Total number of crawl tasks processed, labeled by status.",
			},
			[]string{"status"},
		)

		crawlerActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_active_workers",
				Help: "Number of workers currently processing a task.",
			},
		)

		crawlerFetchSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_fetch_duration_seconds",
				Help:    "Histogram of page fetch durations, labeled by mode.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"mode"},
		)

		crawlerHeadlessPromotions = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_headless_promotions_total",
				Help: "Total pages promoted from static fetch to headless rendering.",
			},
		)

		idsIssuedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "id_generator_ids_total",
				Help: "Total identifiers issued by the snowflake generator.",
			},
		)

		idClockRegressionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "id_generator_clock_regressions_total",
				Help: "Total identifier requests rejected due to clock regression.",
			},
		)

		slugAttemptsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "slug_resolution_attempts_total",
				Help: "Total slug candidates checked against the store.",
			},
		)

		slugExhaustionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "slug_resolution_exhaustions_total",
				Help: "Total slug resolutions that ran out of attempts.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_ratelimit_delay_seconds",
				Help:    "Histogram of time spent waiting on per-host rate limits.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"host"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
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

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveCrawl increments the per-page crawler metrics.
func ObserveCrawl(site string, status string, bytesFetched, items int) {
	sanitizedSite := SanitizeSite(site)
	crawlerPagesTotal.WithLabelValues(sanitizedSite, status).Inc()
	if bytesFetched > 0 {
		crawlerBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
	if items > 0 {
		crawlerItemsTotal.WithLabelValues(sanitizedSite).Add(float64(items))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveTask increments the task counter for the given status.
func ObserveTask(status string) {
	crawlerTasksTotal.WithLabelValues(status).Inc()
}

// ObserveFetch records a page fetch duration. Mode is "static" or "headless".
func ObserveFetch(mode string, duration time.Duration) {
	crawlerFetchSeconds.WithLabelValues(mode).Observe(duration.Seconds())
}

// ObserveHeadlessPromotion increments the promotion counter.
func ObserveHeadlessPromotion() {
	crawlerHeadlessPromotions.Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	crawlerActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	crawlerActiveWorkers.Dec()
}

// ObserveIDIssued increments the issued identifier counter.
func ObserveIDIssued() {
	idsIssuedTotal.Inc()
}

// ObserveClockRegression increments the clock regression counter.
func ObserveClockRegression() {
	idClockRegressionsTotal.Inc()
}

// ObserveSlugAttempts adds the number of candidates checked in one resolution.
func ObserveSlugAttempts(attempts int) {
	slugAttemptsTotal.Add(float64(attempts))
}

// ObserveSlugExhaustion increments the exhausted-resolution counter.
func ObserveSlugExhaustion() {
	slugExhaustionsTotal.Inc()
}

// ObserveRateLimitDelay records time spent waiting on a per-host limiter.
func ObserveRateLimitDelay(host string, waited time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(host).Observe(waited.Seconds())
}
