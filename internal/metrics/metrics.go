// Package metrics exposes Prometheus collectors for the ingestion pipeline.
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
	passesTotal                *prometheus.CounterVec
	passDurationSeconds        prometheus.Histogram
	runsTotal                  *prometheus.CounterVec
	listingsTotal              *prometheus.CounterVec
	fetchesTotal               *prometheus.CounterVec
	robotsChecksTotal          *prometheus.CounterVec
	pacerDelaySeconds          *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		passesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "h1b_passes_total",
				Help: "Orchestrator passes, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		passDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "h1b_pass_duration_seconds",
				Help:    "Wall-clock duration of orchestrator passes.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "h1b_runs_total",
				Help: "Per-source runs, labeled by source type and status.",
			},
			[]string{"source_type", "status"},
		)

		listingsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "h1b_listings_total",
				Help: "Listings seen by the pipeline, labeled by stage (scraped, saved, duplicate, error).",
			},
			[]string{"stage"},
		)

		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "h1b_fetches_total",
				Help: "Outbound page fetches, labeled by site, technique and status class.",
			},
			[]string{"site", "technique", "status"},
		)

		robotsChecksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "h1b_robots_checks_total",
				Help: "robots.txt checks, labeled by result.",
			},
			[]string{"result"},
		)

		pacerDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "h1b_pacer_delay_seconds",
				Help:    "Time spent waiting on the per-host crawl delay.",
				Buckets: []float64{0.1, 0.5, 1, 2, 3, 5, 10, 30},
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
	})
}

// SanitizeSite extracts a lowercase hostname from a URL.
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

// StatusClass buckets an HTTP status into 2xx/3xx/4xx/5xx, or "error" for transport failures.
func StatusClass(code int) string {
	switch {
	case code == 403:
		return "403"
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "error"
	}
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePass records one orchestrator pass.
func ObservePass(outcome string, duration time.Duration) {
	Init()
	passesTotal.WithLabelValues(outcome).Inc()
	passDurationSeconds.Observe(duration.Seconds())
}

// ObserveRun records a finished per-source run.
func ObserveRun(sourceType, status string) {
	Init()
	runsTotal.WithLabelValues(sourceType, status).Inc()
}

// AddListings adds n to the counter for stage.
func AddListings(stage string, n int) {
	if n <= 0 {
		return
	}
	Init()
	listingsTotal.WithLabelValues(stage).Add(float64(n))
}

// ObserveFetch records one outbound fetch attempt.
func ObserveFetch(rawURL, technique string, statusCode int) {
	Init()
	fetchesTotal.WithLabelValues(SanitizeSite(rawURL), technique, StatusClass(statusCode)).Inc()
}

// ObserveRobotsCheck records a robots.txt verdict.
func ObserveRobotsCheck(result string) {
	Init()
	robotsChecksTotal.WithLabelValues(result).Inc()
}

// ObservePacerDelay records how long a request waited on its crawl delay.
func ObservePacerDelay(site string, duration time.Duration) {
	Init()
	pacerDelaySeconds.WithLabelValues(site).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
