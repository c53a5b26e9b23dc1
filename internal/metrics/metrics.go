// Package metrics exposes Prometheus collectors for the ingest service.
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
	upstreamRequestsTotal   *prometheus.CounterVec
	upstreamRequestDuration *prometheus.HistogramVec
	upstreamBytesTotal      *prometheus.CounterVec
	retryAttemptsTotal      *prometheus.CounterVec
	retryExhaustedTotal     *prometheus.CounterVec
	estimateLookupsTotal    *prometheus.CounterVec
	estimateLookupDuration  prometheus.Histogram
	rateLimitDelaySeconds   *prometheus.HistogramVec
	discoveryPagesTotal     *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		upstreamRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_upstream_requests_total",
				Help: "Total upstream HTTP requests, labeled by host and status code.",
			},
			[]string{"host", "code"},
		)

		upstreamRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_upstream_request_duration_seconds",
				Help:    "Histogram of upstream request latencies, labeled by host.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"host"},
		)

		upstreamBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_upstream_bytes_total",
				Help: "Total response bytes fetched, labeled by host.",
			},
			[]string{"host"},
		)

		retryAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_retry_attempts_total",
				Help: "Failed attempts that were retried, labeled by operation.",
			},
			[]string{"op"},
		)

		retryExhaustedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_retry_exhausted_total",
				Help: "Operations that exhausted every attempt, labeled by operation.",
			},
			[]string{"op"},
		)

		estimateLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_estimate_lookups_total",
				Help: "Completion-time lookups, labeled by result.",
			},
			[]string{"result"},
		)

		estimateLookupDuration = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ingest_estimate_lookup_duration_seconds",
				Help:    "Histogram of completion-time lookup latency.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_rate_limit_delay_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		discoveryPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_discovery_pages_total",
				Help: "Search result pages visited during discovery, labeled by result.",
			},
			[]string{"result"},
		)
	})
}

// SanitizeHost extracts a lowercase hostname from a URL.
// It returns "unknown" if the URL is invalid.
func SanitizeHost(rawURL string) string {
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

// ObserveUpstream records one completed upstream request.
func ObserveUpstream(rawURL string, code int, bytesFetched int, duration time.Duration) {
	Init()
	host := SanitizeHost(rawURL)
	upstreamRequestsTotal.WithLabelValues(host, strconv.Itoa(code)).Inc()
	upstreamRequestDuration.WithLabelValues(host).Observe(duration.Seconds())
	if bytesFetched > 0 {
		upstreamBytesTotal.WithLabelValues(host).Add(float64(bytesFetched))
	}
}

// ObserveRetry counts a failed attempt that will be retried.
func ObserveRetry(op string) {
	Init()
	retryAttemptsTotal.WithLabelValues(op).Inc()
}

// ObserveRetryExhausted counts an operation that ran out of attempts.
func ObserveRetryExhausted(op string) {
	Init()
	retryExhaustedTotal.WithLabelValues(op).Inc()
}

// ObserveEstimateLookup records the result and latency of one lookup.
func ObserveEstimateLookup(result string, duration time.Duration) {
	Init()
	estimateLookupsTotal.WithLabelValues(result).Inc()
	estimateLookupDuration.Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveDiscoveryPage counts one visited search page.
func ObserveDiscoveryPage(result string) {
	Init()
	discoveryPagesTotal.WithLabelValues(result).Inc()
}
