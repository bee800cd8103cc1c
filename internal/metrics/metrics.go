// Package metrics exposes Prometheus collectors for the crawler.
package metrics

import (
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	crawlerPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_pages_total",
			Help: "Total number of pages fetched, labeled by site and status.",
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

	crawlerFetchRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_fetch_retries_total",
			Help: "Total number of fetch retries, labeled by site.",
		},
		[]string{"site"},
	)

	crawlerNodesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_nodes_total",
			Help: "Total number of crawl nodes recorded.",
		},
	)

	crawlerBudgetExhaustedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_budget_exhausted_total",
			Help: "Number of crawls stopped by the page budget.",
		},
	)

	crawlerCheckpointSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crawler_checkpoint_write_seconds",
			Help:    "Histogram of checkpoint write latencies.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	crawlerDownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_downloads_total",
			Help: "Total number of binary downloads, labeled by status.",
		},
		[]string{"status"},
	)

	crawlerRateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crawler_rate_limit_delays_seconds",
			Help:    "Histogram of rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)
)

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

// ObservePage records one page fetch outcome.
func ObservePage(site string, status string, bytesFetched int) {
	sanitizedSite := SanitizeSite(site)
	crawlerPagesTotal.WithLabelValues(sanitizedSite, status).Inc()
	if bytesFetched > 0 {
		crawlerBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveRetry records one retried fetch attempt.
func ObserveRetry(site string) {
	crawlerFetchRetriesTotal.WithLabelValues(SanitizeSite(site)).Inc()
}

// ObserveNode records one crawl node added to the tree.
func ObserveNode() {
	crawlerNodesTotal.Inc()
}

// ObserveBudgetExhausted records a crawl stopped by its page budget.
func ObserveBudgetExhausted() {
	crawlerBudgetExhaustedTotal.Inc()
}

// ObserveCheckpoint records the duration of a checkpoint write.
func ObserveCheckpoint(duration time.Duration) {
	crawlerCheckpointSeconds.Observe(duration.Seconds())
}

// ObserveDownload records one download outcome.
func ObserveDownload(status string) {
	crawlerDownloadsTotal.WithLabelValues(status).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	crawlerRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
