// Package metrics exposes Prometheus collectors for the harvester service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	tasksTotal                 *prometheus.CounterVec
	pagesFetchedTotal          *prometheus.CounterVec
	emailsFoundTotal           prometheus.Counter
	activeTasks                prometheus.Gauge
	siteScrapeSeconds          prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		tasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_tasks_total",
				Help: "Total number of scrape tasks, labeled by terminal status.",
			},
			[]string{"status"},
		)

		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_pages_fetched_total",
				Help: "Total number of page fetches, labeled by result.",
			},
			[]string{"result"},
		)

		emailsFoundTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_emails_found_total",
				Help: "Total number of emails accepted by the extractor.",
			},
		)

		activeTasks = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "harvester_active_tasks",
				Help: "Number of tasks currently processing.",
			},
		)

		siteScrapeSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvester_site_scrape_seconds",
				Help:    "Histogram of per-site crawl durations.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
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

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveTask increments the task counter for the given terminal status.
func ObserveTask(status string) {
	Init()
	tasksTotal.WithLabelValues(status).Inc()
}

// ObservePageFetch increments the page fetch counter ("ok" or "error").
func ObservePageFetch(result string) {
	Init()
	pagesFetchedTotal.WithLabelValues(result).Inc()
}

// ObserveEmailsFound adds to the accepted-email counter.
func ObserveEmailsFound(count int) {
	Init()
	emailsFoundTotal.Add(float64(count))
}

// IncActiveTasks increments the active tasks gauge.
func IncActiveTasks() {
	Init()
	activeTasks.Inc()
}

// DecActiveTasks decrements the active tasks gauge.
func DecActiveTasks() {
	Init()
	activeTasks.Dec()
}

// ObserveSiteScrape records the duration of one site crawl.
func ObserveSiteScrape(duration time.Duration) {
	Init()
	siteScrapeSeconds.Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
