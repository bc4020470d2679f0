// Package metrics exposes crawl engine counters in the Prometheus format.
//
// Every method is safe on a nil *Metrics, so components take an optional
// collector and call it unconditionally.
package metrics

import (
	"net/http"
	"time"

	"github.com/nao1215/domaincrawl/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "domaincrawl"

// Fetch results used as the "result" label.
const (
	ResultOK        = "ok"
	ResultStatus    = "status"
	ResultTransport = "transport"
	ResultPanic     = "panic"
	ResultExpired   = "expired"
)

// Metrics owns a private registry so several engines (and tests) can run in
// one process without duplicate registration panics.
//
// Design decision: no metric is labelled by domain. Domains are user input
// and would make the series count unbounded.
type Metrics struct {
	registry *prometheus.Registry

	crawlsStarted  prometheus.Counter
	crawlsFinished *prometheus.CounterVec
	crawlDuration  prometheus.Histogram
	crawlsRunning  prometheus.Gauge

	fetches       *prometheus.CounterVec
	fetchDuration prometheus.Histogram
	retries       prometheus.Counter
	inFlight      prometheus.Gauge
	discovered    prometheus.Counter
}

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		crawlsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crawls_started_total",
			Help:      "Number of crawls started, including restarts.",
		}),
		crawlsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crawls_finished_total",
			Help:      "Number of crawls that reached a terminal state.",
		}, []string{"state"}),
		crawlDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "crawl_duration_seconds",
			Help:      "Wall time from crawl start to terminal state.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		}),
		crawlsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "crawls_running",
			Help:      "Number of crawls currently running.",
		}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Number of fetch tasks completed, by result.",
		}, []string{"result"}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Time spent on one fetch task including retries.",
			Buckets:   prometheus.DefBuckets,
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_retries_total",
			Help:      "Number of fetch attempts beyond the first.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fetches_in_flight",
			Help:      "Number of workers currently busy with a task.",
		}),
		discovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "urls_discovered_total",
			Help:      "Number of URLs recorded in the result store.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.crawlsStarted,
		m.crawlsFinished,
		m.crawlDuration,
		m.crawlsRunning,
		m.fetches,
		m.fetchDuration,
		m.retries,
		m.inFlight,
		m.discovered,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// CrawlStarted counts a new crawl run.
func (m *Metrics) CrawlStarted() {
	if m == nil {
		return
	}
	m.crawlsStarted.Inc()
	m.crawlsRunning.Inc()
}

// CrawlFinished counts a crawl that reached state after running for d.
func (m *Metrics) CrawlFinished(state model.CrawlState, d time.Duration) {
	if m == nil {
		return
	}
	m.crawlsRunning.Dec()
	m.crawlsFinished.WithLabelValues(state.String()).Inc()
	m.crawlDuration.Observe(d.Seconds())
}

// FetchStarted marks a worker as busy.
func (m *Metrics) FetchStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// FetchFinished records a completed task with the given result label.
// attempts beyond the first are counted as retries.
func (m *Metrics) FetchFinished(result string, attempts int, d time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.fetches.WithLabelValues(result).Inc()
	m.fetchDuration.Observe(d.Seconds())
	if attempts > 1 {
		m.retries.Add(float64(attempts - 1))
	}
}

// LeaseExpired counts a task given up on by its supervisor.
func (m *Metrics) LeaseExpired() {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(ResultExpired).Inc()
}

// URLDiscovered counts a URL recorded in the result store.
func (m *Metrics) URLDiscovered() {
	if m == nil {
		return
	}
	m.discovered.Inc()
}
