// Package metrics exposes Prometheus collectors for the ingestion pipeline.
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
	submitRequestsTotal        *prometheus.CounterVec
	submitDurationSeconds      *prometheus.HistogramVec
	extractDurationSeconds     *prometheus.HistogramVec
	throttleDelaySeconds       prometheus.Histogram
	activeWorkers              prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		submitRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ccaindex_submit_requests_total",
				Help: "Total index submissions, labeled by index and result.",
			},
			[]string{"index", "result"},
		)

		submitDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ccaindex_submit_duration_seconds",
				Help:    "Histogram of index submission latencies, labeled by index.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"index"},
		)

		extractDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ccaindex_extract_duration_seconds",
				Help:    "Histogram of content extraction latencies, labeled by outcome.",
				Buckets: []float64{0.005, 0.05, 0.1, 0.5, 1, 5, 15, 60},
			},
			[]string{"ok"},
		)

		throttleDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ccaindex_throttle_delay_seconds",
				Help:    "Histogram of submission throttle wait durations.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10},
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ccaindex_active_workers",
				Help: "Number of workers currently processing a record.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ccaindex_http_requests_total",
				Help: "Total number of listener HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ccaindex_http_request_duration_seconds",
				Help:    "Histogram of listener HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler exposing the default registry plus any extra gatherers.
func Handler(extra ...prometheus.Gatherer) http.Handler {
	gatherers := prometheus.Gatherers{prometheus.DefaultGatherer}
	gatherers = append(gatherers, extra...)
	return promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{})
}

// ObserveSubmit records one index submission.
func ObserveSubmit(index string, result string, duration time.Duration) {
	Init()
	submitRequestsTotal.WithLabelValues(index, result).Inc()
	submitDurationSeconds.WithLabelValues(index).Observe(duration.Seconds())
}

// ObserveExtract records one extraction call.
func ObserveExtract(ok bool, duration time.Duration) {
	Init()
	extractDurationSeconds.WithLabelValues(strconv.FormatBool(ok)).Observe(duration.Seconds())
}

// ObserveThrottleDelay records time spent waiting on the submission throttle.
func ObserveThrottleDelay(duration time.Duration) {
	Init()
	throttleDelaySeconds.Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeWorkers.Dec()
}

// ObserveHTTPRequest increments the listener HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
