// Package metrics exposes Prometheus collectors for the counter service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JakeFAU/element-counter/internal/counter"
)

var (
	counterRequestsTotal        *prometheus.CounterVec
	counterFetchDurationSeconds prometheus.Histogram
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		counterRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "counter_requests_total",
				Help: "Total number of count requests, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		counterFetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "counter_fetch_duration_seconds",
				Help:    "Histogram of successful upstream fetch durations.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
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

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Recorder feeds pipeline measurements into the package collectors.
type Recorder struct{}

var _ counter.Observer = Recorder{}

// NewRecorder initializes the collectors and returns a Recorder.
func NewRecorder() Recorder {
	Init()
	return Recorder{}
}

// ObserveOutcome counts a finished request.
func (Recorder) ObserveOutcome(outcome counter.Outcome) {
	counterRequestsTotal.WithLabelValues(string(outcome)).Inc()
}

// ObserveFetch records how long a successful fetch took.
func (Recorder) ObserveFetch(d time.Duration) {
	counterFetchDurationSeconds.Observe(d.Seconds())
}
