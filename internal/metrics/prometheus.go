package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps the prometheus collectors of the adapter. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	prerenderedHits    *prometheus.CounterVec
	streamsTotal       *prometheus.CounterVec
	streamedBytesTotal prometheus.Counter
	initDuration       prometheus.Histogram
	activeRequests     prometheus.Gauge
}

// Default histogram buckets for request duration (in milliseconds)
var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// New creates the collectors on a dedicated registry
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of handled requests",
			},
			[]string{"source", "status"}, // source: v1, v2, server
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_milliseconds",
				Help:      "Time until the response head was produced, in milliseconds",
				Buckets:   defaultBuckets,
			},
			[]string{"source"},
		),

		prerenderedHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "prerendered_hits_total",
				Help:      "Requests answered from a prerendered file",
			},
			[]string{"source"},
		),

		streamsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "streams_total",
				Help:      "Streamed responses by final state",
			},
			[]string{"state"}, // complete, aborted
		),

		streamedBytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "streamed_bytes_total",
				Help:      "Bytes written to streaming destinations",
			},
		),

		initDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "init_duration_milliseconds",
				Help:      "Duration of the one-time application initialization",
				Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
			},
		),

		activeRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_requests",
				Help:      "Number of requests currently in flight",
			},
		),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.prerenderedHits,
		m.streamsTotal,
		m.streamedBytesTotal,
		m.initDuration,
		m.activeRequests,
	)

	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RequestStarted marks a request in flight and returns a function recording
// its outcome.
func (m *Metrics) RequestStarted(source string) func(status int) {
	if m == nil {
		return func(int) {}
	}

	start := time.Now()
	m.activeRequests.Inc()

	return func(status int) {
		m.activeRequests.Dec()
		m.requestsTotal.WithLabelValues(source, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(source).Observe(float64(time.Since(start).Milliseconds()))
	}
}

// PrerenderedHit counts a request served from a prerendered file
func (m *Metrics) PrerenderedHit(source string) {
	if m == nil {
		return
	}
	m.prerenderedHits.WithLabelValues(source).Inc()
}

// StreamFinished records the final state of a streamed response
func (m *Metrics) StreamFinished(state string, written int64) {
	if m == nil {
		return
	}
	m.streamsTotal.WithLabelValues(state).Inc()
	m.streamedBytesTotal.Add(float64(written))
}

// InitObserved records how long initialization took
func (m *Metrics) InitObserved(d time.Duration) {
	if m == nil {
		return
	}
	m.initDuration.Observe(float64(d.Milliseconds()))
}
