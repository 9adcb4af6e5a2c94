package iotanomaly

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	runsCreated       *prometheus.CounterVec
	runsDeleted       prometheus.Counter
	anomaliesDetected prometheus.Counter
	rowsAnalyzed      prometheus.Counter
	detectDuration    prometheus.Histogram
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	ingestSamples     prometheus.Counter
	ingestRows        prometheus.Gauge
	streamClients     prometheus.Gauge
	streamDropped     prometheus.Counter
}

// NewMetrics registers the service collectors plus Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		runsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "iotanomaly_runs_created_total",
			Help: "Analysis runs created, by source kind.",
		}, []string{"source"}),
		runsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iotanomaly_runs_deleted_total",
			Help: "Analysis runs deleted.",
		}),
		anomaliesDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iotanomaly_anomalies_detected_total",
			Help: "Rows flagged anomalous across all runs.",
		}),
		rowsAnalyzed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iotanomaly_rows_analyzed_total",
			Help: "Rows scored across all runs.",
		}),
		detectDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "iotanomaly_detection_duration_seconds",
			Help:    "Time spent fitting and scoring a dataset.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "iotanomaly_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "iotanomaly_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		ingestSamples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iotanomaly_ingest_samples_total",
			Help: "Samples accepted through remote write.",
		}),
		ingestRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "iotanomaly_ingest_buffer_rows",
			Help: "Rows currently held in the ingest buffer.",
		}),
		streamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "iotanomaly_stream_clients",
			Help: "Connected event stream clients.",
		}),
		streamDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iotanomaly_stream_events_dropped_total",
			Help: "Events dropped because a client buffer was full.",
		}),
	}
	reg.MustRegister(
		m.runsCreated, m.runsDeleted, m.anomaliesDetected, m.rowsAnalyzed, m.detectDuration,
		m.httpRequests, m.httpDuration, m.ingestSamples, m.ingestRows,
		m.streamClients, m.streamDropped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// The observe methods are nil-safe so components can run without metrics.

func (m *Metrics) observeRun(source string, rows, anomalies int, took time.Duration) {
	if m == nil {
		return
	}
	m.runsCreated.WithLabelValues(source).Inc()
	m.rowsAnalyzed.Add(float64(rows))
	m.anomaliesDetected.Add(float64(anomalies))
	m.detectDuration.Observe(took.Seconds())
}

func (m *Metrics) observeRunDeleted() {
	if m == nil {
		return
	}
	m.runsDeleted.Inc()
}

func (m *Metrics) observeHTTP(route string, code int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(took.Seconds())
}

func (m *Metrics) observeIngest(samples, bufferedRows int) {
	if m == nil {
		return
	}
	m.ingestSamples.Add(float64(samples))
	m.ingestRows.Set(float64(bufferedRows))
}

func (m *Metrics) setStreamClients(n int) {
	if m == nil {
		return
	}
	m.streamClients.Set(float64(n))
}

func (m *Metrics) observeStreamDrop() {
	if m == nil {
		return
	}
	m.streamDropped.Inc()
}
