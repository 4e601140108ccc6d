// Package telemetry provides Prometheus metrics, OpenTelemetry tracing and
// zap logger construction for the NPPES tools.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nppestool/npdata"
)

// Metrics holds all application metrics. It satisfies npdata.LoadObserver.
type Metrics struct {
	RowsLoaded    *prometheus.CounterVec
	RowsSkipped   *prometheus.CounterVec
	UnknownCodes  *prometheus.CounterVec
	LoadDuration  *prometheus.HistogramVec
	Providers     prometheus.Gauge
	Queries       *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	ExportRows    *prometheus.CounterVec
	DownloadBytes prometheus.Counter
	BreakerState  *prometheus.GaugeVec
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec

	registry *prometheus.Registry
}

var _ npdata.LoadObserver = (*Metrics)(nil)

// New creates all metrics and registers them, with the Go and process
// collectors, on a registry of their own.
func New() *Metrics {
	m := &Metrics{
		RowsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nppes_rows_loaded_total",
			Help: "Records loaded, by file kind",
		}, []string{"file"}),
		RowsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nppes_rows_skipped_total",
			Help: "Rows rejected, by file kind and error kind",
		}, []string{"file", "kind"}),
		UnknownCodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nppes_unknown_codes_total",
			Help: "Unrecognised enumeration codes replaced by absent, by field",
		}, []string{"field"}),
		LoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nppes_load_duration_seconds",
			Help:    "Time to load one file",
			Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"file"}),
		Providers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "nppes_providers",
			Help: "Providers held in the dataset",
		}),
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nppes_queries_total",
			Help: "Queries executed, by name",
		}, []string{"query"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nppes_query_duration_seconds",
			Help:    "Query execution time",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"query"}),
		ExportRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nppes_export_rows_total",
			Help: "Provider records exported, by format",
		}, []string{"format"}),
		DownloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nppes_download_bytes_total",
			Help: "Bytes downloaded from the NPPES distribution site",
		}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nppes_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		}, []string{"name"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nppes_http_requests_total",
			Help: "HTTP requests served, by route and status",
		}, []string{"route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nppes_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RowsLoaded,
		m.RowsSkipped,
		m.UnknownCodes,
		m.LoadDuration,
		m.Providers,
		m.Queries,
		m.QueryDuration,
		m.ExportRows,
		m.DownloadBytes,
		m.BreakerState,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns the Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveLoad(r npdata.LoadReport) {
	file := r.Kind.String()
	m.RowsLoaded.WithLabelValues(file).Add(float64(r.Loaded))
	m.LoadDuration.WithLabelValues(file).Observe(r.Duration.Seconds())
	for field, n := range r.UnknownCodes {
		m.UnknownCodes.WithLabelValues(field).Add(float64(n))
	}
}

func (m *Metrics) ObserveRowError(kind npdata.FileKind, errKind npdata.ErrorKind) {
	m.RowsSkipped.WithLabelValues(kind.String(), string(errKind)).Inc()
}

// ObserveQuery records one execution of the named query.
func (m *Metrics) ObserveQuery(name string, d time.Duration) {
	m.Queries.WithLabelValues(name).Inc()
	m.QueryDuration.WithLabelValues(name).Observe(d.Seconds())
}

func (m *Metrics) ObserveExport(format string, rows int) {
	m.ExportRows.WithLabelValues(format).Add(float64(rows))
}

func (m *Metrics) ObserveHTTP(route string, status int, d time.Duration) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) SetProviders(n int) { m.Providers.Set(float64(n)) }

func (m *Metrics) AddDownloadBytes(n int64) { m.DownloadBytes.Add(float64(n)) }

// SetBreakerState records a circuit breaker state as 0 (closed),
// 1 (half-open) or 2 (open).
func (m *Metrics) SetBreakerState(name string, state int) {
	m.BreakerState.WithLabelValues(name).Set(float64(state))
}
