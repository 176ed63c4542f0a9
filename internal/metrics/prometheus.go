package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns every metric the service exports. All recording methods are
// safe on a nil *Manager so components can run without instrumentation.
type Manager struct {
	namespace        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         *prometheus.Registry

	// Predictions
	predictionsCreated  *prometheus.CounterVec
	predictionsRejected *prometheus.CounterVec
	scoreIncrementFails prometheus.Counter

	// Evaluation
	evaluations       *prometheus.CounterVec
	evaluationErrors  prometheus.Counter
	settleConflicts   prometheus.Counter
	scoreRowAnomalies prometheus.Counter
	sweepRuns         *prometheus.CounterVec
	sweepDuration     prometheus.Histogram
	sweepBacklog      prometheus.Gauge

	// Price oracle
	quotes       *prometheus.CounterVec
	quoteLatency prometheus.Histogram

	// Archive
	archivedRecords prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewManager creates a Manager. Without WithRegistry it registers on a fresh
// registry that also carries the Go runtime and process collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "trendslot",
		histogramBuckets: prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	counterVec := func(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
		return auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.namespace, Subsystem: subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		}, labels)
	}
	counter := func(subsystem, name, help string) prometheus.Counter {
		return auto.NewCounter(prometheus.CounterOpts{
			Namespace: m.namespace, Subsystem: subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		})
	}
	histogram := func(subsystem, name, help string) prometheus.Histogram {
		return auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: m.namespace, Subsystem: subsystem, Name: name, Help: help,
			ConstLabels: m.constLabels, Buckets: m.histogramBuckets,
		})
	}

	m.predictionsCreated = counterVec("predictions", "created_total",
		"Predictions accepted, by duration.", "duration")
	m.predictionsRejected = counterVec("predictions", "rejected_total",
		"Prediction submissions refused, by reason.", "reason")
	m.scoreIncrementFails = counter("predictions", "score_increment_failures_total",
		"Creation-time aggregate increments that failed and were skipped.")

	m.evaluations = counterVec("evaluator", "settled_total",
		"Predictions settled, by result and source.", "result", "source")
	m.evaluationErrors = counter("evaluator", "errors_total",
		"Per-record evaluation failures left for the next sweep.")
	m.settleConflicts = counter("evaluator", "not_active_total",
		"Settlements that lost the race to another evaluator.")
	m.scoreRowAnomalies = counter("evaluator", "score_row_anomalies_total",
		"Settlements that found no aggregate row for the owner.")
	m.sweepRuns = counterVec("evaluator", "sweeps_total",
		"Evaluation sweeps, by outcome.", "outcome")
	m.sweepDuration = histogram("evaluator", "sweep_duration_seconds",
		"Wall time of one evaluation sweep.")
	m.sweepBacklog = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "evaluator", Name: "backlog",
		Help: "Matured predictions seen by the last sweep.", ConstLabels: m.constLabels,
	})

	m.quotes = counterVec("oracle", "quotes_total",
		"Quote lookups, by source (live, cache, failed).", "source")
	m.quoteLatency = histogram("oracle", "live_latency_seconds",
		"Latency of live price feed calls.")

	m.archivedRecords = counter("archive", "records_total",
		"Evaluated predictions written to the archive.")

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "http", Name: "requests_total",
		Help: "HTTP requests, by route, method and status.", ConstLabels: m.constLabels,
	}, []string{"route", "method", "status"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: "http", Name: "request_duration_seconds",
		Help: "HTTP request latency.", ConstLabels: m.constLabels, Buckets: m.histogramBuckets,
	}, []string{"route", "method"})
}

// Registry returns the registry the metrics are registered on.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Manager) PredictionCreated(duration string) {
	if m == nil {
		return
	}
	m.predictionsCreated.WithLabelValues(duration).Inc()
}

func (m *Manager) PredictionRejected(reason string) {
	if m == nil {
		return
	}
	m.predictionsRejected.WithLabelValues(reason).Inc()
}

func (m *Manager) ScoreIncrementFailed() {
	if m == nil {
		return
	}
	m.scoreIncrementFails.Inc()
}

func (m *Manager) PredictionSettled(result, source string) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(result, source).Inc()
}

func (m *Manager) EvaluationFailed() {
	if m == nil {
		return
	}
	m.evaluationErrors.Inc()
}

func (m *Manager) SettleConflict() {
	if m == nil {
		return
	}
	m.settleConflicts.Inc()
}

func (m *Manager) ScoreRowAnomaly() {
	if m == nil {
		return
	}
	m.scoreRowAnomalies.Inc()
}

// SweepFinished records one sweep. outcome is "ok", "partial", "skipped" or
// "error".
func (m *Manager) SweepFinished(outcome string, backlog int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.sweepRuns.WithLabelValues(outcome).Inc()
	m.sweepDuration.Observe(elapsed.Seconds())
	m.sweepBacklog.Set(float64(backlog))
}

func (m *Manager) QuoteServed(source string) {
	if m == nil {
		return
	}
	m.quotes.WithLabelValues(source).Inc()
}

func (m *Manager) LiveQuoteLatency(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.quoteLatency.Observe(elapsed.Seconds())
}

func (m *Manager) RecordsArchived(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.archivedRecords.Add(float64(n))
}

// HTTPRequest records one served request. route should be the mux pattern,
// not the raw path, to keep label cardinality bounded.
func (m *Manager) HTTPRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}
