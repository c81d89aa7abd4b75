package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the analyst sandbox.
type Metrics struct {
	Registry *prometheus.Registry

	TurnsTotal        *prometheus.CounterVec
	ScriptsTotal      *prometheus.CounterVec
	VerdictsTotal     *prometheus.CounterVec
	ExecutionDuration prometheus.Histogram
	ActiveExecutions  prometheus.Gauge
	FiguresTotal      prometheus.Counter
	SecurityEvents    *prometheus.CounterVec
	DatasetsLoaded    prometheus.Gauge
	RequestsInFlight  prometheus.Gauge
	CodeSizeBytes     prometheus.Histogram
	OutputSizeBytes   prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics using a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		TurnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "analyst",
				Name:      "turns_total",
				Help:      "Total number of processed turns by whether they contained code.",
			},
			[]string{"has_code"},
		),

		ScriptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "analyst",
				Name:      "scripts_total",
				Help:      "Total number of scripts by final status.",
			},
			[]string{"status"},
		),

		VerdictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "analyst",
				Name:      "verdicts_total",
				Help:      "Validator verdicts by rule; safe scripts are counted under rule \"none\".",
			},
			[]string{"rule"},
		),

		ExecutionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "analyst",
				Name:      "execution_duration_seconds",
				Help:      "Duration of script executions in seconds.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),

		ActiveExecutions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "analyst",
				Name:      "active_executions",
				Help:      "Number of currently running script executions.",
			},
		),

		FiguresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "analyst",
				Name:      "figures_total",
				Help:      "Total number of rendered figures.",
			},
		),

		SecurityEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "analyst",
				Name:      "security_events_total",
				Help:      "Denylisted patterns found in submitted scripts.",
			},
			[]string{"pattern"},
		),

		DatasetsLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "analyst",
				Name:      "datasets_loaded",
				Help:      "Number of datasets held in memory.",
			},
		),

		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "analyst",
				Subsystem: "api",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being processed.",
			},
		),

		CodeSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "analyst",
				Name:      "code_size_bytes",
				Help:      "Size of submitted scripts in bytes.",
				Buckets:   prometheus.ExponentialBuckets(100, 4, 8),
			},
		),

		OutputSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "analyst",
				Name:      "output_size_bytes",
				Help:      "Size of captured script output in bytes.",
				Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
			},
		),
	}

	// Register all collectors
	reg.MustRegister(
		m.TurnsTotal,
		m.ScriptsTotal,
		m.VerdictsTotal,
		m.ExecutionDuration,
		m.ActiveExecutions,
		m.FiguresTotal,
		m.SecurityEvents,
		m.DatasetsLoaded,
		m.RequestsInFlight,
		m.CodeSizeBytes,
		m.OutputSizeBytes,
	)

	return m
}

// RecordTurn counts a processed turn.
func (m *Metrics) RecordTurn(hasCode bool) {
	label := "false"
	if hasCode {
		label = "true"
	}
	m.TurnsTotal.WithLabelValues(label).Inc()
}

// RecordVerdict counts a validator verdict. An empty rule means safe.
func (m *Metrics) RecordVerdict(rule string, codeBytes int) {
	if rule == "" {
		rule = "none"
	}
	m.VerdictsTotal.WithLabelValues(rule).Inc()
	m.CodeSizeBytes.Observe(float64(codeBytes))
}

// RecordExecution records metrics for a completed execution.
func (m *Metrics) RecordExecution(status string, durationSec float64, figures, outputBytes int) {
	m.ScriptsTotal.WithLabelValues(status).Inc()
	m.ExecutionDuration.Observe(durationSec)
	m.FiguresTotal.Add(float64(figures))
	m.OutputSizeBytes.Observe(float64(outputBytes))
}

// RecordRejected counts a script that was never executed.
func (m *Metrics) RecordRejected() {
	m.ScriptsTotal.WithLabelValues("unsafe").Inc()
}

// RecordSecurityEvent records a denylist hit.
func (m *Metrics) RecordSecurityEvent(pattern string) {
	m.SecurityEvents.WithLabelValues(pattern).Inc()
}
