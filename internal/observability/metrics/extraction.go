package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	"github.com/joseffiran/SilkRouteHelper-1/internal/core/domain"
)

// ExtractionMetrics implements ports.ExtractionObserver.
type ExtractionMetrics struct {
	service string

	runsTotal        *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	completion       *prometheus.HistogramVec
	ruleFailures     *prometheus.CounterVec
	normalizedFields *prometheus.CounterVec
	jobRetries       *prometheus.CounterVec
	staleRuns        *prometheus.CounterVec
	reclaimed        *prometheus.CounterVec
	breakerState     *prometheus.GaugeVec
}

func NewExtractionMetrics(service string, reg prometheus.Registerer) *ExtractionMetrics {
	m := &ExtractionMetrics{
		service: service,
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "runs_total",
			Help:      "Finished extraction runs by processing mode and final document status.",
		}, []string{"service", "mode", "status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "run_duration_seconds",
			Help:      "Extraction run duration in seconds by processing mode.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"service", "mode"}),
		completion: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "completion_percentage",
			Help:      "Share of template fields filled per report.",
			Buckets:   []float64{0, 10, 25, 50, 75, 90, 100},
		}, []string{"service"}),
		ruleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "rule_failures_total",
			Help:      "Field rules that failed to evaluate.",
		}, []string{"service"}),
		normalizedFields: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "normalized_fields_total",
			Help:      "Fields enriched with a reference data code.",
		}, []string{"service"}),
		jobRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "job_retries_total",
			Help:      "Background job attempts handed back for redelivery.",
		}, []string{"service"}),
		staleRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "stale_runs_total",
			Help:      "Run results discarded because a newer run owns the document.",
		}, []string{"service"}),
		reclaimed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "stuck_documents_reclaimed_total",
			Help:      "Documents moved from processing to error by the timeout sweep.",
		}, []string{"service"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "circuit_state",
			Help:      "Circuit breaker state per operation (0 closed, 1 half-open, 2 open).",
		}, []string{"service", "operation"}),
	}
	reg.MustRegister(
		m.runsTotal,
		m.runDuration,
		m.completion,
		m.ruleFailures,
		m.normalizedFields,
		m.jobRetries,
		m.staleRuns,
		m.reclaimed,
		m.breakerState,
	)
	return m
}

func (m *ExtractionMetrics) RunFinished(mode domain.ProcessingMode, status domain.DocumentStatus, duration time.Duration) {
	m.runsTotal.WithLabelValues(m.service, string(mode), string(status)).Inc()
	m.runDuration.WithLabelValues(m.service, string(mode)).Observe(duration.Seconds())
}

func (m *ExtractionMetrics) ReportProduced(report *domain.ExtractionReport) {
	if report == nil {
		return
	}
	m.completion.WithLabelValues(m.service).Observe(report.Statistics.CompletionPercentage)
	if n := len(report.Failures); n > 0 {
		m.ruleFailures.WithLabelValues(m.service).Add(float64(n))
	}
	if report.NormalizedFields > 0 {
		m.normalizedFields.WithLabelValues(m.service).Add(float64(report.NormalizedFields))
	}
}

func (m *ExtractionMetrics) JobRetried() {
	m.jobRetries.WithLabelValues(m.service).Inc()
}

func (m *ExtractionMetrics) StaleRunDropped() {
	m.staleRuns.WithLabelValues(m.service).Inc()
}

func (m *ExtractionMetrics) DocumentsReclaimed(n int) {
	if n > 0 {
		m.reclaimed.WithLabelValues(m.service).Add(float64(n))
	}
}

// BreakerStateChanged matches resilience.StateObserver.
func (m *ExtractionMetrics) BreakerStateChanged(operation string, _, to gobreaker.State) {
	m.breakerState.WithLabelValues(m.service, operation).Set(float64(to))
}
