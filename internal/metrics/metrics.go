// Package metrics provides Prometheus metrics for the triage service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OutcomeAccepted labels uploads that passed validation.
const OutcomeAccepted = "accepted"

// Registry is the Prometheus registry for all cytoguard metrics.
var Registry = prometheus.NewRegistry()

// Metrics holds the service's collectors.
type Metrics struct {
	// Sessions
	SessionsActive prometheus.Gauge       // cytoguard_sessions_active
	SessionsOpened prometheus.Counter     // cytoguard_sessions_opened_total
	SessionsClosed *prometheus.CounterVec // cytoguard_sessions_closed_total{reason}

	// Uploads
	Uploads     *prometheus.CounterVec // cytoguard_uploads_total{outcome}
	UploadBytes prometheus.Histogram   // cytoguard_upload_bytes

	// Security
	IntegrityViolations  prometheus.Counter // cytoguard_integrity_violations_total
	SecureDeleteFailures prometheus.Counter // cytoguard_secure_delete_failures_total

	// Analysis
	Analyses         *prometheus.CounterVec // cytoguard_analyses_total{label}
	AnalysisFailures prometheus.Counter     // cytoguard_analysis_failures_total
	AnalysisDuration prometheus.Histogram   // cytoguard_analysis_duration_seconds

	Reports *prometheus.CounterVec // cytoguard_reports_total{archived}
}

// New registers the collectors with reg, or with Registry when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = Registry
	}
	f := promauto.With(reg)

	return &Metrics{
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "cytoguard_sessions_active",
			Help: "Number of live sessions",
		}),
		SessionsOpened: f.NewCounter(prometheus.CounterOpts{
			Name: "cytoguard_sessions_opened_total",
			Help: "Total sessions created",
		}),
		SessionsClosed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cytoguard_sessions_closed_total",
			Help: "Total sessions reclaimed by reason",
		}, []string{"reason"}),

		Uploads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cytoguard_uploads_total",
			Help: "Uploads by validation outcome",
		}, []string{"outcome"}),
		UploadBytes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "cytoguard_upload_bytes",
			Help:    "Size of accepted uploads",
			Buckets: prometheus.ExponentialBuckets(16<<10, 4, 7),
		}),

		IntegrityViolations: f.NewCounter(prometheus.CounterOpts{
			Name: "cytoguard_integrity_violations_total",
			Help: "Loads that failed decryption or digest verification",
		}),
		SecureDeleteFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "cytoguard_secure_delete_failures_total",
			Help: "Secure deletions that could not be completed",
		}),

		Analyses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cytoguard_analyses_total",
			Help: "Completed analyses by diagnosis",
		}, []string{"label"}),
		AnalysisFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "cytoguard_analysis_failures_total",
			Help: "Analyses that failed in the model collaborator",
		}),
		AnalysisDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "cytoguard_analysis_duration_seconds",
			Help:    "Model prediction latency",
			Buckets: prometheus.DefBuckets,
		}),

		Reports: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cytoguard_reports_total",
			Help: "Reports generated",
		}, []string{"archived"}),
	}
}

// RegisterRuntime adds the Go and process collectors to Registry.
func RegisterRuntime() {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Handler serves Registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *Metrics) SessionOpened() {
	m.SessionsOpened.Inc()
	m.SessionsActive.Inc()
}

func (m *Metrics) SessionClosed(reason string) {
	m.SessionsClosed.WithLabelValues(reason).Inc()
	m.SessionsActive.Dec()
}

// UploadValidated counts an upload; outcome is OutcomeAccepted or the kind of
// rejection.
func (m *Metrics) UploadValidated(outcome string, size int) {
	m.Uploads.WithLabelValues(outcome).Inc()
	if outcome == OutcomeAccepted {
		m.UploadBytes.Observe(float64(size))
	}
}

func (m *Metrics) IntegrityViolation() {
	m.IntegrityViolations.Inc()
}

func (m *Metrics) SecureDeleteFailed() {
	m.SecureDeleteFailures.Inc()
}

func (m *Metrics) AnalysisCompleted(label string, d time.Duration) {
	m.Analyses.WithLabelValues(label).Inc()
	m.AnalysisDuration.Observe(d.Seconds())
}

func (m *Metrics) AnalysisFailed() {
	m.AnalysisFailures.Inc()
}

func (m *Metrics) ReportGenerated(archived bool) {
	if archived {
		m.Reports.WithLabelValues("true").Inc()
		return
	}
	m.Reports.WithLabelValues("false").Inc()
}
