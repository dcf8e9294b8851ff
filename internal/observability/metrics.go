// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingest metrics
	EventsIngested   *prometheus.CounterVec
	ValidationErrors *prometheus.CounterVec
	IngestConflicts  prometheus.Counter
	IngestDuration   prometheus.Histogram

	// Normalization metrics
	QualityFlagsAssigned *prometheus.CounterVec
	OutOfOrderRepairs    prometheus.Counter

	// Archive metrics
	ArchiveRowsFlushed prometheus.Counter
	ArchiveRowsDropped prometheus.Counter

	// Stream metrics
	StreamClients      prometheus.Gauge
	StreamMessagesSent prometheus.Counter

	// Health metrics
	LastSuccessfulIngest prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "cenems_telemetry"
	}

	return &Metrics{
		// Ingest metrics
		EventsIngested: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "events_total",
			Help:      "Total number of ingest calls by outcome",
		}, []string{"status"}),
		ValidationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "validation_errors_total",
			Help:      "Total number of rejected ingest calls by field",
		}, []string{"field"}),
		IngestConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "conflicts_total",
			Help:      "Total number of series point conflicts",
		}),
		IngestDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "duration_seconds",
			Help:      "Ingest call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Normalization metrics
		QualityFlagsAssigned: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalization",
			Name:      "quality_flags_total",
			Help:      "Total number of quality flags assigned by flag",
		}, []string{"flag"}),
		OutOfOrderRepairs: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalization",
			Name:      "out_of_order_repairs_total",
			Help:      "Total number of successor measurements repaired",
		}),

		// Archive metrics
		ArchiveRowsFlushed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "rows_flushed_total",
			Help:      "Total number of measurements flushed to the archive",
		}),
		ArchiveRowsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "rows_dropped_total",
			Help:      "Total number of measurements dropped due to a full archive queue",
		}),

		// Stream metrics
		StreamClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "clients",
			Help:      "Current number of connected websocket clients",
		}),
		StreamMessagesSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "messages_sent_total",
			Help:      "Total number of websocket messages broadcast",
		}),

		// Health metrics
		LastSuccessfulIngest: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_ingest_timestamp",
			Help:      "Unix timestamp of last successful ingest",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordIngest records an ingest outcome.
func RecordIngest(status string, seconds float64) {
	DefaultMetrics.EventsIngested.WithLabelValues(status).Inc()
	DefaultMetrics.IngestDuration.Observe(seconds)
}

// RecordValidationError records a rejected ingest call.
func RecordValidationError(field string) {
	DefaultMetrics.ValidationErrors.WithLabelValues(field).Inc()
}

// RecordConflict records a series point conflict.
func RecordConflict() {
	DefaultMetrics.IngestConflicts.Inc()
}

// RecordQualityFlags records each assigned quality flag.
func RecordQualityFlags(flags []string) {
	for _, f := range flags {
		DefaultMetrics.QualityFlagsAssigned.WithLabelValues(f).Inc()
	}
}

// RecordRepair increments the successor repair counter.
func RecordRepair() {
	DefaultMetrics.OutOfOrderRepairs.Inc()
}

// RecordArchiveFlush records a successful archive flush.
func RecordArchiveFlush(rows int) {
	DefaultMetrics.ArchiveRowsFlushed.Add(float64(rows))
}

// RecordArchiveDrop records a dropped archive row.
func RecordArchiveDrop() {
	DefaultMetrics.ArchiveRowsDropped.Inc()
}
