// Package metrics provides Prometheus instrumentation for vcompress.
//
// Metrics are registered with the default registry through promauto and
// exposed by the server on /metrics. All names carry the "vcompress_"
// prefix.
package metrics

import (
	"time"

	"github.com/mantonx/vcompress/internal/compress"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Export metrics
var (
	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vcompress_exports_total",
			Help: "Total number of finished exports by outcome",
		},
		[]string{"outcome"}, // success, skipped, cancelled, failed
	)

	ExportsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vcompress_exports_in_progress",
			Help: "Number of exports currently running",
		},
	)

	ExportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vcompress_export_duration_seconds",
			Help:    "Export duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"outcome"},
	)

	ExportOutputBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vcompress_export_output_bytes_total",
			Help: "Total bytes written by successful exports",
		},
	)
)

// Job metrics
var (
	JobSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vcompress_job_submissions_total",
			Help: "Total number of job submissions by source",
		},
		[]string{"source"}, // api, watch, batch
	)

	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vcompress_jobs_in_flight",
			Help: "Number of jobs waiting for or holding an export slot",
		},
	)

	JobsFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vcompress_jobs_finished_total",
			Help: "Total number of jobs that reached a terminal status",
		},
		[]string{"status"},
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vcompress_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vcompress_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// ExportRecorder feeds compressor telemetry into the export metrics. It
// implements compress.Recorder.
type ExportRecorder struct{}

// NewExportRecorder returns a recorder backed by the default registry.
func NewExportRecorder() *ExportRecorder {
	return &ExportRecorder{}
}

func (ExportRecorder) ExportStarted() {
	ExportsInProgress.Inc()
}

func (ExportRecorder) ExportFinished(outcome compress.Outcome, elapsed time.Duration, outputBytes int64) {
	ExportsInProgress.Dec()
	ExportsTotal.WithLabelValues(string(outcome)).Inc()
	ExportDuration.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())
	if outcome == compress.OutcomeSuccess && outputBytes > 0 {
		ExportOutputBytes.Add(float64(outputBytes))
	}
}

var _ compress.Recorder = ExportRecorder{}
