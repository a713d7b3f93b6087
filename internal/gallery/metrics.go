package gallery

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sleuthkit/drawsync/internal/drawable"
)

// Metrics holds the Prometheus instrumentation for the sync core.
// All fields are registered against the registry passed to NewMetrics
// and exposed by the diagnostics server's /metrics endpoint.
type Metrics struct {
	QueueDepth          prometheus.Gauge
	FilesProcessed      prometheus.Counter
	BatchCommits        prometheus.Counter
	IncrementalSyncs    prometheus.Counter
	IncrementalFailures prometheus.Counter

	bulkRuns     *prometheus.CounterVec
	bulkDuration prometheus.Histogram
}

// NewMetrics creates and registers the sync metrics. Passing nil uses
// the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "drawsync_task_queue_depth",
			Help: "Number of sync tasks queued or running",
		}),
		FilesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drawsync_bulk_files_processed_total",
			Help: "Total files processed by bulk sync runs",
		}),
		BatchCommits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drawsync_bulk_batch_commits_total",
			Help: "Total batch transaction commits performed by bulk sync runs",
		}),
		IncrementalSyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drawsync_incremental_syncs_total",
			Help: "Total successful incremental sync tasks",
		}),
		IncrementalFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drawsync_incremental_failures_total",
			Help: "Total incremental sync tasks that failed and were absorbed",
		}),
		bulkRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drawsync_bulk_runs_total",
			Help: "Total bulk sync runs by terminal status",
		}, []string{"status"}),
		bulkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "drawsync_bulk_run_duration_seconds",
			Help:    "Wall-clock duration of completed bulk sync runs",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}

	reg.MustRegister(
		m.QueueDepth,
		m.FilesProcessed,
		m.BatchCommits,
		m.IncrementalSyncs,
		m.IncrementalFailures,
		m.bulkRuns,
		m.bulkDuration,
	)
	return m
}

// ObserveBulkRun records the outcome of one bulk run. A zero duration
// (failed or cancelled runs) is counted but not sampled.
func (m *Metrics) ObserveBulkRun(terminal drawable.BuildStatus, d time.Duration) {
	m.bulkRuns.WithLabelValues(terminal.String()).Inc()
	if d > 0 {
		m.bulkDuration.Observe(d.Seconds())
	}
}
