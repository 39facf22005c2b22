package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// BatchMetrics records batch prediction runs.
type BatchMetrics struct {
	FilesTotal    *prometheus.CounterVec
	RunsTotal     *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	ActiveGauge   prometheus.Gauge
	QueueProgress prometheus.Gauge
}

// NewBatchMetrics creates and registers the batch collectors.
func NewBatchMetrics(registry *prometheus.Registry) (*BatchMetrics, error) {
	m := &BatchMetrics{
		FilesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boxlabel_batch_files_total",
			Help: "Files processed by batch prediction partitioned by outcome.",
		}, []string{"status"}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boxlabel_batch_runs_total",
			Help: "Batch runs partitioned by how they ended.",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "boxlabel_batch_run_duration_seconds",
			Help:    "Wall time of batch runs.",
			Buckets: buildBuckets,
		}),
		ActiveGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "boxlabel_batch_active",
			Help: "1 while a batch run is in progress.",
		}),
		QueueProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "boxlabel_batch_progress_ratio",
			Help: "Fraction of the current batch already processed.",
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register batch metrics: %w", err)
	}
	return m, nil
}

// RecordFile records one processed file.
func (m *BatchMetrics) RecordFile(err error, current, total int) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.FilesTotal.WithLabelValues(status).Inc()
	if total > 0 {
		m.QueueProgress.Set(float64(current) / float64(total))
	}
}

// RunStarted marks a batch as active.
func (m *BatchMetrics) RunStarted() {
	m.ActiveGauge.Set(1)
	m.QueueProgress.Set(0)
}

// RunFinished records the end of a batch.
func (m *BatchMetrics) RunFinished(cancelled bool, seconds float64) {
	status := StatusSuccess
	if cancelled {
		status = StatusCancelled
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(seconds)
	m.ActiveGauge.Set(0)
}

// Describe implements the prometheus.Collector interface.
func (m *BatchMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.FilesTotal.Describe(ch)
	m.RunsTotal.Describe(ch)
	m.RunDuration.Describe(ch)
	m.ActiveGauge.Describe(ch)
	m.QueueProgress.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *BatchMetrics) Collect(ch chan<- prometheus.Metric) {
	m.FilesTotal.Collect(ch)
	m.RunsTotal.Collect(ch)
	m.RunDuration.Collect(ch)
	m.ActiveGauge.Collect(ch)
	m.QueueProgress.Collect(ch)
}
