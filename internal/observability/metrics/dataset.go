package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// DatasetMetrics records dataset builds.
type DatasetMetrics struct {
	BuildsTotal   *prometheus.CounterVec
	BuildDuration prometheus.Histogram
	PairsTotal    *prometheus.CounterVec
	ClassesGauge  prometheus.Gauge
}

// NewDatasetMetrics creates and registers the dataset collectors.
func NewDatasetMetrics(registry *prometheus.Registry) (*DatasetMetrics, error) {
	m := &DatasetMetrics{
		BuildsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boxlabel_dataset_builds_total",
			Help: "Dataset builds partitioned by outcome.",
		}, []string{"status"}),
		BuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "boxlabel_dataset_build_duration_seconds",
			Help:    "Wall time of dataset builds.",
			Buckets: buildBuckets,
		}),
		PairsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boxlabel_dataset_pairs_total",
			Help: "Annotation pairs handled by dataset builds partitioned by split.",
		}, []string{"split"}),
		ClassesGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "boxlabel_dataset_classes",
			Help: "Class count of the most recent dataset build.",
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register dataset metrics: %w", err)
	}
	return m, nil
}

// RecordBuild records a finished build. A non-nil err counts as a failure
// and leaves the pair counters untouched.
func (m *DatasetMetrics) RecordBuild(err error, seconds float64, train, val, skipped, classes int) {
	m.BuildDuration.Observe(seconds)
	if err != nil {
		m.BuildsTotal.WithLabelValues(StatusError).Inc()
		return
	}
	m.BuildsTotal.WithLabelValues(StatusSuccess).Inc()
	m.PairsTotal.WithLabelValues("train").Add(float64(train))
	m.PairsTotal.WithLabelValues("val").Add(float64(val))
	m.PairsTotal.WithLabelValues("skipped").Add(float64(skipped))
	m.ClassesGauge.Set(float64(classes))
}

// Describe implements the prometheus.Collector interface.
func (m *DatasetMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.BuildsTotal.Describe(ch)
	m.BuildDuration.Describe(ch)
	m.PairsTotal.Describe(ch)
	m.ClassesGauge.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *DatasetMetrics) Collect(ch chan<- prometheus.Metric) {
	m.BuildsTotal.Collect(ch)
	m.BuildDuration.Collect(ch)
	m.PairsTotal.Collect(ch)
	m.ClassesGauge.Collect(ch)
}
