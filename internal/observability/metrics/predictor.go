package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PredictorMetrics records model inference. It satisfies the predictor's
// Recorder interface.
type PredictorMetrics struct {
	InferenceDuration *prometheus.HistogramVec
	InferenceTotal    *prometheus.CounterVec
	DetectionsTotal   *prometheus.CounterVec
	FallbackTotal     *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
}

// NewPredictorMetrics creates and registers the predictor collectors.
func NewPredictorMetrics(registry *prometheus.Registry) (*PredictorMetrics, error) {
	m := &PredictorMetrics{
		InferenceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "boxlabel_inference_duration_seconds",
			Help:    "Time taken by one image inference including pre and post processing.",
			Buckets: inferenceBuckets,
		}, []string{"device"}),
		InferenceTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boxlabel_inference_total",
			Help: "Number of completed image inferences.",
		}, []string{"device"}),
		DetectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boxlabel_detections_total",
			Help: "Number of boxes returned by the model after suppression.",
		}, []string{"device"}),
		FallbackTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boxlabel_device_fallback_total",
			Help: "Number of switches from the accelerated device to the CPU.",
		}, []string{"state"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "boxlabel_predictor_errors_total",
			Help: "Number of predictor failures by kind.",
		}, []string{"kind"}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register predictor metrics: %w", err)
	}
	return m, nil
}

// RecordInference records one completed inference.
func (m *PredictorMetrics) RecordInference(device string, seconds float64, detections int) {
	m.InferenceDuration.WithLabelValues(device).Observe(seconds)
	m.InferenceTotal.WithLabelValues(device).Inc()
	m.DetectionsTotal.WithLabelValues(device).Add(float64(detections))
}

// RecordFallback records a device fallback.
func (m *PredictorMetrics) RecordFallback(state string) {
	m.FallbackTotal.WithLabelValues(state).Inc()
}

// RecordError records a predictor failure.
func (m *PredictorMetrics) RecordError(kind string) {
	m.ErrorsTotal.WithLabelValues(kind).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *PredictorMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.InferenceDuration.Describe(ch)
	m.InferenceTotal.Describe(ch)
	m.DetectionsTotal.Describe(ch)
	m.FallbackTotal.Describe(ch)
	m.ErrorsTotal.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *PredictorMetrics) Collect(ch chan<- prometheus.Metric) {
	m.InferenceDuration.Collect(ch)
	m.InferenceTotal.Collect(ch)
	m.DetectionsTotal.Collect(ch)
	m.FallbackTotal.Collect(ch)
	m.ErrorsTotal.Collect(ch)
}
