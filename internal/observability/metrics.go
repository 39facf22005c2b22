// Package observability owns the application's Prometheus registry. A CLI
// run exports it as a node-exporter textfile when a metrics file is set.
package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/boxlabel/internal/logger"
	"github.com/tphakala/boxlabel/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry  *prometheus.Registry
	Predictor *metrics.PredictorMetrics
	Batch     *metrics.BatchMetrics
	Dataset   *metrics.DatasetMetrics
}

// NewMetrics creates a registry with every collector registered.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	predictorMetrics, err := metrics.NewPredictorMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create predictor metrics: %w", err)
	}
	batchMetrics, err := metrics.NewBatchMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch metrics: %w", err)
	}
	datasetMetrics, err := metrics.NewDatasetMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create dataset metrics: %w", err)
	}

	return &Metrics{
		registry:  registry,
		Predictor: predictorMetrics,
		Batch:     batchMetrics,
		Dataset:   datasetMetrics,
	}, nil
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the current values in the Prometheus text format.
// An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	GetLogger().Debug("Metrics written", logger.String("path", path))
	return nil
}
