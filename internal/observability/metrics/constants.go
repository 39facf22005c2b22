// Package metrics defines the Prometheus collectors of each subsystem.
package metrics

// Outcome label values
const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// Histogram buckets
var (
	inferenceBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	buildBuckets     = []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120}
)
