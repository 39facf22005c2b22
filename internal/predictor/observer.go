package predictor

import "github.com/tphakala/boxlabel/internal/detection"

// Observer receives predictor events. Calls happen on the goroutine that
// triggered them and must not call back into the Predictor.
type Observer interface {
	ModelLoaded(name string)
	PredictionCompleted(result *detection.Result)
	Error(err error)
	// DeviceFallback fires once for each switch to the CPU.
	DeviceFallback(status Status, cause error)
}

// NopObserver implements Observer with no-ops; embed it to handle a subset.
type NopObserver struct{}

func (NopObserver) ModelLoaded(string) {}
func (NopObserver) PredictionCompleted(*detection.Result) {}
func (NopObserver) Error(error) {}
func (NopObserver) DeviceFallback(Status, error) {}

// Recorder collects inference metrics.
type Recorder interface {
	RecordInference(device string, seconds float64, detections int)
	RecordFallback(state string)
	RecordError(kind string)
}
