package predictor

import (
	"strings"

	"github.com/tphakala/boxlabel/internal/errors"
)

var (
	// ErrModelMissing is returned when the model file does not exist.
	ErrModelMissing = errors.NewStd("model file missing")
	// ErrModelLoadFailed is returned when no device could load the model.
	ErrModelLoadFailed = errors.NewStd("model load failed")
	// ErrNotLoaded is returned by predictions before a model is loaded.
	ErrNotLoaded = errors.NewStd("no model loaded")
	// ErrImageUnreadable is returned when the input image cannot be decoded.
	ErrImageUnreadable = errors.NewStd("image unreadable")
	// ErrInferenceFailed is returned when the model run or its output fails.
	ErrInferenceFailed = errors.NewStd("inference failed")
	// ErrBackendUnavailable marks device errors that trigger the CPU
	// fallback. Backends wrap it; callers never see it from a Predictor.
	ErrBackendUnavailable = errors.NewStd("inference backend unavailable")
)

var (
	backendSubjects = []string{"cuda", "nms", "xnnpack", "delegate", "gpu", "backend"}
	backendFailures = []string{"not available", "unavailable", "not supported", "mismatch", "no kernel", "failed to apply", "could not run"}
)

// IsBackendUnavailable reports whether err is a device or backend mismatch
// that a CPU run would avoid.
func IsBackendUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBackendUnavailable) || errors.IsCategory(err, errors.CategoryBackend) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return containsAny(msg, backendSubjects) && containsAny(msg, backendFailures)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
