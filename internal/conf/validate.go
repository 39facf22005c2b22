package conf

import (
	"fmt"
	"strings"

	"github.com/tphakala/boxlabel/internal/errors"
)

// ValidationError collects every problem found in one pass.
type ValidationError struct {
	Errors []string
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings rejects out-of-range values.
func ValidateSettings(s *Settings) error {
	var ve ValidationError

	switch strings.ToLower(s.Annotation.Format) {
	case FormatVOC, FormatYOLO, FormatCreateML:
		s.Annotation.Format = strings.ToLower(s.Annotation.Format)
	default:
		ve.Errors = append(ve.Errors, fmt.Sprintf("annotation.format %q must be one of voc, yolo, createml", s.Annotation.Format))
	}

	if s.Dataset.TrainRatio <= 0 || s.Dataset.TrainRatio >= 1 {
		ve.Errors = append(ve.Errors, fmt.Sprintf("dataset.trainratio %.3f must be within (0,1)", s.Dataset.TrainRatio))
	}

	switch strings.ToLower(s.Predictor.Device) {
	case DeviceAuto, DeviceCPU:
		s.Predictor.Device = strings.ToLower(s.Predictor.Device)
	default:
		ve.Errors = append(ve.Errors, fmt.Sprintf("predictor.device %q must be auto or cpu", s.Predictor.Device))
	}

	if !inUnitRange(s.Predictor.Conf) {
		ve.Errors = append(ve.Errors, "predictor.conf must be within [0,1]")
	}
	if !inUnitRange(s.Predictor.IOU) {
		ve.Errors = append(ve.Errors, "predictor.iou must be within [0,1]")
	}
	if !inUnitRange(s.Predictor.MaxOverlap) {
		ve.Errors = append(ve.Errors, "predictor.maxoverlap must be within [0,1]")
	}
	if s.Predictor.MaxDet <= 0 {
		ve.Errors = append(ve.Errors, "predictor.maxdet must be positive")
	}
	if s.Predictor.Threads < 0 {
		ve.Errors = append(ve.Errors, "predictor.threads must not be negative")
	}
	for class, threshold := range s.Predictor.PerClass {
		if !inUnitRange(threshold) {
			ve.Errors = append(ve.Errors, fmt.Sprintf("predictor.perclass[%s] must be within [0,1]", class))
		}
	}

	if s.Telemetry.Enabled && s.Telemetry.DSN == "" {
		ve.Errors = append(ve.Errors, "telemetry.dsn is required when telemetry is enabled")
	}

	if len(ve.Errors) > 0 {
		return errors.New(ve).
			Component("configuration").
			Category(errors.CategoryValidation).
			Context("error_count", len(ve.Errors)).
			Build()
	}
	return nil
}

func inUnitRange(v float64) bool {
	return v >= 0 && v <= 1
}
