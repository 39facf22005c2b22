// Package detection holds the object-detection domain model shared by the
// predictor, the confidence filter and the batch processor.
package detection

import (
	"fmt"
	"time"

	"github.com/tphakala/boxlabel/internal/shape"
)

// Detection is one predicted box in pixel coordinates of the source image.
type Detection struct {
	Box        shape.Rect
	Confidence float64 // 0..1
	ClassID    int
	ClassName  string
	ImageW     int
	ImageH     int
}

// String renders the detection for logs.
func (d Detection) String() string {
	return fmt.Sprintf("%s(%d) %.2f %s", d.ClassName, d.ClassID, d.Confidence, d.Box)
}

// ToShape converts the detection to an AI-tagged rectangle shape.
func (d Detection) ToShape() *shape.Shape {
	s := shape.NewRect(d.ClassName, d.Box.XMin, d.Box.YMin, d.Box.XMax, d.Box.YMax)
	s.AIGenerated = true
	s.AIConfidence = d.Confidence
	return s
}

// ModelInfo describes the model that produced a result.
type ModelInfo struct {
	Name   string // file name without extension
	Path   string
	Device string // device the inference actually ran on
}

// Result is the outcome of one image inference.
type Result struct {
	ImagePath     string
	Detections    []Detection
	InferenceTime time.Duration
	Timestamp     time.Time
	Model         ModelInfo
	ConfThreshold float64
}

// Shapes converts every detection to a shape, preserving order.
func (r *Result) Shapes() []*shape.Shape {
	out := make([]*shape.Shape, 0, len(r.Detections))
	for _, d := range r.Detections {
		out = append(out, d.ToShape())
	}
	return out
}
