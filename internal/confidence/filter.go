// Package confidence post-processes detections before they become shapes:
// confidence thresholds, greedy non-maximum suppression and annotation
// clean-up. The canonical chain is ByConfidence, NMS, OptimizeForAnnotation,
// ToShapes.
package confidence

import (
	"cmp"
	"slices"

	"github.com/tphakala/boxlabel/internal/detection"
	"github.com/tphakala/boxlabel/internal/logger"
	"github.com/tphakala/boxlabel/internal/shape"
)

// Filter holds the global and per-class confidence thresholds.
type Filter struct {
	Threshold float64
	PerClass  map[string]float64
}

// Params controls the suppression and clean-up stages of Apply.
type Params struct {
	IOU        float64
	MinBoxSize float64
	MaxOverlap float64
}

// ThresholdFor returns the effective threshold for class: the larger of the
// global and the class-specific value.
func (f Filter) ThresholdFor(class string) float64 {
	if t, ok := f.PerClass[class]; ok && t > f.Threshold {
		return t
	}
	return f.Threshold
}

// ByConfidence keeps detections at or above their effective threshold.
func (f Filter) ByConfidence(dets []detection.Detection) []detection.Detection {
	out := make([]detection.Detection, 0, len(dets))
	for _, d := range dets {
		if d.Confidence >= f.ThresholdFor(d.ClassName) {
			out = append(out, d)
		}
	}
	return out
}

// byConfidenceDesc returns detection indexes ordered by descending
// confidence, ties in input order.
func byConfidenceDesc(dets []detection.Detection) []int {
	order := make([]int, len(dets))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(dets[b].Confidence, dets[a].Confidence)
	})
	return order
}

// NMS runs greedy IoU suppression in descending confidence order and returns
// the indexes of kept detections in that order. A box is suppressed when its
// IoU with an already kept box exceeds iouThreshold.
func NMS(dets []detection.Detection, iouThreshold float64) []int {
	kept := make([]int, 0, len(dets))
	for _, i := range byConfidenceDesc(dets) {
		suppressed := false
		for _, k := range kept {
			if dets[i].Box.IoU(dets[k].Box) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, i)
		}
	}
	return kept
}

// Select returns the detections at idx.
func Select(dets []detection.Detection, idx []int) []detection.Detection {
	out := make([]detection.Detection, 0, len(idx))
	for _, i := range idx {
		out = append(out, dets[i])
	}
	return out
}

// overlapRatio is the intersection over the smaller of the two areas.
func overlapRatio(a, b shape.Rect) float64 {
	minArea := min(a.Area(), b.Area())
	if minArea <= 0 {
		return 0
	}
	return a.Intersect(b).Area() / minArea
}

// OptimizeForAnnotation clips boxes to their image, drops boxes narrower or
// shorter than minBoxSize, and drops the lower-confidence member of any pair
// whose overlap ratio exceeds maxOverlap. Kept detections are returned in
// descending confidence order.
func OptimizeForAnnotation(dets []detection.Detection, minBoxSize, maxOverlap float64) []detection.Detection {
	clipped := make([]detection.Detection, 0, len(dets))
	for _, d := range dets {
		if d.ImageW > 0 && d.ImageH > 0 {
			d.Box = d.Box.Clip(float64(d.ImageW), float64(d.ImageH))
		}
		if d.Box.Width() < minBoxSize || d.Box.Height() < minBoxSize || d.Box.Area() <= 0 {
			continue
		}
		clipped = append(clipped, d)
	}

	out := make([]detection.Detection, 0, len(clipped))
	for _, i := range byConfidenceDesc(clipped) {
		d := clipped[i]
		if slices.ContainsFunc(out, func(k detection.Detection) bool {
			return overlapRatio(d.Box, k.Box) > maxOverlap
		}) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Apply runs the canonical chain: thresholds, NMS, annotation clean-up.
func (f Filter) Apply(dets []detection.Detection, p Params) []detection.Detection {
	kept := f.ByConfidence(dets)
	kept = Select(kept, NMS(kept, p.IOU))
	out := OptimizeForAnnotation(kept, p.MinBoxSize, p.MaxOverlap)

	GetLogger().Debug("Detections filtered",
		logger.Int("input", len(dets)),
		logger.Int("after_threshold", len(kept)),
		logger.Int("output", len(out)))
	return out
}

// ToShapes converts detections to AI-tagged shapes.
func ToShapes(dets []detection.Detection) []*shape.Shape {
	out := make([]*shape.Shape, 0, len(dets))
	for _, d := range dets {
		out = append(out, d.ToShape())
	}
	return out
}
