package confidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/boxlabel/internal/detection"
	"github.com/tphakala/boxlabel/internal/shape"
)

func det(class string, conf, x1, y1, x2, y2 float64) detection.Detection {
	return detection.Detection{
		Box:        shape.Rect{XMin: x1, YMin: y1, XMax: x2, YMax: y2},
		Confidence: conf,
		ClassName:  class,
		ImageW:     200,
		ImageH:     200,
	}
}

func sampleDetections() []detection.Detection {
	return []detection.Detection{
		det("cat", 0.90, 10, 10, 60, 60),
		det("cat", 0.80, 12, 12, 62, 62),
		det("dog", 0.40, 100, 100, 150, 150),
		det("dog", 0.20, 105, 100, 155, 150),
		det("bird", 0.55, 0, 150, 30, 190),
		det("cat", 0.70, 30, 30, 80, 80),
	}
}

func TestByConfidencePerClass(t *testing.T) {
	t.Parallel()

	f := Filter{Threshold: 0.3, PerClass: map[string]float64{"cat": 0.85, "bird": 0.1}}
	got := f.ByConfidence(sampleDetections())

	var names []string
	for _, d := range got {
		names = append(names, d.ClassName)
	}
	// bird keeps the global 0.3 because the larger threshold wins
	assert.Equal(t, []string{"cat", "dog", "bird"}, names)
	assert.InDelta(t, 0.3, f.ThresholdFor("bird"), 1e-9)
	assert.InDelta(t, 0.85, f.ThresholdFor("cat"), 1e-9)
}

func TestFilterClosure(t *testing.T) {
	t.Parallel()

	dets := sampleDetections()
	thresholds := []float64{0, 0.2, 0.4, 0.55, 0.7, 0.85, 1}
	for _, t1 := range thresholds {
		for _, t2 := range thresholds {
			twice := Filter{Threshold: t2}.ByConfidence(Filter{Threshold: t1}.ByConfidence(dets))
			once := Filter{Threshold: max(t1, t2)}.ByConfidence(dets)
			assert.Equal(t, once, twice, "t1=%.2f t2=%.2f", t1, t2)
		}
	}
}

func TestNMS(t *testing.T) {
	t.Parallel()

	dets := sampleDetections()
	kept := NMS(dets, 0.5)
	// highest confidence first; the near-duplicate cat and dog are suppressed
	assert.Equal(t, []int{0, 5, 4, 2}, kept)
}

func TestNMSMonotonic(t *testing.T) {
	t.Parallel()

	dets := sampleDetections()
	thresholds := []float64{0, 0.1, 0.3, 0.5, 0.7, 0.9, 1}
	for i := 1; i < len(thresholds); i++ {
		lower := NMS(dets, thresholds[i-1])
		higher := NMS(dets, thresholds[i])
		for _, idx := range lower {
			assert.Contains(t, higher, idx, "iou %.1f dropped box %d kept at %.1f",
				thresholds[i], idx, thresholds[i-1])
		}
	}
}

func TestOptimizeForAnnotation(t *testing.T) {
	t.Parallel()

	dets := []detection.Detection{
		det("a", 0.9, 10, 10, 100, 100),
		// fully inside the first box: overlap ratio 1 although IoU is small
		det("a", 0.6, 20, 20, 40, 40),
		// too small
		det("b", 0.8, 150, 150, 152, 190),
		// partially outside the image
		det("c", 0.7, 180, 180, 260, 240),
	}
	got := OptimizeForAnnotation(dets, 4, 0.8)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ClassName)
	assert.Equal(t, "c", got[1].ClassName)
	assert.Equal(t, shape.Rect{XMin: 180, YMin: 180, XMax: 200, YMax: 200}, got[1].Box)
}

func TestApplyAndToShapes(t *testing.T) {
	t.Parallel()

	f := Filter{Threshold: 0.3}
	out := f.Apply(sampleDetections(), Params{IOU: 0.5, MinBoxSize: 4, MaxOverlap: 0.8})
	require.NotEmpty(t, out)

	shapes := ToShapes(out)
	require.Len(t, shapes, len(out))
	for _, s := range shapes {
		assert.True(t, s.AIGenerated)
		assert.True(t, s.IsClosed())
	}
}

func TestConfidenceDistribution(t *testing.T) {
	t.Parallel()

	empty := ConfidenceDistribution(nil)
	assert.Zero(t, empty.Count)

	dist := ConfidenceDistribution([]detection.Detection{
		det("a", 0.2, 0, 0, 1, 1),
		det("a", 0.4, 0, 0, 1, 1),
		det("b", 0.6, 0, 0, 1, 1),
		det("b", 1.0, 0, 0, 1, 1),
	})
	assert.Equal(t, 4, dist.Count)
	assert.InDelta(t, 0.55, dist.Mean, 1e-9)
	assert.InDelta(t, 0.2, dist.Min, 1e-9)
	assert.InDelta(t, 1.0, dist.Max, 1e-9)
	assert.Positive(t, dist.StdDev)
	assert.Equal(t, 2, dist.PerClass["a"])
	assert.Equal(t, 1, dist.Histogram[9])
	assert.Equal(t, 1, dist.Histogram[2])
}
