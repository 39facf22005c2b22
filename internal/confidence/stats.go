package confidence

import (
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/tphakala/boxlabel/internal/detection"
)

// histogramBins is the number of equal-width confidence buckets over [0,1].
const histogramBins = 10

// Distribution summarizes detection confidences for display.
type Distribution struct {
	Count     int
	Mean      float64
	StdDev    float64
	Min       float64
	Max       float64
	Median    float64
	P25       float64
	P75       float64
	Histogram [histogramBins]int
	PerClass  map[string]int
}

// ConfidenceDistribution computes summary statistics over dets.
func ConfidenceDistribution(dets []detection.Detection) Distribution {
	dist := Distribution{Count: len(dets), PerClass: make(map[string]int)}
	if len(dets) == 0 {
		return dist
	}

	values := make([]float64, len(dets))
	for i, d := range dets {
		values[i] = d.Confidence
		dist.PerClass[d.ClassName]++
		bin := int(d.Confidence * histogramBins)
		dist.Histogram[min(max(bin, 0), histogramBins-1)]++
	}
	slices.Sort(values)

	dist.Mean = stat.Mean(values, nil)
	if len(values) > 1 {
		dist.StdDev = stat.StdDev(values, nil)
	}
	dist.Min = floats.Min(values)
	dist.Max = floats.Max(values)
	dist.Median = stat.Quantile(0.5, stat.Empirical, values, nil)
	dist.P25 = stat.Quantile(0.25, stat.Empirical, values, nil)
	dist.P75 = stat.Quantile(0.75, stat.Empirical, values, nil)
	return dist
}
