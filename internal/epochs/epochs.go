// Package epochs recommends a training epoch count from dataset statistics.
package epochs

import (
	"fmt"
	"math"
	"strings"
)

// Bounds applied to every recommendation.
const (
	MinEpochs = 50
	MaxEpochs = 500

	// DefaultBatchSize is used when the caller passes a non-positive batch.
	DefaultBatchSize = 16
)

// Confidence levels
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Stats describes the dataset being trained on.
type Stats struct {
	TrainImages int `json:"train_images"`
	ValImages   int `json:"val_images"`
	NumClasses  int `json:"num_classes"`
}

// Total returns train plus val images.
func (s Stats) Total() int {
	return s.TrainImages + s.ValImages
}

// TrainRatio returns the share of images in the training split, 0 for an
// empty dataset.
func (s Stats) TrainRatio() float64 {
	if s.Total() == 0 {
		return 0
	}
	return float64(s.TrainImages) / float64(s.Total())
}

// Recommendation is the calculator output. Min and Max bound a sensible
// range around Recommended.
type Recommendation struct {
	Recommended int      `json:"recommended"`
	Min         int      `json:"min"`
	Max         int      `json:"max"`
	Confidence  string   `json:"confidence"`
	Rationale   []string `json:"rationale"`
	Notes       []string `json:"notes,omitempty"`
}

type sizeTier struct {
	name   string
	limit  int
	epochs float64
}

var sizeTiers = []sizeTier{
	{"very small", 100, 200},
	{"small", 800, 150},
	{"medium", 3000, 100},
	{"large", 10000, 80},
	{"very large", math.MaxInt, 60},
}

var modelFactors = map[string]float64{
	"n": 0.8,
	"s": 1.0,
	"m": 1.2,
	"l": 1.4,
	"x": 1.6,
}

// ModelSize extracts the size letter from names such as "s", "yolov8s" or
// "yolo11m.pt". It returns "" when no size letter is found.
func ModelSize(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	if i := strings.LastIndexByte(m, '.'); i > 0 {
		m = m[:i]
	}
	if m == "" {
		return ""
	}
	last := m[len(m)-1:]
	if _, ok := modelFactors[last]; ok {
		return last
	}
	return ""
}

// Recommend computes the epoch recommendation for a dataset, model size and
// batch size.
func Recommend(stats Stats, model string, batch int) Recommendation {
	var rationale, notes []string
	total := stats.Total()

	tier := sizeTiers[len(sizeTiers)-1]
	for _, t := range sizeTiers {
		if total <= t.limit {
			tier = t
			break
		}
	}
	epochs := tier.epochs
	rationale = append(rationale, fmt.Sprintf("%s dataset (%d images): base %d epochs", tier.name, total, int(tier.epochs)))

	size := ModelSize(model)
	factor, ok := modelFactors[size]
	if !ok {
		factor = 1.0
		notes = append(notes, fmt.Sprintf("unknown model size %q, assuming medium complexity", model))
	}
	epochs *= factor
	if factor != 1.0 {
		rationale = append(rationale, fmt.Sprintf("model size %s: x%.1f", size, factor))
	}

	classFactor := classFactor(stats.NumClasses)
	epochs *= classFactor
	if classFactor != 1.0 {
		rationale = append(rationale, fmt.Sprintf("%d classes: x%.1f", stats.NumClasses, classFactor))
	}

	ratio := stats.TrainRatio()
	balanceFactor := 1.0
	switch {
	case total == 0:
	case ratio < 0.6:
		balanceFactor = 1.3
		notes = append(notes, fmt.Sprintf("training split is only %.0f%% of the data", ratio*100))
	case ratio > 0.9:
		balanceFactor = 0.8
		notes = append(notes, fmt.Sprintf("validation split is only %.0f%% of the data", (1-ratio)*100))
	}
	epochs *= balanceFactor
	if balanceFactor != 1.0 {
		rationale = append(rationale, fmt.Sprintf("train/val ratio %.2f: x%.1f", ratio, balanceFactor))
	}

	if batch <= 0 {
		batch = DefaultBatchSize
		notes = append(notes, fmt.Sprintf("batch size not set, assuming %d", DefaultBatchSize))
	}
	iterations := float64(total) / float64(batch)
	iterFactor := 1.0
	switch {
	case iterations < 10:
		iterFactor = 1.5
	case iterations > 100:
		iterFactor = 0.8
	}
	epochs *= iterFactor
	if iterFactor != 1.0 {
		rationale = append(rationale, fmt.Sprintf("%.1f iterations per epoch: x%.1f", iterations, iterFactor))
	}

	rec := int(math.Round(epochs))
	if rec < MinEpochs || rec > MaxEpochs {
		clamped := min(max(rec, MinEpochs), MaxEpochs)
		rationale = append(rationale, fmt.Sprintf("clamped %d to %d", rec, clamped))
		rec = clamped
	}

	if total < 100 {
		notes = append(notes, "small datasets overfit easily, watch the validation loss")
	}

	return Recommendation{
		Recommended: rec,
		Min:         max(MinEpochs, int(0.7*float64(rec))),
		Max:         min(MaxEpochs, int(1.3*float64(rec))),
		Confidence:  confidenceFor(stats),
		Rationale:   rationale,
		Notes:       notes,
	}
}

func classFactor(n int) float64 {
	switch {
	case n <= 1:
		return 1.0
	case n <= 5:
		return 0.9
	case n <= 20:
		return 1.0
	}
	return 1.2
}

// confidenceFor scores dataset size, class count and split balance.
func confidenceFor(s Stats) string {
	score := 0
	switch total := s.Total(); {
	case total >= 1000:
		score += 2
	case total >= 300:
		score++
	}
	if s.NumClasses >= 2 && s.NumClasses <= 50 {
		score++
	}
	if r := s.TrainRatio(); r >= 0.6 && r <= 0.9 {
		score++
	}

	switch {
	case score >= 3:
		return ConfidenceHigh
	case score == 2:
		return ConfidenceMedium
	}
	return ConfidenceLow
}
