// Package training keeps the user's training preferences: defaults, manual
// epoch adjustments per dataset and past smart-epoch recommendations.
package training

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/tphakala/boxlabel/internal/epochs"
	"github.com/tphakala/boxlabel/internal/errors"
	"github.com/tphakala/boxlabel/internal/fsutil"
	"github.com/tphakala/boxlabel/internal/logger"
)

// FileName is the preferences file name inside the config directory.
const FileName = "training_preferences.json"

// Retention limits
const (
	MaxAdjustmentsPerDataset = 10
	MaxSmartHistory          = 20

	// SimilarityThreshold is the combined score a past record must exceed
	// to count as similar.
	SimilarityThreshold = 0.7
)

// Defaults are the training parameters offered when nothing else applies.
type Defaults struct {
	Epochs       int     `json:"epochs"`
	BatchSize    int     `json:"batch_size"`
	LearningRate float64 `json:"learning_rate"`
	ModelType    string  `json:"model_type"`
	Device       string  `json:"device"`
}

// DefaultDefaults returns the factory defaults.
func DefaultDefaults() Defaults {
	return Defaults{
		Epochs:       100,
		BatchSize:    16,
		LearningRate: 0.01,
		ModelType:    "s",
		Device:       "auto",
	}
}

// Adjustment records a user overriding a suggested epoch count.
type Adjustment struct {
	Original  int       `json:"original"`
	Adjusted  int       `json:"adjusted"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SmartRecord is one past smart-epoch calculation.
type SmartRecord struct {
	Dataset     string       `json:"dataset"`
	Stats       epochs.Stats `json:"stats"`
	Model       string       `json:"model"`
	BatchSize   int          `json:"batch_size"`
	Recommended int          `json:"recommended"`
	Confidence  string       `json:"confidence"`
	Timestamp   time.Time    `json:"timestamp"`
}

// Match is a past record with its similarity to the queried dataset.
type Match struct {
	Record     SmartRecord
	Similarity float64
}

type preferencesFile struct {
	Defaults     Defaults                `json:"defaults"`
	Adjustments  map[string][]Adjustment `json:"dataset_adjustments"`
	SmartHistory []SmartRecord           `json:"smart_history"`
}

// Store is the preferences document bound to one JSON file.
type Store struct {
	path string
	mu   sync.RWMutex
	doc  preferencesFile
	now  func() time.Time
}

// Open loads the preferences at path. A missing file yields factory
// defaults.
func Open(path string) (*Store, error) {
	s := &Store{
		path: path,
		now:  time.Now,
		doc: preferencesFile{
			Defaults:    DefaultDefaults(),
			Adjustments: make(map[string][]Adjustment),
		},
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return s, nil
	case err != nil:
		return nil, errors.New(err).
			Component("training").
			Category(errors.CategoryFileIO).
			Context("operation", "load_preferences").
			FileContext(path, 0).
			Build()
	}

	if err := json.Unmarshal(data, &s.doc); err != nil {
		return nil, errors.New(fmt.Errorf("parse training preferences %s: %w", path, err)).
			Component("training").
			Category(errors.CategoryFileParsing).
			Build()
	}
	if s.doc.Adjustments == nil {
		s.doc.Adjustments = make(map[string][]Adjustment)
	}
	s.fillDefaults()
	return s, nil
}

// fillDefaults replaces zero fields left by older or hand-edited files.
func (s *Store) fillDefaults() {
	def := DefaultDefaults()
	d := &s.doc.Defaults
	if d.Epochs <= 0 {
		d.Epochs = def.Epochs
	}
	if d.BatchSize <= 0 {
		d.BatchSize = def.BatchSize
	}
	if d.LearningRate <= 0 {
		d.LearningRate = def.LearningRate
	}
	if d.ModelType == "" {
		d.ModelType = def.ModelType
	}
	if d.Device == "" {
		d.Device = def.Device
	}
}

// DatasetKey canonicalizes a dataset path for lookups.
func DatasetKey(dataset string) string {
	if abs, err := filepath.Abs(dataset); err == nil {
		return abs
	}
	return filepath.Clean(dataset)
}

// Defaults returns the stored defaults.
func (s *Store) Defaults() Defaults {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Defaults
}

// SetDefaults replaces the defaults and saves.
func (s *Store) SetDefaults(d Defaults) error {
	s.mu.Lock()
	s.doc.Defaults = d
	s.fillDefaults()
	s.mu.Unlock()
	return s.Save()
}

// RecordAdjustment stores that the user changed the suggested epochs for
// dataset, keeping the most recent entries only, and saves.
func (s *Store) RecordAdjustment(dataset string, original, adjusted int, reason string) error {
	key := DatasetKey(dataset)
	s.mu.Lock()
	list := append(s.doc.Adjustments[key], Adjustment{
		Original:  original,
		Adjusted:  adjusted,
		Reason:    reason,
		Timestamp: s.now().UTC(),
	})
	if len(list) > MaxAdjustmentsPerDataset {
		list = list[len(list)-MaxAdjustmentsPerDataset:]
	}
	s.doc.Adjustments[key] = list
	s.mu.Unlock()

	GetLogger().Info("Epoch adjustment recorded",
		logger.String("dataset", key),
		logger.Int("original", original),
		logger.Int("adjusted", adjusted))
	return s.Save()
}

// Adjustments returns the recorded adjustments for dataset, oldest first.
func (s *Store) Adjustments(dataset string) []Adjustment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Adjustment(nil), s.doc.Adjustments[DatasetKey(dataset)]...)
}

// UserOverride returns the latest adjustment for dataset, if the user ever
// overrode the suggestion.
func (s *Store) UserOverride(dataset string) (Adjustment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.doc.Adjustments[DatasetKey(dataset)]
	if len(list) == 0 {
		return Adjustment{}, false
	}
	return list[len(list)-1], true
}

// RecordRecommendation appends a smart-epoch result to the global history
// and saves.
func (s *Store) RecordRecommendation(dataset string, stats epochs.Stats, model string, batch int, rec epochs.Recommendation) error {
	s.mu.Lock()
	s.doc.SmartHistory = append(s.doc.SmartHistory, SmartRecord{
		Dataset:     DatasetKey(dataset),
		Stats:       stats,
		Model:       model,
		BatchSize:   batch,
		Recommended: rec.Recommended,
		Confidence:  rec.Confidence,
		Timestamp:   s.now().UTC(),
	})
	if n := len(s.doc.SmartHistory); n > MaxSmartHistory {
		s.doc.SmartHistory = s.doc.SmartHistory[n-MaxSmartHistory:]
	}
	s.mu.Unlock()
	return s.Save()
}

// History returns the smart-epoch history, oldest first.
func (s *Store) History() []SmartRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]SmartRecord(nil), s.doc.SmartHistory...)
}

// Similar returns past records whose combined image-count and class-count
// similarity to stats exceeds SimilarityThreshold, most similar first.
func (s *Store) Similar(stats epochs.Stats) []Match {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []Match
	for _, rec := range s.doc.SmartHistory {
		sim := Similarity(stats, rec.Stats)
		if sim > SimilarityThreshold {
			matches = append(matches, Match{Record: rec, Similarity: sim})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	return matches
}

// Similarity scores two datasets in [0,1] as the mean of their image-count
// and class-count ratios.
func Similarity(a, b epochs.Stats) float64 {
	return (ratio(a.Total(), b.Total()) + ratio(a.NumClasses, b.NumClasses)) / 2
}

func ratio(a, b int) float64 {
	hi := max(a, b)
	if hi == 0 {
		return 1
	}
	return 1 - math.Abs(float64(a-b))/float64(hi)
}

// Save writes the preferences atomically.
func (s *Store) Save() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.doc, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return errors.New(err).
			Component("training").
			Category(errors.CategoryConfiguration).
			Context("operation", "encode_preferences").
			Build()
	}
	if err := fsutil.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return errors.New(err).
			Component("training").
			Category(errors.CategoryFileIO).
			Context("operation", "save_preferences").
			FileContext(s.path, int64(len(data))).
			Build()
	}
	return nil
}
