// Package history records which images past training runs consumed, so new
// datasets can leave them out.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/tphakala/boxlabel/internal/errors"
	"github.com/tphakala/boxlabel/internal/fsutil"
	"github.com/tphakala/boxlabel/internal/logger"
)

const historyVersion = "1.0"

// ErrUnknownSession is returned by MarkImages for an unrecorded session id.
var ErrUnknownSession = errors.NewStd("unknown training session")

// Record describes one training run.
type Record struct {
	SessionID         string    `json:"session_id"`
	Timestamp         time.Time `json:"timestamp"`
	Model             string    `json:"model"`
	Epochs            int       `json:"epochs"`
	DatasetPath       string    `json:"dataset_path"`
	Notes             string    `json:"notes,omitempty"`
	ImageFingerprints []string  `json:"image_fingerprints"`
}

// Stats summarizes the history for display.
type Stats struct {
	Sessions      int
	TrainedImages int
	LastSession   time.Time
	Models        map[string]int
	TotalEpochs   int
}

type historyFile struct {
	Version    string    `json:"version"`
	Sessions   []*Record `json:"sessions"`
	TrainedSet []string  `json:"trained_set"`
}

// Store is the training history bound to one JSON file.
type Store struct {
	path    string
	fold    bool
	mu      sync.RWMutex
	doc     historyFile
	trained map[string]struct{}
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithCaseFolding overrides the platform default for fingerprint case
// folding.
func WithCaseFolding(fold bool) Option {
	return func(s *Store) { s.fold = fold }
}

// caseInsensitiveFS reports whether the platform's default filesystem ignores
// case.
func caseInsensitiveFS() bool {
	return runtime.GOOS == "windows" || runtime.GOOS == "darwin"
}

// Open loads the history at path; a missing file is an empty history.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:    path,
		fold:    caseInsensitiveFS(),
		trained: make(map[string]struct{}),
		now:     time.Now,
		doc:     historyFile{Version: historyVersion},
	}
	for _, opt := range opts {
		opt(s)
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return s, nil
	case err != nil:
		return nil, errors.New(err).
			Component("history").
			Category(errors.CategoryFileIO).
			Context("operation", "load_history").
			FileContext(path, 0).
			Build()
	}

	if err := json.Unmarshal(data, &s.doc); err != nil {
		return nil, errors.New(fmt.Errorf("parse training history %s: %w", path, err)).
			Component("history").
			Category(errors.CategoryFileParsing).
			Build()
	}
	for _, fp := range s.doc.TrainedSet {
		s.trained[fp] = struct{}{}
	}
	return s, nil
}

// Fingerprint returns the canonical identity of an image path: absolute,
// cleaned, NFC-normalized and, on case-insensitive filesystems, case-folded.
func (s *Store) Fingerprint(path string) string {
	return fingerprint(path, s.fold)
}

var folder = cases.Fold()

func fingerprint(path string, fold bool) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	fp := norm.NFC.String(abs)
	if fold {
		fp = folder.String(fp)
	}
	return fp
}

// AddSession appends rec, assigning a session id and timestamp when absent.
// Images listed in rec.ImageFingerprints are treated as paths and marked.
func (s *Store) AddSession(rec Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.SessionID == "" {
		rec.SessionID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now().UTC()
	}
	paths := rec.ImageFingerprints
	rec.ImageFingerprints = nil
	stored := rec
	s.doc.Sessions = append(s.doc.Sessions, &stored)
	s.markLocked(&stored, paths)

	if err := s.saveLocked(); err != nil {
		return "", err
	}
	GetLogger().Info("Training session recorded",
		logger.String("session_id", stored.SessionID),
		logger.String("model", stored.Model),
		logger.Int("images", len(stored.ImageFingerprints)))
	return stored.SessionID, nil
}

// MarkImages adds the fingerprints of paths to the session and to the global
// trained set.
func (s *Store) MarkImages(sessionID string, paths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.IndexFunc(s.doc.Sessions, func(r *Record) bool { return r.SessionID == sessionID })
	if idx < 0 {
		return errors.New(fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)).
			Component("history").
			Category(errors.CategoryNotFound).
			Build()
	}
	s.markLocked(s.doc.Sessions[idx], paths)
	return s.saveLocked()
}

func (s *Store) markLocked(rec *Record, paths []string) {
	for _, p := range paths {
		fp := fingerprint(p, s.fold)
		if !slices.Contains(rec.ImageFingerprints, fp) {
			rec.ImageFingerprints = append(rec.ImageFingerprints, fp)
		}
		if _, ok := s.trained[fp]; !ok {
			s.trained[fp] = struct{}{}
			s.doc.TrainedSet = append(s.doc.TrainedSet, fp)
		}
	}
}

// IsTrained reports whether path was consumed by any recorded session.
func (s *Store) IsTrained(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.trained[fingerprint(path, s.fold)]
	return ok
}

// FilterUntrained returns the paths that no session consumed, in input order.
func (s *Store) FilterUntrained(paths []string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := s.trained[fingerprint(p, s.fold)]; !ok {
			out = append(out, p)
		}
	}
	return out
}

// Sessions returns copies of the recorded sessions, oldest first.
func (s *Store) Sessions() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.doc.Sessions))
	for _, r := range s.doc.Sessions {
		c := *r
		c.ImageFingerprints = slices.Clone(r.ImageFingerprints)
		out = append(out, c)
	}
	return out
}

// Stats returns counts for display.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		Sessions:      len(s.doc.Sessions),
		TrainedImages: len(s.trained),
		Models:        map[string]int{},
	}
	for _, r := range s.doc.Sessions {
		st.Models[r.Model]++
		st.TotalEpochs += r.Epochs
		if r.Timestamp.After(st.LastSession) {
			st.LastSession = r.Timestamp
		}
	}
	return st
}

func (s *Store) saveLocked() error {
	doc := s.doc
	doc.TrainedSet = slices.Clone(s.doc.TrainedSet)
	sort.Strings(doc.TrainedSet)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return errors.New(err).
			Component("history").
			Category(errors.CategoryFileIO).
			Context("operation", "save_history").
			FileContext(s.path, 0).
			Build()
	}
	return nil
}
