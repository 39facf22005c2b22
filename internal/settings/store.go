// Package settings is the schema-less per-user key/value store and the
// delete-confirmation policy built on it.
package settings

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"slices"
	"sync"

	"github.com/tphakala/boxlabel/internal/errors"
	"github.com/tphakala/boxlabel/internal/fsutil"
	"github.com/tphakala/boxlabel/internal/logger"
)

// FileName is the settings file name inside the user data directory.
const FileName = "settings.json"

// ErrSettingsWriteFailed wraps every failure to persist the store.
var ErrSettingsWriteFailed = errors.NewStd("settings write failed")

// Store holds arbitrary JSON values by key. Keys it does not know are kept
// and written back unchanged.
type Store struct {
	path   string
	mu     sync.RWMutex
	values map[string]any
}

// Open loads the store at path. A missing file yields an empty store.
func Open(path string) (*Store, error) {
	s := &Store{path: path, values: make(map[string]any)}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return s, nil
	case err != nil:
		return nil, errors.New(err).
			Component("settings").
			Category(errors.CategoryFileIO).
			Context("operation", "load_settings").
			FileContext(path, 0).
			Build()
	}

	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.values); err != nil {
		return nil, errors.New(fmt.Errorf("parse settings %s: %w", path, err)).
			Component("settings").
			Category(errors.CategoryFileParsing).
			Build()
	}
	if s.values == nil {
		s.values = make(map[string]any)
	}
	return s, nil
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Get returns the raw value for key.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Bool returns key as a bool, or def when missing or of another type.
func (s *Store) Bool(key string, def bool) bool {
	if v, ok := s.Get(key); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// String returns key as a string, or def when missing or of another type.
func (s *Store) String(key, def string) string {
	if v, ok := s.Get(key); ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return def
}

// Float returns key as a number, or def when missing or of another type.
func (s *Store) Float(key string, def float64) float64 {
	if v, ok := s.Get(key); ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return def
}

// Set stores value under key in memory. Call Save to persist.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Delete removes key in memory.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Keys returns the stored keys, sorted.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.values))
}

// Reset discards every key and persists the empty store.
func (s *Store) Reset() error {
	s.mu.Lock()
	removed := len(s.values)
	s.values = make(map[string]any)
	s.mu.Unlock()

	GetLogger().Info("Settings reset", logger.Int("removed", removed))
	return s.Save()
}

// Save writes the store atomically.
func (s *Store) Save() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.values, "", "  ")
	s.mu.RUnlock()
	if err == nil {
		err = fsutil.WriteFileAtomic(s.path, data, 0o600)
	}
	if err != nil {
		return errors.New(fmt.Errorf("%w: %w", ErrSettingsWriteFailed, err)).
			Component("settings").
			Category(errors.CategorySettings).
			Context("operation", "save_settings").
			FileContext(s.path, int64(len(data))).
			Build()
	}
	return nil
}
