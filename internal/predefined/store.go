// Package predefined keeps the user's master label list: one label per line
// in a file under the user's application directory, seeded from a bundled
// default list on first run.
package predefined

import (
	"bufio"
	"bytes"
	_ "embed"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/tphakala/boxlabel/internal/errors"
	"github.com/tphakala/boxlabel/internal/fsutil"
	"github.com/tphakala/boxlabel/internal/logger"
)

// FileName is the label list file name inside the user directory.
const FileName = "predefined_classes.txt"

//go:embed predefined_classes.txt
var defaultLabels []byte

// ErrNotConfirmed is returned by Clear without confirmation.
var ErrNotConfirmed = errors.NewStd("clearing predefined labels requires confirmation")

// Store is the deduplicated, insertion-ordered label list.
type Store struct {
	path   string
	mu     sync.RWMutex
	labels []string
}

// Open loads the list at path, seeding it from the bundled defaults when the
// file does not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		s.labels = parseLabels(defaultLabels)
		if err := s.persist(); err != nil {
			return nil, err
		}
		GetLogger().Info("Seeded predefined labels",
			logger.String("path", path),
			logger.Int("labels", len(s.labels)))
		return s, nil
	case err != nil:
		return nil, errors.New(err).
			Component("predefined").
			Category(errors.CategoryFileIO).
			Context("operation", "load_predefined").
			FileContext(path, 0).
			Build()
	}

	s.labels = parseLabels(data)
	return s, nil
}

func parseLabels(data []byte) []string {
	var labels []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		l := strings.TrimSpace(scanner.Text())
		if l != "" && !slices.Contains(labels, l) {
			labels = append(labels, l)
		}
	}
	return labels
}

// List returns the labels in insertion order.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.labels)
}

// Contains reports whether label is in the list.
func (s *Store) Contains(label string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.labels, strings.TrimSpace(label))
}

// Add appends label when it is new and rewrites the file. It reports whether
// the list changed.
func (s *Store) Add(label string) (bool, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.labels, label) {
		return false, nil
	}
	s.labels = append(s.labels, label)
	if err := s.persist(); err != nil {
		s.labels = s.labels[:len(s.labels)-1]
		return false, err
	}
	return true, nil
}

// Clear wipes the list and the file. confirm must be true.
func (s *Store) Clear(confirm bool) error {
	if !confirm {
		return ErrNotConfirmed
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.labels
	s.labels = nil
	if err := s.persist(); err != nil {
		s.labels = previous
		return err
	}
	GetLogger().Info("Predefined labels cleared", logger.Int("removed", len(previous)))
	return nil
}

func (s *Store) persist() error {
	var buf bytes.Buffer
	for _, l := range s.labels {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	if err := fsutil.WriteFileAtomic(s.path, buf.Bytes(), 0o644); err != nil {
		return errors.New(err).
			Component("predefined").
			Category(errors.CategoryFileIO).
			Context("operation", "save_predefined").
			FileContext(s.path, 0).
			Build()
	}
	return nil
}
