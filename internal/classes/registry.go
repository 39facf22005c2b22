// Package classes maintains the persistent class registry: the ordered list
// mapping class names to integer ids across sessions and dataset builds.
//
// Ids are insertion indexes and are never reassigned. Reopening a registry
// file yields the same id for every name previously stored in it.
package classes

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tphakala/boxlabel/internal/errors"
	"github.com/tphakala/boxlabel/internal/fsutil"
	"github.com/tphakala/boxlabel/internal/logger"
)

const registryVersion = "1.0"

// Class sources recorded in metadata
const (
	SourceManual  = "manual"
	SourceAuto    = "auto"
	SourceDataset = "dataset"
)

var (
	// ErrDuplicateClass is returned by AddClass for an existing name when
	// duplicates are not allowed.
	ErrDuplicateClass = errors.NewStd("class already registered")
	// ErrInvalidName is returned for empty names and, in strict mode, for
	// names that are not plain identifiers.
	ErrInvalidName = errors.NewStd("invalid class name")
)

var strictName = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// Metadata describes one registered class.
type Metadata struct {
	Description string `yaml:"description"`
	AddedAt     string `yaml:"added_at"`
	UsageCount  int    `yaml:"usage_count"`
	Source      string `yaml:"source"`
}

// Settings are the registry policies stored in the file.
type Settings struct {
	AutoSort         bool `yaml:"auto_sort"`
	CaseSensitive    bool `yaml:"case_sensitive"`
	AllowDuplicates  bool `yaml:"allow_duplicates"`
	ValidationStrict bool `yaml:"validation_strict"`
}

// DefaultSettings are applied to new registries.
func DefaultSettings() Settings {
	return Settings{AutoSort: true, CaseSensitive: true}
}

type registryFile struct {
	Version       string              `yaml:"version"`
	CreatedAt     string              `yaml:"created_at"`
	Description   string              `yaml:"description"`
	Classes       []string            `yaml:"classes"`
	ClassMetadata map[string]Metadata `yaml:"class_metadata"`
	Settings      Settings            `yaml:"settings"`
}

// Registry is the class registry bound to one YAML file. It is safe for
// concurrent use within a process; concurrent writers across processes are
// not supported.
type Registry struct {
	path  string
	mu    sync.RWMutex
	doc   registryFile
	index map[string]int
	dirty bool
	now   func() time.Time
}

// Load reads the registry at path. A missing file yields an empty registry
// that is created on the first Save.
func Load(path string) (*Registry, error) {
	r := &Registry{path: path, now: time.Now}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		r.doc = r.emptyDoc()
		r.reindex()
		GetLogger().Debug("Class registry not found, starting empty", logger.String("path", path))
		return r, nil
	case err != nil:
		return nil, errors.New(err).
			Component("classes").
			Category(errors.CategoryFileIO).
			Context("operation", "load_registry").
			FileContext(path, 0).
			Build()
	}

	if err := r.decode(data); err != nil {
		return nil, errors.New(fmt.Errorf("parse class registry %s: %w", path, err)).
			Component("classes").
			Category(errors.CategoryFileParsing).
			Context("operation", "load_registry").
			Build()
	}

	GetLogger().Debug("Class registry loaded",
		logger.String("path", path),
		logger.Int("classes", len(r.doc.Classes)))
	return r, nil
}

func (r *Registry) emptyDoc() registryFile {
	return registryFile{
		Version:       registryVersion,
		CreatedAt:     r.now().Format(time.RFC3339),
		Description:   "Class registry: class ids are insertion order and never change",
		ClassMetadata: map[string]Metadata{},
		Settings:      DefaultSettings(),
	}
}

func (r *Registry) decode(data []byte) error {
	doc := registryFile{Settings: DefaultSettings()}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return err
		}
	}
	if doc.Version == "" {
		doc.Version = registryVersion
	}
	if doc.CreatedAt == "" {
		doc.CreatedAt = r.now().Format(time.RFC3339)
	}
	if doc.ClassMetadata == nil {
		doc.ClassMetadata = map[string]Metadata{}
	}
	r.doc = doc
	r.reindex()
	return nil
}

func (r *Registry) key(name string) string {
	if r.doc.Settings.CaseSensitive {
		return name
	}
	return strings.ToLower(name)
}

func (r *Registry) reindex() {
	r.index = make(map[string]int, len(r.doc.Classes))
	for i, n := range r.doc.Classes {
		if _, seen := r.index[r.key(n)]; !seen {
			r.index[r.key(n)] = i
		}
	}
}

// Path returns the backing file.
func (r *Registry) Path() string {
	return r.path
}

// Settings returns the registry policies.
func (r *Registry) Settings() Settings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.doc.Settings
}

// SetSettings replaces the registry policies.
func (r *Registry) SetSettings(s Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc.Settings = s
	r.dirty = true
	r.reindex()
}

func (r *Registry) validate(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidName
	}
	if r.doc.Settings.ValidationStrict && !strictName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// AddClass appends name and returns its id. Adding a registered name leaves
// the registry unchanged and returns the existing id, together with
// ErrDuplicateClass unless duplicates are allowed.
func (r *Registry) AddClass(name, description string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addLocked(name, description, SourceManual)
}

func (r *Registry) addLocked(name, description, source string) (int, error) {
	name = strings.TrimSpace(name)
	if err := r.validate(name); err != nil {
		return -1, errors.New(err).
			Component("classes").
			Category(errors.CategoryValidation).
			Context("class", name).
			Build()
	}

	if id, ok := r.index[r.key(name)]; ok {
		if r.doc.Settings.AllowDuplicates {
			return id, nil
		}
		return id, errors.New(fmt.Errorf("%w: %s", ErrDuplicateClass, name)).
			Component("classes").
			Category(errors.CategoryConflict).
			Context("class_id", id).
			Build()
	}

	id := len(r.doc.Classes)
	r.doc.Classes = append(r.doc.Classes, name)
	r.doc.ClassMetadata[name] = Metadata{
		Description: description,
		AddedAt:     r.now().Format(time.RFC3339),
		Source:      source,
	}
	r.index[r.key(name)] = id
	r.dirty = true

	GetLogger().Info("Class registered",
		logger.String("class", name),
		logger.Int("class_id", id),
		logger.String("source", source))
	return id, nil
}

// AddAll registers every unknown name in names, sorted alphabetically when
// auto_sort is set. It is meant for seeding an empty registry from a dataset.
func (r *Registry) AddAll(names []string, source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if _, ok := r.index[r.key(n)]; ok || slices.Contains(pending, n) {
			continue
		}
		pending = append(pending, n)
	}
	if r.doc.Settings.AutoSort {
		slices.Sort(pending)
	}
	for _, n := range pending {
		if _, err := r.addLocked(n, "", source); err != nil {
			return err
		}
	}
	return nil
}

// IDFor returns the id of name.
func (r *Registry) IDFor(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.index[r.key(strings.TrimSpace(name))]
	return id, ok
}

// Ensure returns the id of name, appending it when it is not registered.
func (r *Registry) Ensure(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.index[r.key(strings.TrimSpace(name))]; ok {
		return id, nil
	}
	return r.addLocked(name, "", SourceAuto)
}

// NameFor returns the class stored at id.
func (r *Registry) NameFor(id int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id < 0 || id >= len(r.doc.Classes) {
		return "", false
	}
	return r.doc.Classes[id], true
}

// Names returns the classes in id order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.doc.Classes)
}

// Len returns the number of registered classes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.doc.Classes)
}

// ToMapping returns name to id.
func (r *Registry) ToMapping() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := make(map[string]int, len(r.doc.Classes))
	for i, n := range r.doc.Classes {
		m[n] = i
	}
	return m
}

// IDToName returns id to name.
func (r *Registry) IDToName() map[int]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := make(map[int]string, len(r.doc.Classes))
	for i, n := range r.doc.Classes {
		m[i] = n
	}
	return m
}

// Metadata returns the metadata of name.
func (r *Registry) Metadata(name string) (Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.index[r.key(name)]
	if !ok {
		return Metadata{}, false
	}
	md, ok := r.doc.ClassMetadata[r.doc.Classes[id]]
	return md, ok
}

// IncrementUsage adds n to the usage counter of a registered class.
func (r *Registry) IncrementUsage(name string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.index[r.key(name)]
	if !ok {
		return
	}
	stored := r.doc.Classes[id]
	md := r.doc.ClassMetadata[stored]
	md.UsageCount += n
	r.doc.ClassMetadata[stored] = md
	r.dirty = true
}

// Dirty reports whether there are unsaved changes.
func (r *Registry) Dirty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dirty
}

// Save writes the registry atomically.
func (r *Registry) Save() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := fsutil.AtomicWriteFile(r.path, 0o644, func(w io.Writer) error {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(&r.doc); err != nil {
			return err
		}
		return enc.Close()
	})
	if err != nil {
		return errors.New(err).
			Component("classes").
			Category(errors.CategoryFileIO).
			Context("operation", "save_registry").
			FileContext(r.path, 0).
			Build()
	}
	r.dirty = false
	return nil
}

// Reset discards every class and starts a new registry file. Ids assigned
// before the reset are no longer valid, so this is only offered as an
// explicit user action.
func (r *Registry) Reset() error {
	r.mu.Lock()
	settings := r.doc.Settings
	r.doc = r.emptyDoc()
	r.doc.Settings = settings
	r.reindex()
	r.dirty = true
	r.mu.Unlock()

	GetLogger().Warn("Class registry reset", logger.String("path", r.path))
	return r.Save()
}
