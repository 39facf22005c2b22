// Package workspace is the editor-facing surface: it opens an image together
// with its annotation, merges predictions into it, saves it back and
// deletes images under the confirmation policy.
package workspace

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tphakala/boxlabel/internal/confidence"
	"github.com/tphakala/boxlabel/internal/detection"
	"github.com/tphakala/boxlabel/internal/errors"
	"github.com/tphakala/boxlabel/internal/format"
	"github.com/tphakala/boxlabel/internal/logger"
	"github.com/tphakala/boxlabel/internal/settings"
	"github.com/tphakala/boxlabel/internal/shape"
)

// ErrEmptyLabel is returned by AddLabel for blank input.
var ErrEmptyLabel = errors.NewStd("label is empty")

// LabelStore is the predefined label list.
type LabelStore interface {
	Add(label string) (bool, error)
}

// ClassStore is the class registry YOLO saves resolve ids through.
type ClassStore interface {
	Dirty() bool
	Save() error
}

// Document is one open image and its annotation.
type Document struct {
	ImagePath  string
	LabelPath  string // annotation the shapes were loaded from, empty if none
	Annotation *format.Annotation
	ImageBytes []byte
	Dirty      bool
}

// ConfirmFunc asks the user to confirm a delete in the given mode. It
// reports whether to proceed and, for the full dialog, whether the user
// opted out of future full confirmations.
type ConfirmFunc func(mode settings.ConfirmMode) (ok, dontAskAgain bool)

// Workspace binds the label-file facade to the editor settings.
type Workspace struct {
	labels     *format.LabelFile
	saveDir    string
	predefined LabelStore
	classes    ClassStore
	policy     *settings.DeletePolicy
	filter     confidence.Filter
	params     confidence.Params
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithSaveDir sets the directory annotations are saved to and preferred
// from. Empty means next to the image.
func WithSaveDir(dir string) Option {
	return func(w *Workspace) { w.saveDir = dir }
}

// WithPredefinedLabels sets the store AddLabel records into.
func WithPredefinedLabels(s LabelStore) Option {
	return func(w *Workspace) { w.predefined = s }
}

// WithClassRegistry sets the registry that is saved whenever a write
// assigned new class ids.
func WithClassRegistry(c ClassStore) Option {
	return func(w *Workspace) { w.classes = c }
}

// WithDeletePolicy sets the delete-confirmation policy.
func WithDeletePolicy(p *settings.DeletePolicy) Option {
	return func(w *Workspace) { w.policy = p }
}

// WithFilter sets the filter applied to predictions before they are merged.
func WithFilter(f confidence.Filter, p confidence.Params) Option {
	return func(w *Workspace) {
		w.filter = f
		w.params = p
	}
}

// New returns a workspace saving through labels.
func New(labels *format.LabelFile, opts ...Option) *Workspace {
	w := &Workspace{labels: labels}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// SaveDir returns the configured save directory.
func (w *Workspace) SaveDir() string {
	return w.saveDir
}

// findLabel returns the single annotation to load for imagePath. The save
// directory is searched first; the image's own directory is only used when
// the save directory holds nothing for this image.
func (w *Workspace) findLabel(imagePath string) (string, bool) {
	exts := []string{w.labels.Ext()}
	for _, ext := range []string{format.ExtVOC, format.ExtYOLO, format.ExtCreateML} {
		if !slices.Contains(exts, ext) {
			exts = append(exts, ext)
		}
	}

	bases := []string{format.LabelPathFor(imagePath, w.saveDir)}
	if w.saveDir != "" {
		bases = append(bases, format.LabelPathFor(imagePath, ""))
	}
	for _, base := range bases {
		for _, ext := range exts {
			p := base + ext
			if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
				return p, true
			}
		}
	}
	return "", false
}

// Open loads imagePath and its annotation, if any.
func (w *Workspace) Open(imagePath string) (*Document, error) {
	if labelPath, ok := w.findLabel(imagePath); ok {
		loaded, err := w.labels.Load(labelPath, imagePath)
		if err != nil {
			return nil, err
		}
		if loaded.ImageBytes == nil {
			return nil, imageError(imagePath, os.ErrNotExist)
		}
		GetLogger().Debug("Opened annotated image",
			logger.String("image", imagePath),
			logger.String("annotation", labelPath),
			logger.Int("shapes", len(loaded.Annotation.Shapes)))
		return &Document{
			ImagePath:  imagePath,
			LabelPath:  labelPath,
			Annotation: loaded.Annotation,
			ImageBytes: loaded.ImageBytes,
		}, nil
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, imageError(imagePath, err)
	}
	ann := &format.Annotation{
		ImageFilename: filepath.Base(imagePath),
		ImagePath:     imagePath,
		Depth:         format.DefaultDepth,
	}
	if width, height, err := format.ImageSizeFromBytes(data); err == nil {
		ann.Width, ann.Height = width, height
	}
	return &Document{ImagePath: imagePath, Annotation: ann, ImageBytes: data}, nil
}

func imageError(path string, err error) error {
	return errors.New(err).
		Component("workspace").
		Category(errors.CategoryImage).
		Context("operation", "open_image").
		FileContext(path, 0).
		Build()
}

// Save writes the document's annotation in the configured format and
// returns the written path. An UnknownClassError still means the file was
// written.
func (w *Workspace) Save(doc *Document) (string, error) {
	if w.saveDir != "" {
		if err := os.MkdirAll(w.saveDir, 0o755); err != nil {
			return "", errors.New(err).
				Component("workspace").
				Category(errors.CategoryFileIO).
				Context("operation", "create_save_dir").
				FileContext(w.saveDir, 0).
				Build()
		}
	}

	path, err := w.labels.Save(format.LabelPathFor(doc.ImagePath, w.saveDir), doc.Annotation, doc.ImageBytes)
	if err != nil && !errors.Is(err, format.ErrUnknownClass) {
		return path, err
	}
	if w.classes != nil && w.classes.Dirty() {
		if saveErr := w.classes.Save(); saveErr != nil {
			return path, saveErr
		}
	}
	doc.LabelPath = path
	doc.Dirty = false
	return path, err
}

// ApplyPredictions filters result and replaces the document's AI shapes with
// it. Hand-drawn shapes are kept. It returns the number of shapes added.
func (w *Workspace) ApplyPredictions(doc *Document, result *detection.Result) int {
	dets := w.filter.Apply(result.Detections, w.params)
	ann := doc.Annotation
	if !ann.HasSize() && len(result.Detections) > 0 {
		ann.Width, ann.Height = result.Detections[0].ImageW, result.Detections[0].ImageH
	}

	removed := w.ClearAI(doc)
	ann.Shapes = append(ann.Shapes, confidence.ToShapes(dets)...)
	doc.Dirty = true

	GetLogger().Debug("Predictions applied",
		logger.String("image", doc.ImagePath),
		logger.Int("detections", len(result.Detections)),
		logger.Int("added", len(dets)),
		logger.Int("replaced", removed))
	return len(dets)
}

// ClearAI removes every AI-generated shape and returns how many were
// removed.
func (w *Workspace) ClearAI(doc *Document) int {
	before := len(doc.Annotation.Shapes)
	doc.Annotation.Shapes = slices.DeleteFunc(doc.Annotation.Shapes, func(s *shape.Shape) bool {
		return s.AIGenerated
	})
	removed := before - len(doc.Annotation.Shapes)
	if removed > 0 {
		doc.Dirty = true
	}
	return removed
}

// WriteResult opens the result's image, merges the predictions and saves.
func (w *Workspace) WriteResult(result *detection.Result) error {
	doc, err := w.Open(result.ImagePath)
	if err != nil {
		return err
	}
	w.ApplyPredictions(doc, result)
	_, err = w.Save(doc)
	return err
}

// DeleteImage removes the document's image and its annotation after
// confirm approves. The confirmation mode comes from the delete policy. It
// reports whether anything was deleted.
func (w *Workspace) DeleteImage(doc *Document, kind settings.DeleteKind, confirm ConfirmFunc) (bool, error) {
	mode := settings.ConfirmFull
	if w.policy != nil {
		mode = w.policy.Mode(kind)
	}
	ok, dontAsk := confirm(mode)
	if !ok {
		return false, nil
	}
	if w.policy != nil && mode == settings.ConfirmFull {
		if err := w.policy.Confirm(kind, dontAsk); err != nil {
			GetLogger().Warn("Failed to store delete confirmation preference", logger.Error(err))
		}
	}

	if err := os.Remove(doc.ImagePath); err != nil && !os.IsNotExist(err) {
		return false, errors.New(err).
			Component("workspace").
			Category(errors.CategoryFileIO).
			Context("operation", "delete_image").
			FileContext(doc.ImagePath, 0).
			Build()
	}

	labelPath := doc.LabelPath
	if labelPath == "" {
		labelPath, _ = w.findLabel(doc.ImagePath)
	}
	if labelPath != "" {
		if err := removeAnnotation(labelPath, doc); err != nil {
			return true, errors.New(err).
				Component("workspace").
				Category(errors.CategoryFileIO).
				Context("operation", "delete_annotation").
				FileContext(labelPath, 0).
				Build()
		}
	}

	GetLogger().Info("Image deleted",
		logger.String("image", doc.ImagePath),
		logger.String("annotation", labelPath),
		logger.String("kind", kind.String()))
	return true, nil
}

// removeAnnotation deletes the annotation of doc. A CreateML file listing
// other images only loses this image's entry.
func removeAnnotation(labelPath string, doc *Document) error {
	if strings.EqualFold(filepath.Ext(labelPath), format.ExtCreateML) {
		image := doc.Annotation.ImageFilename
		if image == "" {
			image = filepath.Base(doc.ImagePath)
		}
		_, err := format.RemoveCreateMLImage(labelPath, image)
		return err
	}
	if err := os.Remove(labelPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// AddLabel normalizes raw and records it in the predefined labels. It
// returns the stored form.
func (w *Workspace) AddLabel(raw string) (string, error) {
	label := shape.NormalizeLabel(raw)
	if label == "" {
		return "", errors.New(ErrEmptyLabel).
			Component("workspace").
			Category(errors.CategoryValidation).
			Build()
	}
	if w.predefined != nil {
		if _, err := w.predefined.Add(label); err != nil {
			return label, err
		}
	}
	return label, nil
}
