// Package format reads and writes per-image annotation files. Three codecs
// share one semantic surface: Pascal VOC XML, YOLO normalized text and
// CreateML JSON. Editors talk to LabelFile and never branch on format.
package format

import (
	"image/color"
	"path/filepath"
	"strings"

	"github.com/tphakala/boxlabel/internal/shape"
)

// File suffixes of the supported codecs
const (
	ExtVOC      = ".xml"
	ExtYOLO     = ".txt"
	ExtCreateML = ".json"
)

// DefaultDepth is the channel count written when the image depth is unknown.
const DefaultDepth = 3

// Annotation is the in-memory content of one annotation file.
type Annotation struct {
	ImageFilename string
	ImagePath     string
	Width         int
	Height        int
	Depth         int
	Verified      bool
	LineColor     color.NRGBA
	FillColor     color.NRGBA
	Shapes        []*shape.Shape

	// Dropped counts objects discarded while decoding because their box
	// had no positive area.
	Dropped int
}

// HasSize reports whether the image dimensions are known.
func (a *Annotation) HasSize() bool {
	return a.Width > 0 && a.Height > 0
}

// Stem returns the image file name without extension.
func (a *Annotation) Stem() string {
	name := a.ImageFilename
	if name == "" {
		name = filepath.Base(a.ImagePath)
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// ClassResolver maps class names to stable ids. The class registry is the
// production implementation.
type ClassResolver interface {
	// IDFor returns the id of name without inserting it
	IDFor(name string) (int, bool)
	// Ensure returns the id of name, appending it when missing
	Ensure(name string) (int, error)
	// NameFor returns the name stored at id
	NameFor(id int) (string, bool)
}

// ReadContext carries what a codec may need beyond the file itself.
type ReadContext struct {
	// ImageFilename selects the entry in multi-image files
	ImageFilename string
	// Width and Height are required by the YOLO codec
	Width  int
	Height int
	// Classes resolves YOLO class ids; nil falls back to classes.txt
	Classes ClassResolver
}

// Codec is one on-disk annotation format.
type Codec interface {
	// Ext returns the file suffix including the dot
	Ext() string
	Read(path string, ctx ReadContext) (*Annotation, error)
	Write(path string, ann *Annotation) error
}
