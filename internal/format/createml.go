package format

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"

	"github.com/tphakala/boxlabel/internal/fsutil"
	"github.com/tphakala/boxlabel/internal/shape"
)

type createMLEntry struct {
	Image       string               `json:"image"`
	Verified    bool                 `json:"verified,omitempty"`
	Annotations []createMLAnnotation `json:"annotations"`
}

type createMLAnnotation struct {
	Label       string              `json:"label"`
	Coordinates createMLCoordinates `json:"coordinates"`
}

// createMLCoordinates is a pixel-space center and size.
type createMLCoordinates struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// CreateMLCodec reads and writes CreateML JSON lists. One file may hold the
// entries of many images; Write replaces only the entry of its own image.
type CreateMLCodec struct{}

// Ext implements Codec.
func (CreateMLCodec) Ext() string { return ExtCreateML }

// Read implements Codec. The entry matching ctx.ImageFilename is returned;
// without a filename the first entry is used.
func (CreateMLCodec) Read(path string, ctx ReadContext) (*Annotation, error) {
	entries, err := readCreateML(path)
	if err != nil {
		return nil, err
	}

	var entry *createMLEntry
	for i := range entries {
		if ctx.ImageFilename == "" || entries[i].Image == ctx.ImageFilename {
			entry = &entries[i]
			break
		}
	}

	ann := &Annotation{
		ImageFilename: ctx.ImageFilename,
		Width:         ctx.Width,
		Height:        ctx.Height,
		Depth:         DefaultDepth,
	}
	if entry == nil {
		return ann, nil
	}
	ann.ImageFilename = entry.Image
	ann.Verified = entry.Verified

	for _, a := range entry.Annotations {
		c := a.Coordinates
		if c.Width <= 0 || c.Height <= 0 {
			return nil, malformed(path, fmt.Errorf("annotation %q has non-positive size", a.Label))
		}
		ann.Shapes = append(ann.Shapes, shape.NewRect(a.Label,
			math.Round(c.X-c.Width/2), math.Round(c.Y-c.Height/2),
			math.Round(c.X+c.Width/2), math.Round(c.Y+c.Height/2)))
	}
	return ann, nil
}

// ListCreateMLImages returns the image names recorded in a CreateML file.
func ListCreateMLImages(path string) ([]string, error) {
	entries, err := readCreateML(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Image)
	}
	return names, nil
}

// Write implements Codec.
func (CreateMLCodec) Write(path string, ann *Annotation) error {
	var entries []createMLEntry
	if _, err := os.Stat(path); err == nil {
		existing, err := readCreateML(path)
		if err != nil {
			return err
		}
		entries = existing
	}

	image := ann.ImageFilename
	if image == "" {
		image = filepath.Base(ann.ImagePath)
	}

	entry := createMLEntry{Image: image, Verified: ann.Verified, Annotations: []createMLAnnotation{}}
	for _, s := range ann.Shapes {
		r := s.BoundingRect()
		entry.Annotations = append(entry.Annotations, createMLAnnotation{
			Label: s.Label,
			Coordinates: createMLCoordinates{
				X:      (r.XMin + r.XMax) / 2,
				Y:      (r.YMin + r.YMax) / 2,
				Width:  r.Width(),
				Height: r.Height(),
			},
		})
	}

	replaced := false
	for i := range entries {
		if entries[i].Image == image {
			entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, entry)
	}

	return writeCreateML(path, entries)
}

// RemoveCreateMLImage drops the entry of image from a CreateML file and
// returns how many entries remain. The file is deleted once it is empty.
func RemoveCreateMLImage(path, image string) (int, error) {
	entries, err := readCreateML(path)
	if err != nil {
		return 0, err
	}
	kept := slices.DeleteFunc(entries, func(e createMLEntry) bool { return e.Image == image })
	if len(kept) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return 0, fileIO(path, "remove", err)
		}
		return 0, nil
	}
	return len(kept), writeCreateML(path, kept)
}

func writeCreateML(path string, entries []createMLEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode createml json: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		return fileIO(path, "write", err)
	}
	return nil
}

func readCreateML(path string) ([]createMLEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fileIO(path, "read", err)
	}
	var entries []createMLEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, malformed(path, err)
	}
	return entries, nil
}
