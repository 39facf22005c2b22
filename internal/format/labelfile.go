package format

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/tphakala/boxlabel/internal/errors"
	"github.com/tphakala/boxlabel/internal/logger"
)

// Format names used in configuration
const (
	FormatVOC      = "voc"
	FormatYOLO     = "yolo"
	FormatCreateML = "createml"
)

// ExtForFormat maps a format name to its file suffix.
func ExtForFormat(name string) (string, error) {
	switch strings.ToLower(name) {
	case FormatVOC:
		return ExtVOC, nil
	case FormatYOLO:
		return ExtYOLO, nil
	case FormatCreateML:
		return ExtCreateML, nil
	}
	return "", errors.Newf("%w: %q", ErrUnsupportedFormat, name).
		Component("format").
		Category(errors.CategoryValidation).
		Build()
}

// Loaded is the result of LabelFile.Load.
type Loaded struct {
	Annotation *Annotation
	ImagePath  string
	ImageBytes []byte // nil when the image could not be read
}

// LabelFile is the single entry point for loading and saving annotations.
// It picks the codec from the file suffix on load and from its configured
// format on save.
type LabelFile struct {
	ext    string
	codecs map[string]Codec
}

// NewLabelFile returns a facade saving in formatName. classes may be nil, in
// which case YOLO ids are local to each file.
func NewLabelFile(formatName string, classes ClassResolver, autoInsert bool) (*LabelFile, error) {
	lf := &LabelFile{
		codecs: map[string]Codec{
			ExtVOC:      VOCCodec{},
			ExtYOLO:     YOLOCodec{Classes: classes, AutoInsert: autoInsert, WriteClassesFile: classes != nil},
			ExtCreateML: CreateMLCodec{},
		},
	}
	if err := lf.SetFormat(formatName); err != nil {
		return nil, err
	}
	return lf, nil
}

// SetFormat changes the format used by Save.
func (lf *LabelFile) SetFormat(formatName string) error {
	ext, err := ExtForFormat(formatName)
	if err != nil {
		return err
	}
	lf.ext = ext
	return nil
}

// Ext returns the suffix Save enforces.
func (lf *LabelFile) Ext() string {
	return lf.ext
}

// CodecFor returns the codec for path's suffix.
func (lf *LabelFile) CodecFor(path string) (Codec, error) {
	c, ok := lf.codecs[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, unsupported(path)
	}
	return c, nil
}

// Load reads the annotation at labelPath. imagePath may be empty; the image is
// then located from the annotation or by stem next to the label file. Shapes
// are clipped to the image and boxes that vanish are dropped.
func (lf *LabelFile) Load(labelPath, imagePath string) (*Loaded, error) {
	codec, err := lf.CodecFor(labelPath)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(labelPath)
	stem := strings.TrimSuffix(filepath.Base(labelPath), filepath.Ext(labelPath))
	if imagePath == "" {
		if p, ok := FindImageForStem(dir, stem); ok {
			imagePath = p
		}
	}

	ctx := ReadContext{}
	if imagePath != "" {
		ctx.ImageFilename = filepath.Base(imagePath)
		if w, h, err := ImageSize(imagePath); err == nil {
			ctx.Width, ctx.Height = w, h
		}
	}

	ann, err := codec.Read(labelPath, ctx)
	if err != nil {
		return nil, err
	}

	if imagePath == "" {
		imagePath = locateImage(ann, dir)
	}
	if ann.ImagePath == "" {
		ann.ImagePath = imagePath
	}
	if ann.ImageFilename == "" && imagePath != "" {
		ann.ImageFilename = filepath.Base(imagePath)
	}

	loaded := &Loaded{Annotation: ann, ImagePath: imagePath}
	if imagePath != "" {
		if data, err := os.ReadFile(imagePath); err == nil {
			loaded.ImageBytes = data
			if !ann.HasSize() {
				if w, h, err := ImageSizeFromBytes(data); err == nil {
					ann.Width, ann.Height = w, h
				}
			}
		}
	}

	if ann.HasSize() {
		kept := ann.Shapes[:0]
		for _, s := range ann.Shapes {
			if s.ClipTo(float64(ann.Width), float64(ann.Height)) {
				kept = append(kept, s)
				continue
			}
			GetLogger().Warn("Dropping box outside image bounds",
				logger.String("path", labelPath),
				logger.String("label", s.Label))
		}
		ann.Shapes = kept
	}

	return loaded, nil
}

// locateImage resolves the image an XML annotation refers to.
func locateImage(ann *Annotation, dir string) string {
	if ann.ImagePath != "" {
		if _, err := os.Stat(ann.ImagePath); err == nil {
			return ann.ImagePath
		}
	}
	if ann.ImageFilename != "" {
		p := filepath.Join(dir, ann.ImageFilename)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Save writes ann in the configured format. The suffix is appended when path
// does not already end with it. Missing image size is taken from imageBytes,
// or from the image file. The final path is returned; an UnknownClassError
// means the file was written with some objects skipped.
func (lf *LabelFile) Save(path string, ann *Annotation, imageBytes []byte) (string, error) {
	if !strings.EqualFold(filepath.Ext(path), lf.ext) {
		path += lf.ext
	}

	if !ann.HasSize() {
		switch {
		case len(imageBytes) > 0:
			if w, h, err := ImageSizeFromBytes(imageBytes); err == nil {
				ann.Width, ann.Height = w, h
			}
		case ann.ImagePath != "":
			if w, h, err := ImageSize(ann.ImagePath); err == nil {
				ann.Width, ann.Height = w, h
			}
		}
	}
	if ann.Depth <= 0 {
		ann.Depth = DefaultDepth
	}
	if ann.ImageFilename == "" && ann.ImagePath != "" {
		ann.ImageFilename = filepath.Base(ann.ImagePath)
	}

	if err := lf.codecs[lf.ext].Write(path, ann); err != nil {
		return path, err
	}
	GetLogger().Debug("Annotation saved",
		logger.String("path", path),
		logger.Int("shapes", len(ann.Shapes)))
	return path, nil
}

// LabelPathFor returns the annotation path (without suffix) for an image.
// A non-empty saveDir wins over the image's own directory.
func LabelPathFor(imagePath, saveDir string) string {
	base := filepath.Base(imagePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if saveDir != "" {
		return filepath.Join(saveDir, stem)
	}
	return filepath.Join(filepath.Dir(imagePath), stem)
}
