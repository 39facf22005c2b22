package format

import (
	"bufio"
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/tphakala/boxlabel/internal/errors"
	"github.com/tphakala/boxlabel/internal/fsutil"
	"github.com/tphakala/boxlabel/internal/logger"
	"github.com/tphakala/boxlabel/internal/shape"
)

// ClassesFileName is the class list written next to YOLO label files.
const ClassesFileName = "classes.txt"

// NormalizedBox is a YOLO box: center and size divided by the image size.
type NormalizedBox struct {
	XC, YC, W, H float64
}

// Normalize converts a pixel box to YOLO coordinates.
func Normalize(r shape.Rect, width, height int) NormalizedBox {
	w, h := float64(width), float64(height)
	return NormalizedBox{
		XC: (r.XMin + r.XMax) / 2 / w,
		YC: (r.YMin + r.YMax) / 2 / h,
		W:  (r.XMax - r.XMin) / w,
		H:  (r.YMax - r.YMin) / h,
	}
}

// Denormalize converts YOLO coordinates back to a pixel box, rounding to
// whole pixels and clamping to the image.
func (b NormalizedBox) Denormalize(width, height int) shape.Rect {
	w, h := float64(width), float64(height)
	r := shape.Rect{
		XMin: math.Round((b.XC - b.W/2) * w),
		YMin: math.Round((b.YC - b.H/2) * h),
		XMax: math.Round((b.XC + b.W/2) * w),
		YMax: math.Round((b.YC + b.H/2) * h),
	}
	return r.Clip(w, h)
}

// FormatYOLOLine renders one object line with six-decimal precision.
func FormatYOLOLine(classID int, b NormalizedBox) string {
	return fmt.Sprintf("%d %.6f %.6f %.6f %.6f", classID, b.XC, b.YC, b.W, b.H)
}

// ParseYOLOLine parses "<id> <xc> <yc> <w> <h>".
func ParseYOLOLine(line string) (int, NormalizedBox, error) {
	fields := strings.Fields(line)
	if len(fields) != 5 {
		return 0, NormalizedBox{}, fmt.Errorf("expected 5 fields, got %d", len(fields))
	}
	id, err := strconv.Atoi(fields[0])
	if err != nil || id < 0 {
		return 0, NormalizedBox{}, fmt.Errorf("invalid class id %q", fields[0])
	}
	var vals [4]float64
	for i := range vals {
		v, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return 0, NormalizedBox{}, fmt.Errorf("invalid coordinate %q", fields[i+1])
		}
		vals[i] = v
	}
	return id, NormalizedBox{XC: vals[0], YC: vals[1], W: vals[2], H: vals[3]}, nil
}

// YOLOCodec reads and writes YOLO normalized text.
type YOLOCodec struct {
	// Classes resolves names to ids. When nil, Write numbers labels by first
	// appearance and Read uses classes.txt next to the label file.
	Classes ClassResolver
	// AutoInsert appends unknown labels to Classes on write; otherwise they
	// are skipped and reported with an UnknownClassError.
	AutoInsert bool
	// WriteClassesFile refreshes classes.txt next to each written file.
	WriteClassesFile bool
}

// Ext implements Codec.
func (YOLOCodec) Ext() string { return ExtYOLO }

// Read implements Codec. ctx.Width and ctx.Height are required.
func (c YOLOCodec) Read(path string, ctx ReadContext) (*Annotation, error) {
	if ctx.Width <= 0 || ctx.Height <= 0 {
		return nil, missingSize(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fileIO(path, "read", err)
	}

	resolver := ctx.Classes
	if resolver == nil {
		resolver = c.Classes
	}
	var fileClasses []string
	if resolver == nil {
		fileClasses, _ = readClassesFile(filepath.Join(filepath.Dir(path), ClassesFileName))
	}

	ann := &Annotation{
		ImageFilename: ctx.ImageFilename,
		Width:         ctx.Width,
		Height:        ctx.Height,
		Depth:         DefaultDepth,
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		id, box, err := ParseYOLOLine(line)
		if err != nil {
			return nil, malformed(path, fmt.Errorf("line %d: %w", lineNo, err))
		}

		label, ok := "", false
		if resolver != nil {
			label, ok = resolver.NameFor(id)
		} else if id < len(fileClasses) {
			label, ok = fileClasses[id], true
		}
		if !ok {
			GetLogger().Warn("Class id without name, keeping numeric label",
				logger.String("path", path),
				logger.Int("class_id", id))
			label = strconv.Itoa(id)
		}

		r := box.Denormalize(ctx.Width, ctx.Height)
		ann.Shapes = append(ann.Shapes, shape.NewRect(label, r.XMin, r.YMin, r.XMax, r.YMax))
	}
	if err := scanner.Err(); err != nil {
		return nil, malformed(path, err)
	}
	return ann, nil
}

// Encode renders ann as YOLO lines and returns the labels it had to skip.
// Boxes are clipped to the image; boxes left without area are omitted.
func (c YOLOCodec) Encode(ann *Annotation) (lines, skipped []string, err error) {
	if !ann.HasSize() {
		return nil, nil, ErrMissingImageSize
	}

	var local []string
	for _, s := range ann.Shapes {
		id, ok, err := c.resolve(s.Label, &local)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			if !slices.Contains(skipped, s.Label) {
				skipped = append(skipped, s.Label)
			}
			continue
		}
		r := s.BoundingRect().Clip(float64(ann.Width), float64(ann.Height))
		if r.Area() <= 0 {
			continue
		}
		lines = append(lines, FormatYOLOLine(id, Normalize(r, ann.Width, ann.Height)))
	}
	return lines, skipped, nil
}

func (c YOLOCodec) resolve(label string, local *[]string) (int, bool, error) {
	if c.Classes == nil {
		if i := slices.Index(*local, label); i >= 0 {
			return i, true, nil
		}
		*local = append(*local, label)
		return len(*local) - 1, true, nil
	}
	if id, ok := c.Classes.IDFor(label); ok {
		return id, true, nil
	}
	if !c.AutoInsert {
		return 0, false, nil
	}
	id, err := c.Classes.Ensure(label)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// Write implements Codec. Skipped labels are reported through an
// UnknownClassError after the file has been written.
func (c YOLOCodec) Write(path string, ann *Annotation) error {
	lines, skipped, err := c.Encode(ann)
	if err != nil {
		if errors.Is(err, ErrMissingImageSize) {
			return missingSize(path)
		}
		return err
	}

	var buf bytes.Buffer
	for _, line := range lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	if err := fsutil.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return fileIO(path, "write", err)
	}

	if c.WriteClassesFile {
		if lister, ok := c.Classes.(interface{ Names() []string }); ok {
			if err := WriteClassesFile(filepath.Join(filepath.Dir(path), ClassesFileName), lister.Names()); err != nil {
				return err
			}
		}
	}

	if len(skipped) > 0 {
		return &UnknownClassError{Path: path, Labels: skipped}
	}
	return nil
}

// WriteClassesFile writes one class name per line.
func WriteClassesFile(path string, names []string) error {
	var buf bytes.Buffer
	for _, n := range names {
		buf.WriteString(n)
		buf.WriteByte('\n')
	}
	if err := fsutil.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return fileIO(path, "write", err)
	}
	return nil
}

func readClassesFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}
