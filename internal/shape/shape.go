// Package shape holds the in-memory bounding-box model shared by the codecs,
// the predictor pipeline and the editor workspace.
package shape

import (
	"fmt"
	"image/color"
	"math"
	"slices"

	"github.com/tphakala/boxlabel/internal/errors"
)

// rectPoints is the number of vertices of a closed rectangle
const rectPoints = 4

// Point is a vertex in image pixel coordinates.
type Point struct {
	X, Y float64
}

// Rect is an axis-aligned box in pixel coordinates.
type Rect struct {
	XMin, YMin, XMax, YMax float64
}

// Width returns the horizontal extent.
func (r Rect) Width() float64 { return r.XMax - r.XMin }

// Height returns the vertical extent.
func (r Rect) Height() float64 { return r.YMax - r.YMin }

// Area is zero for degenerate boxes.
func (r Rect) Area() float64 {
	if r.Width() <= 0 || r.Height() <= 0 {
		return 0
	}
	return r.Width() * r.Height()
}

// Intersect returns the overlapping region, which may be empty.
func (r Rect) Intersect(o Rect) Rect {
	return Rect{
		XMin: math.Max(r.XMin, o.XMin),
		YMin: math.Max(r.YMin, o.YMin),
		XMax: math.Min(r.XMax, o.XMax),
		YMax: math.Min(r.YMax, o.YMax),
	}
}

// IoU returns intersection over union.
func (r Rect) IoU(o Rect) float64 {
	inter := r.Intersect(o).Area()
	union := r.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Clip limits the box to [0,w]x[0,h].
func (r Rect) Clip(w, h float64) Rect {
	return Rect{
		XMin: clamp(r.XMin, 0, w),
		YMin: clamp(r.YMin, 0, h),
		XMax: clamp(r.XMax, 0, w),
		YMax: clamp(r.YMax, 0, h),
	}
}

// Contains reports whether p lies inside or on the border of r.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.XMin && p.X <= r.XMax && p.Y >= r.YMin && p.Y <= r.YMax
}

func (r Rect) String() string {
	return fmt.Sprintf("(%.1f,%.1f)-(%.1f,%.1f)", r.XMin, r.YMin, r.XMax, r.YMax)
}

// Shape is one labelled rectangle.
//
// A shape is closed iff it holds exactly four points in top-left, top-right,
// bottom-right, bottom-left order.
type Shape struct {
	Label        string
	Points       []Point
	Difficult    bool
	LineColor    color.NRGBA // zero alpha means derive from the label
	FillColor    color.NRGBA // zero alpha means derive from the label
	PaintLabel   bool
	AIGenerated  bool
	AIConfidence float64
}

// ErrIncompleteShape is returned when a shape cannot be closed.
var ErrIncompleteShape = errors.NewStd("shape needs two opposite corners or four vertices to close")

// ErrShapeClosed is returned by AddPoint on a closed shape.
var ErrShapeClosed = errors.NewStd("shape is already closed")

// New returns an empty open shape. The label is normalized.
func New(label string) *Shape {
	return &Shape{Label: NormalizeLabel(label)}
}

// NewRect builds a closed shape from two corners in canonical vertex order.
func NewRect(label string, xmin, ymin, xmax, ymax float64) *Shape {
	if xmin > xmax {
		xmin, xmax = xmax, xmin
	}
	if ymin > ymax {
		ymin, ymax = ymax, ymin
	}
	return &Shape{
		Label:  NormalizeLabel(label),
		Points: rectCorners(Rect{xmin, ymin, xmax, ymax}),
	}
}

func rectCorners(r Rect) []Point {
	return []Point{
		{r.XMin, r.YMin},
		{r.XMax, r.YMin},
		{r.XMax, r.YMax},
		{r.XMin, r.YMax},
	}
}

// SetLabel replaces the label, transliterating CJK text.
func (s *Shape) SetLabel(label string) {
	s.Label = NormalizeLabel(label)
}

// AddPoint appends a vertex while the shape is still open.
func (s *Shape) AddPoint(p Point) error {
	if len(s.Points) >= rectPoints {
		return ErrShapeClosed
	}
	s.Points = append(s.Points, p)
	return nil
}

// Close turns the collected points into canonical rectangle corners. Two
// points are treated as opposite drag corners; four points are re-ordered.
func (s *Shape) Close() error {
	switch len(s.Points) {
	case 2, rectPoints:
		s.Points = rectCorners(s.BoundingRect())
		return nil
	default:
		return errors.New(ErrIncompleteShape).
			Component("shape").
			Category(errors.CategoryValidation).
			Context("points", len(s.Points)).
			Build()
	}
}

// IsClosed reports whether the shape has its four vertices.
func (s *Shape) IsClosed() bool {
	return len(s.Points) == rectPoints
}

// Translate moves every vertex by (dx, dy).
func (s *Shape) Translate(dx, dy float64) {
	for i := range s.Points {
		s.Points[i].X += dx
		s.Points[i].Y += dy
	}
}

// Copy returns a deep copy.
func (s *Shape) Copy() *Shape {
	c := *s
	c.Points = slices.Clone(s.Points)
	return &c
}

// HitTest reports whether p falls inside the shape.
func (s *Shape) HitTest(p Point) bool {
	if !s.IsClosed() {
		return false
	}
	return s.BoundingRect().Contains(p)
}

// BoundingRect returns the smallest box enclosing every vertex.
func (s *Shape) BoundingRect() Rect {
	if len(s.Points) == 0 {
		return Rect{}
	}
	r := Rect{XMin: math.Inf(1), YMin: math.Inf(1), XMax: math.Inf(-1), YMax: math.Inf(-1)}
	for _, p := range s.Points {
		r.XMin = math.Min(r.XMin, p.X)
		r.YMin = math.Min(r.YMin, p.Y)
		r.XMax = math.Max(r.XMax, p.X)
		r.YMax = math.Max(r.YMax, p.Y)
	}
	return r
}

// ClipTo limits the shape to an image of size w x h. It returns false, leaving
// the shape untouched, when nothing with positive width and height remains.
func (s *Shape) ClipTo(w, h float64) bool {
	clipped := s.BoundingRect().Clip(w, h)
	if clipped.Width() <= 0 || clipped.Height() <= 0 {
		return false
	}
	s.Points = rectCorners(clipped)
	return true
}

// EffectiveLineColor returns the explicit line color or the label-derived one.
func (s *Shape) EffectiveLineColor() color.NRGBA {
	if s.LineColor.A != 0 {
		return s.LineColor
	}
	return ColorForLabel(s.Label)
}

// EffectiveFillColor returns the explicit fill color or the label-derived one.
func (s *Shape) EffectiveFillColor() color.NRGBA {
	if s.FillColor.A != 0 {
		return s.FillColor
	}
	c := ColorForLabel(s.Label)
	c.A = fillAlpha
	return c
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
