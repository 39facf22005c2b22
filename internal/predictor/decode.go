package predictor

import (
	"cmp"
	"fmt"
	"image"
	"image/color"
	"math"
	"slices"

	"github.com/disintegration/imaging"

	"github.com/tphakala/boxlabel/internal/confidence"
	"github.com/tphakala/boxlabel/internal/detection"
	"github.com/tphakala/boxlabel/internal/shape"
)

// letterboxFill is the padding gray used by YOLO exports.
var letterboxFill = color.NRGBA{R: 114, G: 114, B: 114, A: 255}

// letterbox maps between source image pixels and model input pixels.
type letterbox struct {
	scale  float64
	dx, dy float64
}

func (l letterbox) toImage(x, y float64) (float64, float64) {
	return (x - l.dx) / l.scale, (y - l.dy) / l.scale
}

// preprocess letterboxes img into an inW x inH NHWC float32 tensor.
func preprocess(img image.Image, inW, inH int) ([]float32, letterbox) {
	b := img.Bounds()
	scale := math.Min(float64(inW)/float64(b.Dx()), float64(inH)/float64(b.Dy()))
	nw := max(1, int(math.Round(float64(b.Dx())*scale)))
	nh := max(1, int(math.Round(float64(b.Dy())*scale)))
	dx, dy := (inW-nw)/2, (inH-nh)/2

	canvas := imaging.New(inW, inH, letterboxFill)
	canvas = imaging.Paste(canvas, imaging.Resize(img, nw, nh, imaging.Linear), image.Pt(dx, dy))

	tensor := make([]float32, inW*inH*3)
	for y := range inH {
		row := canvas.Pix[y*canvas.Stride : y*canvas.Stride+inW*4]
		for x := range inW {
			o := (y*inW + x) * 3
			tensor[o] = float32(row[x*4]) / 255
			tensor[o+1] = float32(row[x*4+1]) / 255
			tensor[o+2] = float32(row[x*4+2]) / 255
		}
	}
	return tensor, letterbox{scale: scale, dx: float64(dx), dy: float64(dy)}
}

// candidate is one decoded box in model input pixels.
type candidate struct {
	box   shape.Rect
	conf  float64
	class int
}

// decodeYOLO reads a YOLO detection head. Both [1,C,N] and [1,N,C] layouts
// are accepted, where C is 4+classes (anchor-free heads) or 5+classes
// (heads with an objectness score). The layout is taken from the label count
// when it matches a dimension, else the smaller dimension is C. Boxes are center/size, normalized or in
// input pixels.
func decodeYOLO(out Output, numLabels, inW, inH int, minConf float64) ([]candidate, error) {
	dims := out.Dims
	if len(dims) == 3 && dims[0] == 1 {
		dims = dims[1:]
	}
	if len(dims) != 2 {
		return nil, fmt.Errorf("unexpected output shape %v", out.Dims)
	}

	channelsFirst := dims[0] < dims[1]
	if numLabels > 0 {
		switch {
		case dims[0] == 4+numLabels || dims[0] == 5+numLabels:
			channelsFirst = true
		case dims[1] == 4+numLabels || dims[1] == 5+numLabels:
			channelsFirst = false
		}
	}
	channels, n := dims[1], dims[0]
	if channelsFirst {
		channels, n = dims[0], dims[1]
	}
	if len(out.Data) < channels*n {
		return nil, fmt.Errorf("output holds %d values, shape %v needs %d", len(out.Data), out.Dims, channels*n)
	}

	offset := 4
	if numLabels > 0 && channels == 5+numLabels {
		offset = 5
	}
	classes := channels - offset
	if classes <= 0 {
		return nil, fmt.Errorf("output has %d channels, too few for boxes", channels)
	}
	if numLabels > 0 && classes != numLabels {
		return nil, fmt.Errorf("output has %d classes but %d labels are loaded", classes, numLabels)
	}

	at := func(i, c int) float64 {
		if channelsFirst {
			return float64(out.Data[c*n+i])
		}
		return float64(out.Data[i*channels+c])
	}

	var cands []candidate
	for i := range n {
		best, bestScore := 0, -1.0
		for c := range classes {
			if s := at(i, offset+c); s > bestScore {
				best, bestScore = c, s
			}
		}
		if offset == 5 {
			bestScore *= at(i, 4)
		}
		if bestScore < minConf {
			continue
		}

		cx, cy, w, h := at(i, 0), at(i, 1), at(i, 2), at(i, 3)
		if cx <= 1.5 && cy <= 1.5 && w <= 1.5 && h <= 1.5 {
			cx, w = cx*float64(inW), w*float64(inW)
			cy, h = cy*float64(inH), h*float64(inH)
		}
		cands = append(cands, candidate{
			box:   shape.Rect{XMin: cx - w/2, YMin: cy - h/2, XMax: cx + w/2, YMax: cy + h/2},
			conf:  bestScore,
			class: best,
		})
	}
	return cands, nil
}

// toDetections runs class-aware NMS, keeps at most maxDet boxes and maps them
// back to the source image, clipped to its bounds.
func toDetections(cands []candidate, labels []string, lb letterbox, imgW, imgH int, iou float64, maxDet int) []detection.Detection {
	byClass := make(map[int][]detection.Detection)
	for _, c := range cands {
		byClass[c.class] = append(byClass[c.class], detection.Detection{Box: c.box, Confidence: c.conf, ClassID: c.class})
	}

	var kept []detection.Detection
	for _, group := range byClass {
		kept = append(kept, confidence.Select(group, confidence.NMS(group, iou))...)
	}
	slices.SortStableFunc(kept, func(a, b detection.Detection) int {
		if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
			return c
		}
		return cmp.Compare(a.ClassID, b.ClassID)
	})
	if maxDet > 0 && len(kept) > maxDet {
		kept = kept[:maxDet]
	}

	out := make([]detection.Detection, 0, len(kept))
	for _, d := range kept {
		x1, y1 := lb.toImage(d.Box.XMin, d.Box.YMin)
		x2, y2 := lb.toImage(d.Box.XMax, d.Box.YMax)
		d.Box = shape.Rect{XMin: x1, YMin: y1, XMax: x2, YMax: y2}.Clip(float64(imgW), float64(imgH))
		if d.Box.Area() <= 0 {
			continue
		}
		d.ClassName = labelFor(labels, d.ClassID)
		d.ImageW, d.ImageH = imgW, imgH
		out = append(out, d)
	}
	return out
}

func labelFor(labels []string, id int) string {
	if id >= 0 && id < len(labels) {
		return labels[id]
	}
	return fmt.Sprintf("class%d", id)
}
