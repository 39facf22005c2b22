package format

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tphakala/boxlabel/internal/fsutil"
	"github.com/tphakala/boxlabel/internal/logger"
	"github.com/tphakala/boxlabel/internal/shape"
)

// VOC document layout. Field order is the element order on disk.
type vocAnnotation struct {
	XMLName   xml.Name    `xml:"annotation"`
	Verified  string      `xml:"verified,attr,omitempty"`
	Folder    string      `xml:"folder"`
	Filename  string      `xml:"filename"`
	Path      string      `xml:"path"`
	Source    vocSource   `xml:"source"`
	Size      *vocSize    `xml:"size"`
	Segmented int         `xml:"segmented"`
	Objects   []vocObject `xml:"object"`
}

type vocSource struct {
	Database string `xml:"database"`
}

type vocSize struct {
	Width  vocNumber `xml:"width"`
	Height vocNumber `xml:"height"`
	Depth  vocNumber `xml:"depth"`
}

type vocObject struct {
	Name      string     `xml:"name"`
	Pose      string     `xml:"pose"`
	Truncated int        `xml:"truncated"`
	Difficult vocNumber  `xml:"difficult"`
	BndBox    *vocBndBox `xml:"bndbox"`
}

type vocBndBox struct {
	XMin vocNumber `xml:"xmin"`
	YMin vocNumber `xml:"ymin"`
	XMax vocNumber `xml:"xmax"`
	YMax vocNumber `xml:"ymax"`
}

// vocNumber accepts integers and decimals, since some tools write floats.
type vocNumber float64

func (n *vocNumber) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var s string
	if err := d.DecodeElement(&s, &start); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("element <%s>: %w", start.Name.Local, err)
	}
	*n = vocNumber(v)
	return nil
}

func (n vocNumber) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	return e.EncodeElement(int(math.Round(float64(n))), start)
}

// VOCCodec reads and writes Pascal VOC XML with integer pixel boxes.
type VOCCodec struct{}

// Ext implements Codec.
func (VOCCodec) Ext() string { return ExtVOC }

// Read implements Codec. ctx is not consulted; the file carries its size.
func (VOCCodec) Read(path string, _ ReadContext) (*Annotation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fileIO(path, "read", err)
	}
	return DecodeVOC(path, data)
}

// DecodeVOC parses VOC XML. path is used for error context only.
func DecodeVOC(path string, data []byte) (*Annotation, error) {
	var doc vocAnnotation
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, malformed(path, err)
	}

	ann := &Annotation{
		ImageFilename: doc.Filename,
		ImagePath:     doc.Path,
		Verified:      parseVerified(doc.Verified),
	}
	if doc.Size != nil {
		ann.Width = int(doc.Size.Width)
		ann.Height = int(doc.Size.Height)
		ann.Depth = int(doc.Size.Depth)
	}

	for i, obj := range doc.Objects {
		if obj.BndBox == nil {
			return nil, malformed(path, fmt.Errorf("object %d has no bndbox", i))
		}
		if strings.TrimSpace(obj.Name) == "" {
			return nil, malformed(path, fmt.Errorf("object %d has no name", i))
		}
		b := obj.BndBox
		xmin, ymin := math.Round(float64(b.XMin)), math.Round(float64(b.YMin))
		xmax, ymax := math.Round(float64(b.XMax)), math.Round(float64(b.YMax))
		if xmax <= xmin || ymax <= ymin {
			GetLogger().Debug("Dropping object without positive area",
				logger.String("path", path),
				logger.String("label", obj.Name),
				logger.Int("object", i))
			ann.Dropped++
			continue
		}
		s := shape.NewRect(obj.Name, xmin, ymin, xmax, ymax)
		s.Difficult = obj.Difficult != 0
		ann.Shapes = append(ann.Shapes, s)
	}
	return ann, nil
}

// Write implements Codec.
func (c VOCCodec) Write(path string, ann *Annotation) error {
	data, err := EncodeVOC(ann)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fileIO(path, "write", err)
	}
	return nil
}

// EncodeVOC renders ann as indented VOC XML.
func EncodeVOC(ann *Annotation) ([]byte, error) {
	depth := ann.Depth
	if depth <= 0 {
		depth = DefaultDepth
	}
	doc := vocAnnotation{
		Folder:   filepath.Base(filepath.Dir(ann.ImagePath)),
		Filename: ann.ImageFilename,
		Path:     ann.ImagePath,
		Source:   vocSource{Database: "Unknown"},
		Size: &vocSize{
			Width:  vocNumber(ann.Width),
			Height: vocNumber(ann.Height),
			Depth:  vocNumber(depth),
		},
	}
	if ann.Verified {
		doc.Verified = "yes"
	}

	for _, s := range ann.Shapes {
		r := s.BoundingRect()
		difficult := 0
		if s.Difficult {
			difficult = 1
		}
		doc.Objects = append(doc.Objects, vocObject{
			Name:      s.Label,
			Pose:      "Unspecified",
			Difficult: vocNumber(difficult),
			BndBox: &vocBndBox{
				XMin: vocNumber(r.XMin),
				YMin: vocNumber(r.YMin),
				XMax: vocNumber(r.XMax),
				YMax: vocNumber(r.YMax),
			},
		})
	}

	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "\t")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode voc xml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// ReadVOCSize returns the image size recorded in a VOC file without building
// shapes. ok is false when the file has no size element or a zero size.
func ReadVOCSize(r io.Reader) (width, height int, ok bool, err error) {
	var doc struct {
		Size *vocSize `xml:"size"`
	}
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return 0, 0, false, err
	}
	if doc.Size == nil || doc.Size.Width <= 0 || doc.Size.Height <= 0 {
		return 0, 0, false, nil
	}
	return int(doc.Size.Width), int(doc.Size.Height), true, nil
}

func parseVerified(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "true", "1":
		return true
	}
	return false
}
