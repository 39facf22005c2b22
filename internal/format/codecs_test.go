package format

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/boxlabel/internal/shape"
)

func TestVOCToYOLOAndBack(t *testing.T) {
	t.Parallel()

	ann, err := DecodeVOC("street.xml", []byte(personVOC))
	require.NoError(t, err)
	require.Len(t, ann.Shapes, 1)
	assert.Equal(t, 640, ann.Width)
	assert.Equal(t, 480, ann.Height)

	codec := YOLOCodec{Classes: newMapResolver("person")}
	lines, skipped, err := codec.Encode(ann)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	require.Equal(t, []string{"0 0.234375 0.416667 0.156250 0.416667"}, lines)

	dir := t.TempDir()
	txt := filepath.Join(dir, "street.txt")
	require.NoError(t, codec.Write(txt, ann))

	back, err := codec.Read(txt, ReadContext{Width: 640, Height: 480})
	require.NoError(t, err)
	require.Len(t, back.Shapes, 1)
	r := back.Shapes[0].BoundingRect()
	assert.Equal(t, "person", back.Shapes[0].Label)
	assert.InDelta(t, 100, r.XMin, 1)
	assert.InDelta(t, 100, r.YMin, 1)
	assert.InDelta(t, 200, r.XMax, 1)
	assert.InDelta(t, 300, r.YMax, 1)
}

func TestVOCRoundTripKeepsVerifiedAndDifficult(t *testing.T) {
	t.Parallel()

	s := shape.NewRect("car", 10, 20, 110, 220)
	s.Difficult = true
	ann := &Annotation{
		ImageFilename: "a.jpg",
		ImagePath:     "/imgs/a.jpg",
		Width:         320,
		Height:        240,
		Verified:      true,
		Shapes:        []*shape.Shape{s},
	}

	path := filepath.Join(t.TempDir(), "a.xml")
	require.NoError(t, VOCCodec{}.Write(path, ann))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, `<annotation verified="yes">`)
	assert.Contains(t, text, "<pose>Unspecified</pose>")
	assert.Contains(t, text, "<segmented>0</segmented>")
	assert.Contains(t, text, "<depth>3</depth>")
	assert.Contains(t, text, "<database>Unknown</database>")
	assert.Contains(t, text, "<xmin>10</xmin>")

	back, err := VOCCodec{}.Read(path, ReadContext{})
	require.NoError(t, err)
	assert.True(t, back.Verified)
	require.Len(t, back.Shapes, 1)
	assert.True(t, back.Shapes[0].Difficult)
	assert.Equal(t, shape.Rect{XMin: 10, YMin: 20, XMax: 110, YMax: 220}, back.Shapes[0].BoundingRect())
}

func TestVOCAcceptsDecimalCoordinates(t *testing.T) {
	t.Parallel()

	doc := strings.Replace(personVOC, "<xmin>100</xmin>", "<xmin>99.6</xmin>", 1)
	ann, err := DecodeVOC("x.xml", []byte(doc))
	require.NoError(t, err)
	assert.InDelta(t, 100, ann.Shapes[0].BoundingRect().XMin, 1e-9)
}

func TestVOCMalformed(t *testing.T) {
	t.Parallel()

	_, err := DecodeVOC("bad.xml", []byte("<annotation><object><name>x</name></object>"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedFile)

	_, err = DecodeVOC("nobox.xml", []byte("<annotation><object><name>x</name></object></annotation>"))
	assert.ErrorIs(t, err, ErrMalformedFile)
}

func TestCJKLabelSurvivesAllCodecs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	classes := newMapResolver()
	ann := &Annotation{
		ImageFilename: "sign.png",
		Width:         100,
		Height:        100,
		Shapes:        []*shape.Shape{shape.NewRect("称号", 10, 10, 50, 60)},
	}
	require.Equal(t, "chengHao", ann.Shapes[0].Label)

	codecs := []Codec{VOCCodec{}, YOLOCodec{Classes: classes, AutoInsert: true}, CreateMLCodec{}}
	for _, c := range codecs {
		path := filepath.Join(dir, "sign"+c.Ext())
		require.NoError(t, c.Write(path, ann))

		back, err := c.Read(path, ReadContext{ImageFilename: "sign.png", Width: 100, Height: 100, Classes: classes})
		require.NoError(t, err, c.Ext())
		require.Len(t, back.Shapes, 1, c.Ext())
		assert.Equal(t, "chengHao", back.Shapes[0].Label, c.Ext())
	}
}

func TestYOLOUnknownClassSkipped(t *testing.T) {
	t.Parallel()

	ann := &Annotation{
		Width:  100,
		Height: 100,
		Shapes: []*shape.Shape{
			shape.NewRect("dog", 0, 0, 10, 10),
			shape.NewRect("cat", 10, 10, 20, 20),
		},
	}
	path := filepath.Join(t.TempDir(), "x.txt")
	err := YOLOCodec{Classes: newMapResolver("dog")}.Write(path, ann)

	var unknown *UnknownClassError
	require.ErrorAs(t, err, &unknown)
	assert.ErrorIs(t, err, ErrUnknownClass)
	assert.Equal(t, []string{"cat"}, unknown.Labels)

	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, 1, strings.Count(string(data), "\n"), "known objects are still written")
}

func TestYOLOAutoInsertAppends(t *testing.T) {
	t.Parallel()

	classes := newMapResolver("dog")
	ann := &Annotation{Width: 10, Height: 10, Shapes: []*shape.Shape{shape.NewRect("cat", 0, 0, 5, 5)}}
	lines, skipped, err := YOLOCodec{Classes: classes, AutoInsert: true}.Encode(ann)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	assert.True(t, strings.HasPrefix(lines[0], "1 "))
	assert.Equal(t, []string{"dog", "cat"}, classes.Names())
}

func TestYOLORequiresImageSize(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "x.txt")
	require.NoError(t, os.WriteFile(path, []byte("0 0.5 0.5 0.2 0.2\n"), 0o644))

	_, err := YOLOCodec{}.Read(path, ReadContext{})
	assert.ErrorIs(t, err, ErrMissingImageSize)

	err = YOLOCodec{}.Write(path, &Annotation{Shapes: []*shape.Shape{shape.NewRect("a", 0, 0, 1, 1)}})
	assert.ErrorIs(t, err, ErrMissingImageSize)
}

func TestYOLOReadUsesClassesFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, WriteClassesFile(filepath.Join(dir, ClassesFileName), []string{"dog", "cat"}))
	path := filepath.Join(dir, "x.txt")
	require.NoError(t, os.WriteFile(path, []byte("1 0.5 0.5 0.2 0.2\n7 0.5 0.5 0.2 0.2\n"), 0o644))

	ann, err := YOLOCodec{}.Read(path, ReadContext{Width: 100, Height: 100})
	require.NoError(t, err)
	require.Len(t, ann.Shapes, 2)
	assert.Equal(t, "cat", ann.Shapes[0].Label)
	assert.Equal(t, "7", ann.Shapes[1].Label, "unknown ids keep their number")
}

func TestYOLOMalformedLine(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "x.txt")
	require.NoError(t, os.WriteFile(path, []byte("0 0.5 0.5\n"), 0o644))
	_, err := YOLOCodec{}.Read(path, ReadContext{Width: 10, Height: 10})
	assert.ErrorIs(t, err, ErrMalformedFile)
}

func TestCreateMLGroupsImagesInOneFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.json")
	c := CreateMLCodec{}

	require.NoError(t, c.Write(path, &Annotation{ImageFilename: "a.jpg", Shapes: []*shape.Shape{shape.NewRect("dog", 100, 100, 200, 300)}}))
	require.NoError(t, c.Write(path, &Annotation{ImageFilename: "b.jpg", Shapes: []*shape.Shape{shape.NewRect("cat", 0, 0, 10, 10)}}))
	require.NoError(t, c.Write(path, &Annotation{ImageFilename: "a.jpg", Shapes: []*shape.Shape{shape.NewRect("dog", 100, 100, 200, 300), shape.NewRect("dog", 1, 1, 3, 3)}}))

	images, err := ListCreateMLImages(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, images)

	a, err := c.Read(path, ReadContext{ImageFilename: "a.jpg"})
	require.NoError(t, err)
	require.Len(t, a.Shapes, 2)
	assert.Equal(t, shape.Rect{XMin: 100, YMin: 100, XMax: 200, YMax: 300}, a.Shapes[0].BoundingRect())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"x": 150`)
	assert.Contains(t, string(raw), `"height": 200`)
}

func TestCreateMLMalformed(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"image": "a.jpg"}`), 0o644))
	_, err := CreateMLCodec{}.Read(path, ReadContext{})
	assert.ErrorIs(t, err, ErrMalformedFile)
}

func TestYOLOEncodeClipsToImage(t *testing.T) {
	t.Parallel()

	ann := &Annotation{ImageFilename: "a.png", Width: 64, Height: 48}
	ann.Shapes = append(ann.Shapes,
		shape.NewRect("a", -10, 10, 100, 40),
		shape.NewRect("a", 70, 50, 90, 60))

	lines, skipped, err := YOLOCodec{}.Encode(ann)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	require.Equal(t, []string{"0 0.500000 0.520833 1.000000 0.625000"}, lines)

	_, box, err := ParseYOLOLine(lines[0])
	require.NoError(t, err)
	for _, v := range []float64{box.XC, box.YC, box.W, box.H} {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestVOCDropsBoxesWithoutArea(t *testing.T) {
	t.Parallel()

	inverted := strings.Replace(personVOC, "<xmin>100</xmin>", "<xmin>250</xmin>", 1)
	ann, err := DecodeVOC("x.xml", []byte(inverted))
	require.NoError(t, err)
	assert.Empty(t, ann.Shapes)
	assert.Equal(t, 1, ann.Dropped)

	flat := strings.Replace(personVOC, "<ymax>300</ymax>", "<ymax>100</ymax>", 1)
	ann, err = DecodeVOC("x.xml", []byte(flat))
	require.NoError(t, err)
	assert.Empty(t, ann.Shapes)
	assert.Equal(t, 1, ann.Dropped)
}

func TestRemoveCreateMLImage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.json")
	for _, name := range []string{"a.png", "b.png"} {
		ann := &Annotation{ImageFilename: name, Width: 100, Height: 100}
		ann.Shapes = append(ann.Shapes, shape.NewRect("cat", 10, 10, 50, 50))
		require.NoError(t, CreateMLCodec{}.Write(path, ann))
	}

	remaining, err := RemoveCreateMLImage(path, "a.png")
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)
	images, err := ListCreateMLImages(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.png"}, images)

	remaining, err = RemoveCreateMLImage(path, "b.png")
	require.NoError(t, err)
	assert.Zero(t, remaining)
	assert.NoFileExists(t, path)
}

