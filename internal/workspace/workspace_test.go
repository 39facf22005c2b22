package workspace

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/boxlabel/internal/classes"
	"github.com/tphakala/boxlabel/internal/confidence"
	"github.com/tphakala/boxlabel/internal/detection"
	"github.com/tphakala/boxlabel/internal/errors"
	"github.com/tphakala/boxlabel/internal/format"
	"github.com/tphakala/boxlabel/internal/predefined"
	"github.com/tphakala/boxlabel/internal/settings"
	"github.com/tphakala/boxlabel/internal/shape"
)

func writeImage(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 200, 100))))
	require.NoError(t, f.Close())
	return path
}

func writeVOC(t *testing.T, path, imagePath string, labels ...string) {
	t.Helper()
	ann := &format.Annotation{
		ImageFilename: filepath.Base(imagePath),
		ImagePath:     imagePath,
		Width:         200,
		Height:        100,
	}
	for _, l := range labels {
		ann.Shapes = append(ann.Shapes, shape.NewRect(l, 10, 10, 60, 50))
	}
	data, err := format.EncodeVOC(ann)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func newWorkspace(t *testing.T, opts ...Option) *Workspace {
	t.Helper()
	lf, err := format.NewLabelFile(format.FormatVOC, nil, false)
	require.NoError(t, err)
	return New(lf, opts...)
}

func TestOpenWithoutAnnotation(t *testing.T) {
	t.Parallel()

	img := writeImage(t, t.TempDir(), "cat.png")
	w := newWorkspace(t)

	doc, err := w.Open(img)
	require.NoError(t, err)
	assert.Empty(t, doc.LabelPath)
	assert.Empty(t, doc.Annotation.Shapes)
	assert.Equal(t, 200, doc.Annotation.Width)
	assert.Equal(t, 100, doc.Annotation.Height)
	assert.NotEmpty(t, doc.ImageBytes)
}

func TestOpenMissingImage(t *testing.T) {
	t.Parallel()

	w := newWorkspace(t)
	_, err := w.Open(filepath.Join(t.TempDir(), "gone.png"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryImage))
}

func TestSaveAndReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	img := writeImage(t, dir, "cat.png")
	w := newWorkspace(t)

	doc, err := w.Open(img)
	require.NoError(t, err)
	doc.Annotation.Shapes = append(doc.Annotation.Shapes, shape.NewRect("cat", 5, 5, 50, 40))

	path, err := w.Save(doc)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cat.xml"), path)
	assert.False(t, doc.Dirty)

	again, err := w.Open(img)
	require.NoError(t, err)
	assert.Equal(t, path, again.LabelPath)
	require.Len(t, again.Annotation.Shapes, 1)
	assert.Equal(t, "cat", again.Annotation.Shapes[0].Label)
}

func TestSaveDirWins(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	saveDir := filepath.Join(dir, "labels")
	require.NoError(t, os.Mkdir(saveDir, 0o755))
	img := writeImage(t, dir, "dog.png")

	writeVOC(t, filepath.Join(dir, "dog.xml"), img, "sibling", "sibling2")
	writeVOC(t, filepath.Join(saveDir, "dog.xml"), img, "saved")

	w := newWorkspace(t, WithSaveDir(saveDir))
	doc, err := w.Open(img)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(saveDir, "dog.xml"), doc.LabelPath)
	require.Len(t, doc.Annotation.Shapes, 1, "only one annotation is loaded")
	assert.Equal(t, "saved", doc.Annotation.Shapes[0].Label)
}

func TestSaveDirFallsBackToSibling(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	saveDir := filepath.Join(dir, "labels")
	img := writeImage(t, dir, "dog.png")
	writeVOC(t, filepath.Join(dir, "dog.xml"), img, "sibling")

	w := newWorkspace(t, WithSaveDir(saveDir))
	doc, err := w.Open(img)
	require.NoError(t, err)
	require.Len(t, doc.Annotation.Shapes, 1)

	path, err := w.Save(doc)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(saveDir, "dog.xml"), path)
}

func detections() []detection.Detection {
	return []detection.Detection{
		{Box: shape.Rect{XMin: 100, YMin: 10, XMax: 150, YMax: 60}, Confidence: 0.9, ClassName: "car", ImageW: 200, ImageH: 100},
		{Box: shape.Rect{XMin: 100, YMin: 60, XMax: 190, YMax: 95}, Confidence: 0.2, ClassName: "car", ImageW: 200, ImageH: 100},
	}
}

func TestApplyPredictionsKeepsManualShapes(t *testing.T) {
	t.Parallel()

	img := writeImage(t, t.TempDir(), "road.png")
	w := newWorkspace(t, WithFilter(
		confidence.Filter{Threshold: 0.5},
		confidence.Params{IOU: 0.45, MinBoxSize: 2, MaxOverlap: 0.8},
	))

	doc, err := w.Open(img)
	require.NoError(t, err)
	doc.Annotation.Shapes = append(doc.Annotation.Shapes, shape.NewRect("person", 5, 5, 40, 90))

	result := &detection.Result{ImagePath: img, Detections: detections()}
	assert.Equal(t, 1, w.ApplyPredictions(doc, result))
	assert.Equal(t, 1, w.ApplyPredictions(doc, result), "second run replaces AI shapes")

	require.Len(t, doc.Annotation.Shapes, 2)
	assert.False(t, doc.Annotation.Shapes[0].AIGenerated)
	assert.True(t, doc.Annotation.Shapes[1].AIGenerated)
	assert.Equal(t, "car", doc.Annotation.Shapes[1].Label)
	assert.True(t, doc.Dirty)

	assert.Equal(t, 1, w.ClearAI(doc))
	require.Len(t, doc.Annotation.Shapes, 1)
	assert.Equal(t, "person", doc.Annotation.Shapes[0].Label)
	assert.Zero(t, w.ClearAI(doc))
}

func TestWriteResult(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	img := writeImage(t, dir, "road.png")
	writeVOC(t, filepath.Join(dir, "road.xml"), img, "manual")

	w := newWorkspace(t, WithFilter(confidence.Filter{Threshold: 0.5}, confidence.Params{IOU: 0.45, MaxOverlap: 0.8}))
	require.NoError(t, w.WriteResult(&detection.Result{ImagePath: img, Detections: detections()}))

	doc, err := w.Open(img)
	require.NoError(t, err)
	var labels []string
	for _, s := range doc.Annotation.Shapes {
		labels = append(labels, s.Label)
	}
	assert.ElementsMatch(t, []string{"manual", "car"}, labels)
}

func TestWriteResultPersistsNewClassIDs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	regPath := filepath.Join(dir, "configs", "class_config.yaml")
	reg, err := classes.Load(regPath)
	require.NoError(t, err)
	lf, err := format.NewLabelFile(format.FormatYOLO, reg, true)
	require.NoError(t, err)
	w := New(lf,
		WithClassRegistry(reg),
		WithFilter(confidence.Filter{Threshold: 0.5}, confidence.Params{IOU: 0.45, MaxOverlap: 0.8}))

	img := writeImage(t, dir, "road.png")
	require.NoError(t, w.WriteResult(&detection.Result{ImagePath: img, Detections: detections()}))

	data, err := os.ReadFile(filepath.Join(dir, "road.txt"))
	require.NoError(t, err)
	assert.Equal(t, "0 0.625000 0.350000 0.250000 0.500000\n", string(data))
	assert.False(t, reg.Dirty())

	reopened, err := classes.Load(regPath)
	require.NoError(t, err)
	id, ok := reopened.IDFor("car")
	require.True(t, ok, "class id must survive a restart")
	assert.Equal(t, 0, id)

	// A class seen first in a later run gets the next id, not 0.
	again, err := format.NewLabelFile(format.FormatYOLO, reopened, true)
	require.NoError(t, err)
	w = New(again, WithClassRegistry(reopened))
	other := writeImage(t, dir, "park.png")
	require.NoError(t, w.WriteResult(&detection.Result{ImagePath: other, Detections: []detection.Detection{
		{Box: shape.Rect{XMin: 0, YMin: 0, XMax: 100, YMax: 50}, Confidence: 0.9, ClassName: "dog", ImageW: 200, ImageH: 100},
	}}))
	data, err = os.ReadFile(filepath.Join(dir, "park.txt"))
	require.NoError(t, err)
	assert.Equal(t, "1 0.250000 0.250000 0.500000 0.500000\n", string(data))
}

func TestDeleteImage(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := settings.Open(filepath.Join(dir, settings.FileName))
	require.NoError(t, err)
	policy := settings.NewDeletePolicy(store)
	w := newWorkspace(t, WithDeletePolicy(policy))

	img := writeImage(t, dir, "a.png")
	writeVOC(t, filepath.Join(dir, "a.xml"), img, "x")
	doc, err := w.Open(img)
	require.NoError(t, err)

	var modes []settings.ConfirmMode
	decline := func(m settings.ConfirmMode) (bool, bool) {
		modes = append(modes, m)
		return false, false
	}
	deleted, err := w.DeleteImage(doc, settings.DeleteCurrentImage, decline)
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.FileExists(t, img)

	accept := func(m settings.ConfirmMode) (bool, bool) {
		modes = append(modes, m)
		return true, true
	}
	deleted, err = w.DeleteImage(doc, settings.DeleteCurrentImage, accept)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.NoFileExists(t, img)
	assert.NoFileExists(t, filepath.Join(dir, "a.xml"))

	img2 := writeImage(t, dir, "b.png")
	doc2, err := w.Open(img2)
	require.NoError(t, err)
	deleted, err = w.DeleteImage(doc2, settings.DeleteCurrentImage, accept)
	require.NoError(t, err)
	assert.True(t, deleted)

	assert.Equal(t, []settings.ConfirmMode{settings.ConfirmFull, settings.ConfirmFull, settings.ConfirmLight}, modes)
	assert.Equal(t, settings.ConfirmFull, policy.Mode(settings.DeleteViaMenu))
}

func TestAddLabel(t *testing.T) {
	t.Parallel()

	store, err := predefined.Open(filepath.Join(t.TempDir(), predefined.FileName))
	require.NoError(t, err)
	w := newWorkspace(t, WithPredefinedLabels(store))

	label, err := w.AddLabel("称号")
	require.NoError(t, err)
	assert.Equal(t, "chengHao", label)
	assert.True(t, store.Contains("chengHao"))

	_, err = w.AddLabel("   ")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyLabel)
}

func TestDeleteImageKeepsOtherCreateMLEntries(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := writeImage(t, dir, "a.png")
	writeImage(t, dir, "b.png")
	shared := filepath.Join(dir, "a.json")
	for _, name := range []string{"a.png", "b.png"} {
		ann := &format.Annotation{ImageFilename: name, Width: 200, Height: 100}
		ann.Shapes = append(ann.Shapes, shape.NewRect("x", 10, 10, 60, 50))
		require.NoError(t, format.CreateMLCodec{}.Write(shared, ann))
	}

	lf, err := format.NewLabelFile(format.FormatCreateML, nil, false)
	require.NoError(t, err)
	w := New(lf)
	doc, err := w.Open(a)
	require.NoError(t, err)
	require.Equal(t, shared, doc.LabelPath)

	deleted, err := w.DeleteImage(doc, settings.DeleteViaMenu, func(settings.ConfirmMode) (bool, bool) { return true, false })
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.NoFileExists(t, a)

	images, err := format.ListCreateMLImages(shared)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.png"}, images)
}

