package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/boxlabel/internal/shape"
)

func TestToShapeTagsProvenance(t *testing.T) {
	t.Parallel()

	d := Detection{
		Box:        shape.Rect{XMin: 10, YMin: 20, XMax: 50, YMax: 80},
		Confidence: 0.87,
		ClassID:    3,
		ClassName:  "person",
	}
	s := d.ToShape()

	require.True(t, s.IsClosed())
	assert.True(t, s.AIGenerated)
	assert.InDelta(t, 0.87, s.AIConfidence, 1e-9)
	assert.Equal(t, "person", s.Label)
	assert.Equal(t, shape.Point{X: 10, Y: 20}, s.Points[0])
	assert.Equal(t, shape.Point{X: 50, Y: 20}, s.Points[1])
	assert.Equal(t, shape.Point{X: 50, Y: 80}, s.Points[2])
	assert.Equal(t, shape.Point{X: 10, Y: 80}, s.Points[3])
}

func TestResultShapesKeepsOrder(t *testing.T) {
	t.Parallel()

	r := Result{Detections: []Detection{
		{Box: shape.Rect{XMax: 1, YMax: 1}, ClassName: "a"},
		{Box: shape.Rect{XMax: 2, YMax: 2}, ClassName: "b"},
	}}
	shapes := r.Shapes()
	require.Len(t, shapes, 2)
	assert.Equal(t, "a", shapes[0].Label)
	assert.Equal(t, "b", shapes[1].Label)
}
