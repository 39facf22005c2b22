package format

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// mapResolver is an in-memory ClassResolver.
type mapResolver struct {
	names []string
}

func newMapResolver(names ...string) *mapResolver {
	return &mapResolver{names: names}
}

func (m *mapResolver) IDFor(name string) (int, bool) {
	for i, n := range m.names {
		if n == name {
			return i, true
		}
	}
	return 0, false
}

func (m *mapResolver) Ensure(name string) (int, error) {
	if id, ok := m.IDFor(name); ok {
		return id, nil
	}
	m.names = append(m.names, name)
	return len(m.names) - 1, nil
}

func (m *mapResolver) NameFor(id int) (string, bool) {
	if id < 0 || id >= len(m.names) {
		return "", false
	}
	return m.names[id], true
}

func (m *mapResolver) Names() []string {
	return m.names
}

// writePNG creates a w x h PNG and returns its path.
func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

const personVOC = `<annotation>
	<folder>images</folder>
	<filename>street.jpg</filename>
	<path>/data/images/street.jpg</path>
	<source><database>Unknown</database></source>
	<size><width>640</width><height>480</height><depth>3</depth></size>
	<segmented>0</segmented>
	<object>
		<name>person</name>
		<pose>Unspecified</pose>
		<truncated>0</truncated>
		<difficult>0</difficult>
		<bndbox><xmin>100</xmin><ymin>100</ymin><xmax>200</xmax><ymax>300</ymax></bndbox>
	</object>
</annotation>`
