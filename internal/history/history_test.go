package history

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	s, err := Open(filepath.Join(t.TempDir(), "training_history.json"))
	require.NoError(t, err)

	st := s.Stats()
	assert.Zero(t, st.Sessions)
	assert.Zero(t, st.TrainedImages)
	assert.False(t, s.IsTrained("/x/a.jpg"))
}

func TestAddSessionAndMark(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "training_history.json")
	s, err := Open(path, WithCaseFolding(false))
	require.NoError(t, err)

	a := filepath.Join(dir, "a.jpg")
	b := filepath.Join(dir, "b.jpg")
	c := filepath.Join(dir, "c.jpg")

	id, err := s.AddSession(Record{Model: "yolov8n", Epochs: 50, ImageFingerprints: []string{a}})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, s.MarkImages(id, []string{b, a}))

	assert.True(t, s.IsTrained(a))
	assert.True(t, s.IsTrained(b))
	assert.False(t, s.IsTrained(c))
	assert.Equal(t, []string{c}, s.FilterUntrained([]string{a, c, b}))

	sessions := s.Sessions()
	require.Len(t, sessions, 1)
	assert.Len(t, sessions[0].ImageFingerprints, 2)
	assert.False(t, sessions[0].Timestamp.IsZero())

	reopened, err := Open(path, WithCaseFolding(false))
	require.NoError(t, err)
	assert.True(t, reopened.IsTrained(b))
	st := reopened.Stats()
	assert.Equal(t, 1, st.Sessions)
	assert.Equal(t, 2, st.TrainedImages)
	assert.Equal(t, 50, st.TotalEpochs)
	assert.Equal(t, 1, st.Models["yolov8n"])
}

func TestMarkUnknownSession(t *testing.T) {
	t.Parallel()

	s, err := Open(filepath.Join(t.TempDir(), "h.json"))
	require.NoError(t, err)
	assert.ErrorIs(t, s.MarkImages("nope", []string{"a.jpg"}), ErrUnknownSession)
}

func TestFingerprintNormalization(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	// "é" precomposed and decomposed must collide.
	composed := filepath.Join(dir, "caf\u00e9.jpg")
	decomposed := filepath.Join(dir, "cafe\u0301.jpg")
	assert.Equal(t, fingerprint(composed, false), fingerprint(decomposed, false))

	assert.Equal(t, fingerprint(filepath.Join(dir, "sub", "..", "A.JPG"), true),
		fingerprint(filepath.Join(dir, "a.jpg"), true))
	assert.NotEqual(t, fingerprint(filepath.Join(dir, "A.JPG"), false),
		fingerprint(filepath.Join(dir, "a.jpg"), false))
}

func TestParseErrorIsReported(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "h.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := Open(path)
	require.Error(t, err)
}

func TestStage(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	a := filepath.Join(src, "a.jpg")
	ax := filepath.Join(src, "a.xml")
	require.NoError(t, os.WriteFile(a, []byte("img"), 0o644))
	require.NoError(t, os.WriteFile(ax, []byte("<annotation/>"), 0o644))

	dir, cleanup, err := Stage([]string{a, ax})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "a.xml"))
	require.NoError(t, err)
	assert.Equal(t, "<annotation/>", string(data))
	assert.FileExists(t, filepath.Join(dir, "a.jpg"))

	require.NoError(t, cleanup())
	assert.NoDirExists(t, dir)
	assert.FileExists(t, a)
}
