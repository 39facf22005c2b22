package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/boxlabel/internal/errors"
)

func TestOpenMissing(t *testing.T) {
	t.Parallel()

	s, err := Open(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)
	assert.Empty(t, s.Keys())
	assert.True(t, s.Bool("anything", true))
}

func TestUnknownKeysPreserved(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), FileName)
	raw := `{"window/geometry":[10,20,800,600],"recent":{"files":["a.jpg"]},"theme":"dark"}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	s, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, "dark", s.String("theme", ""))

	s.Set("zoom", 1.5)
	require.NoError(t, s.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, []any{10.0, 20.0, 800.0, 600.0}, got["window/geometry"])
	assert.Equal(t, map[string]any{"files": []any{"a.jpg"}}, got["recent"])
	assert.InDelta(t, 1.5, got["zoom"], 1e-9)

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"recent", "theme", "window/geometry", "zoom"}, reopened.Keys())
	assert.InDelta(t, 1.5, reopened.Float("zoom", 0), 1e-9)
}

func TestTypedGettersFallBack(t *testing.T) {
	t.Parallel()

	s, err := Open(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)
	s.Set("flag", "yes")
	s.Set("count", 3)

	assert.False(t, s.Bool("flag", false))
	assert.Equal(t, "x", s.String("count", "x"))
	assert.InDelta(t, 3.0, s.Float("count", 0), 1e-9)
}

func TestReset(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), FileName)
	s, err := Open(path)
	require.NoError(t, err)
	s.Set("a", true)
	require.NoError(t, s.Save())

	require.NoError(t, s.Reset())
	assert.Empty(t, s.Keys())

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Empty(t, reopened.Keys())
}

func TestSaveFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	s, err := Open(filepath.Join(blocker, FileName))
	require.NoError(t, err)
	s.Set("a", 1)

	err = s.Save()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSettingsWriteFailed)
	assert.True(t, errors.IsCategory(err, errors.CategorySettings))
}

func TestOpenMalformed(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("[1,2"), 0o600))

	_, err := Open(path)
	require.Error(t, err)
}
