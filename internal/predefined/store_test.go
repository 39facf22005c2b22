package predefined

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSeedsDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "boxlabel", FileName)
	s, err := Open(path)
	require.NoError(t, err)

	assert.FileExists(t, path)
	labels := s.List()
	require.NotEmpty(t, labels)
	assert.Equal(t, "dog", labels[0])
}

func TestAddDedupesAndPersists(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("a\nb\na\n\n"), 0o644))

	s, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, s.List())

	added, err := s.Add(" c ")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.Add("a")
	require.NoError(t, err)
	assert.False(t, added)

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, reopened.List())
	assert.True(t, reopened.Contains("c"))
}

func TestClearNeedsConfirmation(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), FileName)
	s, err := Open(path)
	require.NoError(t, err)

	assert.ErrorIs(t, s.Clear(false), ErrNotConfirmed)
	assert.NotEmpty(t, s.List())

	require.NoError(t, s.Clear(true))
	assert.Empty(t, s.List())

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Empty(t, reopened.List(), "a cleared list is not re-seeded")
}
