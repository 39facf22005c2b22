package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/boxlabel/internal/classes"
	"github.com/tphakala/boxlabel/internal/conf"
)

func TestCloseSavesAssignedClassIDs(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{}
	settings.Project.ConfigDir = t.TempDir()
	a := New(settings)

	reg, err := a.Registry()
	require.NoError(t, err)
	_, err = reg.Ensure("cat")
	require.NoError(t, err)
	id, err := reg.Ensure("dog")
	require.NoError(t, err)
	require.Equal(t, 1, id)

	require.NoError(t, a.Close())

	reopened, err := classes.Load(settings.ClassRegistryPath())
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "dog"}, reopened.Names())
}

func TestCloseWithoutServices(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{}
	settings.Project.ConfigDir = t.TempDir()
	assert.NoError(t, New(settings).Close())
}
