package settings

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeletePolicy(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), FileName)
	s, err := Open(path)
	require.NoError(t, err)
	p := NewDeletePolicy(s)

	assert.Equal(t, ConfirmFull, p.Mode(DeleteCurrentImage))
	assert.Equal(t, ConfirmFull, p.Mode(DeleteViaMenu))

	// Confirming without opting out changes nothing.
	require.NoError(t, p.Confirm(DeleteCurrentImage, false))
	assert.Equal(t, ConfirmFull, p.Mode(DeleteCurrentImage))

	require.NoError(t, p.Confirm(DeleteCurrentImage, true))
	assert.Equal(t, ConfirmLight, p.Mode(DeleteCurrentImage))
	assert.Equal(t, ConfirmFull, p.Mode(DeleteViaMenu), "flags are independent")

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, ConfirmLight, NewDeletePolicy(reopened).Mode(DeleteCurrentImage))

	require.NoError(t, p.Confirm(DeleteViaMenu, true))
	assert.Equal(t, ConfirmLight, p.Mode(DeleteViaMenu))

	require.NoError(t, p.ResetAll())
	assert.Equal(t, ConfirmFull, p.Mode(DeleteCurrentImage))
	assert.Equal(t, ConfirmFull, p.Mode(DeleteViaMenu))

	reopened, err = Open(path)
	require.NoError(t, err)
	assert.Equal(t, ConfirmFull, NewDeletePolicy(reopened).Mode(DeleteViaMenu))
}

func TestDeleteKindKeysDiffer(t *testing.T) {
	t.Parallel()
	assert.NotEqual(t, DeleteCurrentImage.Key(), DeleteViaMenu.Key())
	assert.Equal(t, "light", ConfirmLight.String())
}
