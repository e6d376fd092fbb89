package genesis

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "genesis.toml")

	m, err := Load(path)
	require.NoError(t, err)
	require.NotEmpty(t, m.KycAdmin)
	require.NotEmpty(t, m.VaultAddress)
	require.Empty(t, m.Properties)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, m.KycAdmin, reloaded.KycAdmin)
}
