package pathing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigPath(t *testing.T) {
	t.Setenv(ConfigDirEnv, "")
	assert.Equal(t, "/etc/lambrecht_meteo/lambrecht_meteo.toml", GetConfigPath())

	dir := t.TempDir()
	t.Setenv(ConfigDirEnv, dir)
	assert.Equal(t, filepath.Join(dir, "lambrecht_meteo.toml"), GetConfigPath())
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDir(dir))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	require.NoError(t, EnsureDir(dir))
}
