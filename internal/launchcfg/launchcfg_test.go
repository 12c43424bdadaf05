package launchcfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "claude", cfg.Command)
	assert.Equal(t, "--dangerously-skip-permissions", cfg.TrustFlag)
	assert.Empty(t, cfg.ExtraArgs)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	content := `
command = "my-agent"
extra_args = ["--resume", "--verbose"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "launch-config.toml"), []byte(content), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "my-agent", cfg.Command)
	assert.Equal(t, []string{"--resume", "--verbose"}, cfg.ExtraArgs)
	// Unset keys fall back.
	assert.Equal(t, "--dangerously-skip-permissions", cfg.TrustFlag)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "launch-config.toml"), []byte("not [valid"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}
