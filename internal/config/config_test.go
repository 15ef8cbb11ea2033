package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "luadec/internal/errors"
)

func TestDecodeOverridesDefaults(t *testing.T) {
	cfg, err := Decode("luadec.toml", `
[decompile]
dialect = "lua51"
jobs = 2
include = [0, 3]

[cache]
enabled = false
`)
	require.NoError(t, err)
	assert.Equal(t, "lua51", cfg.Decompile.Dialect)
	assert.Equal(t, 2, cfg.Decompile.Jobs)
	assert.Equal(t, []int{0, 3}, cfg.Decompile.Include)
	assert.False(t, cfg.Cache.Enabled)

	// Absent keys keep their defaults.
	assert.Equal(t, 32, cfg.Decompile.IterationCap)
	assert.Equal(t, Default().Cache.Dir, cfg.Cache.Dir)
	assert.Equal(t, 1, cfg.Log.Verbosity)
	assert.Empty(t, Default().Decompile.Dialect, "the listing header decides by default")
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"unknown key", "[decompile]\nthreads = 4\n", "decompile.threads"},
		{"unknown section", "[output]\nfile = \"x\"\n", "output"},
		{"zero jobs", "[decompile]\njobs = 0\n", "jobs must be positive"},
		{"empty dialect", "[decompile]\ndialect = \" \"\n", "dialect must not be empty"},
		{"bad syntax", "[decompile\n", "failed to parse TOML"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode("luadec.toml", tt.data)
			require.Error(t, err)
			assert.Equal(t, derrors.ErrorInvalidConfig, derrors.Code(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDiscoverWalksUp(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	path := filepath.Join(root, FileName)
	require.NoError(t, os.WriteFile(path, []byte("[log]\nverbosity = 3\n"), 0o644))

	cfg, err := Discover(nested)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, 3, cfg.Log.Verbosity)
}

func TestDefaultCacheDirHonorsXDG(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/tmp/xdg")
	assert.Equal(t, filepath.Join("/tmp/xdg", "luadec"), Default().Cache.Dir)
}
