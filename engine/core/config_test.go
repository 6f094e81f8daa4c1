package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.toml")
	data := `
[window]
width = 640
height = 480

[renderer]
frames_in_flight = 3
fence_timeout = "2s"
wait_idle_after_present = false
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(640), cfg.Window.Width)
	assert.Equal(t, uint32(480), cfg.Window.Height)
	assert.Equal(t, uint32(3), cfg.Renderer.FramesInFlight)
	assert.Equal(t, 2*time.Second, cfg.Renderer.FenceTimeout.Duration)
	assert.False(t, cfg.Renderer.WaitIdleAfterPresent)
	// untouched sections keep their defaults
	assert.Equal(t, "deferred", cfg.Renderer.Kind)
	assert.Equal(t, uint32(3), cfg.Scene.Instances)
}

func TestLoadConfigRejectsZeroFramesInFlight(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.toml")
	require.NoError(t, os.WriteFile(path, []byte("[renderer]\nframes_in_flight = 0\n"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigRejectsUnknownKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.toml")
	require.NoError(t, os.WriteFile(path, []byte("[renderer]\nkind = \"raytraced\"\n"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigComputeKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.toml")
	require.NoError(t, os.WriteFile(path, []byte("[renderer]\nkind = \"compute\"\nscan_length = 64\nverify_scan = true\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "compute", cfg.Renderer.Kind)
	assert.Equal(t, uint32(64), cfg.Renderer.ScanLength)
	assert.True(t, cfg.Renderer.VerifyScan)

	for _, n := range []string{"0", "257"} {
		require.NoError(t, os.WriteFile(path, []byte("[renderer]\nkind = \"compute\"\nscan_length = "+n+"\n"), 0o644))
		_, err = LoadConfig(path)
		assert.Error(t, err, n)
	}

	// the length is only checked for the compute renderer
	require.NoError(t, os.WriteFile(path, []byte("[renderer]\nscan_length = 0\n"), 0o644))
	_, err = LoadConfig(path)
	assert.NoError(t, err)
}

func TestShippedConfigDisablesVSync(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "gbuffer.toml"))
	require.NoError(t, err)
	assert.False(t, cfg.Renderer.VSync)
	assert.Equal(t, DefaultConfig().Renderer.VSync, cfg.Renderer.VSync)
	assert.Equal(t, "deferred", cfg.Renderer.Kind)
}
