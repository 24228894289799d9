package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, core.InfoLevel, cfg.LogLevel())

	rc := cfg.RendererConfig()
	assert.Equal(t, renderer.Software, rc.Backend)
	assert.Equal(t, uint32(2), rc.FramesInFlight)
	assert.Equal(t, uint32(4096), rc.ShaderTables)
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
[log]
level = "debug"

[renderer]
backend = "vulkan"
frames_in_flight = 3

[descriptors]
max_shader_tables = 128
`))
	require.NoError(t, err)
	assert.Equal(t, core.DebugLevel, cfg.LogLevel())
	assert.Equal(t, "vulkan", cfg.Renderer.Backend)
	assert.Equal(t, uint32(3), cfg.Renderer.FramesInFlight)
	assert.Equal(t, uint64(1), cfg.Renderer.GPULatency, "unset keys keep their default")
	assert.Equal(t, uint32(128), cfg.Descriptors.MaxShaderTables)
	assert.Equal(t, uint32(256), cfg.Descriptors.MaxRenderTargets)
}

func TestParseRejects(t *testing.T) {
	for name, doc := range map[string]string{
		"unknown key":      "[renderer]\nbackground = 1\n",
		"syntax":           "[renderer\n",
		"backend":          "[renderer]\nbackend = \"metal\"\n",
		"frames in flight": "[renderer]\nframes_in_flight = 4\n",
		"no frames":        "[renderer]\nframes_in_flight = 0\n",
		"empty heap":       "[descriptors]\nmax_depth_stencils = 0\n",
		"too many tables":  "[descriptors]\nmax_shader_tables = 3000000\n",
		"log level":        "[log]\nlevel = \"loud\"\n",
		"viewport":         "[editor]\nviewport_width = 0\n",
	} {
		_, err := Parse([]byte(doc))
		assert.ErrorIs(t, err, core.ErrInvalidConfig, name)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Editor.Frames = 42
	data, err := cfg.Marshal()
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, parsed)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "editor.toml")
	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"info\"\n"), 0o644))

	changes := make(chan *Config, 4)
	w, err := NewWatcher(path, func(cfg *Config) { changes <- cfg })
	require.NoError(t, err)
	defer w.Close()

	// An invalid write is ignored.
	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"loud\"\n"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"warn\"\n"), 0o644))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changes:
			if cfg.LogLevel() == core.WarnLevel {
				return
			}
		case <-deadline:
			t.Fatal("configuration was not reloaded")
		}
	}
}

func TestWatcherCloseTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "editor.toml")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	w, err := NewWatcher(path, func(*Config) {})
	require.NoError(t, err)
	assert.NoError(t, w.Close())
	assert.Error(t, w.Close())
}
