package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/anima-editor/engine/containers"
	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer"
	"github.com/spaghettifunk/anima-editor/engine/renderer/descriptors"
)

// EVENT_CODE_CONFIG_RELOADED is fired with the new *Config as data after a
// watched file reloads.
const EVENT_CODE_CONFIG_RELOADED = core.MAX_EVENT_CODE + 1

type LogConfig struct {
	Level string `toml:"level"`
}

type RendererConfig struct {
	// software or vulkan
	Backend        string `toml:"backend"`
	FramesInFlight uint32 `toml:"frames_in_flight"`
	// Frames the software GPU lags behind the CPU.
	GPULatency uint64 `toml:"gpu_latency"`
}

// DescriptorsConfig sizes the descriptor heaps. The capacities are fixed once
// the renderer is created.
type DescriptorsConfig struct {
	MaxRenderTargets uint32 `toml:"max_render_targets"`
	MaxDepthStencils uint32 `toml:"max_depth_stencils"`
	MaxShaderTables  uint32 `toml:"max_shader_tables"`
}

type EditorConfig struct {
	// Number of frames to run, 0 runs until interrupted.
	Frames         uint64 `toml:"frames"`
	ViewportWidth  uint32 `toml:"viewport_width"`
	ViewportHeight uint32 `toml:"viewport_height"`
}

type Config struct {
	Log         LogConfig         `toml:"log"`
	Renderer    RendererConfig    `toml:"renderer"`
	Descriptors DescriptorsConfig `toml:"descriptors"`
	Editor      EditorConfig      `toml:"editor"`
}

func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Renderer: RendererConfig{
			Backend:        "software",
			FramesInFlight: 2,
			GPULatency:     1,
		},
		Descriptors: DescriptorsConfig{
			MaxRenderTargets: descriptors.RT_DESCRIPTORS_DEFAULT_CAPACITY,
			MaxDepthStencils: descriptors.DS_DESCRIPTORS_DEFAULT_CAPACITY,
			MaxShaderTables:  descriptors.SHADER_DESCRIPTORS_DEFAULT_TABLES,
		},
		Editor: EditorConfig{
			Frames:         600,
			ViewportWidth:  1280,
			ViewportHeight: 720,
		},
	}
}

// Load reads the file at path over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data over the defaults and validates the result. Unknown keys
// are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("%w: %s", core.ErrInvalidConfig, strict.String())
		}
		var decodeErr *toml.DecodeError
		if errors.As(err, &decodeErr) {
			row, col := decodeErr.Position()
			return nil, fmt.Errorf("%w: line %d column %d: %s", core.ErrInvalidConfig, row, col, decodeErr.Error())
		}
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Marshal encodes cfg as TOML.
func (c *Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

func (c *Config) Validate() error {
	var errs []error
	if _, err := core.ParseLogLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("%w: log.level %q", core.ErrInvalidConfig, c.Log.Level))
	}
	if _, err := renderer.ParseRendererType(c.Renderer.Backend); err != nil {
		errs = append(errs, err)
	}
	if c.Renderer.FramesInFlight == 0 || c.Renderer.FramesInFlight > descriptors.FRAME_DELAY {
		errs = append(errs, fmt.Errorf("%w: renderer.frames_in_flight %d not in [1, %d]", core.ErrInvalidConfig, c.Renderer.FramesInFlight, descriptors.FRAME_DELAY))
	}
	errs = append(errs,
		checkCapacity("descriptors.max_render_targets", c.Descriptors.MaxRenderTargets, containers.MAX_HANDLES),
		checkCapacity("descriptors.max_depth_stencils", c.Descriptors.MaxDepthStencils, containers.MAX_HANDLES),
		checkCapacity("descriptors.max_shader_tables", c.Descriptors.MaxShaderTables, containers.MAX_HANDLES/descriptors.SLOTS_PER_TABLE),
	)
	if c.Editor.ViewportWidth == 0 || c.Editor.ViewportHeight == 0 {
		errs = append(errs, fmt.Errorf("%w: editor viewport %dx%d", core.ErrInvalidConfig, c.Editor.ViewportWidth, c.Editor.ViewportHeight))
	}
	return errors.Join(errs...)
}

// LogLevel returns the parsed log level. c must be valid.
func (c *Config) LogLevel() core.LogLevel {
	level, _ := core.ParseLogLevel(c.Log.Level)
	return level
}

// RendererConfig converts c to the renderer configuration. c must be valid.
func (c *Config) RendererConfig() *renderer.RendererConfig {
	backend, _ := renderer.ParseRendererType(c.Renderer.Backend)
	return &renderer.RendererConfig{
		Backend:        backend,
		FramesInFlight: c.Renderer.FramesInFlight,
		GPULatency:     c.Renderer.GPULatency,
		RenderTargets:  c.Descriptors.MaxRenderTargets,
		DepthStencils:  c.Descriptors.MaxDepthStencils,
		ShaderTables:   c.Descriptors.MaxShaderTables,
	}
}

func checkCapacity(key string, value, limit uint32) error {
	if value == 0 || value > limit {
		return fmt.Errorf("%w: %s %d not in [1, %d]", core.ErrInvalidConfig, key, value, limit)
	}
	return nil
}
