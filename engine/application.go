package engine

import (
	"github.com/spaghettifunk/anima-editor/engine/config"
	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer"
)

type ApplicationConfig struct {
	// The application name used in logs.
	Name string
	// Viewport starting width.
	StartWidth uint32
	// Viewport starting height.
	StartHeight uint32
	// Frames to run before stopping, 0 runs until Stop.
	Frames   uint64
	LogLevel core.LogLevel
	Renderer *renderer.RendererConfig
}

// NewApplicationConfig builds the application configuration from a validated
// configuration file.
func NewApplicationConfig(name string, cfg *config.Config) *ApplicationConfig {
	return &ApplicationConfig{
		Name:        name,
		StartWidth:  cfg.Editor.ViewportWidth,
		StartHeight: cfg.Editor.ViewportHeight,
		Frames:      cfg.Editor.Frames,
		LogLevel:    cfg.LogLevel(),
		Renderer:    cfg.RendererConfig(),
	}
}
