package engine

import (
	"github.com/spaghettifunk/anima-editor/engine/renderer"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

// Game is the workload driven by the engine. Every hook is optional.
type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

type Initialize func(r *renderer.Renderer) error
type Update func(info metadata.FrameInfo, deltaTime float64) error
type Render func(info metadata.FrameInfo, deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
