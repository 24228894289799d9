package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/spaghettifunk/anima-editor/engine/config"
	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine has shut down, it cannot be restarted
	EngineStageShutdown
)

func (s Stage) String() string {
	switch s {
	case EngineStageUninitialized:
		return "uninitialized"
	case EngineStageInitializing:
		return "initializing"
	case EngineStageInitialized:
		return "initialized"
	case EngineStageRunning:
		return "running"
	case EngineStageShuttingDown:
		return "shutting down"
	case EngineStageShutdown:
		return "shutdown"
	}
	return fmt.Sprintf("Stage(%d)", uint8(s))
}

type Engine struct {
	currentStage Stage
	gameInstance *Game
	isRunning    atomic.Bool
	renderer     *renderer.Renderer
	width        uint32
	height       uint32
	clock        *core.Clock
	metrics      *core.FrameMetrics
	lastTime     float64
}

func New(g *Game) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil || g.ApplicationConfig.Renderer == nil {
		return nil, fmt.Errorf("%w: game without application configuration", core.ErrInvalidConfig)
	}
	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		clock:        core.NewClock(),
		metrics:      core.NewFrameMetrics(),
		width:        g.ApplicationConfig.StartWidth,
		height:       g.ApplicationConfig.StartHeight,
	}, nil
}

// Initialize creates the renderer and lets the game create its resources.
// A failure tears down what was created and leaves the engine unusable.
func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageUninitialized {
		return fmt.Errorf("%w: initialize in stage %s", core.ErrFrameOrdering, e.currentStage)
	}
	e.currentStage = EngineStageInitializing
	core.SetLogLevel(e.gameInstance.ApplicationConfig.LogLevel)
	core.LogInfo("initializing %s", e.gameInstance.ApplicationConfig.Name)

	// initialize events
	if !core.EventSystemInitialize() {
		e.currentStage = EngineStageShutdown
		return fmt.Errorf("%w: event system already initialized by another engine", core.ErrFrameOrdering)
	}
	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	core.EventRegister(core.EVENT_CODE_RESIZED, e, e.onResized)
	core.EventRegister(config.EVENT_CODE_CONFIG_RELOADED, e, e.onConfigReloaded)

	rendererConfig := e.gameInstance.ApplicationConfig.Renderer
	backend, err := renderer.NewBackend(rendererConfig.Backend)
	if err != nil {
		core.EventSystemShutdown()
		e.currentStage = EngineStageShutdown
		return err
	}
	r, err := renderer.NewWithBackend(rendererConfig, backend)
	if err != nil {
		if shutdownErr := backend.Shutdown(); shutdownErr != nil {
			core.LogError("backend shutdown: %s", shutdownErr)
		}
		core.EventSystemShutdown()
		e.currentStage = EngineStageShutdown
		return err
	}
	e.renderer = r

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(r); err != nil {
			e.currentStage = EngineStageShutdown
			return errors.Join(err, e.shutdownRenderer())
		}
	}
	if err := e.refreshRenderTargets(); err != nil {
		e.currentStage = EngineStageShutdown
		return errors.Join(err, e.shutdownGame(), e.shutdownRenderer())
	}
	e.currentStage = EngineStageInitialized
	return nil
}

// Run drives frames until ctx is done, Stop is called or the configured frame
// count is reached.
func (e *Engine) Run(ctx context.Context) error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("%w: run in stage %s", core.ErrFrameOrdering, e.currentStage)
	}
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	frames := e.gameInstance.ApplicationConfig.Frames
	for ran := uint64(0); e.isRunning.Load() && (frames == 0 || ran < frames); ran++ {
		if err := ctx.Err(); err != nil {
			break
		}
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime

		if err := e.frame(ctx, delta); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			core.LogError("frame failed, shutting down: %s", err)
			e.isRunning.Store(false)
			e.currentStage = EngineStageInitialized
			return err
		}

		e.clock.Update()
		e.metrics.Update(e.clock.Elapsed() - currentTime)
		e.lastTime = currentTime
	}
	e.isRunning.Store(false)
	e.currentStage = EngineStageInitialized
	core.LogInfo("ran %d frames, %.3f ms average", e.metrics.TotalFrames(), e.metrics.FrameTime())
	return nil
}

func (e *Engine) frame(ctx context.Context, delta float64) error {
	info, err := e.renderer.BeginFrame(ctx)
	if err != nil {
		return err
	}
	if e.gameInstance.FnUpdate != nil {
		if err := e.gameInstance.FnUpdate(info, delta); err != nil {
			return errors.Join(fmt.Errorf("update of frame %d: %w", info.Frame, err), e.renderer.EndFrame())
		}
	}
	if e.gameInstance.FnRender != nil {
		if err := e.gameInstance.FnRender(info, delta); err != nil {
			return errors.Join(fmt.Errorf("render of frame %d: %w", info.Frame, err), e.renderer.EndFrame())
		}
	}
	return e.renderer.EndFrame()
}

// Stop fires EVENT_CODE_APPLICATION_QUIT, which makes Run return after the
// current frame. Safe from any goroutine.
func (e *Engine) Stop() {
	if err := core.EventFire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT}); err != nil {
		core.LogError("application quit: %s", err)
	}
}

// Resize fires EVENT_CODE_RESIZED with the new viewport size.
func (e *Engine) Resize(width, height uint32) error {
	if e.currentStage != EngineStageInitialized && e.currentStage != EngineStageRunning {
		return fmt.Errorf("%w: resize in stage %s", core.ErrFrameOrdering, e.currentStage)
	}
	return core.EventFire(core.EventContext{
		Type: core.EVENT_CODE_RESIZED,
		Data: &core.SystemEvent{WindowWidth: width, WindowHeight: height},
	})
}

func (e *Engine) onEvent(context core.EventContext) error {
	switch context.Type {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning.Store(false)
	}
	return nil
}

func (e *Engine) onResized(context core.EventContext) error {
	se, ok := context.Data.(*core.SystemEvent)
	if !ok {
		return fmt.Errorf("wrong event associated with the event type `%d`", context.Type)
	}
	width := se.WindowWidth
	height := se.WindowHeight
	if width == e.width && height == e.height {
		return nil
	}
	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, keeping render targets at %dx%d.", e.width, e.height)
		return nil
	}
	core.LogDebug("Window resize: %d, %d", width, height)
	e.width = width
	e.height = height
	return e.refreshRenderTargets()
}

// refreshRenderTargets hands the current size to the game and then asks every
// listener to regenerate the render targets sized after the viewport.
func (e *Engine) refreshRenderTargets() error {
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}
	return core.EventFire(core.EventContext{
		Type: core.EVENT_CODE_DEFAULT_RENDERTARGET_REFRESH_REQUIRED,
		Data: &core.SystemEvent{WindowWidth: e.width, WindowHeight: e.height},
	})
}

func (e *Engine) onConfigReloaded(context core.EventContext) error {
	cfg, ok := context.Data.(*config.Config)
	if !ok {
		return fmt.Errorf("wrong event associated with the event type `%d`", context.Type)
	}
	core.SetLogLevel(cfg.LogLevel())
	return nil
}

// Shutdown releases the game resources and the renderer. Descriptor leaks are
// part of the returned error.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("%w: shutdown in stage %s", core.ErrFrameOrdering, e.currentStage)
	}
	e.currentStage = EngineStageShuttingDown
	err := errors.Join(e.shutdownGame(), e.renderer.Shutdown(ctx))
	e.renderer = nil
	core.EventSystemShutdown()
	e.currentStage = EngineStageShutdown
	return err
}

func (e *Engine) shutdownGame() error {
	if e.gameInstance.FnShutdown == nil {
		return nil
	}
	return e.gameInstance.FnShutdown()
}

func (e *Engine) shutdownRenderer() error {
	err := e.renderer.Shutdown(context.Background())
	e.renderer = nil
	core.EventSystemShutdown()
	return err
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) Renderer() *renderer.Renderer {
	return e.renderer
}

func (e *Engine) Metrics() *core.FrameMetrics {
	return e.metrics
}

// GetFramebufferSize returns the width and height (in this order) of the
// viewport.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}
