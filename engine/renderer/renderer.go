package renderer

import (
	"context"
	"errors"
	"fmt"

	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer/descriptors"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

type RendererConfig struct {
	Backend        RendererType
	FramesInFlight uint32
	GPULatency     uint64
	RenderTargets  uint32
	DepthStencils  uint32
	ShaderTables   uint32
}

// retiredResource is destroyed once the GPU has completed frame and the
// shader tables released with it have been recycled.
type retiredResource struct {
	resource metadata.Resource
	frame    uint64
}

// Renderer owns the backend, the descriptor modules and the frame timeline.
type Renderer struct {
	config  RendererConfig
	backend RendererBackend
	fence   Fence
	frames  *FrameLoop

	RT     *descriptors.ModuleRTDescriptors
	DS     *descriptors.ModuleDSDescriptors
	Shader *descriptors.ModuleShaderDescriptors

	retired []retiredResource
}

// New creates the backend and initialises every descriptor module. Any
// failure aborts startup and tears down what was already created.
func New(config *RendererConfig) (*Renderer, error) {
	backend, err := NewBackend(config.Backend)
	if err != nil {
		return nil, err
	}
	r, err := NewWithBackend(config, backend)
	if err != nil {
		if shutdownErr := backend.Shutdown(); shutdownErr != nil {
			core.LogError("renderer backend shutdown failed: %s", shutdownErr)
		}
		return nil, err
	}
	return r, nil
}

// NewWithBackend is New with a caller provided backend.
func NewWithBackend(config *RendererConfig, backend RendererBackend) (*Renderer, error) {
	r := &Renderer{
		config:  *config,
		backend: backend,
	}
	config = &r.config
	if config.RenderTargets == 0 {
		config.RenderTargets = descriptors.RT_DESCRIPTORS_DEFAULT_CAPACITY
	}
	if config.DepthStencils == 0 {
		config.DepthStencils = descriptors.DS_DESCRIPTORS_DEFAULT_CAPACITY
	}
	if config.ShaderTables == 0 {
		config.ShaderTables = descriptors.SHADER_DESCRIPTORS_DEFAULT_TABLES
	}
	fence, err := backend.NewFence(config.FramesInFlight, config.GPULatency)
	if err != nil {
		return nil, err
	}
	frames, err := NewFrameLoop(fence, config.FramesInFlight)
	if err != nil {
		fence.Release()
		return nil, err
	}
	r.fence = fence
	r.frames = frames

	device := backend.Device()
	r.RT = descriptors.NewModuleRTDescriptors(&descriptors.ModuleConfig{Name: "rt descriptors", Capacity: config.RenderTargets}, device)
	r.DS = descriptors.NewModuleDSDescriptors(&descriptors.ModuleConfig{Name: "ds descriptors", Capacity: config.DepthStencils}, device)
	r.Shader = descriptors.NewModuleShaderDescriptors(&descriptors.ModuleConfig{Name: "shader descriptors", Capacity: config.ShaderTables}, device)

	if err := r.RT.Init(); err != nil {
		fence.Release()
		return nil, err
	}
	if err := r.DS.Init(); err != nil {
		r.RT.Shutdown()
		fence.Release()
		return nil, err
	}
	if err := r.Shader.Init(); err != nil {
		r.DS.Shutdown()
		r.RT.Shutdown()
		fence.Release()
		return nil, err
	}
	frames.Register(r.Shader)

	core.LogInfo("renderer initialized with %s backend, %d frames in flight", backend.Type(), config.FramesInFlight)
	return r, nil
}

func (r *Renderer) Backend() RendererBackend {
	return r.backend
}

func (r *Renderer) Frames() *FrameLoop {
	return r.frames
}

// BeginFrame waits for the oldest frame in flight, destroys the resources it
// retired and sweeps the shader tables.
func (r *Renderer) BeginFrame(ctx context.Context) (metadata.FrameInfo, error) {
	info, err := r.frames.Begin(ctx)
	if err != nil {
		return info, err
	}
	r.destroyRetired(info)
	return info, nil
}

func (r *Renderer) EndFrame() error {
	return r.frames.End()
}

// Retire destroys resource once the GPU has completed the current frame and
// FRAME_DELAY frames have passed, after the views of tables released in the
// same frame.
func (r *Renderer) Retire(resource metadata.Resource) {
	if resource == nil {
		return
	}
	r.retired = append(r.retired, retiredResource{resource: resource, frame: r.frames.Frame()})
}

func (r *Renderer) destroyRetired(info metadata.FrameInfo) {
	kept := r.retired[:0]
	for _, rr := range r.retired {
		if rr.frame > info.CompletedFrame || info.Frame-rr.frame < descriptors.FRAME_DELAY {
			kept = append(kept, rr)
			continue
		}
		r.backend.DestroyResource(rr.resource)
	}
	clear(r.retired[len(kept):])
	r.retired = kept
}

// Stats returns the occupancy of every descriptor module.
func (r *Renderer) Stats() []descriptors.Stats {
	return []descriptors.Stats{r.RT.Stats(), r.DS.Stats(), r.Shader.Stats()}
}

// Shutdown drains the GPU, destroys the retired resources and shuts the
// modules down. Leaked descriptors are reported in the returned error.
func (r *Renderer) Shutdown(ctx context.Context) error {
	var errs []error
	if err := r.frames.Drain(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain: %w", err))
	}
	for _, rr := range r.retired {
		r.backend.DestroyResource(rr.resource)
	}
	r.retired = nil

	errs = append(errs, r.Shader.Shutdown(), r.DS.Shutdown(), r.RT.Shutdown())
	r.fence.Release()
	errs = append(errs, r.backend.Shutdown())

	err := errors.Join(errs...)
	if err != nil {
		core.LogError("renderer shutdown: %s", err)
	} else {
		core.LogInfo("renderer shut down")
	}
	return err
}
