package renderer

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer/descriptors"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

const (
	RENDER_TEXTURE_COLOR_SLOT uint32 = 0
	RENDER_TEXTURE_DEPTH_SLOT uint32 = 1
)

type RenderTextureConfig struct {
	Width       uint32
	Height      uint32
	ColorFormat metadata.Format
	/** @brief metadata.FormatUnknown for a texture with no depth target. */
	DepthFormat metadata.Format
	/** @brief Debug name. A random one is generated when empty. */
	Name string
}

// RenderTexture is a color target, an optional depth target and a shader
// table sampling the color target in slot 0.
type RenderTexture struct {
	renderer *Renderer
	config   RenderTextureConfig

	color metadata.Resource
	depth metadata.Resource

	RTV   descriptors.RTDescriptor
	DSV   descriptors.DSDescriptor
	Table descriptors.ShaderTableDesc
}

func NewRenderTexture(r *Renderer, config *RenderTextureConfig) (*RenderTexture, error) {
	rt := &RenderTexture{
		renderer: r,
		config:   *config,
	}
	if rt.config.Name == "" {
		rt.config.Name = "render-texture-" + uuid.NewString()
	}
	if rt.config.ColorFormat == metadata.FormatUnknown || rt.config.ColorFormat.IsDepth() {
		return nil, fmt.Errorf("%w: render texture %q color format %s", core.ErrInvalidConfig, rt.config.Name, rt.config.ColorFormat)
	}
	if rt.config.DepthFormat != metadata.FormatUnknown && !rt.config.DepthFormat.IsDepth() {
		return nil, fmt.Errorf("%w: render texture %q depth format %s", core.ErrInvalidConfig, rt.config.Name, rt.config.DepthFormat)
	}
	if err := rt.create(); err != nil {
		rt.Release()
		return nil, err
	}
	return rt, nil
}

func (rt *RenderTexture) Name() string {
	return rt.config.Name
}

func (rt *RenderTexture) Size() (uint32, uint32) {
	return rt.config.Width, rt.config.Height
}

func (rt *RenderTexture) Color() metadata.Resource {
	return rt.color
}

func (rt *RenderTexture) Depth() metadata.Resource {
	return rt.depth
}

// Resize recreates the targets and their views at the new size. The old
// shader table is released and stays readable by the frames in flight.
func (rt *RenderTexture) Resize(width, height uint32) error {
	if width == rt.config.Width && height == rt.config.Height {
		return nil
	}
	rt.Release()
	rt.config.Width = width
	rt.config.Height = height
	if err := rt.create(); err != nil {
		rt.Release()
		return err
	}
	core.LogDebug("render texture %q resized to %dx%d", rt.config.Name, width, height)
	return nil
}

// Release drops every view and retires the targets. Safe to call twice.
func (rt *RenderTexture) Release() {
	rt.Table.Release()
	rt.DSV.Release()
	rt.RTV.Release()
	rt.renderer.Retire(rt.color)
	rt.renderer.Retire(rt.depth)
	rt.color = nil
	rt.depth = nil
}

func (rt *RenderTexture) create() error {
	color, err := rt.renderer.backend.CreateTexture(metadata.ResourceDesc{
		Dimension: metadata.ResourceDimensionTexture2D,
		Width:     uint64(rt.config.Width),
		Height:    rt.config.Height,
		Format:    rt.config.ColorFormat,
		Flags:     metadata.ResourceFlagAllowRenderTarget,
		Name:      rt.config.Name + ".color",
	})
	if err != nil {
		return err
	}
	rt.color = color

	rt.RTV = rt.renderer.RT.Create(color)
	if !rt.RTV.Valid() {
		return fmt.Errorf("%w: render target view of %q", core.ErrViewCreationFailed, rt.config.Name)
	}

	rt.Table = rt.renderer.Shader.AllocTable(rt.config.Name)
	if !rt.Table.Valid() {
		return fmt.Errorf("%w: shader table of %q", core.ErrOutOfHandles, rt.config.Name)
	}
	if err := rt.Table.CreateTextureSRV(RENDER_TEXTURE_COLOR_SLOT, color); err != nil {
		return err
	}
	// Depth is not sampled, the slot is kept bound for shaders that declare it.
	if err := rt.Table.CreateNullTexture2DSRV(RENDER_TEXTURE_DEPTH_SLOT); err != nil {
		return err
	}

	if rt.config.DepthFormat == metadata.FormatUnknown {
		return nil
	}
	depth, err := rt.renderer.backend.CreateTexture(metadata.ResourceDesc{
		Dimension: metadata.ResourceDimensionTexture2D,
		Width:     uint64(rt.config.Width),
		Height:    rt.config.Height,
		Format:    rt.config.DepthFormat,
		Flags:     metadata.ResourceFlagAllowDepthStencil,
		Name:      rt.config.Name + ".depth",
	})
	if err != nil {
		return err
	}
	rt.depth = depth

	rt.DSV = rt.renderer.DS.Create(depth)
	if !rt.DSV.Valid() {
		return fmt.Errorf("%w: depth stencil view of %q", core.ErrViewCreationFailed, rt.config.Name)
	}
	return nil
}
