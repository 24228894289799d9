package renderer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-editor/engine/containers"
	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer/descriptors"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-editor/engine/renderer/software"
)

// recordingBackend is the software backend with resource destruction tracked.
type recordingBackend struct {
	*softwareBackend
	destroyed []metadata.Resource
}

func (b *recordingBackend) DestroyResource(resource metadata.Resource) {
	b.destroyed = append(b.destroyed, resource)
}

func newTestRenderer(t *testing.T, config *RendererConfig) (*Renderer, *recordingBackend) {
	t.Helper()
	backend := &recordingBackend{softwareBackend: &softwareBackend{device: software.NewDevice()}}
	r, err := NewWithBackend(config, backend)
	require.NoError(t, err)
	return r, backend
}

func runFrame(t *testing.T, r *Renderer, record func(info metadata.FrameInfo)) {
	t.Helper()
	info, err := r.BeginFrame(context.Background())
	require.NoError(t, err)
	if record != nil {
		record(info)
	}
	require.NoError(t, r.EndFrame())
}

type timeline struct {
	events []string
}

type fakeFence struct {
	tl        *timeline
	submitted uint64
	completed uint64
}

func (f *fakeFence) Signal(frame uint64) error {
	f.tl.events = append(f.tl.events, "signal")
	f.submitted = frame
	return nil
}

func (f *fakeFence) Wait(ctx context.Context, frame uint64) error {
	f.tl.events = append(f.tl.events, "wait")
	f.completed = frame
	return nil
}

func (f *fakeFence) Completed() uint64 { return f.completed }

func (f *fakeFence) Release() {}

type fakeModule struct {
	tl    *timeline
	infos []metadata.FrameInfo
}

func (m *fakeModule) PreRender(info metadata.FrameInfo) error {
	m.tl.events = append(m.tl.events, "prerender")
	m.infos = append(m.infos, info)
	return nil
}

func TestParseRendererType(t *testing.T) {
	for name, want := range map[string]RendererType{"": Software, "software": Software, "Vulkan": Vulkan} {
		got, err := ParseRendererType(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got)
	}
	_, err := ParseRendererType("metal")
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestFrameLoopFramesInFlightBounds(t *testing.T) {
	fence := &fakeFence{tl: &timeline{}}
	_, err := NewFrameLoop(fence, 0)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
	_, err = NewFrameLoop(fence, descriptors.FRAME_DELAY+1)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
	_, err = NewFrameLoop(fence, descriptors.FRAME_DELAY)
	assert.NoError(t, err)
}

func TestFrameLoopWaitsBeforeModules(t *testing.T) {
	tl := &timeline{}
	fence := &fakeFence{tl: tl}
	fl, err := NewFrameLoop(fence, 2)
	require.NoError(t, err)
	module := &fakeModule{tl: tl}
	fl.Register(module)

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := fl.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, fl.End())
	}

	// Frames 2 and 3 fill the pipeline, frame 4 waits on 2 and frame 5 on 3.
	assert.Equal(t, []string{
		"prerender", "signal",
		"prerender", "signal",
		"wait", "prerender", "signal",
		"wait", "prerender", "signal",
	}, tl.events)
	require.Len(t, module.infos, 4)
	assert.Equal(t, metadata.FrameInfo{Frame: 2, CompletedFrame: 0}, module.infos[0])
	assert.Equal(t, metadata.FrameInfo{Frame: 4, CompletedFrame: 2}, module.infos[2])
	assert.Equal(t, metadata.FrameInfo{Frame: 5, CompletedFrame: 3}, module.infos[3])
}

func TestFrameLoopOrdering(t *testing.T) {
	fl, err := NewFrameLoop(software.NewFence(1), 2)
	require.NoError(t, err)

	assert.ErrorIs(t, fl.End(), core.ErrFrameOrdering)
	_, err = fl.Begin(context.Background())
	require.NoError(t, err)
	_, err = fl.Begin(context.Background())
	assert.ErrorIs(t, err, core.ErrFrameOrdering)
	require.NoError(t, fl.End())
	assert.Equal(t, uint64(2), fl.Frame())
	assert.NoError(t, fl.Drain(context.Background()))
}

func TestFrameLoopStopsOnCancelledContext(t *testing.T) {
	fl, err := NewFrameLoop(software.NewFence(8), 1)
	require.NoError(t, err)
	_, err = fl.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, fl.End())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = fl.Begin(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, fl.Recording())
}

func TestRendererRecyclesTablesAfterFrameDelay(t *testing.T) {
	r, _ := newTestRenderer(t, &RendererConfig{FramesInFlight: 3, GPULatency: 100, ShaderTables: 2})

	var handle containers.Handle
	runFrame(t, r, func(metadata.FrameInfo) {
		table := r.Shader.AllocTable("material")
		require.True(t, table.Valid())
		handle = table.Handle()
		table.Release()
	})
	assert.Equal(t, uint32(1), r.Shader.FreeTableCount())

	runFrame(t, r, nil)
	runFrame(t, r, nil)
	assert.True(t, r.Shader.IsValidHandle(handle), "pending through frames 3 and 4")

	runFrame(t, r, nil)
	assert.False(t, r.Shader.IsValidHandle(handle))
	assert.Equal(t, uint32(2), r.Shader.FreeTableCount())

	assert.NoError(t, r.Shutdown(context.Background()))
}

func TestRendererShutdownReportsLeaks(t *testing.T) {
	r, backend := newTestRenderer(t, &RendererConfig{FramesInFlight: 2, GPULatency: 1})
	texture, err := backend.CreateTexture(metadata.ResourceDesc{
		Dimension: metadata.ResourceDimensionTexture2D,
		Width:     8,
		Height:    8,
		Format:    metadata.FormatR8G8B8A8Unorm,
		Flags:     metadata.ResourceFlagAllowRenderTarget,
	})
	require.NoError(t, err)
	leaked := r.RT.Create(texture)
	require.True(t, leaked.Valid())

	err = r.Shutdown(context.Background())
	assert.ErrorIs(t, err, core.ErrDescriptorLeak)
	assert.Equal(t, 0, backend.device.LiveHeaps(), "heaps are released even when leaking")
}

func TestRenderTextureViews(t *testing.T) {
	r, backend := newTestRenderer(t, &RendererConfig{FramesInFlight: 2, GPULatency: 1})
	rt, err := NewRenderTexture(r, &RenderTextureConfig{
		Width:       320,
		Height:      200,
		ColorFormat: metadata.FormatR16G16B16A16Float,
		DepthFormat: metadata.FormatD32Float,
	})
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(rt.Name(), "render-texture-"))
	_, err = uuid.Parse(strings.TrimPrefix(rt.Name(), "render-texture-"))
	assert.NoError(t, err)

	require.True(t, rt.RTV.Valid())
	require.True(t, rt.DSV.Valid())
	require.True(t, rt.Table.Valid())
	assert.Equal(t, rt.Name(), rt.Table.Name())

	view, ok := backend.device.ViewAt(rt.RTV.CPUHandle())
	require.True(t, ok)
	assert.Equal(t, rt.Color(), view.Resource)

	view, ok = backend.device.ViewAtGPU(rt.Table.GPUHandle(RENDER_TEXTURE_COLOR_SLOT))
	require.True(t, ok)
	assert.Equal(t, software.ViewKindSRV, view.Kind)
	assert.Equal(t, rt.Color(), view.Resource)

	view, ok = backend.device.ViewAtGPU(rt.Table.GPUHandle(RENDER_TEXTURE_DEPTH_SLOT))
	require.True(t, ok)
	assert.True(t, view.Null())

	rt.Release()
	rt.Release()
	assert.NoError(t, r.Shutdown(context.Background()))
}

func TestRenderTextureResizeDefersOldTable(t *testing.T) {
	r, backend := newTestRenderer(t, &RendererConfig{FramesInFlight: 2, GPULatency: 1, ShaderTables: 4})
	rt, err := NewRenderTexture(r, &RenderTextureConfig{Width: 64, Height: 64, ColorFormat: metadata.FormatR8G8B8A8Unorm, Name: "viewport"})
	require.NoError(t, err)
	oldTable := rt.Table.Handle()
	oldColor := rt.Color()

	runFrame(t, r, func(metadata.FrameInfo) {
		require.NoError(t, rt.Resize(128, 32))
	})
	w, h := rt.Size()
	assert.Equal(t, uint32(128), w)
	assert.Equal(t, uint32(32), h)
	assert.Equal(t, uint64(128), rt.Color().Desc().Width)
	assert.NotEqual(t, oldTable, rt.Table.Handle())
	assert.True(t, r.Shader.IsValidHandle(oldTable), "old table is pending")
	assert.NotContains(t, backend.destroyed, oldColor)

	for i := 0; i < 3; i++ {
		runFrame(t, r, nil)
	}
	assert.False(t, r.Shader.IsValidHandle(oldTable))
	assert.Contains(t, backend.destroyed, oldColor)

	require.NoError(t, rt.Resize(128, 32), "same size is a no-op")
	rt.Release()
	assert.NoError(t, r.Shutdown(context.Background()))
}

func TestRenderTextureRejectsFormats(t *testing.T) {
	r, _ := newTestRenderer(t, &RendererConfig{FramesInFlight: 1})
	_, err := NewRenderTexture(r, &RenderTextureConfig{Width: 8, Height: 8, ColorFormat: metadata.FormatD32Float})
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
	_, err = NewRenderTexture(r, &RenderTextureConfig{Width: 8, Height: 8, ColorFormat: metadata.FormatR8G8B8A8Unorm, DepthFormat: metadata.FormatR32Float})
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
	assert.NoError(t, r.Shutdown(context.Background()))
}

func TestRenderTextureFailureReleasesEverything(t *testing.T) {
	r, _ := newTestRenderer(t, &RendererConfig{FramesInFlight: 1, DepthStencils: 1})
	blocker, err := NewRenderTexture(r, &RenderTextureConfig{Width: 8, Height: 8, ColorFormat: metadata.FormatR8G8B8A8Unorm, DepthFormat: metadata.FormatD32Float})
	require.NoError(t, err)

	_, err = NewRenderTexture(r, &RenderTextureConfig{Width: 8, Height: 8, ColorFormat: metadata.FormatR8G8B8A8Unorm, DepthFormat: metadata.FormatD32Float})
	assert.True(t, errors.Is(err, core.ErrViewCreationFailed), "got %v", err)
	assert.Equal(t, uint32(1), r.RT.Stats().InUse)

	blocker.Release()
	assert.NoError(t, r.Shutdown(context.Background()))
}

func newCube(t *testing.T, b RendererBackend, mips uint16) metadata.Resource {
	t.Helper()
	cube, err := b.CreateTexture(metadata.ResourceDesc{
		Dimension:        metadata.ResourceDimensionTextureCube,
		Width:            256,
		Height:           256,
		DepthOrArraySize: 6,
		MipLevels:        mips,
		Format:           metadata.FormatR8G8B8A8Unorm,
		Flags:            metadata.ResourceFlagAllowRenderTarget,
		Name:             "environment",
	})
	require.NoError(t, err)
	return cube
}

func TestCubemapTargetsFaceAndMip(t *testing.T) {
	r, backend := newTestRenderer(t, &RendererConfig{FramesInFlight: 2})
	cube := newCube(t, backend, 3)

	targets, err := NewCubemapTargets(r.RT, cube, 0, metadata.FormatR8G8B8A8UnormSrgb)
	require.NoError(t, err)
	assert.Equal(t, uint32(18), r.RT.Stats().InUse)

	target := targets.Target(4, 2)
	require.True(t, target.Valid())
	view, ok := backend.device.ViewAt(target.CPUHandle())
	require.True(t, ok)
	assert.Equal(t, uint32(4), view.RTV.FirstArraySlice)
	assert.Equal(t, uint32(1), view.RTV.ArraySize)
	assert.Equal(t, uint32(2), view.RTV.MipSlice)
	assert.Equal(t, metadata.FormatR8G8B8A8UnormSrgb, view.RTV.Format)

	assert.False(t, targets.Target(6, 0).Valid())
	assert.False(t, targets.Target(0, 3).Valid())

	targets.Release()
	assert.Equal(t, uint32(0), r.RT.Stats().InUse)
	assert.False(t, targets.Target(0, 0).Valid())
	assert.NoError(t, r.Shutdown(context.Background()))
}

func TestCubemapTargetsAllOrNothing(t *testing.T) {
	r, backend := newTestRenderer(t, &RendererConfig{FramesInFlight: 2, RenderTargets: 10})
	cube := newCube(t, backend, 2)

	_, err := NewCubemapTargets(r.RT, cube, 0, metadata.FormatUnknown)
	assert.ErrorIs(t, err, core.ErrViewCreationFailed)
	assert.Equal(t, uint32(0), r.RT.Stats().InUse)

	_, err = NewCubemapTargets(r.RT, cube, 1, metadata.FormatUnknown)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
	assert.NoError(t, r.Shutdown(context.Background()))
}
