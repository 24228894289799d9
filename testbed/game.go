package testbed

import (
	"fmt"

	"golang.org/x/exp/rand"

	"github.com/spaghettifunk/anima-editor/engine"
	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer"
	"github.com/spaghettifunk/anima-editor/engine/renderer/descriptors"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

const (
	MATERIAL_COUNT      = 32
	MATERIAL_CBV_SLOT   = 0
	MATERIAL_ALBEDO     = 1
	MATERIAL_ENV_SLOT   = 2
	MATERIAL_CBV_SIZE   = 256
	ENVIRONMENT_SIZE    = 128
	ENVIRONMENT_MIPS    = 4
	RESIZE_EVERY_FRAMES = 60
)

// TestGame is a headless editor session: a viewport that gets resized, a set
// of materials rebuilt every frame and an environment map baked at start.
type TestGame struct {
	*engine.Game
}

type Stats struct {
	TablesAllocated uint64
	TablesReleased  uint64
	TablesMissed    uint64
	Resizes         uint64
	BakedTargets    uint32
	Draws           uint64
}

type gameState struct {
	renderer *renderer.Renderer
	rng      *rand.Rand

	viewport    *renderer.RenderTexture
	constants   metadata.Resource
	albedo      metadata.Resource
	environment metadata.Resource
	sky         descriptors.ShaderTableDesc
	materials   []descriptors.ShaderTableDesc

	stats Stats
}

func NewTestGame(config *engine.ApplicationConfig, seed uint64) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: config,
			State: &gameState{
				rng:       rand.New(rand.NewSource(seed)),
				materials: make([]descriptors.ShaderTableDesc, MATERIAL_COUNT),
			},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func (g *TestGame) Stats() Stats {
	return g.state().stats
}

func (g *TestGame) Initialize(r *renderer.Renderer) error {
	core.LogDebug("TestGame Initialize fn....")
	state := g.state()
	state.renderer = r
	backend := r.Backend()

	viewport, err := renderer.NewRenderTexture(r, &renderer.RenderTextureConfig{
		Width:       g.ApplicationConfig.StartWidth,
		Height:      g.ApplicationConfig.StartHeight,
		ColorFormat: metadata.FormatR16G16B16A16Float,
		DepthFormat: metadata.FormatD32Float,
		Name:        "viewport",
	})
	if err != nil {
		return err
	}
	state.viewport = viewport
	core.EventRegister(core.EVENT_CODE_DEFAULT_RENDERTARGET_REFRESH_REQUIRED, state, g.onRenderTargetRefresh)

	if state.constants, err = backend.CreateBuffer(MATERIAL_COUNT*MATERIAL_CBV_SIZE, "material constants"); err != nil {
		return err
	}
	if state.albedo, err = backend.CreateTexture(metadata.ResourceDesc{
		Dimension: metadata.ResourceDimensionTexture2D,
		Width:     256,
		Height:    256,
		MipLevels: 1,
		Format:    metadata.FormatR8G8B8A8UnormSrgb,
		Name:      "albedo",
	}); err != nil {
		return err
	}
	if err := g.bakeEnvironment(); err != nil {
		return err
	}
	core.LogInfo("testbed initialized, %d environment targets baked", state.stats.BakedTargets)
	return nil
}

// bakeEnvironment renders every face and mip of the environment cube once
// and keeps a table sampling the result.
func (g *TestGame) bakeEnvironment() error {
	state := g.state()
	environment, err := state.renderer.Backend().CreateTexture(metadata.ResourceDesc{
		Dimension:        metadata.ResourceDimensionTextureCube,
		Width:            ENVIRONMENT_SIZE,
		Height:           ENVIRONMENT_SIZE,
		DepthOrArraySize: 6,
		MipLevels:        ENVIRONMENT_MIPS,
		Format:           metadata.FormatR16G16B16A16Float,
		Flags:            metadata.ResourceFlagAllowRenderTarget,
		Name:             "environment",
	})
	if err != nil {
		return err
	}
	state.environment = environment

	targets, err := renderer.NewCubemapTargets(state.renderer.RT, environment, 0, metadata.FormatUnknown)
	if err != nil {
		return err
	}
	defer targets.Release()
	for face := uint32(0); face < renderer.CUBE_FACES; face++ {
		for mip := uint32(0); mip < targets.Mips(); mip++ {
			if targets.Target(face, mip).CPUHandle().IsNull() {
				return fmt.Errorf("%w: environment face %d mip %d", core.ErrViewCreationFailed, face, mip)
			}
			state.stats.BakedTargets++
		}
	}

	state.sky = state.renderer.Shader.AllocTable("sky")
	if !state.sky.Valid() {
		return fmt.Errorf("%w: sky table", core.ErrOutOfHandles)
	}
	return state.sky.CreateCubeTextureSRV(0, environment)
}

// Update rebuilds a random subset of the materials and resizes the window
// now and then.
func (g *TestGame) Update(info metadata.FrameInfo, deltaTime float64) error {
	state := g.state()
	if info.Frame%RESIZE_EVERY_FRAMES == 0 {
		se := &core.SystemEvent{
			WindowWidth:  uint32(640 + state.rng.Intn(1280)),
			WindowHeight: uint32(360 + state.rng.Intn(720)),
		}
		if err := core.EventFire(core.EventContext{Type: core.EVENT_CODE_RESIZED, Data: se}); err != nil {
			return err
		}
	}

	rebuilds := state.rng.Intn(MATERIAL_COUNT / 4)
	for i := 0; i < rebuilds; i++ {
		index := state.rng.Intn(MATERIAL_COUNT)
		if err := g.rebuildMaterial(index); err != nil {
			return err
		}
	}
	return nil
}

func (g *TestGame) rebuildMaterial(index int) error {
	state := g.state()
	material := &state.materials[index]
	if material.Valid() {
		material.Release()
		state.stats.TablesReleased++
	}

	table := state.renderer.Shader.AllocTable(fmt.Sprintf("material %d", index))
	if !table.Valid() {
		state.stats.TablesMissed++
		return nil
	}
	state.stats.TablesAllocated++
	err := table.CreateCBV(MATERIAL_CBV_SLOT, &metadata.ConstantBufferViewDesc{
		Buffer:      state.constants,
		Offset:      uint64(index * MATERIAL_CBV_SIZE),
		SizeInBytes: MATERIAL_CBV_SIZE,
	})
	if err == nil {
		if state.rng.Intn(2) == 0 {
			err = table.CreateTextureSRV(MATERIAL_ALBEDO, state.albedo)
		} else {
			err = table.CreateNullTexture2DSRV(MATERIAL_ALBEDO)
		}
	}
	if err == nil {
		err = table.CreateCubeTextureSRV(MATERIAL_ENV_SLOT, state.environment)
	}
	if err != nil {
		table.Release()
		return err
	}
	*material = table.Take()
	return nil
}

// Render walks the tables a command list would bind this frame.
func (g *TestGame) Render(info metadata.FrameInfo, deltaTime float64) error {
	state := g.state()
	if state.viewport.RTV.CPUHandle().IsNull() {
		return fmt.Errorf("%w: viewport has no render target in frame %d", core.ErrInvalidHandle, info.Frame)
	}
	if state.sky.GPUHandle(0).IsNull() {
		return fmt.Errorf("%w: sky table in frame %d", core.ErrInvalidHandle, info.Frame)
	}
	for i := range state.materials {
		if !state.materials[i].Valid() {
			continue
		}
		if state.materials[i].GPUHandle(MATERIAL_CBV_SLOT).IsNull() {
			return fmt.Errorf("%w: material %d in frame %d", core.ErrInvalidHandle, i, info.Frame)
		}
		state.stats.Draws++
	}
	return nil
}

func (g *TestGame) onRenderTargetRefresh(context core.EventContext) error {
	se, ok := context.Data.(*core.SystemEvent)
	if !ok {
		return fmt.Errorf("wrong event associated with the event type `%d`", context.Type)
	}
	return g.OnResize(se.WindowWidth, se.WindowHeight)
}

// OnResize regenerates the viewport render texture at the new size.
func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.state()
	if state.viewport == nil {
		return nil
	}
	w, h := state.viewport.Size()
	if w == width && h == height {
		return nil
	}
	state.stats.Resizes++
	return state.viewport.Resize(width, height)
}

func (g *TestGame) Shutdown() error {
	state := g.state()
	if state.renderer == nil {
		return nil
	}
	for i := range state.materials {
		state.materials[i].Release()
	}
	state.sky.Release()
	if state.viewport != nil {
		core.EventUnregister(core.EVENT_CODE_DEFAULT_RENDERTARGET_REFRESH_REQUIRED, state)
		state.viewport.Release()
	}
	state.renderer.Retire(state.environment)
	state.renderer.Retire(state.albedo)
	state.renderer.Retire(state.constants)
	core.LogInfo("testbed: %d tables allocated, %d released, %d missed, %d resizes, %d draws",
		state.stats.TablesAllocated, state.stats.TablesReleased, state.stats.TablesMissed, state.stats.Resizes, state.stats.Draws)
	return nil
}
