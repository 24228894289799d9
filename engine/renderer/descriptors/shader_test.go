package descriptors_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/spaghettifunk/anima-editor/engine/containers"
	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer/descriptors"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-editor/engine/renderer/software"
)

func newShaderModule(t *testing.T, tables uint32) (*software.Device, *descriptors.ModuleShaderDescriptors) {
	t.Helper()
	dev := software.NewDevice()
	m := descriptors.NewModuleShaderDescriptors(&descriptors.ModuleConfig{Name: "tables", Capacity: tables}, dev)
	require.NoError(t, m.Init())
	return dev, m
}

// advanceTo sweeps until the module frame counter reaches frame, with the
// GPU one frame behind.
func advanceTo(t *testing.T, m *descriptors.ModuleShaderDescriptors, frame uint64) {
	t.Helper()
	for m.CurrentFrame() < frame {
		require.NoError(t, m.RunDeferredReclamation(m.CurrentFrame()))
	}
}

func TestShaderTableScenario(t *testing.T) {
	_, m := newShaderModule(t, 4)

	a := m.AllocTable("A")
	b := m.AllocTable("B")
	c := m.AllocTable("C")
	require.True(t, a.Valid())
	require.True(t, b.Valid())
	require.True(t, c.Valid())
	bHandle := b.Handle()
	bIndex := bHandle.Index()

	advanceTo(t, m, 10)
	b.Release()
	assert.True(t, m.IsValidHandle(bHandle), "released table stays valid while pending")
	assert.Equal(t, "B", m.TableName(bHandle))

	require.NoError(t, m.RunDeferredReclamation(10))
	assert.Equal(t, uint64(11), m.CurrentFrame())
	assert.NotContains(t, m.FreeTableIndices(), bIndex)

	require.NoError(t, m.RunDeferredReclamation(11))
	assert.NotContains(t, m.FreeTableIndices(), bIndex)
	assert.True(t, m.IsValidHandle(bHandle))

	d := m.AllocTable("D")
	require.True(t, d.Valid(), "one table is still free before frame 13")
	e := m.AllocTable("E")
	assert.False(t, e.Valid(), "pool exhausted while B is pending")
	assert.Equal(t, uint32(1), m.Stats().Pending)

	require.NoError(t, m.RunDeferredReclamation(12))
	assert.Equal(t, uint64(13), m.CurrentFrame())
	assert.Contains(t, m.FreeTableIndices(), bIndex)
	assert.False(t, m.IsValidHandle(bHandle))
	assert.Equal(t, "", m.TableName(bHandle))

	e = m.AllocTable("E")
	require.True(t, e.Valid())
	assert.Equal(t, bIndex, e.Handle().Index())
	assert.NotEqual(t, bHandle, e.Handle())
	assert.False(t, m.IsValidHandle(bHandle), "stale handle rejected after reuse")

	for _, table := range []*descriptors.ShaderTableDesc{&a, &c, &d, &e} {
		table.Release()
	}
	require.NoError(t, m.Shutdown())
}

func TestShaderTableWaitsForGPUCompletion(t *testing.T) {
	_, m := newShaderModule(t, 2)
	advanceTo(t, m, 10)

	table := m.AllocTable("slow")
	h := table.Handle()
	table.Release()

	// GPU stalled at frame 9: the delay elapses but frame 10 never completed
	for i := 0; i < 5; i++ {
		require.NoError(t, m.RunDeferredReclamation(9))
	}
	assert.True(t, m.IsValidHandle(h))
	assert.NotContains(t, m.FreeTableIndices(), h.Index())

	require.NoError(t, m.RunDeferredReclamation(10))
	assert.False(t, m.IsValidHandle(h))
	assert.Contains(t, m.FreeTableIndices(), h.Index())
	require.NoError(t, m.Shutdown())
}

func TestShaderTableFrameOrdering(t *testing.T) {
	_, m := newShaderModule(t, 2)
	advanceTo(t, m, 5)

	err := m.RunDeferredReclamation(6)
	assert.ErrorIs(t, err, core.ErrFrameOrdering, "GPU cannot complete the frame being started")
	assert.Equal(t, uint64(5), m.CurrentFrame())

	require.NoError(t, m.RunDeferredReclamation(4))
	assert.ErrorIs(t, m.RunDeferredReclamation(3), core.ErrFrameOrdering, "completed frame went backwards")
	assert.Equal(t, uint64(6), m.CurrentFrame())
	require.NoError(t, m.Shutdown())
}

func TestShaderTableRefCount(t *testing.T) {
	_, m := newShaderModule(t, 2)
	table := m.AllocTable("material")
	h := table.Handle()

	material := table.Clone()
	binding := material.Clone()
	assert.Equal(t, uint32(3), m.RefCount(h))

	table.Release()
	material.Release()
	assert.Empty(t, pendingOf(m))
	binding.Release()
	assert.Equal(t, []containers.Handle{h}, pendingOf(m))

	requirePanicsWith(t, core.ErrInvalidHandle, func() { m.ReleaseTable(h) })
	requirePanicsWith(t, core.ErrInvalidHandle, func() { m.ReleaseTable(containers.NewHandle(7, 1)) })

	moved := m.AllocTable("moved")
	target := m.AllocTable("")
	assert.False(t, target.Valid(), "two tables, one pending and one moved")
	target.Set(moved)
	assert.Equal(t, uint32(2), m.RefCount(moved.Handle()))
	taken := moved.Take()
	assert.False(t, moved.Valid())
	taken.Release()
	target.Release()
	require.NoError(t, m.Shutdown())
}

func pendingOf(m *descriptors.ModuleShaderDescriptors) []containers.Handle {
	var out []containers.Handle
	for _, info := range m.LiveTables() {
		if info.RefCount == 0 {
			out = append(out, info.Handle)
		}
	}
	return out
}

func TestShaderTableAddressing(t *testing.T) {
	dev, m := newShaderModule(t, 8)
	stride := uint64(dev.DescriptorHandleIncrementSize(metadata.DescriptorHeapTypeCbvSrvUav))
	heapBytes := uint64(8*descriptors.SLOTS_PER_TABLE) * stride

	tables := make([]descriptors.ShaderTableDesc, 8)
	for i := range tables {
		tables[i] = m.AllocTable("t")
		require.True(t, tables[i].Valid())
	}
	gpuBase := tables[0].GPUHandle(0).Ptr - uint64(tables[0].Handle().Index())*descriptors.SLOTS_PER_TABLE*stride
	cpuBase := tables[0].CPUHandle(0).Ptr - uint64(tables[0].Handle().Index())*descriptors.SLOTS_PER_TABLE*stride

	seen := map[uint64]bool{}
	for _, table := range tables {
		for slot := uint32(0); slot < descriptors.SLOTS_PER_TABLE; slot++ {
			want := (uint64(table.Handle().Index())*descriptors.SLOTS_PER_TABLE + uint64(slot)) * stride
			gpu := table.GPUHandle(slot).Ptr
			cpu := table.CPUHandle(slot).Ptr
			assert.Equal(t, gpuBase+want, gpu)
			assert.Equal(t, cpuBase+want, cpu)
			assert.Less(t, cpu-cpuBase, heapBytes)
			assert.False(t, seen[cpu], "address %#x mapped twice", cpu)
			seen[cpu] = true
		}
		assert.True(t, table.GPUHandle(descriptors.SLOTS_PER_TABLE).IsNull())
		assert.True(t, table.CPUHandle(descriptors.SLOTS_PER_TABLE).IsNull())
	}
	assert.Len(t, seen, 8*descriptors.SLOTS_PER_TABLE)

	var empty descriptors.ShaderTableDesc
	assert.True(t, empty.GPUHandle(0).IsNull())
	assert.True(t, m.GPUHandle(containers.InvalidHandle, 0).IsNull())
	assert.True(t, m.GPUHandle(containers.NewHandle(100, 1), 0).IsNull())

	for i := range tables {
		tables[i].Release()
	}
	require.NoError(t, m.Shutdown())
}

func TestShaderTableSlotWriters(t *testing.T) {
	dev, m := newShaderModule(t, 2)
	tex, err := dev.CreateTexture(metadata.ResourceDesc{
		Dimension: metadata.ResourceDimensionTexture2D,
		Width:     16,
		Height:    16,
		MipLevels: 4,
		Format:    metadata.FormatR8G8B8A8UnormSrgb,
		Name:      "albedo",
	})
	require.NoError(t, err)
	cube, err := dev.CreateTexture(metadata.ResourceDesc{
		Dimension:        metadata.ResourceDimensionTextureCube,
		Width:            16,
		Height:           16,
		DepthOrArraySize: 6,
		Format:           metadata.FormatR16G16B16A16Float,
		Flags:            metadata.ResourceFlagAllowUnorderedAccess,
		Name:             "irradiance",
	})
	require.NoError(t, err)
	buf, err := dev.CreateBuffer(256, "constants")
	require.NoError(t, err)

	table := m.AllocTable("material")
	require.NoError(t, table.CreateCBV(0, &metadata.ConstantBufferViewDesc{Buffer: buf, SizeInBytes: 256}))
	require.NoError(t, table.CreateTextureSRV(1, tex))
	require.NoError(t, table.CreateCubeTextureSRV(2, cube))
	require.NoError(t, table.CreateUAV(3, cube, nil))
	require.NoError(t, table.CreateNullTexture2DSRV(4))
	require.NoError(t, table.CreateNullCubeSRV(5))

	view, ok := dev.ViewAtGPU(table.GPUHandle(0))
	require.True(t, ok)
	assert.Equal(t, software.ViewKindCBV, view.Kind)

	view, _ = dev.ViewAtGPU(table.GPUHandle(1))
	assert.Equal(t, metadata.SRVDimensionTexture2D, view.SRV.Dimension)
	assert.Equal(t, uint32(4), view.SRV.MipLevels)
	assert.Equal(t, metadata.FormatR8G8B8A8UnormSrgb, view.SRV.Format)

	view, _ = dev.ViewAtGPU(table.GPUHandle(2))
	assert.Equal(t, metadata.SRVDimensionTextureCube, view.SRV.Dimension)

	view, _ = dev.ViewAtGPU(table.GPUHandle(3))
	assert.Equal(t, software.ViewKindUAV, view.Kind)

	view, _ = dev.ViewAtGPU(table.GPUHandle(4))
	assert.True(t, view.Null())
	view, _ = dev.ViewAtGPU(table.GPUHandle(5))
	assert.True(t, view.Null())
	assert.Equal(t, metadata.SRVDimensionTextureCube, view.SRV.Dimension)

	assert.ErrorIs(t, table.CreateNullTexture2DSRV(descriptors.SLOTS_PER_TABLE), core.ErrInvalidHandle)
	assert.ErrorIs(t, table.CreateCBV(6, &metadata.ConstantBufferViewDesc{Buffer: buf, SizeInBytes: 512}), core.ErrViewCreationFailed)

	dev.FailViewCreation = true
	assert.ErrorIs(t, table.CreateTextureSRV(6, tex), core.ErrViewCreationFailed)
	dev.FailViewCreation = false

	var empty descriptors.ShaderTableDesc
	assert.ErrorIs(t, empty.CreateNullCubeSRV(0), core.ErrInvalidHandle)

	table.Release()
	require.NoError(t, m.Shutdown())
}

func TestShaderShutdownNamesLeakedTables(t *testing.T) {
	_, m := newShaderModule(t, 4)
	leaked := m.AllocTable("viewport")
	pending := m.AllocTable("old")
	pending.Release()
	require.True(t, leaked.Valid())

	err := m.Shutdown()
	require.ErrorIs(t, err, core.ErrDescriptorLeak)
	assert.Contains(t, err.Error(), `"viewport"`)
	assert.NotContains(t, err.Error(), `"old"`)
}

func TestShaderTableNeverReusedEarly(t *testing.T) {
	const tables = 16
	_, m := newShaderModule(t, tables)
	rng := rand.New(rand.NewSource(7))

	var live []descriptors.ShaderTableDesc
	released := map[uint32]uint64{}

	for frame := 0; frame < 500; frame++ {
		completed := m.CurrentFrame() - 1
		require.NoError(t, m.RunDeferredReclamation(completed))
		now := m.CurrentFrame()

		for _, index := range m.FreeTableIndices() {
			if at, ok := released[index]; ok {
				assert.GreaterOrEqual(t, now-at, uint64(descriptors.FRAME_DELAY), "table %d recycled early", index)
				delete(released, index)
			}
		}

		for n := rng.Intn(4); n > 0; n-- {
			desc := m.AllocTable("churn")
			if !desc.Valid() {
				assert.Zero(t, m.FreeTableCount())
				continue
			}
			_, pending := released[desc.Handle().Index()]
			assert.False(t, pending, "pending table %d handed out", desc.Handle().Index())
			live = append(live, desc)
		}
		for n := rng.Intn(4); n > 0 && len(live) > 0; n-- {
			i := rng.Intn(len(live))
			index := live[i].Handle().Index()
			live[i].Release()
			released[index] = now
			live = append(live[:i], live[i+1:]...)
		}
		s := m.Stats()
		assert.Equal(t, uint32(tables), s.InUse+s.Pending+s.Free)
	}

	for i := range live {
		live[i].Release()
	}
	require.NoError(t, m.Shutdown())
}

func TestPreRenderRequiresNextFrame(t *testing.T) {
	_, m := newShaderModule(t, 2)

	err := m.PreRender(metadata.FrameInfo{Frame: 3, CompletedFrame: 0})
	assert.ErrorIs(t, err, core.ErrFrameOrdering)
	assert.Equal(t, uint64(1), m.CurrentFrame())

	require.NoError(t, m.PreRender(metadata.FrameInfo{Frame: 2, CompletedFrame: 0}))
	assert.Equal(t, uint64(2), m.CurrentFrame())
}

// cpuOnlyDevice hands out heaps that are never shader visible.
type cpuOnlyDevice struct {
	*software.Device
}

func (d cpuOnlyDevice) CreateDescriptorHeap(desc metadata.DescriptorHeapDesc) (descriptors.Heap, error) {
	desc.ShaderVisible = false
	return d.Device.CreateDescriptorHeap(desc)
}

func TestShaderInitRejectsHeapWithoutGPUStart(t *testing.T) {
	dev := software.NewDevice()
	m := descriptors.NewModuleShaderDescriptors(&descriptors.ModuleConfig{Name: "tables", Capacity: 4}, cpuOnlyDevice{dev})
	assert.ErrorIs(t, m.Init(), core.ErrHeapCreationFailed)
	assert.Equal(t, 0, dev.LiveHeaps(), "the rejected heap is released")
	requirePanicsWith(t, core.ErrInvalidHandle, func() { m.AllocTable("never") })
}

func TestShaderSweepReleasesSlotViews(t *testing.T) {
	dev, m := newShaderModule(t, 2)
	table := m.AllocTable("material")
	require.True(t, table.Valid())
	require.NoError(t, table.CreateTextureSRV(0, colorTarget(t, dev, "albedo")))
	require.NoError(t, table.CreateNullTexture2DSRV(1))
	color := table.GPUHandle(0)
	null := table.GPUHandle(1)

	table.Release()
	advanceTo(t, m, 3)
	_, ok := dev.ViewAtGPU(color)
	assert.True(t, ok, "pending tables keep their views")

	require.NoError(t, m.RunDeferredReclamation(3))
	require.Len(t, pendingOf(m), 0)
	_, ok = dev.ViewAtGPU(color)
	assert.False(t, ok, "the sweep destroys the views of a recycled table")
	_, ok = dev.ViewAtGPU(null)
	assert.False(t, ok)
	require.NoError(t, m.Shutdown())
}
