package descriptors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-editor/engine/containers"
	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer/descriptors"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-editor/engine/renderer/software"
)

func requirePanicsWith(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic")
		err, ok := r.(error)
		require.True(t, ok, "panic value should be an error, got %v", r)
		assert.True(t, errors.Is(err, target), "got %v, want %v", err, target)
	}()
	fn()
}

func colorTarget(t *testing.T, dev *software.Device, name string) *software.Resource {
	t.Helper()
	tex, err := dev.CreateTexture(metadata.ResourceDesc{
		Dimension: metadata.ResourceDimensionTexture2D,
		Width:     64,
		Height:    64,
		Format:    metadata.FormatR8G8B8A8Unorm,
		Flags:     metadata.ResourceFlagAllowRenderTarget,
		Name:      name,
	})
	require.NoError(t, err)
	return tex
}

func depthTarget(t *testing.T, dev *software.Device) *software.Resource {
	t.Helper()
	tex, err := dev.CreateTexture(metadata.ResourceDesc{
		Dimension: metadata.ResourceDimensionTexture2D,
		Width:     64,
		Height:    64,
		Format:    metadata.FormatD32Float,
		Flags:     metadata.ResourceFlagAllowDepthStencil,
		Name:      "depth",
	})
	require.NoError(t, err)
	return tex
}

func newRTModule(t *testing.T, capacity uint32) (*software.Device, *descriptors.ModuleRTDescriptors) {
	t.Helper()
	dev := software.NewDevice()
	m := descriptors.NewModuleRTDescriptors(&descriptors.ModuleConfig{Name: "RTV", Capacity: capacity}, dev)
	require.NoError(t, m.Init())
	return dev, m
}

func TestRTCreateWritesViewAtSlotAddress(t *testing.T) {
	dev, m := newRTModule(t, 4)
	tex := colorTarget(t, dev, "color")

	rt := m.Create(tex)
	require.True(t, rt.Valid())
	assert.Equal(t, uint32(1), m.RefCount(rt.Handle()))

	addr := rt.CPUHandle()
	assert.False(t, addr.IsNull())
	assert.Equal(t, m.CPUHandle(rt.Handle()), addr)

	view, ok := dev.ViewAt(addr)
	require.True(t, ok)
	assert.Equal(t, software.ViewKindRTV, view.Kind)
	assert.Equal(t, metadata.FormatR8G8B8A8Unorm, view.RTV.Format)

	second := m.Create(tex)
	require.True(t, second.Valid())
	stride := uint64(dev.DescriptorHandleIncrementSize(metadata.DescriptorHeapTypeRtv))
	delta := int64(second.CPUHandle().Ptr) - int64(addr.Ptr)
	assert.Equal(t, int64(stride)*(int64(second.Handle().Index())-int64(rt.Handle().Index())), delta)

	rt.Release()
	second.Release()
	require.NoError(t, m.Shutdown())
	assert.Equal(t, 0, dev.LiveHeaps())
}

func TestDescriptorCloneReleasesOnce(t *testing.T) {
	dev, m := newRTModule(t, 4)
	rt := m.Create(colorTarget(t, dev, "color"))
	require.True(t, rt.Valid())

	const copies = 5
	clones := make([]descriptors.RTDescriptor, copies)
	for i := range clones {
		clones[i] = rt.Clone()
	}
	assert.Equal(t, uint32(copies+1), m.RefCount(rt.Handle()))
	assert.Equal(t, uint32(1), m.Stats().InUse)

	h := rt.Handle()
	for i := range clones {
		clones[i].Release()
		assert.True(t, m.IsValid(h), "slot freed after %d of %d releases", i+1, copies+1)
		assert.False(t, clones[i].Valid())
	}
	rt.Release()
	assert.False(t, m.IsValid(h))
	assert.Equal(t, uint32(4), m.Stats().Free)
	require.NoError(t, m.Shutdown())
}

func TestDescriptorTakeAndSet(t *testing.T) {
	dev, m := newRTModule(t, 4)
	tex := colorTarget(t, dev, "color")

	a := m.Create(tex)
	moved := a.Take()
	assert.False(t, a.Valid())
	assert.Equal(t, containers.InvalidHandle, a.Handle())
	assert.True(t, moved.Valid())
	assert.Equal(t, uint32(1), m.RefCount(moved.Handle()))

	b := m.Create(tex)
	oldB := b.Handle()
	b.Set(moved)
	assert.False(t, m.IsValid(oldB), "previous slot of b must be released")
	assert.Equal(t, moved.Handle(), b.Handle())
	assert.Equal(t, uint32(2), m.RefCount(b.Handle()))

	// self assignment keeps the slot alive
	b.Set(b)
	assert.Equal(t, uint32(2), m.RefCount(b.Handle()))

	var empty descriptors.RTDescriptor
	empty.Release()
	assert.False(t, empty.Valid())
	assert.True(t, empty.CPUHandle().IsNull())

	b.Set(empty)
	assert.Equal(t, uint32(1), m.RefCount(moved.Handle()))

	moved.Release()
	require.NoError(t, m.Shutdown())
}

func TestRTExhaustionReturnsInvalid(t *testing.T) {
	dev, m := newRTModule(t, 3)
	tex := colorTarget(t, dev, "color")

	var live []descriptors.RTDescriptor
	for i := 0; i < 4; i++ {
		live = append(live, m.Create(tex))
	}
	assert.True(t, live[0].Valid())
	assert.True(t, live[2].Valid())
	assert.False(t, live[3].Valid())

	live[1].Release()
	again := m.Create(tex)
	assert.True(t, again.Valid())
	assert.Equal(t, uint32(0), m.Stats().Free)

	for i := range live {
		live[i].Release()
	}
	again.Release()
	require.NoError(t, m.Shutdown())
}

func TestRTViewFailureFreesSlot(t *testing.T) {
	dev, m := newRTModule(t, 2)
	tex := colorTarget(t, dev, "color")

	dev.FailViewCreation = true
	rt := m.Create(tex)
	assert.False(t, rt.Valid())
	assert.Equal(t, uint32(2), m.Stats().Free)

	dev.FailViewCreation = false
	rt = m.Create(tex)
	assert.True(t, rt.Valid())
	rt.Release()
	require.NoError(t, m.Shutdown())
}

func TestRTCreateSliceTargetsFaceAndMip(t *testing.T) {
	dev, m := newRTModule(t, 4)
	cube, err := dev.CreateTexture(metadata.ResourceDesc{
		Dimension:        metadata.ResourceDimensionTextureCube,
		Width:            128,
		Height:           128,
		DepthOrArraySize: 6,
		MipLevels:        5,
		Format:           metadata.FormatR16G16B16A16Float,
		Flags:            metadata.ResourceFlagAllowRenderTarget,
		Name:             "env",
	})
	require.NoError(t, err)

	rt := m.CreateSlice(cube, 4, 2, metadata.FormatR16G16B16A16Float)
	require.True(t, rt.Valid())
	view, ok := dev.ViewAt(rt.CPUHandle())
	require.True(t, ok)
	assert.Equal(t, uint32(4), view.RTV.FirstArraySlice)
	assert.Equal(t, uint32(2), view.RTV.MipSlice)
	assert.Equal(t, uint32(1), view.RTV.ArraySize)
	assert.Equal(t, metadata.RTVDimensionTexture2DArray, view.RTV.Dimension)

	outOfRange := m.CreateSlice(cube, 6, 0, metadata.FormatR16G16B16A16Float)
	assert.False(t, outOfRange.Valid())

	rt.Release()
	require.NoError(t, m.Shutdown())
}

func TestDSCreate(t *testing.T) {
	dev := software.NewDevice()
	m := descriptors.NewModuleDSDescriptors(nil, dev)
	require.NoError(t, m.Init())
	assert.Equal(t, uint32(descriptors.DS_DESCRIPTORS_DEFAULT_CAPACITY), m.Stats().Capacity)
	assert.Equal(t, metadata.DescriptorHeapTypeDsv, m.Stats().HeapType)

	ds := m.Create(depthTarget(t, dev))
	require.True(t, ds.Valid())
	view, ok := dev.ViewAt(ds.CPUHandle())
	require.True(t, ok)
	assert.Equal(t, software.ViewKindDSV, view.Kind)
	assert.Equal(t, metadata.FormatD32Float, view.DSV.Format)

	notDepth := m.Create(colorTarget(t, dev, "color"))
	assert.False(t, notDepth.Valid())

	ds.Release()
	require.NoError(t, m.Shutdown())
}

func TestDSExhaustion(t *testing.T) {
	dev := software.NewDevice()
	m := descriptors.NewModuleDSDescriptors(&descriptors.ModuleConfig{Name: "DSV", Capacity: 1}, dev)
	require.NoError(t, m.Init())
	depth := depthTarget(t, dev)

	first := m.Create(depth)
	require.True(t, first.Valid())
	second := m.Create(depth)
	assert.False(t, second.Valid(), "a heap of one descriptor is full")
	assert.True(t, second.CPUHandle().IsNull())
	assert.Equal(t, uint32(0), m.Stats().Free)

	first.Release()
	third := m.Create(depth)
	require.True(t, third.Valid(), "the released slot is reused at once")
	assert.Equal(t, containers.InvalidHandle, first.Handle())

	third.Release()
	require.NoError(t, m.Shutdown())
}

func TestReleaseDestroysViewWithLastOwner(t *testing.T) {
	dev, rtv := newRTModule(t, 2)
	rt := rtv.Create(colorTarget(t, dev, "color"))
	require.True(t, rt.Valid())
	clone := rt.Clone()
	addr := rt.CPUHandle()

	rt.Release()
	_, ok := dev.ViewAt(addr)
	assert.True(t, ok, "the clone still owns the view")
	clone.Release()
	_, ok = dev.ViewAt(addr)
	assert.False(t, ok, "the view goes with the last owner")
	require.NoError(t, rtv.Shutdown())

	dsv := descriptors.NewModuleDSDescriptors(&descriptors.ModuleConfig{Name: "DSV", Capacity: 2}, dev)
	require.NoError(t, dsv.Init())
	ds := dsv.Create(depthTarget(t, dev))
	require.True(t, ds.Valid())
	addr = ds.CPUHandle()
	ds.Release()
	_, ok = dev.ViewAt(addr)
	assert.False(t, ok)
	require.NoError(t, dsv.Shutdown())
}

func TestModuleInitFailure(t *testing.T) {
	dev := software.NewDevice()
	dev.FailHeapCreation = true

	rt := descriptors.NewModuleRTDescriptors(nil, dev)
	assert.ErrorIs(t, rt.Init(), core.ErrHeapCreationFailed)

	ds := descriptors.NewModuleDSDescriptors(&descriptors.ModuleConfig{Name: "DSV", Capacity: 4}, dev)
	assert.ErrorIs(t, ds.Init(), core.ErrHeapCreationFailed)
	requirePanicsWith(t, core.ErrInvalidHandle, func() { ds.Create(depthTarget(t, dev)) })

	shader := descriptors.NewModuleShaderDescriptors(&descriptors.ModuleConfig{Name: "tables", Capacity: 4}, dev)
	assert.ErrorIs(t, shader.Init(), core.ErrHeapCreationFailed)
}

func TestModuleShutdownReportsLeak(t *testing.T) {
	dev, m := newRTModule(t, 4)
	leaked := m.Create(colorTarget(t, dev, "color"))
	require.True(t, leaked.Valid())

	err := m.Shutdown()
	assert.ErrorIs(t, err, core.ErrDescriptorLeak)
	assert.Equal(t, 0, dev.LiveHeaps())
}

func TestDescriptorMisusePanics(t *testing.T) {
	dev, m := newRTModule(t, 4)
	rt := m.Create(colorTarget(t, dev, "color"))
	alias := rt
	h := rt.Handle()
	rt.Release()

	// alias is a plain copy, not an owner, and its slot is gone
	assert.False(t, alias.Valid())
	requirePanicsWith(t, core.ErrInvalidHandle, func() { alias.Release() })
	requirePanicsWith(t, core.ErrInvalidHandle, func() { m.Release(h) })
	requirePanicsWith(t, core.ErrInvalidHandle, func() { m.CPUHandle(h) })
	require.NoError(t, m.Shutdown())
}

func TestModuleConfigBounds(t *testing.T) {
	dev := software.NewDevice()
	requirePanicsWith(t, core.ErrInvalidConfig, func() {
		descriptors.NewModuleRTDescriptors(&descriptors.ModuleConfig{Name: "RTV"}, dev)
	})
	requirePanicsWith(t, core.ErrInvalidConfig, func() {
		descriptors.NewModuleShaderDescriptors(&descriptors.ModuleConfig{Name: "tables", Capacity: containers.MAX_HANDLES}, dev)
	})
}
