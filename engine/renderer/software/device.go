package software

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer/descriptors"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

const (
	// Descriptor sizes reported per heap type, in bytes.
	CBV_SRV_UAV_DESCRIPTOR_SIZE = 32
	SAMPLER_DESCRIPTOR_SIZE     = 16
	RTV_DESCRIPTOR_SIZE         = 8
	DSV_DESCRIPTOR_SIZE         = 8

	heapIDShift = 32
	gpuAddrBit  = uint64(1) << 62
	offsetMask  = uint64(1)<<heapIDShift - 1
)

var (
	ErrInjectedFailure = errors.New("injected failure")
	ErrBadAddress      = errors.New("address outside of any live heap")
)

// ViewKind tells which view was written at an address.
type ViewKind uint8

const (
	ViewKindRTV ViewKind = iota + 1
	ViewKindDSV
	ViewKindSRV
	ViewKindCBV
	ViewKindUAV
)

func (k ViewKind) String() string {
	switch k {
	case ViewKindRTV:
		return "RTV"
	case ViewKindDSV:
		return "DSV"
	case ViewKindSRV:
		return "SRV"
	case ViewKindCBV:
		return "CBV"
	case ViewKindUAV:
		return "UAV"
	}
	return "none"
}

/** @brief A view as written at one descriptor address. */
type View struct {
	Kind ViewKind
	/** @brief nil for null descriptors and constant buffer views. */
	Resource metadata.Resource
	RTV      metadata.RenderTargetViewDesc
	DSV      metadata.DepthStencilViewDesc
	SRV      metadata.ShaderResourceViewDesc
	CBV      metadata.ConstantBufferViewDesc
	UAV      metadata.UnorderedAccessViewDesc
}

// Null reports whether the view is a null shader resource descriptor.
func (v View) Null() bool {
	return v.Kind == ViewKindSRV && v.Resource == nil
}

// Heap is a descriptor heap emulated in host memory. Its CPU start is
// id<<32, so addresses of different heaps never overlap.
type Heap struct {
	device   *Device
	id       uint64
	desc     metadata.DescriptorHeapDesc
	stride   uint32
	views    []View
	released bool
}

func (h *Heap) Desc() metadata.DescriptorHeapDesc {
	return h.desc
}

func (h *Heap) CPUStart() metadata.CPUDescriptorHandle {
	return metadata.CPUDescriptorHandle{Ptr: h.id << heapIDShift}
}

func (h *Heap) GPUStart() metadata.GPUDescriptorHandle {
	if !h.desc.ShaderVisible {
		return metadata.GPUDescriptorHandle{}
	}
	return metadata.GPUDescriptorHandle{Ptr: gpuAddrBit | h.id<<heapIDShift}
}

func (h *Heap) Release() {
	if h.released {
		return
	}
	h.released = true
	h.views = nil
	delete(h.device.heaps, h.id)
}

/**
 * @brief A GPU device emulated on the CPU. It records every view written so
 * tests and tools can inspect heap contents.
 */
type Device struct {
	heaps      map[uint64]*Heap
	nextHeapID uint64

	/** @brief Makes the next heap creations fail. */
	FailHeapCreation bool
	/** @brief Makes the next view creations fail. */
	FailViewCreation bool

	viewWrites uint64
}

func NewDevice() *Device {
	return &Device{
		heaps:      make(map[uint64]*Heap),
		nextHeapID: 1,
	}
}

func (d *Device) CreateDescriptorHeap(desc metadata.DescriptorHeapDesc) (descriptors.Heap, error) {
	if d.FailHeapCreation {
		return nil, fmt.Errorf("create heap %q: %w", desc.Name, ErrInjectedFailure)
	}
	if desc.NumDescriptors == 0 {
		return nil, fmt.Errorf("create heap %q: no descriptors", desc.Name)
	}
	if desc.ShaderVisible && (desc.Type == metadata.DescriptorHeapTypeRtv || desc.Type == metadata.DescriptorHeapTypeDsv) {
		return nil, fmt.Errorf("create heap %q: %s heaps cannot be shader visible", desc.Name, desc.Type)
	}
	h := &Heap{
		device: d,
		id:     d.nextHeapID,
		desc:   desc,
		stride: d.DescriptorHandleIncrementSize(desc.Type),
		views:  make([]View, desc.NumDescriptors),
	}
	d.nextHeapID++
	d.heaps[h.id] = h
	core.LogDebug("software: heap %q (%s x %d) at %#x", desc.Name, desc.Type, desc.NumDescriptors, h.CPUStart().Ptr)
	return h, nil
}

func (d *Device) DescriptorHandleIncrementSize(heapType metadata.DescriptorHeapType) uint32 {
	switch heapType {
	case metadata.DescriptorHeapTypeCbvSrvUav:
		return CBV_SRV_UAV_DESCRIPTOR_SIZE
	case metadata.DescriptorHeapTypeSampler:
		return SAMPLER_DESCRIPTOR_SIZE
	case metadata.DescriptorHeapTypeRtv:
		return RTV_DESCRIPTOR_SIZE
	case metadata.DescriptorHeapTypeDsv:
		return DSV_DESCRIPTOR_SIZE
	}
	return 0
}

func (d *Device) CreateRenderTargetView(resource metadata.Resource, desc *metadata.RenderTargetViewDesc, dest metadata.CPUDescriptorHandle) error {
	if resource == nil {
		return errors.New("render target view of nil resource")
	}
	rd := resource.Desc()
	if rd.Flags&metadata.ResourceFlagAllowRenderTarget == 0 {
		return fmt.Errorf("resource %q does not allow render targets", rd.Name)
	}
	view := View{Kind: ViewKindRTV, Resource: resource}
	if desc != nil {
		view.RTV = *desc
	} else {
		view.RTV = metadata.RenderTargetViewDesc{Format: rd.Format, Dimension: metadata.RTVDimensionTexture2D, ArraySize: 1}
	}
	if err := checkSubresource(rd, view.RTV.MipSlice, view.RTV.FirstArraySlice, view.RTV.ArraySize); err != nil {
		return err
	}
	return d.write(metadata.DescriptorHeapTypeRtv, dest, view)
}

func (d *Device) CreateDepthStencilView(resource metadata.Resource, desc *metadata.DepthStencilViewDesc, dest metadata.CPUDescriptorHandle) error {
	if resource == nil {
		return errors.New("depth stencil view of nil resource")
	}
	rd := resource.Desc()
	if rd.Flags&metadata.ResourceFlagAllowDepthStencil == 0 || !rd.Format.IsDepth() {
		return fmt.Errorf("resource %q (%s) cannot be a depth stencil", rd.Name, rd.Format)
	}
	view := View{Kind: ViewKindDSV, Resource: resource}
	if desc != nil {
		view.DSV = *desc
	} else {
		view.DSV = metadata.DepthStencilViewDesc{Format: rd.Format, ArraySize: 1}
	}
	if err := checkSubresource(rd, view.DSV.MipSlice, view.DSV.FirstArraySlice, view.DSV.ArraySize); err != nil {
		return err
	}
	return d.write(metadata.DescriptorHeapTypeDsv, dest, view)
}

func (d *Device) CreateShaderResourceView(resource metadata.Resource, desc *metadata.ShaderResourceViewDesc, dest metadata.CPUDescriptorHandle) error {
	if resource == nil && desc == nil {
		return errors.New("null shader resource view needs a description")
	}
	view := View{Kind: ViewKindSRV, Resource: resource}
	if desc != nil {
		view.SRV = *desc
	} else {
		rd := resource.Desc()
		view.SRV = metadata.ShaderResourceViewDesc{Format: rd.Format, MipLevels: uint32(rd.MipLevels), ArraySize: 1}
	}
	return d.write(metadata.DescriptorHeapTypeCbvSrvUav, dest, view)
}

func (d *Device) CreateConstantBufferView(desc *metadata.ConstantBufferViewDesc, dest metadata.CPUDescriptorHandle) error {
	if desc == nil || desc.Buffer == nil {
		return errors.New("constant buffer view without buffer")
	}
	bd := desc.Buffer.Desc()
	if bd.Dimension != metadata.ResourceDimensionBuffer {
		return fmt.Errorf("resource %q is not a buffer", bd.Name)
	}
	if desc.Offset+uint64(desc.SizeInBytes) > bd.Width {
		return fmt.Errorf("constant buffer view [%d, %d) outside of %q (%d bytes)", desc.Offset, desc.Offset+uint64(desc.SizeInBytes), bd.Name, bd.Width)
	}
	return d.write(metadata.DescriptorHeapTypeCbvSrvUav, dest, View{Kind: ViewKindCBV, CBV: *desc})
}

func (d *Device) CreateUnorderedAccessView(resource metadata.Resource, desc *metadata.UnorderedAccessViewDesc, dest metadata.CPUDescriptorHandle) error {
	if resource == nil {
		return errors.New("unordered access view of nil resource")
	}
	rd := resource.Desc()
	if rd.Flags&metadata.ResourceFlagAllowUnorderedAccess == 0 {
		return fmt.Errorf("resource %q does not allow unordered access", rd.Name)
	}
	view := View{Kind: ViewKindUAV, Resource: resource}
	if desc != nil {
		view.UAV = *desc
	} else {
		view.UAV = metadata.UnorderedAccessViewDesc{Format: rd.Format, ArraySize: 1}
	}
	return d.write(metadata.DescriptorHeapTypeCbvSrvUav, dest, view)
}

// ViewAt returns the view last written at a CPU address.
func (d *Device) ViewAt(addr metadata.CPUDescriptorHandle) (View, bool) {
	heap, index, err := d.resolve(addr.Ptr)
	if err != nil || heap.views[index].Kind == 0 {
		return View{}, false
	}
	return heap.views[index], true
}

// ViewAtGPU returns the view a shader would read at a GPU address.
func (d *Device) ViewAtGPU(addr metadata.GPUDescriptorHandle) (View, bool) {
	if addr.Ptr&gpuAddrBit == 0 {
		return View{}, false
	}
	return d.ViewAt(metadata.CPUDescriptorHandle{Ptr: addr.Ptr &^ gpuAddrBit})
}

// LiveHeaps returns the number of heaps not yet released.
func (d *Device) LiveHeaps() int {
	return len(d.heaps)
}

// ViewWrites returns how many views have been written since creation.
func (d *Device) ViewWrites() uint64 {
	return d.viewWrites
}

// ReleaseView empties the slot at dest.
func (d *Device) ReleaseView(heapType metadata.DescriptorHeapType, dest metadata.CPUDescriptorHandle) {
	heap, index, err := d.resolve(dest.Ptr)
	if err != nil || heap.desc.Type != heapType {
		core.LogWarn("software: release of %s view at %#x outside of its heap", heapType, dest.Ptr)
		return
	}
	heap.views[index] = View{}
}

func (d *Device) write(heapType metadata.DescriptorHeapType, dest metadata.CPUDescriptorHandle, view View) error {
	if d.FailViewCreation {
		return fmt.Errorf("%s view: %w", view.Kind, ErrInjectedFailure)
	}
	heap, index, err := d.resolve(dest.Ptr)
	if err != nil {
		return err
	}
	if heap.desc.Type != heapType {
		return fmt.Errorf("%s view written to %s heap %q", view.Kind, heap.desc.Type, heap.desc.Name)
	}
	heap.views[index] = view
	d.viewWrites++
	return nil
}

func (d *Device) resolve(ptr uint64) (*Heap, uint32, error) {
	heap, ok := d.heaps[ptr>>heapIDShift]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %#x", ErrBadAddress, ptr)
	}
	offset := ptr & offsetMask
	if offset%uint64(heap.stride) != 0 || offset/uint64(heap.stride) >= uint64(heap.desc.NumDescriptors) {
		return nil, 0, fmt.Errorf("%w: %#x in heap %q", ErrBadAddress, ptr, heap.desc.Name)
	}
	return heap, uint32(offset / uint64(heap.stride)), nil
}

func checkSubresource(rd metadata.ResourceDesc, mip, firstSlice, arraySize uint32) error {
	if mip >= uint32(max(rd.MipLevels, 1)) {
		return fmt.Errorf("mip %d out of range for %q (%d mips)", mip, rd.Name, rd.MipLevels)
	}
	if arraySize == 0 {
		arraySize = 1
	}
	if firstSlice+arraySize > uint32(max(rd.DepthOrArraySize, 1)) {
		return fmt.Errorf("slices [%d, %d) out of range for %q (%d slices)", firstSlice, firstSlice+arraySize, rd.Name, rd.DepthOrArraySize)
	}
	return nil
}
