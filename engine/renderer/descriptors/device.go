package descriptors

import (
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

// Heap is a descriptor heap created by a Device.
type Heap interface {
	Desc() metadata.DescriptorHeapDesc
	CPUStart() metadata.CPUDescriptorHandle
	// GPUStart is the null handle for heaps that are not shader visible.
	GPUStart() metadata.GPUDescriptorHandle
	Release()
}

// Device is the part of the GPU device the descriptor modules talk to.
// Views are written at a CPU address inside a heap the device created.
type Device interface {
	CreateDescriptorHeap(desc metadata.DescriptorHeapDesc) (Heap, error)
	DescriptorHandleIncrementSize(heapType metadata.DescriptorHeapType) uint32

	CreateRenderTargetView(resource metadata.Resource, desc *metadata.RenderTargetViewDesc, dest metadata.CPUDescriptorHandle) error
	CreateDepthStencilView(resource metadata.Resource, desc *metadata.DepthStencilViewDesc, dest metadata.CPUDescriptorHandle) error
	// CreateShaderResourceView writes a null descriptor when resource is nil.
	CreateShaderResourceView(resource metadata.Resource, desc *metadata.ShaderResourceViewDesc, dest metadata.CPUDescriptorHandle) error
	CreateConstantBufferView(desc *metadata.ConstantBufferViewDesc, dest metadata.CPUDescriptorHandle) error
	CreateUnorderedAccessView(resource metadata.Resource, desc *metadata.UnorderedAccessViewDesc, dest metadata.CPUDescriptorHandle) error
}

// ViewReleaser is implemented by devices whose views hold objects of their
// own. The modules call ReleaseView once nothing references the slot at dest
// any more: at once for render target and depth stencil slots, and when the
// deferred sweep recycles a table for shader visible slots.
type ViewReleaser interface {
	ReleaseView(heapType metadata.DescriptorHeapType, dest metadata.CPUDescriptorHandle)
}

func releaseView(device Device, heapType metadata.DescriptorHeapType, dest metadata.CPUDescriptorHandle) {
	if releaser, ok := device.(ViewReleaser); ok {
		releaser.ReleaseView(heapType, dest)
	}
}
