package vulkan

import (
	"errors"
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer/descriptors"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

const (
	/** @brief Size of one synthetic descriptor address step. */
	VULKAN_DESCRIPTOR_STRIDE = 16

	// Bindings of the shader visible set. Slot i of the heap is array
	// element i of every binding.
	VULKAN_BINDING_SAMPLED_IMAGE  = 0
	VULKAN_BINDING_UNIFORM_BUFFER = 1
	VULKAN_BINDING_STORAGE_IMAGE  = 2

	heapIDShift = 32
	gpuAddrBit  = uint64(1) << 62
	offsetMask  = uint64(1)<<heapIDShift - 1
)

var ErrUnsupportedResource = errors.New("resource was not created by the vulkan backend")

// VulkanDescriptorHeap maps a D3D style heap onto Vulkan. Render target and
// depth stencil heaps are plain arrays of image views. The shader visible
// heap is one descriptor set whose bindings are arrays as long as the heap.
type VulkanDescriptorHeap struct {
	device *VulkanDescriptorDevice
	id     uint64
	desc   metadata.DescriptorHeapDesc

	/** @brief The image view owned by every slot, nil when empty or not an image view. */
	views []vk.ImageView
	/** @brief Slots that hold a null descriptor. */
	nulls []bool

	pool   vk.DescriptorPool
	layout vk.DescriptorSetLayout
	set    vk.DescriptorSet
}

func (h *VulkanDescriptorHeap) Desc() metadata.DescriptorHeapDesc {
	return h.desc
}

func (h *VulkanDescriptorHeap) CPUStart() metadata.CPUDescriptorHandle {
	return metadata.CPUDescriptorHandle{Ptr: h.id << heapIDShift}
}

func (h *VulkanDescriptorHeap) GPUStart() metadata.GPUDescriptorHandle {
	if !h.desc.ShaderVisible {
		return metadata.GPUDescriptorHandle{}
	}
	return metadata.GPUDescriptorHandle{Ptr: gpuAddrBit | h.id<<heapIDShift}
}

// DescriptorSet returns the set to bind for a shader visible heap.
func (h *VulkanDescriptorHeap) DescriptorSet() vk.DescriptorSet {
	return h.set
}

func (h *VulkanDescriptorHeap) DescriptorSetLayout() vk.DescriptorSetLayout {
	return h.layout
}

func (h *VulkanDescriptorHeap) Release() {
	if h.device == nil {
		return
	}
	logical := h.device.context.Device.LogicalDevice
	allocator := h.device.context.Allocator
	for i, view := range h.views {
		if view != nil {
			vk.DestroyImageView(logical, view, allocator)
			h.views[i] = nil
		}
	}
	if h.pool != nil {
		// Destroying the pool frees the set.
		vk.DestroyDescriptorPool(logical, h.pool, allocator)
		h.pool = nil
		h.set = nil
	}
	if h.layout != nil {
		vk.DestroyDescriptorSetLayout(logical, h.layout, allocator)
		h.layout = nil
	}
	delete(h.device.heaps, h.id)
	h.device = nil
}

// IsNull reports whether slot index holds a null descriptor.
func (h *VulkanDescriptorHeap) IsNull(index uint32) bool {
	return index < uint32(len(h.nulls)) && h.nulls[index]
}

// VulkanDescriptorDevice implements the descriptor modules' device on top of
// a VulkanContext.
type VulkanDescriptorDevice struct {
	context    *VulkanContext
	heaps      map[uint64]*VulkanDescriptorHeap
	nextHeapID uint64
}

func NewDescriptorDevice(context *VulkanContext) *VulkanDescriptorDevice {
	return &VulkanDescriptorDevice{
		context:    context,
		heaps:      make(map[uint64]*VulkanDescriptorHeap),
		nextHeapID: 1,
	}
}

func (d *VulkanDescriptorDevice) Context() *VulkanContext {
	return d.context
}

func (d *VulkanDescriptorDevice) CreateDescriptorHeap(desc metadata.DescriptorHeapDesc) (descriptors.Heap, error) {
	if desc.NumDescriptors == 0 {
		return nil, fmt.Errorf("heap %q has no descriptors", desc.Name)
	}
	heap := &VulkanDescriptorHeap{
		device: d,
		id:     d.nextHeapID,
		desc:   desc,
		views:  make([]vk.ImageView, desc.NumDescriptors),
		nulls:  make([]bool, desc.NumDescriptors),
	}
	switch desc.Type {
	case metadata.DescriptorHeapTypeRtv, metadata.DescriptorHeapTypeDsv:
		if desc.ShaderVisible {
			return nil, fmt.Errorf("%s heap %q cannot be shader visible", desc.Type, desc.Name)
		}
	case metadata.DescriptorHeapTypeCbvSrvUav:
		if desc.ShaderVisible {
			if err := d.createShaderVisibleSet(heap); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("%s heaps are not supported", desc.Type)
	}
	d.nextHeapID++
	d.heaps[heap.id] = heap
	core.LogDebug("vulkan: heap %q (%s x %d)", desc.Name, desc.Type, desc.NumDescriptors)
	return heap, nil
}

func (d *VulkanDescriptorDevice) createShaderVisibleSet(heap *VulkanDescriptorHeap) error {
	count := heap.desc.NumDescriptors
	limits := d.context.Device.Limits
	if count > limits.MaxDescriptorSetSampledImages || count > limits.MaxDescriptorSetUniformBuffers || count > limits.MaxDescriptorSetStorageImages {
		return fmt.Errorf("heap %q: %d descriptors exceed the device limits (%d sampled, %d uniform, %d storage)",
			heap.desc.Name, count, limits.MaxDescriptorSetSampledImages, limits.MaxDescriptorSetUniformBuffers, limits.MaxDescriptorSetStorageImages)
	}

	logical := d.context.Device.LogicalDevice
	stages := vk.ShaderStageFlags(vk.ShaderStageAll)
	bindings := []vk.DescriptorSetLayoutBinding{
		{Binding: VULKAN_BINDING_SAMPLED_IMAGE, DescriptorType: vk.DescriptorTypeSampledImage, DescriptorCount: count, StageFlags: stages},
		{Binding: VULKAN_BINDING_UNIFORM_BUFFER, DescriptorType: vk.DescriptorTypeUniformBuffer, DescriptorCount: count, StageFlags: stages},
		{Binding: VULKAN_BINDING_STORAGE_IMAGE, DescriptorType: vk.DescriptorTypeStorageImage, DescriptorCount: count, StageFlags: stages},
	}
	if res := vk.CreateDescriptorSetLayout(logical, &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}, d.context.Allocator, &heap.layout); res != vk.Success {
		return resultError("vkCreateDescriptorSetLayout", res)
	}

	poolSizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeSampledImage, DescriptorCount: count},
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: count},
		{Type: vk.DescriptorTypeStorageImage, DescriptorCount: count},
	}
	if res := vk.CreateDescriptorPool(logical, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       1,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}, d.context.Allocator, &heap.pool); res != vk.Success {
		vk.DestroyDescriptorSetLayout(logical, heap.layout, d.context.Allocator)
		return resultError("vkCreateDescriptorPool", res)
	}

	if res := vk.AllocateDescriptorSets(logical, &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     heap.pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{heap.layout},
	}, &heap.set); res != vk.Success {
		vk.DestroyDescriptorPool(logical, heap.pool, d.context.Allocator)
		vk.DestroyDescriptorSetLayout(logical, heap.layout, d.context.Allocator)
		return resultError("vkAllocateDescriptorSets", res)
	}
	return nil
}

func (d *VulkanDescriptorDevice) DescriptorHandleIncrementSize(heapType metadata.DescriptorHeapType) uint32 {
	return VULKAN_DESCRIPTOR_STRIDE
}

func (d *VulkanDescriptorDevice) CreateRenderTargetView(resource metadata.Resource, desc *metadata.RenderTargetViewDesc, dest metadata.CPUDescriptorHandle) error {
	image, ok := resource.(*VulkanImage)
	if !ok {
		return ErrUnsupportedResource
	}
	rd := image.Desc()
	sub := metadata.RenderTargetViewDesc{Format: rd.Format, ArraySize: 1}
	if desc != nil {
		sub = *desc
	}
	return d.writeImageView(metadata.DescriptorHeapTypeRtv, dest, image, subresource{
		format:     sub.Format,
		viewType:   vk.ImageViewType2d,
		baseMip:    sub.MipSlice,
		mipCount:   1,
		firstLayer: sub.FirstArraySlice,
		layerCount: max(sub.ArraySize, 1),
	}, -1, 0)
}

func (d *VulkanDescriptorDevice) CreateDepthStencilView(resource metadata.Resource, desc *metadata.DepthStencilViewDesc, dest metadata.CPUDescriptorHandle) error {
	image, ok := resource.(*VulkanImage)
	if !ok {
		return ErrUnsupportedResource
	}
	rd := image.Desc()
	if !rd.Format.IsDepth() {
		return fmt.Errorf("image %q (%s) cannot be a depth stencil", rd.Name, rd.Format)
	}
	sub := metadata.DepthStencilViewDesc{Format: rd.Format, ArraySize: 1}
	if desc != nil {
		sub = *desc
	}
	return d.writeImageView(metadata.DescriptorHeapTypeDsv, dest, image, subresource{
		format:     sub.Format,
		viewType:   vk.ImageViewType2d,
		baseMip:    sub.MipSlice,
		mipCount:   1,
		firstLayer: sub.FirstArraySlice,
		layerCount: max(sub.ArraySize, 1),
	}, -1, 0)
}

func (d *VulkanDescriptorDevice) CreateShaderResourceView(resource metadata.Resource, desc *metadata.ShaderResourceViewDesc, dest metadata.CPUDescriptorHandle) error {
	if resource == nil {
		// Without the nullDescriptor feature there is nothing to write: the
		// slot is recorded as null and shaders must not read it.
		heap, index, err := d.resolve(metadata.DescriptorHeapTypeCbvSrvUav, dest)
		if err != nil {
			return err
		}
		heap.clear(index)
		heap.nulls[index] = true
		return nil
	}
	image, ok := resource.(*VulkanImage)
	if !ok {
		return ErrUnsupportedResource
	}
	rd := image.Desc()
	sub := metadata.ShaderResourceViewDesc{Format: rd.Format, Dimension: metadata.SRVDimensionTexture2D, MipLevels: uint32(rd.MipLevels), ArraySize: 1}
	if desc != nil {
		sub = *desc
	}
	viewType := vk.ImageViewType2d
	switch sub.Dimension {
	case metadata.SRVDimensionTexture2DArray:
		viewType = vk.ImageViewType2dArray
	case metadata.SRVDimensionTextureCube:
		viewType = vk.ImageViewTypeCube
	case metadata.SRVDimensionBuffer:
		return fmt.Errorf("buffer shader resource views are not supported")
	}
	return d.writeImageView(metadata.DescriptorHeapTypeCbvSrvUav, dest, image, subresource{
		format:     sub.Format,
		viewType:   viewType,
		baseMip:    sub.MostDetailedMip,
		mipCount:   max(sub.MipLevels, 1),
		firstLayer: sub.FirstArraySlice,
		layerCount: max(sub.ArraySize, 1),
	}, VULKAN_BINDING_SAMPLED_IMAGE, vk.ImageLayoutShaderReadOnlyOptimal)
}

func (d *VulkanDescriptorDevice) CreateConstantBufferView(desc *metadata.ConstantBufferViewDesc, dest metadata.CPUDescriptorHandle) error {
	if desc == nil {
		return fmt.Errorf("constant buffer view without description")
	}
	buffer, ok := desc.Buffer.(*VulkanBuffer)
	if !ok {
		return ErrUnsupportedResource
	}
	if desc.Offset+uint64(desc.SizeInBytes) > buffer.Desc().Width {
		return fmt.Errorf("constant buffer view outside of %q", buffer.Desc().Name)
	}
	heap, index, err := d.resolve(metadata.DescriptorHeapTypeCbvSrvUav, dest)
	if err != nil {
		return err
	}
	heap.clear(index)
	if heap.set != nil {
		vk.UpdateDescriptorSets(d.context.Device.LogicalDevice, 1, []vk.WriteDescriptorSet{{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          heap.set,
			DstBinding:      VULKAN_BINDING_UNIFORM_BUFFER,
			DstArrayElement: index,
			DescriptorCount: 1,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			PBufferInfo: []vk.DescriptorBufferInfo{{
				Buffer: buffer.Handle,
				Offset: vk.DeviceSize(desc.Offset),
				Range:  vk.DeviceSize(desc.SizeInBytes),
			}},
		}}, 0, nil)
	}
	return nil
}

func (d *VulkanDescriptorDevice) CreateUnorderedAccessView(resource metadata.Resource, desc *metadata.UnorderedAccessViewDesc, dest metadata.CPUDescriptorHandle) error {
	image, ok := resource.(*VulkanImage)
	if !ok {
		return ErrUnsupportedResource
	}
	rd := image.Desc()
	sub := metadata.UnorderedAccessViewDesc{Format: rd.Format, ArraySize: 1}
	if desc != nil {
		sub = *desc
	}
	viewType := vk.ImageViewType2d
	if sub.ArraySize > 1 {
		viewType = vk.ImageViewType2dArray
	}
	return d.writeImageView(metadata.DescriptorHeapTypeCbvSrvUav, dest, image, subresource{
		format:     sub.Format,
		viewType:   viewType,
		baseMip:    sub.MipSlice,
		mipCount:   1,
		firstLayer: sub.FirstArraySlice,
		layerCount: max(sub.ArraySize, 1),
	}, VULKAN_BINDING_STORAGE_IMAGE, vk.ImageLayoutGeneral)
}

type subresource struct {
	format     metadata.Format
	viewType   vk.ImageViewType
	baseMip    uint32
	mipCount   uint32
	firstLayer uint32
	layerCount uint32
}

// writeImageView creates the view, stores it in the slot and, for shader
// visible heaps, writes it to binding (binding < 0 skips the set update).
func (d *VulkanDescriptorDevice) writeImageView(heapType metadata.DescriptorHeapType, dest metadata.CPUDescriptorHandle, image *VulkanImage, sub subresource, binding int, layout vk.ImageLayout) error {
	heap, index, err := d.resolve(heapType, dest)
	if err != nil {
		return err
	}
	rd := image.Desc()
	if sub.baseMip+sub.mipCount > uint32(rd.MipLevels) || sub.firstLayer+sub.layerCount > uint32(rd.DepthOrArraySize) {
		return fmt.Errorf("subresource mips [%d, %d) layers [%d, %d) out of range for %q",
			sub.baseMip, sub.baseMip+sub.mipCount, sub.firstLayer, sub.firstLayer+sub.layerCount, rd.Name)
	}
	format := sub.format
	if format == metadata.FormatUnknown {
		format = rd.Format
	}

	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image.Handle,
		ViewType: sub.viewType,
		Format:   vulkanFormat(format),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspectMask(format),
			BaseMipLevel:   sub.baseMip,
			LevelCount:     sub.mipCount,
			BaseArrayLayer: sub.firstLayer,
			LayerCount:     sub.layerCount,
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(d.context.Device.LogicalDevice, &viewCreateInfo, d.context.Allocator, &view); res != vk.Success {
		return resultError("vkCreateImageView", res)
	}
	heap.clear(index)
	heap.views[index] = view

	if binding >= 0 && heap.set != nil {
		vk.UpdateDescriptorSets(d.context.Device.LogicalDevice, 1, []vk.WriteDescriptorSet{{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          heap.set,
			DstBinding:      uint32(binding),
			DstArrayElement: index,
			DescriptorCount: 1,
			DescriptorType:  descriptorTypeOf(binding),
			PImageInfo: []vk.DescriptorImageInfo{{
				ImageView:   view,
				ImageLayout: layout,
			}},
		}}, 0, nil)
	}
	return nil
}

func descriptorTypeOf(binding int) vk.DescriptorType {
	if binding == VULKAN_BINDING_STORAGE_IMAGE {
		return vk.DescriptorTypeStorageImage
	}
	return vk.DescriptorTypeSampledImage
}

// ImageView returns the view stored at a CPU address, nil if none.
func (d *VulkanDescriptorDevice) ImageView(addr metadata.CPUDescriptorHandle) vk.ImageView {
	heap, ok := d.heaps[addr.Ptr>>heapIDShift]
	if !ok {
		return nil
	}
	offset := addr.Ptr & offsetMask
	index := offset / VULKAN_DESCRIPTOR_STRIDE
	if offset%VULKAN_DESCRIPTOR_STRIDE != 0 || index >= uint64(len(heap.views)) {
		return nil
	}
	return heap.views[index]
}

func (d *VulkanDescriptorDevice) resolve(heapType metadata.DescriptorHeapType, dest metadata.CPUDescriptorHandle) (*VulkanDescriptorHeap, uint32, error) {
	heap, ok := d.heaps[dest.Ptr>>heapIDShift]
	if !ok {
		return nil, 0, fmt.Errorf("address %#x outside of any live heap", dest.Ptr)
	}
	if heap.desc.Type != heapType {
		return nil, 0, fmt.Errorf("%s view written to %s heap %q", heapType, heap.desc.Type, heap.desc.Name)
	}
	offset := dest.Ptr & offsetMask
	if offset%VULKAN_DESCRIPTOR_STRIDE != 0 || offset/VULKAN_DESCRIPTOR_STRIDE >= uint64(heap.desc.NumDescriptors) {
		return nil, 0, fmt.Errorf("address %#x outside of heap %q", dest.Ptr, heap.desc.Name)
	}
	return heap, uint32(offset / VULKAN_DESCRIPTOR_STRIDE), nil
}

// ReleaseView destroys the image view owned by the slot at dest.
func (d *VulkanDescriptorDevice) ReleaseView(heapType metadata.DescriptorHeapType, dest metadata.CPUDescriptorHandle) {
	heap, index, err := d.resolve(heapType, dest)
	if err != nil {
		core.LogWarn("vulkan: view release: %s", err)
		return
	}
	heap.clear(index)
}

// clear destroys the view a slot owned before it is overwritten.
func (h *VulkanDescriptorHeap) clear(index uint32) {
	if view := h.views[index]; view != nil {
		vk.DestroyImageView(h.device.context.Device.LogicalDevice, view, h.device.context.Allocator)
		h.views[index] = nil
	}
	h.nulls[index] = false
}
