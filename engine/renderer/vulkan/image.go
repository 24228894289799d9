package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

// VulkanImage is a device local image. Views into it are owned by the
// descriptor heaps, never by the image.
type VulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	desc   metadata.ResourceDesc
}

func (vi *VulkanImage) Desc() metadata.ResourceDesc {
	return vi.desc
}

// VulkanBuffer is a host visible buffer, used for constant buffers.
type VulkanBuffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	desc   metadata.ResourceDesc
}

func (vb *VulkanBuffer) Desc() metadata.ResourceDesc {
	return vb.desc
}

// ImageCreate creates an image as described by desc and binds device local
// memory to it.
func ImageCreate(context *VulkanContext, desc metadata.ResourceDesc) (*VulkanImage, error) {
	if desc.Width == 0 || desc.Height == 0 || vulkanFormat(desc.Format) == vk.FormatUndefined {
		return nil, fmt.Errorf("%w: image %q (%dx%d %s)", core.ErrInvalidConfig, desc.Name, desc.Width, desc.Height, desc.Format)
	}
	if desc.DepthOrArraySize == 0 {
		desc.DepthOrArraySize = 1
	}
	if desc.MipLevels == 0 {
		desc.MipLevels = 1
	}

	usage := vk.ImageUsageSampledBit | vk.ImageUsageTransferDstBit
	if desc.Flags&metadata.ResourceFlagAllowRenderTarget != 0 {
		usage |= vk.ImageUsageColorAttachmentBit
	}
	if desc.Flags&metadata.ResourceFlagAllowDepthStencil != 0 {
		usage |= vk.ImageUsageDepthStencilAttachmentBit
	}
	if desc.Flags&metadata.ResourceFlagAllowUnorderedAccess != 0 {
		usage |= vk.ImageUsageStorageBit
	}
	var flags vk.ImageCreateFlags
	if desc.IsCube() {
		flags = vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		Flags:     flags,
		ImageType: vk.ImageType2d,
		Format:    vulkanFormat(desc.Format),
		Extent: vk.Extent3D{
			Width:  uint32(desc.Width),
			Height: desc.Height,
			Depth:  1,
		},
		MipLevels:     uint32(desc.MipLevels),
		ArrayLayers:   uint32(desc.DepthOrArraySize),
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}

	image := &VulkanImage{desc: desc}
	if res := vk.CreateImage(context.Device.LogicalDevice, &imageCreateInfo, context.Allocator, &image.Handle); res != vk.Success {
		err := resultError("vkCreateImage", res)
		core.LogError(err.Error())
		return nil, err
	}

	var memoryRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(context.Device.LogicalDevice, image.Handle, &memoryRequirements)
	memoryRequirements.Deref()

	memory, err := allocate(context, memoryRequirements, uint32(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		vk.DestroyImage(context.Device.LogicalDevice, image.Handle, context.Allocator)
		return nil, fmt.Errorf("image %q: %w", desc.Name, err)
	}
	image.Memory = memory
	if res := vk.BindImageMemory(context.Device.LogicalDevice, image.Handle, image.Memory, 0); res != vk.Success {
		image.Destroy(context)
		return nil, resultError("vkBindImageMemory", res)
	}
	return image, nil
}

func (vi *VulkanImage) Destroy(context *VulkanContext) {
	if vi.Memory != nil {
		vk.FreeMemory(context.Device.LogicalDevice, vi.Memory, context.Allocator)
		vi.Memory = nil
	}
	if vi.Handle != nil {
		vk.DestroyImage(context.Device.LogicalDevice, vi.Handle, context.Allocator)
		vi.Handle = nil
	}
}

// BufferCreate creates a uniform buffer of size bytes in host visible memory.
func BufferCreate(context *VulkanContext, size uint64, name string) (*VulkanBuffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("%w: empty buffer %q", core.ErrInvalidConfig, name)
	}
	bufferCreateInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit | vk.BufferUsageTransferDstBit),
		SharingMode: vk.SharingModeExclusive,
	}
	buffer := &VulkanBuffer{desc: metadata.ResourceDesc{
		Dimension:        metadata.ResourceDimensionBuffer,
		Width:            size,
		Height:           1,
		DepthOrArraySize: 1,
		MipLevels:        1,
		Name:             name,
	}}
	if res := vk.CreateBuffer(context.Device.LogicalDevice, &bufferCreateInfo, context.Allocator, &buffer.Handle); res != vk.Success {
		err := resultError("vkCreateBuffer", res)
		core.LogError(err.Error())
		return nil, err
	}

	var memoryRequirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(context.Device.LogicalDevice, buffer.Handle, &memoryRequirements)
	memoryRequirements.Deref()

	memory, err := allocate(context, memoryRequirements, uint32(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		vk.DestroyBuffer(context.Device.LogicalDevice, buffer.Handle, context.Allocator)
		return nil, fmt.Errorf("buffer %q: %w", name, err)
	}
	buffer.Memory = memory
	if res := vk.BindBufferMemory(context.Device.LogicalDevice, buffer.Handle, buffer.Memory, 0); res != vk.Success {
		buffer.Destroy(context)
		return nil, resultError("vkBindBufferMemory", res)
	}
	return buffer, nil
}

func (vb *VulkanBuffer) Destroy(context *VulkanContext) {
	if vb.Memory != nil {
		vk.FreeMemory(context.Device.LogicalDevice, vb.Memory, context.Allocator)
		vb.Memory = nil
	}
	if vb.Handle != nil {
		vk.DestroyBuffer(context.Device.LogicalDevice, vb.Handle, context.Allocator)
		vb.Handle = nil
	}
}

func allocate(context *VulkanContext, requirements vk.MemoryRequirements, properties uint32) (vk.DeviceMemory, error) {
	memoryType := context.FindMemoryIndex(requirements.MemoryTypeBits, properties)
	if memoryType == -1 {
		return nil, fmt.Errorf("required memory type not found")
	}
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(memoryType),
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(context.Device.LogicalDevice, &allocateInfo, context.Allocator, &memory); res != vk.Success {
		return nil, resultError("vkAllocateMemory", res)
	}
	return memory, nil
}
