package descriptors

import (
	"fmt"

	"github.com/spaghettifunk/anima-editor/engine/containers"
	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

// ShaderTableDesc owns one shader visible descriptor table and writes views
// into its slots.
type ShaderTableDesc struct {
	Descriptor[*ModuleShaderDescriptors]
}

func (t ShaderTableDesc) Clone() ShaderTableDesc {
	return ShaderTableDesc{t.Descriptor.Clone()}
}

func (t *ShaderTableDesc) Take() ShaderTableDesc {
	return ShaderTableDesc{t.Descriptor.Take()}
}

func (t *ShaderTableDesc) Set(other ShaderTableDesc) {
	t.Descriptor.Set(other.Descriptor)
}

// GPUHandle returns the GPU address of slot, the null handle when the table
// is empty or slot is out of range.
func (t ShaderTableDesc) GPUHandle(slot uint32) metadata.GPUDescriptorHandle {
	if t.module == nil {
		return metadata.GPUDescriptorHandle{}
	}
	return t.module.GPUHandle(t.handle, slot)
}

func (t ShaderTableDesc) CPUHandle(slot uint32) metadata.CPUDescriptorHandle {
	if t.module == nil {
		return metadata.CPUDescriptorHandle{}
	}
	return t.module.CPUHandle(t.handle, slot)
}

// Name returns the debug name given at allocation.
func (t ShaderTableDesc) Name() string {
	if t.module == nil {
		return ""
	}
	return t.module.TableName(t.handle)
}

func (t ShaderTableDesc) CreateCBV(slot uint32, desc *metadata.ConstantBufferViewDesc) error {
	return t.write(slot, func(dev Device, dest metadata.CPUDescriptorHandle) error {
		return dev.CreateConstantBufferView(desc, dest)
	})
}

// CreateTextureSRV writes a 2D view of every mip of texture.
func (t ShaderTableDesc) CreateTextureSRV(slot uint32, texture metadata.Resource) error {
	desc := texture.Desc()
	return t.CreateSRV(slot, texture, &metadata.ShaderResourceViewDesc{
		Format:    desc.Format,
		Dimension: metadata.SRVDimensionTexture2D,
		MipLevels: uint32(desc.MipLevels),
		ArraySize: 1,
	})
}

// CreateCubeTextureSRV writes a cube view of every mip of texture.
func (t ShaderTableDesc) CreateCubeTextureSRV(slot uint32, texture metadata.Resource) error {
	desc := texture.Desc()
	return t.CreateSRV(slot, texture, &metadata.ShaderResourceViewDesc{
		Format:    desc.Format,
		Dimension: metadata.SRVDimensionTextureCube,
		MipLevels: uint32(desc.MipLevels),
		ArraySize: 6,
	})
}

func (t ShaderTableDesc) CreateSRV(slot uint32, resource metadata.Resource, desc *metadata.ShaderResourceViewDesc) error {
	return t.write(slot, func(dev Device, dest metadata.CPUDescriptorHandle) error {
		return dev.CreateShaderResourceView(resource, desc, dest)
	})
}

func (t ShaderTableDesc) CreateUAV(slot uint32, resource metadata.Resource, desc *metadata.UnorderedAccessViewDesc) error {
	return t.write(slot, func(dev Device, dest metadata.CPUDescriptorHandle) error {
		return dev.CreateUnorderedAccessView(resource, desc, dest)
	})
}

// CreateNullTexture2DSRV fills slot with a null 2D view so that shaders
// sampling a missing texture read zeros.
func (t ShaderTableDesc) CreateNullTexture2DSRV(slot uint32) error {
	return t.CreateSRV(slot, nil, &metadata.ShaderResourceViewDesc{
		Format:    metadata.FormatR8G8B8A8Unorm,
		Dimension: metadata.SRVDimensionTexture2D,
		MipLevels: 1,
		ArraySize: 1,
	})
}

func (t ShaderTableDesc) CreateNullCubeSRV(slot uint32) error {
	return t.CreateSRV(slot, nil, &metadata.ShaderResourceViewDesc{
		Format:    metadata.FormatR8G8B8A8Unorm,
		Dimension: metadata.SRVDimensionTextureCube,
		MipLevels: 1,
		ArraySize: 6,
	})
}

func (t ShaderTableDesc) write(slot uint32, write func(dev Device, dest metadata.CPUDescriptorHandle) error) error {
	if t.handle == containers.InvalidHandle {
		return fmt.Errorf("%w: write of slot %d in an empty table", core.ErrInvalidHandle, slot)
	}
	module := t.module
	return module.writeSlot(t.handle, slot, func(dest metadata.CPUDescriptorHandle) error {
		return write(module.device, dest)
	})
}
