package descriptors

import (
	"github.com/spaghettifunk/anima-editor/engine/containers"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

const RT_DESCRIPTORS_DEFAULT_CAPACITY = 256

// RTDescriptor owns one render target view.
type RTDescriptor = Descriptor[*ModuleRTDescriptors]

// ModuleRTDescriptors owns the render target view heap.
type ModuleRTDescriptors struct {
	moduleDescriptorsBase
}

func NewModuleRTDescriptors(config *ModuleConfig, device Device) *ModuleRTDescriptors {
	if config == nil {
		config = &ModuleConfig{Name: "RTV", Capacity: RT_DESCRIPTORS_DEFAULT_CAPACITY}
	}
	return &ModuleRTDescriptors{
		moduleDescriptorsBase: newModuleDescriptorsBase(config, metadata.DescriptorHeapTypeRtv, device),
	}
}

// Create writes a view of mip 0 of resource in its own format.
func (m *ModuleRTDescriptors) Create(resource metadata.Resource) RTDescriptor {
	return m.CreateWithDesc(resource, nil)
}

// CreateSlice writes a view of one array slice and mip of resource with the
// given format. For cube resources arraySlice is face + 6 * cube.
func (m *ModuleRTDescriptors) CreateSlice(resource metadata.Resource, arraySlice, mipSlice uint32, format metadata.Format) RTDescriptor {
	return m.CreateWithDesc(resource, &metadata.RenderTargetViewDesc{
		Format:          format,
		Dimension:       metadata.RTVDimensionTexture2DArray,
		MipSlice:        mipSlice,
		FirstArraySlice: arraySlice,
		ArraySize:       1,
	})
}

// CreateWithDesc returns an empty descriptor when the heap is full or the
// device rejects the view.
func (m *ModuleRTDescriptors) CreateWithDesc(resource metadata.Resource, desc *metadata.RenderTargetViewDesc) RTDescriptor {
	h := m.createView(func(dest metadata.CPUDescriptorHandle) error {
		return m.device.CreateRenderTargetView(resource, desc, dest)
	})
	if h == containers.InvalidHandle {
		return RTDescriptor{}
	}
	return newDescriptor(m, h)
}
