package descriptors

import (
	"github.com/spaghettifunk/anima-editor/engine/containers"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

const DS_DESCRIPTORS_DEFAULT_CAPACITY = 64

// DSDescriptor owns one depth stencil view.
type DSDescriptor = Descriptor[*ModuleDSDescriptors]

// ModuleDSDescriptors owns the depth stencil view heap.
type ModuleDSDescriptors struct {
	moduleDescriptorsBase
}

func NewModuleDSDescriptors(config *ModuleConfig, device Device) *ModuleDSDescriptors {
	if config == nil {
		config = &ModuleConfig{Name: "DSV", Capacity: DS_DESCRIPTORS_DEFAULT_CAPACITY}
	}
	return &ModuleDSDescriptors{
		moduleDescriptorsBase: newModuleDescriptorsBase(config, metadata.DescriptorHeapTypeDsv, device),
	}
}

func (m *ModuleDSDescriptors) Create(resource metadata.Resource) DSDescriptor {
	return m.CreateWithDesc(resource, nil)
}

// CreateWithDesc returns an empty descriptor when the heap is full or the
// device rejects the view.
func (m *ModuleDSDescriptors) CreateWithDesc(resource metadata.Resource, desc *metadata.DepthStencilViewDesc) DSDescriptor {
	h := m.createView(func(dest metadata.CPUDescriptorHandle) error {
		return m.device.CreateDepthStencilView(resource, desc, dest)
	})
	if h == containers.InvalidHandle {
		return DSDescriptor{}
	}
	return newDescriptor(m, h)
}
