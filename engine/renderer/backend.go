package renderer

import (
	"context"
	"fmt"
	"strings"

	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer/descriptors"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-editor/engine/renderer/software"
	"github.com/spaghettifunk/anima-editor/engine/renderer/vulkan"
)

type RendererType uint8

const (
	Software RendererType = iota
	Vulkan
)

func (t RendererType) String() string {
	switch t {
	case Software:
		return "software"
	case Vulkan:
		return "vulkan"
	}
	return fmt.Sprintf("RendererType(%d)", uint8(t))
}

// ParseRendererType accepts the names used in the configuration file.
func ParseRendererType(name string) (RendererType, error) {
	switch strings.ToLower(name) {
	case "software", "":
		return Software, nil
	case "vulkan":
		return Vulkan, nil
	}
	return Software, fmt.Errorf("%w: unknown renderer backend %q", core.ErrInvalidConfig, name)
}

// Fence is the GPU timeline of submitted frames.
type Fence interface {
	// Signal marks frame as submitted.
	Signal(frame uint64) error
	// Wait blocks until frame has retired on the GPU.
	Wait(ctx context.Context, frame uint64) error
	// Completed returns the newest retired frame.
	Completed() uint64
	Release()
}

// RendererBackend creates the device level objects the renderer needs.
type RendererBackend interface {
	Type() RendererType
	Device() descriptors.Device
	NewFence(framesInFlight uint32, latency uint64) (Fence, error)
	CreateTexture(desc metadata.ResourceDesc) (metadata.Resource, error)
	CreateBuffer(size uint64, name string) (metadata.Resource, error)
	DestroyResource(resource metadata.Resource)
	Shutdown() error
}

// NewBackend creates a backend of the given type.
func NewBackend(backendType RendererType) (RendererBackend, error) {
	switch backendType {
	case Software:
		return &softwareBackend{device: software.NewDevice()}, nil
	case Vulkan:
		vc, err := vulkan.NewContext(&vulkan.ContextConfig{ApplicationName: "anima-editor", PreferDiscrete: true})
		if err != nil {
			return nil, err
		}
		return &vulkanBackend{context: vc, device: vulkan.NewDescriptorDevice(vc)}, nil
	}
	return nil, fmt.Errorf("%w: renderer backend %s", core.ErrInvalidConfig, backendType)
}

type softwareBackend struct {
	device *software.Device
}

func (b *softwareBackend) Type() RendererType { return Software }

func (b *softwareBackend) Device() descriptors.Device { return b.device }

func (b *softwareBackend) NewFence(framesInFlight uint32, latency uint64) (Fence, error) {
	return software.NewFence(latency), nil
}

func (b *softwareBackend) CreateTexture(desc metadata.ResourceDesc) (metadata.Resource, error) {
	texture, err := b.device.CreateTexture(desc)
	if err != nil {
		return nil, err
	}
	return texture, nil
}

func (b *softwareBackend) CreateBuffer(size uint64, name string) (metadata.Resource, error) {
	buffer, err := b.device.CreateBuffer(size, name)
	if err != nil {
		return nil, err
	}
	return buffer, nil
}

func (b *softwareBackend) DestroyResource(resource metadata.Resource) {}

func (b *softwareBackend) Shutdown() error {
	if n := b.device.LiveHeaps(); n != 0 {
		return fmt.Errorf("%w: %d descriptor heaps outlived the renderer", core.ErrDescriptorLeak, n)
	}
	return nil
}

type vulkanBackend struct {
	context *vulkan.VulkanContext
	device  *vulkan.VulkanDescriptorDevice
}

func (b *vulkanBackend) Type() RendererType { return Vulkan }

func (b *vulkanBackend) Device() descriptors.Device { return b.device }

func (b *vulkanBackend) NewFence(framesInFlight uint32, latency uint64) (Fence, error) {
	fence, err := vulkan.NewFrameFence(b.context, framesInFlight)
	if err != nil {
		return nil, err
	}
	return fence, nil
}

func (b *vulkanBackend) CreateTexture(desc metadata.ResourceDesc) (metadata.Resource, error) {
	image, err := vulkan.ImageCreate(b.context, desc)
	if err != nil {
		return nil, err
	}
	return image, nil
}

func (b *vulkanBackend) CreateBuffer(size uint64, name string) (metadata.Resource, error) {
	buffer, err := vulkan.BufferCreate(b.context, size, name)
	if err != nil {
		return nil, err
	}
	return buffer, nil
}

func (b *vulkanBackend) DestroyResource(resource metadata.Resource) {
	switch r := resource.(type) {
	case *vulkan.VulkanImage:
		r.Destroy(b.context)
	case *vulkan.VulkanBuffer:
		r.Destroy(b.context)
	}
}

func (b *vulkanBackend) Shutdown() error {
	return b.context.Shutdown()
}
