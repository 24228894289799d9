package vulkan

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-editor/engine/core"
)

var (
	ErrLoaderUnavailable = errors.New("vulkan loader unavailable")
	ErrNoSuitableDevice  = errors.New("no suitable vulkan device")
)

// The loader is shared by every live context. The first context loads it and
// the last one to shut down unloads it, so a later context loads it again.
var (
	loaderMu   sync.Mutex
	loaderRefs int
	usingGLFW  bool
)

// acquireLoader resolves vkGetInstanceProcAddr, through glfw when a display
// is available and through the system loader otherwise.
func acquireLoader() error {
	loaderMu.Lock()
	defer loaderMu.Unlock()
	if loaderRefs > 0 {
		loaderRefs++
		return nil
	}
	if err := glfw.Init(); err == nil {
		vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
		usingGLFW = true
	} else {
		core.LogDebug("glfw unavailable (%s), using the default vulkan loader", err.Error())
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			return fmt.Errorf("%w: %v", ErrLoaderUnavailable, err)
		}
	}
	if err := vk.Init(); err != nil {
		unloadLoader()
		return fmt.Errorf("%w: %v", ErrLoaderUnavailable, err)
	}
	loaderRefs = 1
	return nil
}

func releaseLoader() {
	loaderMu.Lock()
	defer loaderMu.Unlock()
	if loaderRefs == 0 {
		return
	}
	loaderRefs--
	if loaderRefs == 0 {
		unloadLoader()
	}
}

// unloadLoader must be called with loaderMu held.
func unloadLoader() {
	if usingGLFW {
		glfw.Terminate()
		usingGLFW = false
	}
}

// LiveContexts returns the number of contexts holding the loader.
func LiveContexts() int {
	loaderMu.Lock()
	defer loaderMu.Unlock()
	return loaderRefs
}

/** @brief Configuration of a headless Vulkan context. */
type ContextConfig struct {
	ApplicationName string
	/** @brief Require a discrete GPU when one is present. */
	PreferDiscrete bool
}

// VulkanContext is a headless instance plus logical device. It has no
// surface or swapchain: descriptors and views do not need one.
type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks

	Device *VulkanDevice

	released bool
}

func NewContext(config *ContextConfig) (*VulkanContext, error) {
	if err := acquireLoader(); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	if config == nil {
		config = &ContextConfig{ApplicationName: "anima-editor"}
	}

	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   VulkanSafeString(config.ApplicationName),
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        VulkanSafeString("Anima Editor"),
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.MakeVersion(1, 1, 0),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &appInfo,
	}

	context := &VulkanContext{}
	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, context.Allocator, &instance); res != vk.Success {
		err := fmt.Errorf("%w: %s", ErrLoaderUnavailable, resultError("vkCreateInstance", res))
		core.LogError(err.Error())
		releaseLoader()
		return nil, err
	}
	context.Instance = instance
	vk.InitInstance(instance)
	core.LogInfo("Vulkan instance created.")

	device, err := DeviceCreate(context, config.PreferDiscrete)
	if err != nil {
		vk.DestroyInstance(context.Instance, context.Allocator)
		releaseLoader()
		return nil, err
	}
	context.Device = device
	return context, nil
}

// Shutdown waits for the device to go idle and destroys it with the instance.
// The last context to shut down unloads the loader.
func (vc *VulkanContext) Shutdown() error {
	if vc.released {
		return nil
	}
	vc.released = true
	if vc.Device != nil {
		DeviceDestroy(vc)
		vc.Device = nil
	}
	if vc.Instance != nil {
		vk.DestroyInstance(vc.Instance, vc.Allocator)
		vc.Instance = nil
	}
	releaseLoader()
	core.LogInfo("Vulkan context destroyed.")
	return nil
}

func (vc *VulkanContext) FindMemoryIndex(typeFilter, propertyFlags uint32) int32 {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(vc.Device.PhysicalDevice, &memoryProperties)
	memoryProperties.Deref()

	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		memoryProperties.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (uint32(memoryProperties.MemoryTypes[i].PropertyFlags)&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}
