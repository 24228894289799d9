package descriptors

import (
	"fmt"

	"github.com/spaghettifunk/anima-editor/engine/containers"
	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

/** @brief Configuration of a descriptor module. */
type ModuleConfig struct {
	/** @brief Debug name, also used as the heap name. */
	Name string
	/** @brief Number of descriptors (or tables for the shader module). Fixed for the module lifetime. */
	Capacity uint32
}

/** @brief Usage snapshot of a descriptor module. */
type Stats struct {
	Name     string
	HeapType metadata.DescriptorHeapType
	Capacity uint32
	/** @brief Slots owned by at least one descriptor. */
	InUse uint32
	/** @brief Released slots waiting for the frame delay. Always 0 for CPU only heaps. */
	Pending uint32
	Free    uint32
}

// moduleDescriptorsBase owns one CPU only heap of a single type. Slots come
// from a HandleManager and their owner counts live in refCounts.
type moduleDescriptorsBase struct {
	config   ModuleConfig
	heapType metadata.DescriptorHeapType
	device   Device

	heap      Heap
	stride    uint32
	cpuStart  metadata.CPUDescriptorHandle
	handles   *containers.HandleManager
	refCounts []uint32
}

func newModuleDescriptorsBase(config *ModuleConfig, heapType metadata.DescriptorHeapType, device Device) moduleDescriptorsBase {
	if config.Capacity == 0 || config.Capacity > containers.MAX_HANDLES {
		panic(fmt.Errorf("%w: %s capacity %d", core.ErrInvalidConfig, config.Name, config.Capacity))
	}
	return moduleDescriptorsBase{
		config:    *config,
		heapType:  heapType,
		device:    device,
		handles:   containers.NewHandleManager(config.Capacity),
		refCounts: make([]uint32, config.Capacity),
	}
}

// Init creates the heap. It wraps core.ErrHeapCreationFailed on failure.
func (m *moduleDescriptorsBase) Init() error {
	heap, err := m.device.CreateDescriptorHeap(metadata.DescriptorHeapDesc{
		Type:           m.heapType,
		NumDescriptors: m.config.Capacity,
		ShaderVisible:  false,
		Name:           m.config.Name,
	})
	if err != nil {
		err = fmt.Errorf("%w: %s (%s x %d): %v", core.ErrHeapCreationFailed, m.config.Name, m.heapType, m.config.Capacity, err)
		core.LogError(err.Error())
		return err
	}
	m.heap = heap
	m.stride = m.device.DescriptorHandleIncrementSize(m.heapType)
	m.cpuStart = heap.CPUStart()
	core.LogDebug("%s heap created with %d descriptors (stride %d)", m.config.Name, m.config.Capacity, m.stride)
	return nil
}

// Shutdown releases the heap. Every slot must have been returned, otherwise
// core.ErrDescriptorLeak is reported.
func (m *moduleDescriptorsBase) Shutdown() error {
	var err error
	if free := m.handles.FreeCount(); free != m.config.Capacity {
		err = fmt.Errorf("%w: %s has %d live descriptors", core.ErrDescriptorLeak, m.config.Name, m.config.Capacity-free)
		core.LogError(err.Error())
	}
	if m.heap != nil {
		m.heap.Release()
		m.heap = nil
	}
	return err
}

// createView allocates a slot and lets write materialize the view at its
// CPU address. It returns InvalidHandle when the heap is full or the write
// fails.
func (m *moduleDescriptorsBase) createView(write func(dest metadata.CPUDescriptorHandle) error) containers.Handle {
	if m.heap == nil {
		panic(fmt.Errorf("%w: %s used before Init", core.ErrInvalidHandle, m.config.Name))
	}
	h, ok := m.handles.TryAllocHandle()
	if !ok {
		core.LogWarn("%s heap exhausted (%d descriptors)", m.config.Name, m.config.Capacity)
		return containers.InvalidHandle
	}
	if err := write(m.CPUHandle(h)); err != nil {
		m.handles.FreeHandle(h)
		core.LogError("%s", fmt.Errorf("%w: %s: %v", core.ErrViewCreationFailed, m.config.Name, err).Error())
		return containers.InvalidHandle
	}
	m.refCounts[h.Index()] = 1
	return h
}

// Release destroys the view and returns the slot to the allocator. The
// generation is bumped on the next allocation, which invalidates h.
func (m *moduleDescriptorsBase) Release(h containers.Handle) {
	if !m.handles.ValidHandle(h) {
		panic(fmt.Errorf("%w: %s release of %s", core.ErrInvalidHandle, m.config.Name, h))
	}
	releaseView(m.device, m.heapType, m.CPUHandle(h))
	m.refCounts[h.Index()] = 0
	m.handles.FreeHandle(h)
}

// CPUHandle returns base + index * stride. h must be valid.
func (m *moduleDescriptorsBase) CPUHandle(h containers.Handle) metadata.CPUDescriptorHandle {
	index := m.handles.IndexFromHandle(h)
	return m.cpuStart.Offset(index, m.stride)
}

func (m *moduleDescriptorsBase) IsValid(h containers.Handle) bool {
	return m.handles.ValidHandle(h)
}

func (m *moduleDescriptorsBase) Stats() Stats {
	free := m.handles.FreeCount()
	return Stats{
		Name:     m.config.Name,
		HeapType: m.heapType,
		Capacity: m.config.Capacity,
		InUse:    m.config.Capacity - free,
		Free:     free,
	}
}

// RefCount returns the number of owners of h, 0 for invalid handles.
func (m *moduleDescriptorsBase) RefCount(h containers.Handle) uint32 {
	if !m.handles.ValidHandle(h) {
		return 0
	}
	return m.refCounts[h.Index()]
}

func (m *moduleDescriptorsBase) cpuHandle(h containers.Handle) metadata.CPUDescriptorHandle {
	return m.CPUHandle(h)
}

func (m *moduleDescriptorsBase) addRef(h containers.Handle) {
	if !m.handles.ValidHandle(h) {
		panic(fmt.Errorf("%w: %s clone of %s", core.ErrInvalidHandle, m.config.Name, h))
	}
	m.refCounts[h.Index()]++
}

func (m *moduleDescriptorsBase) decRef(h containers.Handle) {
	if !m.handles.ValidHandle(h) {
		panic(fmt.Errorf("%w: %s release of %s", core.ErrInvalidHandle, m.config.Name, h))
	}
	index := h.Index()
	m.refCounts[index]--
	if m.refCounts[index] == 0 {
		m.Release(h)
	}
}
