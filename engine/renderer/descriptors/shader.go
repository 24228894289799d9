package descriptors

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/anima-editor/engine/containers"
	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

const (
	/** @brief Contiguous shader visible slots in one table. */
	SLOTS_PER_TABLE = 8
	/** @brief Frames a released table waits before its slots can be reused. */
	FRAME_DELAY = 3

	SHADER_DESCRIPTORS_DEFAULT_TABLES = 4096
)

// table is the bookkeeping of one descriptor table.
type table struct {
	refCount uint32
	/** @brief Frame counter at the time the last owner let go, 0 when not pending. */
	frameFreed uint64
	generation uint8
	name       string
}

// pending reports whether the table is released but not yet recycled.
func (t *table) pending() bool {
	return t.refCount == 0 && t.frameFreed != 0
}

/** @brief Diagnostic view of a table that has not been recycled yet. */
type TableInfo struct {
	Handle     containers.Handle
	Name       string
	RefCount   uint32
	FrameFreed uint64
}

// ModuleShaderDescriptors slices one shader visible CBV/SRV/UAV heap into
// tables of SLOTS_PER_TABLE slots. Released tables are recycled only by
// RunDeferredReclamation once FRAME_DELAY frames have passed and the GPU
// has completed the frame they were released in.
//
// All methods must be called from the frame thread.
type ModuleShaderDescriptors struct {
	config ModuleConfig
	device Device

	heap     Heap
	stride   uint32
	cpuStart metadata.CPUDescriptorHandle
	gpuStart metadata.GPUDescriptorHandle

	tables     []table
	freeTables *containers.RingQueue[uint32]

	frame         uint64
	lastCompleted uint64
}

func NewModuleShaderDescriptors(config *ModuleConfig, device Device) *ModuleShaderDescriptors {
	if config == nil {
		config = &ModuleConfig{Name: "ShaderDescriptors", Capacity: SHADER_DESCRIPTORS_DEFAULT_TABLES}
	}
	if config.Capacity == 0 || uint64(config.Capacity)*SLOTS_PER_TABLE > uint64(containers.MAX_HANDLES) {
		panic(fmt.Errorf("%w: %s table count %d", core.ErrInvalidConfig, config.Name, config.Capacity))
	}
	m := &ModuleShaderDescriptors{
		config:     *config,
		device:     device,
		tables:     make([]table, config.Capacity),
		freeTables: containers.NewRingQueue[uint32](int(config.Capacity)),
		frame:      1,
	}
	for i := uint32(0); i < config.Capacity; i++ {
		m.freeTables.Push(i)
	}
	return m
}

// Init creates the shader visible heap of Capacity * SLOTS_PER_TABLE slots.
func (m *ModuleShaderDescriptors) Init() error {
	heap, err := m.device.CreateDescriptorHeap(metadata.DescriptorHeapDesc{
		Type:           metadata.DescriptorHeapTypeCbvSrvUav,
		NumDescriptors: m.config.Capacity * SLOTS_PER_TABLE,
		ShaderVisible:  true,
		Name:           m.config.Name,
	})
	if err != nil {
		err = fmt.Errorf("%w: %s (%d tables): %v", core.ErrHeapCreationFailed, m.config.Name, m.config.Capacity, err)
		core.LogError(err.Error())
		return err
	}
	if heap.GPUStart().IsNull() {
		heap.Release()
		err = fmt.Errorf("%w: %s heap is not shader visible", core.ErrHeapCreationFailed, m.config.Name)
		core.LogError(err.Error())
		return err
	}
	m.heap = heap
	m.stride = m.device.DescriptorHandleIncrementSize(metadata.DescriptorHeapTypeCbvSrvUav)
	m.cpuStart = heap.CPUStart()
	m.gpuStart = heap.GPUStart()
	core.LogDebug("%s heap created with %d tables of %d slots (stride %d)", m.config.Name, m.config.Capacity, SLOTS_PER_TABLE, m.stride)
	return nil
}

// Shutdown releases the heap. Tables still owned are reported by name with
// core.ErrDescriptorLeak. Pending tables are not leaks.
func (m *ModuleShaderDescriptors) Shutdown() error {
	var leaked []string
	for _, info := range m.LiveTables() {
		if info.RefCount > 0 {
			leaked = append(leaked, fmt.Sprintf("%q(%d refs)", info.Name, info.RefCount))
		}
	}
	var err error
	if len(leaked) > 0 {
		err = fmt.Errorf("%w: %s has %d live tables: %s", core.ErrDescriptorLeak, m.config.Name, len(leaked), strings.Join(leaked, ", "))
		core.LogError(err.Error())
	}
	if m.heap != nil {
		m.heap.Release()
		m.heap = nil
	}
	return err
}

// AllocTable takes a table from the free queue. It returns an empty
// ShaderTableDesc when every table is in use or pending.
func (m *ModuleShaderDescriptors) AllocTable(name string) ShaderTableDesc {
	if m.heap == nil {
		panic(fmt.Errorf("%w: %s used before Init", core.ErrInvalidHandle, m.config.Name))
	}
	index, ok := m.freeTables.Pop()
	if !ok {
		core.LogWarn("%s: out of tables allocating %q (%d tables)", m.config.Name, name, m.config.Capacity)
		return ShaderTableDesc{}
	}
	t := &m.tables[index]
	t.generation++
	if t.generation == 0 {
		t.generation = 1
	}
	t.refCount = 1
	t.frameFreed = 0
	t.name = name
	return ShaderTableDesc{newDescriptor(m, containers.NewHandle(index, t.generation))}
}

// ReleaseTable drops one owner of h. The last owner stamps the table with
// the current frame, the table stays valid until it is recycled.
func (m *ModuleShaderDescriptors) ReleaseTable(h containers.Handle) {
	t := m.live(h)
	if t == nil || t.refCount == 0 {
		panic(fmt.Errorf("%w: %s release of table %s", core.ErrInvalidHandle, m.config.Name, h))
	}
	t.refCount--
	if t.refCount == 0 {
		t.frameFreed = m.frame
		core.LogDebug("%s: table %q released at frame %d", m.config.Name, t.name, m.frame)
	}
}

// RunDeferredReclamation advances the frame counter and recycles every
// released table whose frame delay has elapsed and whose release frame the
// GPU has completed. It must run once per frame, after the wait on the
// oldest in-flight frame and before any allocation of the new frame.
//
// completedFrame must not go backwards and must be older than the frame
// being started, otherwise core.ErrFrameOrdering is returned and nothing is
// recycled.
func (m *ModuleShaderDescriptors) RunDeferredReclamation(completedFrame uint64) error {
	next := m.frame + 1
	if completedFrame >= next || completedFrame < m.lastCompleted {
		err := fmt.Errorf("%w: %s sweep of frame %d with completed frame %d (last %d)",
			core.ErrFrameOrdering, m.config.Name, next, completedFrame, m.lastCompleted)
		core.LogError(err.Error())
		return err
	}
	m.frame = next
	m.lastCompleted = completedFrame

	for i := range m.tables {
		t := &m.tables[i]
		if !t.pending() || m.frame-t.frameFreed < FRAME_DELAY || completedFrame < t.frameFreed {
			continue
		}
		m.releaseSlots(uint32(i))
		t.name = ""
		t.frameFreed = 0
		m.freeTables.Push(uint32(i))
	}
	return nil
}

// releaseSlots destroys the views of every slot of table index.
func (m *ModuleShaderDescriptors) releaseSlots(index uint32) {
	for slot := uint32(0); slot < SLOTS_PER_TABLE; slot++ {
		releaseView(m.device, metadata.DescriptorHeapTypeCbvSrvUav, m.cpuStart.Offset(index*SLOTS_PER_TABLE+slot, m.stride))
	}
}

// PreRender runs the deferred sweep for the frame about to be recorded.
// info.Frame must be the frame that follows the current one.
func (m *ModuleShaderDescriptors) PreRender(info metadata.FrameInfo) error {
	if info.Frame != m.frame+1 {
		err := fmt.Errorf("%w: %s expected frame %d, got %d", core.ErrFrameOrdering, m.config.Name, m.frame+1, info.Frame)
		core.LogError(err.Error())
		return err
	}
	return m.RunDeferredReclamation(info.CompletedFrame)
}

// IsValidHandle reports whether h names an allocated table that has not been
// recycled. Released tables still pending the frame delay are valid.
func (m *ModuleShaderDescriptors) IsValidHandle(h containers.Handle) bool {
	return m.live(h) != nil
}

func (m *ModuleShaderDescriptors) IsValid(h containers.Handle) bool {
	return m.IsValidHandle(h)
}

// GPUHandle returns base + (index * SLOTS_PER_TABLE + slot) * stride, or the
// null handle when h or slot is invalid.
func (m *ModuleShaderDescriptors) GPUHandle(h containers.Handle, slot uint32) metadata.GPUDescriptorHandle {
	if slot >= SLOTS_PER_TABLE || m.live(h) == nil {
		return metadata.GPUDescriptorHandle{}
	}
	return m.gpuStart.Offset(h.Index()*SLOTS_PER_TABLE+slot, m.stride)
}

// CPUHandle is the CPU twin of GPUHandle.
func (m *ModuleShaderDescriptors) CPUHandle(h containers.Handle, slot uint32) metadata.CPUDescriptorHandle {
	if slot >= SLOTS_PER_TABLE || m.live(h) == nil {
		return metadata.CPUDescriptorHandle{}
	}
	return m.cpuStart.Offset(h.Index()*SLOTS_PER_TABLE+slot, m.stride)
}

func (m *ModuleShaderDescriptors) FreeTableCount() uint32 {
	return uint32(m.freeTables.Len())
}

// FreeTableIndices returns the free queue, next allocation first.
func (m *ModuleShaderDescriptors) FreeTableIndices() []uint32 {
	return m.freeTables.Values()
}

// TableName returns the debug name of a live table.
func (m *ModuleShaderDescriptors) TableName(h containers.Handle) string {
	if t := m.live(h); t != nil {
		return t.name
	}
	return ""
}

// RefCount returns the number of owners of h.
func (m *ModuleShaderDescriptors) RefCount(h containers.Handle) uint32 {
	if t := m.live(h); t != nil {
		return t.refCount
	}
	return 0
}

func (m *ModuleShaderDescriptors) CurrentFrame() uint64 {
	return m.frame
}

// LiveTables lists every table that is owned or pending, by index.
func (m *ModuleShaderDescriptors) LiveTables() []TableInfo {
	var out []TableInfo
	for i := range m.tables {
		t := &m.tables[i]
		if t.refCount == 0 && t.frameFreed == 0 {
			continue
		}
		out = append(out, TableInfo{
			Handle:     containers.NewHandle(uint32(i), t.generation),
			Name:       t.name,
			RefCount:   t.refCount,
			FrameFreed: t.frameFreed,
		})
	}
	return out
}

func (m *ModuleShaderDescriptors) Stats() Stats {
	s := Stats{
		Name:     m.config.Name,
		HeapType: metadata.DescriptorHeapTypeCbvSrvUav,
		Capacity: m.config.Capacity,
		Free:     m.FreeTableCount(),
	}
	for i := range m.tables {
		switch t := &m.tables[i]; {
		case t.refCount > 0:
			s.InUse++
		case t.pending():
			s.Pending++
		}
	}
	return s
}

// writeSlot runs write at the CPU address of (h, slot).
func (m *ModuleShaderDescriptors) writeSlot(h containers.Handle, slot uint32, write func(dest metadata.CPUDescriptorHandle) error) error {
	dest := m.CPUHandle(h, slot)
	if dest.IsNull() {
		return fmt.Errorf("%w: %s write of slot %d in table %s", core.ErrInvalidHandle, m.config.Name, slot, h)
	}
	if err := write(dest); err != nil {
		return fmt.Errorf("%w: %s table %q slot %d: %v", core.ErrViewCreationFailed, m.config.Name, m.TableName(h), slot, err)
	}
	return nil
}

// live returns the table h names, or nil when h is stale or out of range.
func (m *ModuleShaderDescriptors) live(h containers.Handle) *table {
	if h == containers.InvalidHandle {
		return nil
	}
	index := h.Index()
	if index >= uint32(len(m.tables)) {
		return nil
	}
	t := &m.tables[index]
	if t.generation != h.Generation() || (t.refCount == 0 && t.frameFreed == 0) {
		return nil
	}
	return t
}

func (m *ModuleShaderDescriptors) cpuHandle(h containers.Handle) metadata.CPUDescriptorHandle {
	return m.CPUHandle(h, 0)
}

func (m *ModuleShaderDescriptors) addRef(h containers.Handle) {
	t := m.live(h)
	if t == nil || t.refCount == 0 {
		panic(fmt.Errorf("%w: %s clone of table %s", core.ErrInvalidHandle, m.config.Name, h))
	}
	t.refCount++
}

func (m *ModuleShaderDescriptors) decRef(h containers.Handle) {
	m.ReleaseTable(h)
}
