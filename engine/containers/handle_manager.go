package containers

import (
	"fmt"

	"github.com/spaghettifunk/anima-editor/engine/core"
)

// Handle is a 32 bit slot identifier: the low 24 bits are the slot index and
// the high 8 bits the generation of the slot at allocation time.
// The zero Handle never identifies a slot.
type Handle uint32

const (
	HANDLE_INDEX_BITS      = 24
	HANDLE_GENERATION_BITS = 8
	HANDLE_INDEX_MASK      = 1<<HANDLE_INDEX_BITS - 1

	// InvalidHandle is the reserved "no handle" value.
	InvalidHandle Handle = 0

	// slotInUse marks an allocated slot in the link field. It can never be a
	// free-list link because capacities stay below it.
	slotInUse uint32 = HANDLE_INDEX_MASK
	// MAX_HANDLES is the largest capacity a HandleManager accepts.
	MAX_HANDLES uint32 = HANDLE_INDEX_MASK - 1
)

// NewHandle packs an index and a generation.
func NewHandle(index uint32, generation uint8) Handle {
	return Handle(uint32(generation)<<HANDLE_INDEX_BITS | index&HANDLE_INDEX_MASK)
}

// Index returns the slot index embedded in the handle.
func (h Handle) Index() uint32 {
	return uint32(h) & HANDLE_INDEX_MASK
}

// Generation returns the generation embedded in the handle.
func (h Handle) Generation() uint8 {
	return uint8(uint32(h) >> HANDLE_INDEX_BITS)
}

func (h Handle) String() string {
	if h == InvalidHandle {
		return "Handle(none)"
	}
	return fmt.Sprintf("Handle(%d:%d)", h.Index(), h.Generation())
}

// HandleManager is a fixed capacity allocator of generation tagged slot
// indices. Free slots form an intrusive singly linked list through the
// backing array, so allocation and release never touch the heap.
//
// Each slot entry packs the live generation in the top 8 bits and, while the
// slot is free, the index of the next free slot in the low 24 bits (the
// sentinel size terminates the list). Allocated slots store slotInUse there.
type HandleManager struct {
	slots    []uint32
	freeHead uint32
	size     uint32
}

// NewHandleManager creates an allocator for size slots. size must be in
// [1, MAX_HANDLES].
func NewHandleManager(size uint32) *HandleManager {
	if size == 0 || size > MAX_HANDLES {
		panic(fmt.Errorf("%w: handle manager size %d out of range [1, %d]", core.ErrInvalidConfig, size, MAX_HANDLES))
	}
	hm := &HandleManager{
		slots: make([]uint32, size),
		size:  size,
	}
	for i := uint32(0); i < size; i++ {
		hm.slots[i] = i + 1
	}
	hm.freeHead = 0
	return hm
}

// Size returns the capacity of the allocator.
func (hm *HandleManager) Size() uint32 {
	return hm.size
}

// TryAllocHandle pops a slot from the free list. It returns false when the
// allocator is exhausted.
func (hm *HandleManager) TryAllocHandle() (Handle, bool) {
	if hm.freeHead == hm.size {
		return InvalidHandle, false
	}
	index := hm.freeHead
	entry := hm.slots[index]
	hm.freeHead = entry & HANDLE_INDEX_MASK

	generation := uint8(entry>>HANDLE_INDEX_BITS) + 1
	if index == 0 && generation == 0 {
		// index 0 with generation 0 would encode InvalidHandle
		generation = 1
	}
	hm.slots[index] = uint32(generation)<<HANDLE_INDEX_BITS | slotInUse
	return NewHandle(index, generation), true
}

// AllocHandle allocates a slot and panics with core.ErrOutOfHandles when
// none is left.
func (hm *HandleManager) AllocHandle() Handle {
	h, ok := hm.TryAllocHandle()
	if !ok {
		panic(fmt.Errorf("%w: all %d slots are allocated", core.ErrOutOfHandles, hm.size))
	}
	return h
}

// FreeHandle returns the slot to the free list. The generation is left
// untouched; it is bumped on the next allocation of the slot.
func (hm *HandleManager) FreeHandle(h Handle) {
	if !hm.ValidHandle(h) {
		panic(fmt.Errorf("%w: free of %s", core.ErrInvalidHandle, h))
	}
	index := h.Index()
	hm.slots[index] = hm.slots[index]&^HANDLE_INDEX_MASK | hm.freeHead
	hm.freeHead = index
}

// ValidHandle reports whether h is nonzero, in range, currently allocated and
// carries the live generation of its slot.
func (hm *HandleManager) ValidHandle(h Handle) bool {
	if h == InvalidHandle {
		return false
	}
	index := h.Index()
	if index >= hm.size {
		return false
	}
	entry := hm.slots[index]
	return entry&HANDLE_INDEX_MASK == slotInUse && uint8(entry>>HANDLE_INDEX_BITS) == h.Generation()
}

// IndexFromHandle returns the bare slot index of a valid handle.
func (hm *HandleManager) IndexFromHandle(h Handle) uint32 {
	if !hm.ValidHandle(h) {
		panic(fmt.Errorf("%w: index of %s", core.ErrInvalidHandle, h))
	}
	return h.Index()
}

// FreeCount walks the free list. Meant for diagnostics and tests.
func (hm *HandleManager) FreeCount() uint32 {
	count := uint32(0)
	for next := hm.freeHead; next != hm.size; next = hm.slots[next] & HANDLE_INDEX_MASK {
		count++
	}
	return count
}
