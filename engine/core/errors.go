package core

import (
	"errors"
)

var (
	// ErrOutOfHandles is raised when a slot allocator has no free index left.
	// Heap sizes are fixed at init, so this is a programming error.
	ErrOutOfHandles = errors.New("out of handles")
	// ErrInvalidHandle is raised on double free, stale or foreign handles.
	ErrInvalidHandle = errors.New("invalid handle")
	// ErrHeapCreationFailed is returned when the device refuses to create a descriptor heap.
	ErrHeapCreationFailed = errors.New("descriptor heap creation failed")
	// ErrViewCreationFailed is returned when the device fails to write a view.
	ErrViewCreationFailed = errors.New("descriptor view creation failed")
	// ErrDescriptorLeak is returned on shutdown when descriptors are still owned.
	ErrDescriptorLeak = errors.New("descriptors leaked")
	ErrInvalidConfig  = errors.New("invalid configuration")
	// ErrFrameOrdering is returned when a reclamation sweep would run ahead of GPU completion.
	ErrFrameOrdering = errors.New("frame ordering violated")
)
