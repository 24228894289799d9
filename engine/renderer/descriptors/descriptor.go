package descriptors

import (
	"github.com/spaghettifunk/anima-editor/engine/containers"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

// descriptorModule resolves and owns the slots a Descriptor points at.
type descriptorModule interface {
	IsValid(h containers.Handle) bool
	cpuHandle(h containers.Handle) metadata.CPUDescriptorHandle
	addRef(h containers.Handle)
	// decRef drops one owner and hands the slot back to the module at zero.
	decRef(h containers.Handle)
}

// Descriptor is a reference counted owner of one slot of module M.
//
// A plain Go copy of a Descriptor is not an owner. Ownership moves through
// the explicit methods:
//
//	Clone   shares ownership (count + 1)
//	Take    moves ownership out, leaving the source empty
//	Set     drops the current slot and shares the other one
//	Release drops ownership (count - 1)
//
// The count itself lives in a fixed array inside the module, indexed by
// slot, so a Descriptor is only the module and the handle.
type Descriptor[M descriptorModule] struct {
	module M
	handle containers.Handle
}

// newDescriptor adopts a slot whose count the module already set to one.
func newDescriptor[M descriptorModule](module M, h containers.Handle) Descriptor[M] {
	return Descriptor[M]{module: module, handle: h}
}

// Handle returns the raw slot handle, InvalidHandle for an empty descriptor.
func (d Descriptor[M]) Handle() containers.Handle {
	return d.handle
}

// Valid reports whether the descriptor holds a handle that its module still
// considers live.
func (d Descriptor[M]) Valid() bool {
	return d.handle != containers.InvalidHandle && d.module.IsValid(d.handle)
}

// CPUHandle returns the CPU address of the slot, or the null handle for an
// empty descriptor.
func (d Descriptor[M]) CPUHandle() metadata.CPUDescriptorHandle {
	if d.handle == containers.InvalidHandle {
		return metadata.CPUDescriptorHandle{}
	}
	return d.module.cpuHandle(d.handle)
}

// Clone returns a new owner of the same slot.
func (d Descriptor[M]) Clone() Descriptor[M] {
	if d.handle != containers.InvalidHandle {
		d.module.addRef(d.handle)
	}
	return d
}

// Take moves ownership to the returned value and empties d.
func (d *Descriptor[M]) Take() Descriptor[M] {
	out := *d
	*d = Descriptor[M]{}
	return out
}

// Set makes d an owner of the slot held by other, releasing what d held.
func (d *Descriptor[M]) Set(other Descriptor[M]) {
	adopted := other.Clone()
	d.Release()
	*d = adopted
}

// Release drops ownership. The last owner returns the slot to the module.
// Releasing an empty descriptor does nothing.
func (d *Descriptor[M]) Release() {
	if d.handle == containers.InvalidHandle {
		return
	}
	h := d.handle
	module := d.module
	*d = Descriptor[M]{}
	module.decRef(h)
}
