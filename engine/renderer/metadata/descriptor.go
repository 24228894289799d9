package metadata

import "fmt"

/** @brief The kind of descriptors a heap stores. */
type DescriptorHeapType uint8

const (
	/** @brief Constant buffer, shader resource and unordered access views. */
	DescriptorHeapTypeCbvSrvUav DescriptorHeapType = iota
	/** @brief Samplers. */
	DescriptorHeapTypeSampler
	/** @brief Render target views. */
	DescriptorHeapTypeRtv
	/** @brief Depth stencil views. */
	DescriptorHeapTypeDsv
	DescriptorHeapTypeCount
)

func (t DescriptorHeapType) String() string {
	switch t {
	case DescriptorHeapTypeCbvSrvUav:
		return "CBV_SRV_UAV"
	case DescriptorHeapTypeSampler:
		return "SAMPLER"
	case DescriptorHeapTypeRtv:
		return "RTV"
	case DescriptorHeapTypeDsv:
		return "DSV"
	}
	return fmt.Sprintf("DescriptorHeapType(%d)", uint8(t))
}

/**
 * @brief Creation parameters of a descriptor heap.
 */
type DescriptorHeapDesc struct {
	/** @brief The kind of descriptors stored in the heap. */
	Type DescriptorHeapType
	/** @brief The number of descriptors the heap can hold. */
	NumDescriptors uint32
	/** @brief Whether shaders read the heap directly during GPU execution. */
	ShaderVisible bool
	/** @brief Debug name of the heap. */
	Name string
}

/** @brief A CPU address of a descriptor. The zero value addresses nothing. */
type CPUDescriptorHandle struct {
	Ptr uint64
}

/** @brief A GPU address of a descriptor. The zero value addresses nothing. */
type GPUDescriptorHandle struct {
	Ptr uint64
}

func (h CPUDescriptorHandle) IsNull() bool { return h.Ptr == 0 }

func (h GPUDescriptorHandle) IsNull() bool { return h.Ptr == 0 }

// Offset returns the handle moved by count descriptors of the given stride.
func (h CPUDescriptorHandle) Offset(count, stride uint32) CPUDescriptorHandle {
	return CPUDescriptorHandle{Ptr: h.Ptr + uint64(count)*uint64(stride)}
}

// Offset returns the handle moved by count descriptors of the given stride.
func (h GPUDescriptorHandle) Offset(count, stride uint32) GPUDescriptorHandle {
	return GPUDescriptorHandle{Ptr: h.Ptr + uint64(count)*uint64(stride)}
}

/**
 * @brief Frame numbers handed to per-frame housekeeping. Frame is the frame
 * about to be recorded, CompletedFrame the newest frame the GPU has retired.
 */
type FrameInfo struct {
	Frame          uint64
	CompletedFrame uint64
}
