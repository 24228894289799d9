package metadata

/** @brief Pixel formats understood by the descriptor backends. */
type Format uint32

const (
	FormatUnknown Format = iota
	FormatR8G8B8A8Unorm
	FormatR8G8B8A8UnormSrgb
	FormatB8G8R8A8Unorm
	FormatR16G16B16A16Float
	FormatR32G32B32A32Float
	FormatR11G11B10Float
	FormatR32Float
	FormatR16G16Float
	FormatD32Float
	FormatD24UnormS8Uint
	FormatD32FloatS8Uint
)

// IsDepth reports whether the format can back a depth stencil view.
func (f Format) IsDepth() bool {
	switch f {
	case FormatD32Float, FormatD24UnormS8Uint, FormatD32FloatS8Uint:
		return true
	}
	return false
}

// HasStencil reports whether the format carries a stencil aspect.
func (f Format) HasStencil() bool {
	return f == FormatD24UnormS8Uint || f == FormatD32FloatS8Uint
}

func (f Format) String() string {
	switch f {
	case FormatR8G8B8A8Unorm:
		return "R8G8B8A8_UNORM"
	case FormatR8G8B8A8UnormSrgb:
		return "R8G8B8A8_UNORM_SRGB"
	case FormatB8G8R8A8Unorm:
		return "B8G8R8A8_UNORM"
	case FormatR16G16B16A16Float:
		return "R16G16B16A16_FLOAT"
	case FormatR32G32B32A32Float:
		return "R32G32B32A32_FLOAT"
	case FormatR11G11B10Float:
		return "R11G11B10_FLOAT"
	case FormatR32Float:
		return "R32_FLOAT"
	case FormatR16G16Float:
		return "R16G16_FLOAT"
	case FormatD32Float:
		return "D32_FLOAT"
	case FormatD24UnormS8Uint:
		return "D24_UNORM_S8_UINT"
	case FormatD32FloatS8Uint:
		return "D32_FLOAT_S8X24_UINT"
	}
	return "UNKNOWN"
}
