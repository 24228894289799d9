package metadata

/** @brief The shape of a GPU resource. */
type ResourceDimension uint8

const (
	ResourceDimensionBuffer ResourceDimension = iota
	ResourceDimensionTexture2D
	ResourceDimensionTexture2DArray
	ResourceDimensionTextureCube
)

/** @brief Usage flags a resource was created with. */
type ResourceFlags uint8

const (
	ResourceFlagNone              ResourceFlags = 0
	ResourceFlagAllowRenderTarget ResourceFlags = 1 << iota
	ResourceFlagAllowDepthStencil
	ResourceFlagAllowUnorderedAccess
)

/**
 * @brief Describes a GPU resource.
 */
type ResourceDesc struct {
	Dimension ResourceDimension
	/** @brief The width in texels, or the size in bytes for buffers. */
	Width  uint64
	Height uint32
	/** @brief Array layers. Cube textures use 6 per cube. */
	DepthOrArraySize uint16
	MipLevels        uint16
	Format           Format
	Flags            ResourceFlags
	/** @brief Debug name of the resource. */
	Name string
}

// IsCube reports whether the resource is a cube texture.
func (d ResourceDesc) IsCube() bool {
	return d.Dimension == ResourceDimensionTextureCube
}

/**
 * @brief A GPU resource owned by a backend. Descriptor modules only create
 * views into resources, they never own them.
 */
type Resource interface {
	Desc() ResourceDesc
}
