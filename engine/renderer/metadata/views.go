package metadata

/** @brief How a render target view interprets its resource. */
type RTVDimension uint8

const (
	RTVDimensionTexture2D RTVDimension = iota
	RTVDimensionTexture2DArray
)

/**
 * @brief Render target view parameters. A nil description means a view of
 * mip 0 of the whole resource in the resource format.
 */
type RenderTargetViewDesc struct {
	Format    Format
	Dimension RTVDimension
	MipSlice  uint32
	/** @brief First array slice. For cubes: face index + 6 * cube index. */
	FirstArraySlice uint32
	ArraySize       uint32
}

/** @brief Depth stencil view parameters. */
type DepthStencilViewDesc struct {
	Format          Format
	MipSlice        uint32
	FirstArraySlice uint32
	ArraySize       uint32
	ReadOnlyDepth   bool
}

/** @brief How a shader resource view interprets its resource. */
type SRVDimension uint8

const (
	SRVDimensionTexture2D SRVDimension = iota
	SRVDimensionTexture2DArray
	SRVDimensionTextureCube
	SRVDimensionBuffer
)

/** @brief Shader resource view parameters. */
type ShaderResourceViewDesc struct {
	Format          Format
	Dimension       SRVDimension
	MostDetailedMip uint32
	MipLevels       uint32
	FirstArraySlice uint32
	ArraySize       uint32
}

/** @brief Constant buffer view parameters. */
type ConstantBufferViewDesc struct {
	Buffer      Resource
	Offset      uint64
	SizeInBytes uint32
}

/** @brief Unordered access view parameters. */
type UnorderedAccessViewDesc struct {
	Format          Format
	MipSlice        uint32
	FirstArraySlice uint32
	ArraySize       uint32
}
