package software

import (
	"fmt"

	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

// Resource is a texture or buffer with no backing memory.
type Resource struct {
	desc metadata.ResourceDesc
}

func (r *Resource) Desc() metadata.ResourceDesc {
	return r.desc
}

// CreateTexture validates desc and returns a texture resource. Cube textures
// need a multiple of 6 array slices.
func (d *Device) CreateTexture(desc metadata.ResourceDesc) (*Resource, error) {
	if desc.Dimension == metadata.ResourceDimensionBuffer {
		return nil, fmt.Errorf("%w: texture %q with buffer dimension", core.ErrInvalidConfig, desc.Name)
	}
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("%w: texture %q is %dx%d", core.ErrInvalidConfig, desc.Name, desc.Width, desc.Height)
	}
	if desc.Format == metadata.FormatUnknown {
		return nil, fmt.Errorf("%w: texture %q has no format", core.ErrInvalidConfig, desc.Name)
	}
	if desc.DepthOrArraySize == 0 {
		desc.DepthOrArraySize = 1
	}
	if desc.MipLevels == 0 {
		desc.MipLevels = 1
	}
	if desc.IsCube() && desc.DepthOrArraySize%6 != 0 {
		return nil, fmt.Errorf("%w: cube texture %q with %d slices", core.ErrInvalidConfig, desc.Name, desc.DepthOrArraySize)
	}
	return &Resource{desc: desc}, nil
}

// CreateBuffer returns a buffer resource of size bytes.
func (d *Device) CreateBuffer(size uint64, name string) (*Resource, error) {
	if size == 0 {
		return nil, fmt.Errorf("%w: empty buffer %q", core.ErrInvalidConfig, name)
	}
	return &Resource{desc: metadata.ResourceDesc{
		Dimension:        metadata.ResourceDimensionBuffer,
		Width:            size,
		Height:           1,
		DepthOrArraySize: 1,
		MipLevels:        1,
		Name:             name,
	}}, nil
}
