package renderer

import (
	"fmt"

	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer/descriptors"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

const CUBE_FACES uint32 = 6

// CubemapTargets holds one render target view per face and mip of a cube,
// as used when baking environment maps.
type CubemapTargets struct {
	cube    metadata.Resource
	mips    uint32
	targets []descriptors.RTDescriptor
}

// NewCubemapTargets creates the views of the cube at cubeIndex in cube, with
// format overriding the resource format (for example an sRGB view of a UNORM
// cube). Either every view is created or none is.
func NewCubemapTargets(rt *descriptors.ModuleRTDescriptors, cube metadata.Resource, cubeIndex uint32, format metadata.Format) (*CubemapTargets, error) {
	desc := cube.Desc()
	if !desc.IsCube() {
		return nil, fmt.Errorf("%w: %q is not a cube texture", core.ErrInvalidConfig, desc.Name)
	}
	if (cubeIndex+1)*CUBE_FACES > uint32(desc.DepthOrArraySize) {
		return nil, fmt.Errorf("%w: cube %d of %q with %d slices", core.ErrInvalidConfig, cubeIndex, desc.Name, desc.DepthOrArraySize)
	}
	if format == metadata.FormatUnknown {
		format = desc.Format
	}
	mips := uint32(max(desc.MipLevels, 1))

	ct := &CubemapTargets{
		cube:    cube,
		mips:    mips,
		targets: make([]descriptors.RTDescriptor, 0, CUBE_FACES*mips),
	}
	for face := uint32(0); face < CUBE_FACES; face++ {
		for mip := uint32(0); mip < mips; mip++ {
			target := rt.CreateSlice(cube, cubeIndex*CUBE_FACES+face, mip, format)
			if !target.Valid() {
				ct.Release()
				return nil, fmt.Errorf("%w: face %d mip %d of %q", core.ErrViewCreationFailed, face, mip, desc.Name)
			}
			ct.targets = append(ct.targets, target)
		}
	}
	return ct, nil
}

func (ct *CubemapTargets) Mips() uint32 {
	return ct.mips
}

func (ct *CubemapTargets) Cube() metadata.Resource {
	return ct.cube
}

// Target returns the view of face and mip. The result is borrowed, Clone it
// to keep it past Release.
func (ct *CubemapTargets) Target(face, mip uint32) descriptors.RTDescriptor {
	if face >= CUBE_FACES || mip >= ct.mips || len(ct.targets) == 0 {
		return descriptors.RTDescriptor{}
	}
	return ct.targets[face*ct.mips+mip]
}

func (ct *CubemapTargets) Release() {
	for i := range ct.targets {
		ct.targets[i].Release()
	}
	ct.targets = ct.targets[:0]
}
