package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

func vulkanFormat(format metadata.Format) vk.Format {
	switch format {
	case metadata.FormatR8G8B8A8Unorm:
		return vk.FormatR8g8b8a8Unorm
	case metadata.FormatR8G8B8A8UnormSrgb:
		return vk.FormatR8g8b8a8Srgb
	case metadata.FormatB8G8R8A8Unorm:
		return vk.FormatB8g8r8a8Unorm
	case metadata.FormatR16G16B16A16Float:
		return vk.FormatR16g16b16a16Sfloat
	case metadata.FormatR32G32B32A32Float:
		return vk.FormatR32g32b32a32Sfloat
	case metadata.FormatR11G11B10Float:
		return vk.FormatB10g11r11UfloatPack32
	case metadata.FormatR32Float:
		return vk.FormatR32Sfloat
	case metadata.FormatR16G16Float:
		return vk.FormatR16g16Sfloat
	case metadata.FormatD32Float:
		return vk.FormatD32Sfloat
	case metadata.FormatD24UnormS8Uint:
		return vk.FormatD24UnormS8Uint
	case metadata.FormatD32FloatS8Uint:
		return vk.FormatD32SfloatS8Uint
	}
	return vk.FormatUndefined
}

func aspectMask(format metadata.Format) vk.ImageAspectFlags {
	switch {
	case format.HasStencil():
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit | vk.ImageAspectStencilBit)
	case format.IsDepth():
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}
