package vulkan

import (
	"context"
	"fmt"
	"time"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/anima-editor/engine/core"
)

// fenceWaitSlice bounds one vkWaitForFences call so that a cancelled context
// is noticed while the GPU is busy.
const fenceWaitSlice = 50 * time.Millisecond

type VulkanFence struct {
	Handle vk.Fence
	/** @brief Frame number the fence was last submitted for, 0 when idle. */
	Frame uint64
}

// VulkanFrameFence is a timeline built from one fence per frame in flight.
// Frame n uses fence n % count; every signal is an empty submission on the
// graphics queue, which completes after all work submitted before it.
type VulkanFrameFence struct {
	context   *VulkanContext
	fences    []VulkanFence
	submitted uint64
	completed uint64
}

func NewFrameFence(context *VulkanContext, framesInFlight uint32) (*VulkanFrameFence, error) {
	if framesInFlight == 0 {
		return nil, fmt.Errorf("%w: frame fence without frames in flight", core.ErrInvalidConfig)
	}
	ff := &VulkanFrameFence{
		context: context,
		fences:  make([]VulkanFence, framesInFlight),
	}
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	for i := range ff.fences {
		var fence vk.Fence
		if res := vk.CreateFence(context.Device.LogicalDevice, &fenceCreateInfo, context.Allocator, &fence); res != vk.Success {
			ff.Release()
			err := resultError("vkCreateFence", res)
			core.LogError(err.Error())
			return nil, err
		}
		ff.fences[i].Handle = fence
	}
	return ff, nil
}

// Signal submits the fence of frame. The fence slot must have retired.
func (ff *VulkanFrameFence) Signal(frame uint64) error {
	if frame <= ff.submitted {
		return fmt.Errorf("%w: signal of frame %d after frame %d", core.ErrFrameOrdering, frame, ff.submitted)
	}
	slot := &ff.fences[frame%uint64(len(ff.fences))]
	if slot.Frame != 0 && slot.Frame > ff.Completed() {
		return fmt.Errorf("%w: fence of frame %d still in flight", core.ErrFrameOrdering, slot.Frame)
	}
	logical := ff.context.Device.LogicalDevice
	if res := vk.ResetFences(logical, 1, []vk.Fence{slot.Handle}); res != vk.Success {
		return resultError("vkResetFences", res)
	}
	submitInfo := vk.SubmitInfo{
		SType: vk.StructureTypeSubmitInfo,
	}
	if res := vk.QueueSubmit(ff.context.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, slot.Handle); res != vk.Success {
		return resultError("vkQueueSubmit", res)
	}
	slot.Frame = frame
	ff.submitted = frame
	return nil
}

// Wait blocks until frame has retired or ctx is done.
func (ff *VulkanFrameFence) Wait(ctx context.Context, frame uint64) error {
	if frame <= ff.completed {
		return nil
	}
	if frame > ff.submitted {
		return fmt.Errorf("%w: wait on frame %d, last submitted %d", core.ErrFrameOrdering, frame, ff.submitted)
	}
	slot := &ff.fences[frame%uint64(len(ff.fences))]
	if slot.Frame != frame {
		return fmt.Errorf("%w: fence of frame %d was reused by frame %d", core.ErrFrameOrdering, frame, slot.Frame)
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		result := vk.WaitForFences(ff.context.Device.LogicalDevice, 1, []vk.Fence{slot.Handle}, vk.True, uint64(fenceWaitSlice.Nanoseconds()))
		switch result {
		case vk.Success:
			ff.completed = frame
			return nil
		case vk.Timeout:
			continue
		default:
			err := resultError("vkWaitForFences", result)
			core.LogError(err.Error())
			return err
		}
	}
}

// Completed polls the fences of the frames in flight, oldest first, and
// returns the newest retired frame.
func (ff *VulkanFrameFence) Completed() uint64 {
	for frame := ff.completed + 1; frame <= ff.submitted; frame++ {
		slot := &ff.fences[frame%uint64(len(ff.fences))]
		if slot.Frame != frame || vk.GetFenceStatus(ff.context.Device.LogicalDevice, slot.Handle) != vk.Success {
			break
		}
		ff.completed = frame
	}
	return ff.completed
}

// Release waits for the queue and destroys every fence.
func (ff *VulkanFrameFence) Release() {
	if ff.context.Device.GraphicsQueue != nil {
		vk.QueueWaitIdle(ff.context.Device.GraphicsQueue)
	}
	for i := range ff.fences {
		if ff.fences[i].Handle != nil {
			vk.DestroyFence(ff.context.Device.LogicalDevice, ff.fences[i].Handle, ff.context.Allocator)
			ff.fences[i].Handle = nil
		}
		ff.fences[i].Frame = 0
	}
}
