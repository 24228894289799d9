package renderer

import (
	"context"
	"fmt"

	"github.com/spaghettifunk/anima-editor/engine/core"
	"github.com/spaghettifunk/anima-editor/engine/renderer/descriptors"
	"github.com/spaghettifunk/anima-editor/engine/renderer/metadata"
)

// FrameModule is run at the start of every frame, after the wait on the
// oldest frame in flight.
type FrameModule interface {
	PreRender(info metadata.FrameInfo) error
}

// FrameLoop orders the frame timeline. Frame 1 is the setup frame: anything
// allocated or released before the first Begin belongs to it. Recorded frames
// start at 2.
type FrameLoop struct {
	fence          Fence
	framesInFlight uint64
	frame          uint64
	recording      bool
	modules        []FrameModule
}

// NewFrameLoop fails when framesInFlight is zero or larger than the
// descriptor frame delay, since released tables could then be recycled while
// a frame still reads them.
func NewFrameLoop(fence Fence, framesInFlight uint32) (*FrameLoop, error) {
	if framesInFlight == 0 || framesInFlight > descriptors.FRAME_DELAY {
		return nil, fmt.Errorf("%w: %d frames in flight, must be in [1, %d]", core.ErrInvalidConfig, framesInFlight, descriptors.FRAME_DELAY)
	}
	return &FrameLoop{
		fence:          fence,
		framesInFlight: uint64(framesInFlight),
		frame:          1,
	}, nil
}

// Register adds m to the modules run by Begin, in registration order.
func (fl *FrameLoop) Register(m FrameModule) {
	fl.modules = append(fl.modules, m)
}

// Begin waits for the frame that last used this frame's resources, then runs
// every module before any allocation of the new frame can happen.
func (fl *FrameLoop) Begin(ctx context.Context) (metadata.FrameInfo, error) {
	if fl.recording {
		return metadata.FrameInfo{}, fmt.Errorf("%w: begin of a frame while frame %d is recording", core.ErrFrameOrdering, fl.frame)
	}
	next := fl.frame + 1
	if next > fl.framesInFlight+1 {
		if err := fl.fence.Wait(ctx, next-fl.framesInFlight); err != nil {
			return metadata.FrameInfo{}, err
		}
	}
	info := metadata.FrameInfo{Frame: next, CompletedFrame: fl.fence.Completed()}
	for _, m := range fl.modules {
		if err := m.PreRender(info); err != nil {
			return metadata.FrameInfo{}, err
		}
	}
	fl.frame = next
	fl.recording = true
	return info, nil
}

// End submits the recording frame.
func (fl *FrameLoop) End() error {
	if !fl.recording {
		return fmt.Errorf("%w: end without a recording frame", core.ErrFrameOrdering)
	}
	if err := fl.fence.Signal(fl.frame); err != nil {
		return err
	}
	fl.recording = false
	return nil
}

// Drain waits for the last submitted frame.
func (fl *FrameLoop) Drain(ctx context.Context) error {
	last := fl.frame
	if fl.recording {
		last--
	}
	if last < 2 {
		return nil
	}
	return fl.fence.Wait(ctx, last)
}

// Frame returns the frame being recorded, or the last submitted one.
func (fl *FrameLoop) Frame() uint64 {
	return fl.frame
}

func (fl *FrameLoop) Recording() bool {
	return fl.recording
}
