package software

import (
	"context"
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-editor/engine/core"
)

// Fence is a GPU timeline emulated on the CPU. A frame signalled with
// Signal retires on its own once latency newer frames have been signalled,
// or immediately when waited on.
type Fence struct {
	mu        sync.Mutex
	latency   uint64
	submitted uint64
	completed uint64
}

func NewFence(latency uint64) *Fence {
	return &Fence{latency: latency}
}

// Signal marks frame as submitted. Frames must be signalled in order.
func (f *Fence) Signal(frame uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if frame <= f.submitted {
		return fmt.Errorf("%w: signal of frame %d after frame %d", core.ErrFrameOrdering, frame, f.submitted)
	}
	f.submitted = frame
	if frame > f.latency && frame-f.latency > f.completed {
		f.completed = frame - f.latency
	}
	return nil
}

// Wait blocks until frame has retired. Waiting on a frame never submitted is
// an error.
func (f *Fence) Wait(ctx context.Context, frame uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if frame > f.submitted {
		return fmt.Errorf("%w: wait on frame %d, last submitted %d", core.ErrFrameOrdering, frame, f.submitted)
	}
	if frame > f.completed {
		f.completed = frame
	}
	return nil
}

// Completed returns the newest retired frame.
func (f *Fence) Completed() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

func (f *Fence) Release() {}
