package gputime

import (
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/born-ml/gputime/internal/slot"
	"github.com/born-ml/gputime/internal/vk"
)

// SubmitHooks are the device entry points OnQueueSubmit may need at a frame
// boundary.
type SubmitHooks struct {
	DeviceWaitIdle      vk.DeviceWaitIdleFunc
	ResetQueryPool      vk.ResetQueryPoolFunc
	GetQueryPoolResults vk.GetQueryPoolResultsFunc
}

// SubmitResult describes what OnQueueSubmit observed.
type SubmitResult struct {
	// ContainsFrameBoundary is set when a submitted buffer carried the frame
	// delimiter label and the frame was closed.
	ContainsFrameBoundary bool
	// Sampled is set when the closed frame was added to the metrics window.
	// A boundary without Sampled is a dropped frame.
	Sampled bool
	// FrameIndex is the number of frames closed so far, this one included.
	FrameIndex uint64
}

// OnQueueSubmit records the submitted buffers into the running frame and, if
// one of them is a frame boundary, drains the device and reconciles the
// frame's timestamps into the metrics window.
//
// Untracked or simultaneous-use buffers fail the call before anything is
// recorded. A frame invalidated before its boundary is closed without error
// but with Sampled unset. At a boundary the frame counter, frame list, query pool and frame
// validity are always reset, even when reconciliation fails; that failure is
// returned afterwards.
func (g *GPUTime) OnQueueSubmit(submits []vk.SubmitInfo, hooks SubmitHooks) (SubmitResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.active() {
		return SubmitResult{}, nil
	}

	boundary := false
	for _, submit := range submits {
		for _, cb := range submit.CommandBuffers {
			info, ok := g.cmds[cb]
			if !ok {
				return SubmitResult{}, fmt.Errorf("gputime: OnQueueSubmit %s: %w", cb, ErrNotTracked)
			}
			if info.reusable {
				return SubmitResult{}, fmt.Errorf("gputime: OnQueueSubmit %s: %w", cb, ErrReusableUnsupported)
			}
			boundary = boundary || info.isFrameBoundary
		}
	}
	if boundary && (hooks.DeviceWaitIdle == nil || hooks.ResetQueryPool == nil || hooks.GetQueryPoolResults == nil) {
		return SubmitResult{}, fmt.Errorf("gputime: OnQueueSubmit: %w", ErrNilHook)
	}

	for _, submit := range submits {
		for _, cb := range submit.CommandBuffers {
			if !lo.Contains(g.frameCmds, cb) {
				g.frameCmds = append(g.frameCmds, cb)
			}
		}
	}
	if !boundary {
		return SubmitResult{FrameIndex: g.frameIndex}, nil
	}

	var err error
	sampled := false
	if res := hooks.DeviceWaitIdle(g.device); res != vk.Success {
		g.invalidateFrame("device wait failed", zap.Stringer("result", res))
		err = &DeviceError{Op: "vkDeviceWaitIdle", Result: res}
	}
	if g.frameValid {
		if uerr := g.updateFrameMetrics(hooks.GetQueryPoolResults); uerr != nil {
			err = multierr.Append(err, uerr)
		} else {
			sampled = true
		}
	} else {
		g.log.Debug("skipping invalid frame", zap.Uint64("frame", g.frameIndex))
	}

	g.frameIndex++
	g.frameCmds = g.frameCmds[:0]
	hooks.ResetQueryPool(g.device, g.queryPool, 0, slot.Count)
	g.frameValid = true

	result := SubmitResult{ContainsFrameBoundary: true, Sampled: sampled, FrameIndex: g.frameIndex}
	if err != nil {
		return result, fmt.Errorf("gputime: OnQueueSubmit: frame %d: %w", g.frameIndex-1, err)
	}
	if sampled {
		g.log.Debug("frame reconciled",
			zap.Uint64("frame", g.frameIndex-1),
			zap.Int("frames_sampled", g.metrics.FrameCount()),
			zap.Int("slots_in_use", g.slots.InUse()))
	}
	return result, nil
}
