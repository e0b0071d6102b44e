// Package gputime measures GPU time per frame, per command buffer and per
// render pass by injecting timestamp queries through the host's Vulkan hooks.
//
// The host forwards its command-buffer and queue entry points to the On*
// methods of a GPUTime, passing along the device functions each one needs.
// GPUTime never calls a driver by itself. Timestamps are written into a single
// query pool owned for the device's lifetime; at every submission that carries
// a frame-delimiter label the device is drained, results are read back, and
// the durations are added to a rolling window of frame metrics.
//
// Example:
//
//	gt := gputime.New(gputime.WithLogger(logger))
//	if err := gt.OnCreateDevice(device, props.TimestampPeriod, createQueryPool, resetQueryPool); err != nil {
//	    logger.Error("gpu time disabled", zap.Error(err))
//	}
//	...
//	res, err := gt.OnQueueSubmit(submits, hooks)
//	if err == nil && res.ContainsFrameBoundary {
//	    logger.Info(gt.GetStatsString())
//	}
package gputime

import (
	"fmt"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/born-ml/gputime/internal/config"
	"github.com/born-ml/gputime/internal/metrics"
	"github.com/born-ml/gputime/internal/slot"
	"github.com/born-ml/gputime/internal/vk"
)

// GPUTime tracks command buffers and reconciles their timestamps.
//
// Hooks take an internal mutex, so a GPUTime may be driven from several
// goroutines, but the per-buffer ordering the Vulkan API requires is still the
// caller's responsibility.
type GPUTime struct {
	mu sync.Mutex

	log        *zap.Logger
	cfg        config.Config
	retryTimer backoff.Timer

	slots     *slot.Allocator
	metrics   *metrics.FrameMetrics
	queues    map[vk.Queue]struct{}
	cmds      map[vk.CommandBuffer]*commandBufferInfo
	frameCmds []vk.CommandBuffer // submitted since the last boundary, in order, no duplicates

	device          vk.Device
	queryPool       vk.QueryPool
	timestampPeriod float32 // nanoseconds per tick
	frameIndex      uint64
	frameValid      bool
	enabled         bool
}

// New creates a GPUTime with the default configuration.
func New(opts ...Option) *GPUTime {
	g := &GPUTime{
		log: zap.NewNop(),
		cfg: config.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.enabled = g.cfg.Enabled
	g.slots = slot.New()
	g.metrics = metrics.NewFrameMetrics(g.cfg.FrameMetricsLimit)
	g.resetTracking()
	return g
}

func (g *GPUTime) resetTracking() {
	g.slots.Reset()
	g.queues = make(map[vk.Queue]struct{})
	g.cmds = make(map[vk.CommandBuffer]*commandBufferInfo)
	g.frameCmds = nil
	g.frameValid = true
}

// active reports whether recording hooks should do anything.
// Must be called with g.mu held.
func (g *GPUTime) active() bool {
	return g.enabled && g.queryPool != vk.NullHandle
}

// SetEnabled turns instrumentation on or off. While disabled every hook is a
// successful no-op. The query pool is only created by OnCreateDevice, so
// enabling after device creation has no effect until the next device.
func (g *GPUTime) SetEnabled(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = enabled
}

// IsEnabled reports whether instrumentation is on.
func (g *GPUTime) IsEnabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled
}

// Device returns the tracked device, or the null handle.
func (g *GPUTime) Device() vk.Device {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.device
}

// OnCreateDevice starts tracking device: all state is cleared, a timestamp
// query pool of slot.Count queries is created and reset.
func (g *GPUTime) OnCreateDevice(device vk.Device, timestampPeriod float32,
	createQueryPool vk.CreateQueryPoolFunc, resetQueryPool vk.ResetQueryPoolFunc,
) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if device == vk.NullHandle {
		return fmt.Errorf("gputime: OnCreateDevice: %w", ErrInvalidDevice)
	}
	if g.device != vk.NullHandle {
		return fmt.Errorf("gputime: OnCreateDevice %s: %w (%s)", device, ErrDeviceActive, g.device)
	}

	g.resetTracking()
	g.metrics.Reset()
	g.frameIndex = 0
	g.device = device
	g.timestampPeriod = timestampPeriod

	if !g.enabled {
		g.log.Debug("gpu time disabled, no query pool created", zap.Stringer("device", device))
		return nil
	}
	if createQueryPool == nil || resetQueryPool == nil {
		return fmt.Errorf("gputime: OnCreateDevice: %w", ErrNilHook)
	}

	pool, res := createQueryPool(device, &vk.QueryPoolCreateInfo{
		QueryType:  vk.QueryTypeTimestamp,
		QueryCount: slot.Count,
	})
	if res != vk.Success {
		return fmt.Errorf("gputime: %w", &DeviceError{Op: "vkCreateQueryPool", Result: res})
	}
	g.queryPool = pool
	resetQueryPool(device, pool, 0, slot.Count)

	g.log.Debug("query pool created",
		zap.Stringer("device", device),
		zap.Stringer("pool", pool),
		zap.Uint32("queries", slot.Count),
		zap.Float32("timestamp_period_ns", timestampPeriod))
	return nil
}

// OnDestroyDevice waits for every known queue, destroys the query pool and
// releases all tracking state. Collected frame metrics stay readable until
// the next OnCreateDevice.
func (g *GPUTime) OnDestroyDevice(device vk.Device,
	queueWaitIdle vk.QueueWaitIdleFunc, destroyQueryPool vk.DestroyQueryPoolFunc,
) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if device != g.device {
		return fmt.Errorf("gputime: OnDestroyDevice %s: %w (%s)", device, ErrDeviceMismatch, g.device)
	}

	var err error
	if g.queryPool != vk.NullHandle {
		if queueWaitIdle == nil || destroyQueryPool == nil {
			return fmt.Errorf("gputime: OnDestroyDevice: %w", ErrNilHook)
		}
		if len(g.queues) == 0 {
			g.log.Warn("destroying query pool without any known queue to wait on", zap.Stringer("device", device))
		}
		for q := range g.queues {
			if res := queueWaitIdle(q); res != vk.Success {
				err = multierr.Append(err, &DeviceError{Op: "vkQueueWaitIdle", Result: res})
			}
		}
		destroyQueryPool(g.device, g.queryPool)
		g.queryPool = vk.NullHandle
	}

	g.resetTracking()
	g.device = vk.NullHandle
	if err != nil {
		return fmt.Errorf("gputime: OnDestroyDevice: %w", err)
	}
	return nil
}

// OnGetDeviceQueue records a queue to drain at device teardown.
func (g *GPUTime) OnGetDeviceQueue(queue vk.Queue) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if queue != vk.NullHandle {
		g.queues[queue] = struct{}{}
	}
	return nil
}

// OnGetDeviceQueue2 records a queue obtained through vkGetDeviceQueue2.
func (g *GPUTime) OnGetDeviceQueue2(queue vk.Queue) error {
	return g.OnGetDeviceQueue(queue)
}

// ClearFrameCache forgets the command buffers submitted since the last frame
// boundary. Replayers call it once their setup phase is over so that setup
// submissions do not count toward the first frame.
func (g *GPUTime) ClearFrameCache() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.frameCmds = nil
	g.frameValid = true
}

// FrameIndex returns the number of frame boundaries seen since device creation.
func (g *GPUTime) FrameIndex() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.frameIndex
}

// SlotsInUse returns the number of query slots currently claimed.
func (g *GPUTime) SlotsInUse() int {
	return g.slots.InUse()
}

// TrackedCommandBuffers returns the number of command buffers being tracked.
func (g *GPUTime) TrackedCommandBuffers() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.cmds)
}

// GetFrameTimeStats summarises total GPU time per frame, in milliseconds.
func (g *GPUTime) GetFrameTimeStats() metrics.Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.metrics.FrameTimeStats()
}

// GetFrameCmdTimeStats summarises the command buffer at submission position index.
func (g *GPUTime) GetFrameCmdTimeStats(index int) metrics.Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.metrics.CmdTimeStats(index)
}

// GetFrameRenderPassTimeStats summarises the render pass at position index.
func (g *GPUTime) GetFrameRenderPassTimeStats(index int) metrics.Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.metrics.RenderPassTimeStats(index)
}

// GetCmdRenderPassCount returns the render passes recorded by the command
// buffer at position index, or metrics.InvalidCount.
func (g *GPUTime) GetCmdRenderPassCount(index int) uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.metrics.RenderPassCount(index)
}

// FrameCount returns the number of frames in the statistics window.
func (g *GPUTime) FrameCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.metrics.FrameCount()
}

// CmdCount returns the number of command-buffer positions in the window.
func (g *GPUTime) CmdCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.metrics.CmdCount()
}

// RenderPassTotal returns the number of render-pass positions in the window.
func (g *GPUTime) RenderPassTotal() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.metrics.RenderPassTotal()
}

// GetStatsString returns a human-readable summary of the window.
func (g *GPUTime) GetStatsString() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fmt.Sprintf("Frame %d processed successfully.\n%s", g.frameIndex, g.metrics.String())
}

// GetStatsCSVString returns the window as CSV (Type,Id,Mean [ms],Median [ms]).
func (g *GPUTime) GetStatsCSVString() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.metrics.CSV()
}
