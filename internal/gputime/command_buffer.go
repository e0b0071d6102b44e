package gputime

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/born-ml/gputime/internal/slot"
	"github.com/born-ml/gputime/internal/vk"
)

// commandBufferInfo is the instrumentation state of one primary command buffer.
type commandBufferInfo struct {
	pool      vk.CommandPool
	beginSlot uint32 // top-of-pipe timestamp, reserved until free
	endSlot   uint32 // bottom-of-pipe timestamp, reserved until free

	// renderPassSlots holds begin/end pairs in recording order.
	// Even length outside of a render pass.
	renderPassSlots []uint32

	isFrameBoundary bool
	usageOneSubmit  bool
	reusable        bool
}

func (c *commandBufferInfo) resetFlags() {
	c.isFrameBoundary = false
	c.usageOneSubmit = false
	c.reusable = false
}

// releaseRenderPasses returns the render-pass slots to the allocator.
// Must be called with g.mu held.
func (g *GPUTime) releaseRenderPasses(info *commandBufferInfo) {
	if len(info.renderPassSlots) == 0 {
		return
	}
	g.slots.Free(info.renderPassSlots...)
	info.renderPassSlots = info.renderPassSlots[:0]
}

// resetCommandBuffer returns a buffer to the Allocated state.
// Must be called with g.mu held.
func (g *GPUTime) resetCommandBuffer(info *commandBufferInfo) {
	g.releaseRenderPasses(info)
	info.resetFlags()
}

// releaseCommandBuffer frees every slot of cb and forgets it.
// Must be called with g.mu held.
func (g *GPUTime) releaseCommandBuffer(cb vk.CommandBuffer, info *commandBufferInfo) {
	g.resetCommandBuffer(info)
	g.slots.Free(info.beginSlot, info.endSlot)
	delete(g.cmds, cb)

	// A buffer freed before the boundary drops out of the frame; the rest of
	// the frame is still reconciled.
	if i := slices.Index(g.frameCmds, cb); i >= 0 {
		g.frameCmds = slices.Delete(g.frameCmds, i, i+1)
		g.log.Debug("submitted command buffer released before the frame boundary",
			zap.Stringer("cmd", cb), zap.Uint64("frame", g.frameIndex))
	}
}

// invalidateFrame drops the running frame's statistics.
// Must be called with g.mu held.
func (g *GPUTime) invalidateFrame(reason string, fields ...zap.Field) {
	if g.frameValid {
		g.log.Warn("frame invalidated: "+reason, append(fields, zap.Uint64("frame", g.frameIndex))...)
	}
	g.frameValid = false
}

// OnAllocateCommandBuffers starts tracking the primary buffers of a
// vkAllocateCommandBuffers call and reserves their begin/end slots.
//
// Secondary buffers are not tracked. The call fails as a whole, leaving no
// trace, if a handle is already tracked or the query pool runs out of slots.
func (g *GPUTime) OnAllocateCommandBuffers(info vk.CommandBufferAllocateInfo, buffers []vk.CommandBuffer) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.active() || info.Level != vk.CommandBufferLevelPrimary {
		return nil
	}
	if int(info.CommandBufferCount) > len(buffers) {
		return fmt.Errorf("gputime: OnAllocateCommandBuffers: count %d exceeds %d handles",
			info.CommandBufferCount, len(buffers))
	}
	buffers = buffers[:info.CommandBufferCount]

	for i, cb := range buffers {
		if cb == vk.NullHandle {
			continue
		}
		if _, ok := g.cmds[cb]; ok || slices.Contains(buffers[:i], cb) {
			return fmt.Errorf("gputime: OnAllocateCommandBuffers %s: %w", cb, ErrAlreadyTracked)
		}
	}

	claimed := make([]uint32, 0, 2*len(buffers))
	added := make(map[vk.CommandBuffer]*commandBufferInfo, len(buffers))
	for _, cb := range buffers {
		if cb == vk.NullHandle {
			continue
		}
		begin := g.slots.Allocate()
		end := g.slots.Allocate()
		if begin == slot.Invalid || end == slot.Invalid {
			claimed = append(claimed, begin, end)
			g.slots.Free(claimed...)
			return fmt.Errorf("gputime: OnAllocateCommandBuffers %s: %w (%d in use)",
				cb, ErrSlotsExhausted, g.slots.InUse())
		}
		claimed = append(claimed, begin, end)
		added[cb] = &commandBufferInfo{pool: info.CommandPool, beginSlot: begin, endSlot: end}
	}

	for cb, ci := range added {
		g.cmds[cb] = ci
		g.log.Debug("command buffer tracked",
			zap.Stringer("cmd", cb),
			zap.Stringer("pool", ci.pool),
			zap.Uint32("begin_slot", ci.beginSlot),
			zap.Uint32("end_slot", ci.endSlot))
	}
	return nil
}

// OnFreeCommandBuffers releases the slots of freed buffers and stops tracking
// them. Null handles are skipped. Every other handle must be tracked, or
// nothing is freed.
func (g *GPUTime) OnFreeCommandBuffers(buffers []vk.CommandBuffer) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.active() {
		return nil
	}
	for i, cb := range buffers {
		if cb == vk.NullHandle {
			continue
		}
		if _, ok := g.cmds[cb]; !ok || slices.Contains(buffers[:i], cb) {
			return fmt.Errorf("gputime: OnFreeCommandBuffers %s: %w", cb, ErrNotTracked)
		}
	}
	for _, cb := range buffers {
		if info, ok := g.cmds[cb]; ok {
			g.releaseCommandBuffer(cb, info)
		}
	}
	return nil
}

// OnResetCommandBuffer releases the render-pass slots of cb and clears its
// flags. Untracked handles are ignored.
func (g *GPUTime) OnResetCommandBuffer(cb vk.CommandBuffer) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.active() {
		return nil
	}
	if info, ok := g.cmds[cb]; ok {
		g.resetCommandBuffer(info)
	}
	return nil
}

// OnResetCommandPool resets every tracked buffer allocated from pool.
func (g *GPUTime) OnResetCommandPool(pool vk.CommandPool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.active() {
		return nil
	}
	for _, info := range g.cmds {
		if info.pool == pool {
			g.resetCommandBuffer(info)
		}
	}
	return nil
}

// OnDestroyCommandPool stops tracking every buffer allocated from pool.
// A null pool is a no-op.
func (g *GPUTime) OnDestroyCommandPool(pool vk.CommandPool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.active() || pool == vk.NullHandle {
		return nil
	}
	n := 0
	for cb, info := range g.cmds {
		if info.pool == pool {
			g.releaseCommandBuffer(cb, info)
			n++
		}
	}
	if n > 0 {
		g.log.Debug("command pool destroyed", zap.Stringer("pool", pool), zap.Int("released", n))
	}
	return nil
}

// OnBeginCommandBuffer writes the top-of-pipe timestamp of cb.
//
// Render-pass slots left over from a previous recording are released, and a
// one-time-submit buffer being re-recorded loses its frame-boundary mark.
// Untracked handles are ignored.
func (g *GPUTime) OnBeginCommandBuffer(cb vk.CommandBuffer, flags vk.CommandBufferUsageFlags,
	write vk.CmdWriteTimestampFunc,
) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.active() {
		return nil
	}
	info, ok := g.cmds[cb]
	if !ok {
		return nil
	}
	if write == nil {
		return fmt.Errorf("gputime: OnBeginCommandBuffer %s: %w", cb, ErrNilHook)
	}

	g.releaseRenderPasses(info)
	if info.usageOneSubmit {
		info.resetFlags()
	}
	info.usageOneSubmit = flags&vk.CommandBufferUsageOneTimeSubmit != 0
	info.reusable = flags&vk.CommandBufferUsageSimultaneousUse != 0

	write(cb, vk.PipelineStageTopOfPipe, g.queryPool, info.beginSlot)
	return nil
}

// OnEndCommandBuffer writes the bottom-of-pipe timestamp of cb.
// Untracked handles are ignored.
func (g *GPUTime) OnEndCommandBuffer(cb vk.CommandBuffer, write vk.CmdWriteTimestampFunc) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.active() {
		return nil
	}
	info, ok := g.cmds[cb]
	if !ok {
		return nil
	}
	if write == nil {
		return fmt.Errorf("gputime: OnEndCommandBuffer %s: %w", cb, ErrNilHook)
	}

	write(cb, vk.PipelineStageBottomOfPipe, g.queryPool, info.endSlot)
	return nil
}

// OnCmdBeginRenderPass writes a top-of-pipe timestamp at the start of a
// render pass.
func (g *GPUTime) OnCmdBeginRenderPass(cb vk.CommandBuffer, _ *vk.RenderPassBeginInfo,
	_ vk.SubpassContents, write vk.CmdWriteTimestampFunc,
) error {
	return g.renderPassTimestamp("OnCmdBeginRenderPass", cb, true, write)
}

// OnCmdBeginRenderPass2 is OnCmdBeginRenderPass for vkCmdBeginRenderPass2.
func (g *GPUTime) OnCmdBeginRenderPass2(cb vk.CommandBuffer, _ *vk.RenderPassBeginInfo,
	_ *vk.SubpassBeginInfo, write vk.CmdWriteTimestampFunc,
) error {
	return g.renderPassTimestamp("OnCmdBeginRenderPass2", cb, true, write)
}

// OnCmdEndRenderPass writes a bottom-of-pipe timestamp at the end of a
// render pass.
func (g *GPUTime) OnCmdEndRenderPass(cb vk.CommandBuffer, write vk.CmdWriteTimestampFunc) error {
	return g.renderPassTimestamp("OnCmdEndRenderPass", cb, false, write)
}

// OnCmdEndRenderPass2 is OnCmdEndRenderPass for vkCmdEndRenderPass2.
func (g *GPUTime) OnCmdEndRenderPass2(cb vk.CommandBuffer, _ *vk.SubpassEndInfo,
	write vk.CmdWriteTimestampFunc,
) error {
	return g.renderPassTimestamp("OnCmdEndRenderPass2", cb, false, write)
}

func (g *GPUTime) renderPassTimestamp(op string, cb vk.CommandBuffer, begin bool, write vk.CmdWriteTimestampFunc) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.active() {
		return nil
	}
	info, ok := g.cmds[cb]
	if !ok {
		return nil
	}
	if write == nil {
		return fmt.Errorf("gputime: %s %s: %w", op, cb, ErrNilHook)
	}
	// Begin needs an even list, end an odd one.
	if inPass := len(info.renderPassSlots)%2 == 1; inPass == begin {
		return fmt.Errorf("gputime: %s %s: %w", op, cb, ErrRenderPassOrder)
	}

	s := g.slots.Allocate()
	if s == slot.Invalid {
		g.invalidateFrame("render pass slot unavailable", zap.Stringer("cmd", cb))
		return fmt.Errorf("gputime: %s %s: %w", op, cb, ErrSlotsExhausted)
	}
	info.renderPassSlots = append(info.renderPassSlots, s)

	stage := vk.PipelineStageBottomOfPipe
	if begin {
		stage = vk.PipelineStageTopOfPipe
	}
	write(cb, stage, g.queryPool, s)
	return nil
}

// OnCmdInsertDebugUtilsLabelEXT marks cb as the last command buffer of a frame
// when the label equals the configured frame delimiter.
func (g *GPUTime) OnCmdInsertDebugUtilsLabelEXT(cb vk.CommandBuffer, label *vk.DebugUtilsLabel) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.active() {
		return nil
	}
	if label == nil {
		return fmt.Errorf("gputime: OnCmdInsertDebugUtilsLabelEXT %s: %w", cb, ErrNilLabel)
	}
	if label.LabelName != g.cfg.FrameDelimiter {
		return nil
	}
	info, ok := g.cmds[cb]
	if !ok {
		return fmt.Errorf("gputime: OnCmdInsertDebugUtilsLabelEXT %s: %w", cb, ErrNotTracked)
	}
	info.isFrameBoundary = true
	return nil
}
