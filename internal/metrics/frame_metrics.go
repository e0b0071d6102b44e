// Package metrics keeps the rolling window of per-frame GPU durations and
// computes summary statistics over it.
//
// Series are positional: command buffer i is the i-th buffer submitted in a
// frame, render pass j is the j-th render pass across the frame's buffers in
// submission order. Positions only line up between frames of the same shape,
// so a shape change starts the window over.
package metrics

import (
	"slices"
)

// DefaultLimit is the number of frames kept in the window.
const DefaultLimit = 1000

// InvalidCount is returned by RenderPassCount for an out-of-range position.
const InvalidCount = ^uint32(0)

// FrameMetrics is a bounded history of frame samples.
// It is not safe for concurrent use.
type FrameMetrics struct {
	limit int

	frameTimes       []float64
	cmdTimes         [][]float64 // [cmd position][frame]
	renderPassTimes  [][]float64 // [render pass position][frame]
	renderPassCounts []uint32    // render passes per cmd position, current shape
}

// NewFrameMetrics creates an empty window holding at most limit frames.
// A non-positive limit selects DefaultLimit.
func NewFrameMetrics(limit int) *FrameMetrics {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &FrameMetrics{limit: limit}
}

// Limit returns the window capacity.
func (m *FrameMetrics) Limit() int { return m.limit }

// AddFrameData appends one frame sample.
//
// If the number of command-buffer or render-pass entries differs from the
// shape currently stored, every series (including frame times) is discarded
// and the window restarts with the new shape. When the window is full the
// oldest sample is evicted from every series.
func (m *FrameMetrics) AddFrameData(frameTime float64, cmdTimes, renderPassTimes []float64, renderPassCounts []uint32) {
	if len(cmdTimes) != len(m.cmdTimes) || len(renderPassTimes) != len(m.renderPassTimes) {
		m.rebuild(len(cmdTimes), len(renderPassTimes))
	}
	m.renderPassCounts = slices.Clone(renderPassCounts)

	if len(m.frameTimes) >= m.limit {
		m.evictOldest()
	}

	m.frameTimes = append(m.frameTimes, frameTime)
	for i, v := range cmdTimes {
		m.cmdTimes[i] = append(m.cmdTimes[i], v)
	}
	for i, v := range renderPassTimes {
		m.renderPassTimes[i] = append(m.renderPassTimes[i], v)
	}
}

// Reset drops all history.
func (m *FrameMetrics) Reset() {
	m.rebuild(0, 0)
	m.renderPassCounts = nil
}

func (m *FrameMetrics) rebuild(cmds, renderPasses int) {
	m.frameTimes = make([]float64, 0, min(m.limit, 64))
	m.cmdTimes = make([][]float64, cmds)
	m.renderPassTimes = make([][]float64, renderPasses)
}

func (m *FrameMetrics) evictOldest() {
	m.frameTimes = slices.Delete(m.frameTimes, 0, 1)
	for i := range m.cmdTimes {
		m.cmdTimes[i] = slices.Delete(m.cmdTimes[i], 0, 1)
	}
	for i := range m.renderPassTimes {
		m.renderPassTimes[i] = slices.Delete(m.renderPassTimes[i], 0, 1)
	}
}

// FrameCount returns the number of frames in the window.
func (m *FrameMetrics) FrameCount() int { return len(m.frameTimes) }

// CmdCount returns the number of command-buffer positions in the current shape.
func (m *FrameMetrics) CmdCount() int { return len(m.cmdTimes) }

// RenderPassTotal returns the number of render-pass positions in the current shape.
func (m *FrameMetrics) RenderPassTotal() int { return len(m.renderPassTimes) }

// FrameTimeStats summarises total frame times.
func (m *FrameMetrics) FrameTimeStats() Stats {
	return Statistics(m.frameTimes)
}

// CmdTimeStats summarises the command buffer at position index.
// Out-of-range positions yield EmptyStats.
func (m *FrameMetrics) CmdTimeStats(index int) Stats {
	if index < 0 || index >= len(m.cmdTimes) {
		return EmptyStats
	}
	return Statistics(m.cmdTimes[index])
}

// RenderPassTimeStats summarises the render pass at position index.
// Out-of-range positions yield EmptyStats.
func (m *FrameMetrics) RenderPassTimeStats(index int) Stats {
	if index < 0 || index >= len(m.renderPassTimes) {
		return EmptyStats
	}
	return Statistics(m.renderPassTimes[index])
}

// RenderPassCount returns how many render passes the command buffer at
// position index recorded in the most recent frame, or InvalidCount.
func (m *FrameMetrics) RenderPassCount(index int) uint32 {
	if index < 0 || index >= len(m.renderPassCounts) {
		return InvalidCount
	}
	return m.renderPassCounts[index]
}
