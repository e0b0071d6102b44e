package gputime

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/born-ml/gputime/internal/slot"
	"github.com/born-ml/gputime/internal/vk"
)

// queryStride is the size of one (timestamp, availability) pair in bytes.
const queryStride = 16

const readbackFlags = vk.QueryResult64Bit | vk.QueryResultPartial | vk.QueryResultWithAvailability

// queryResults is the readback buffer: a timestamp followed by its
// availability word for every slot.
type queryResults []uint64

func (q queryResults) timestamp(s uint32) uint64 { return q[2*s] }
func (q queryResults) available(s uint32) bool { return q[2*s+1] != 0 }

// relevantSlots lists every slot the running frame reads.
// Must be called with g.mu held.
func (g *GPUTime) relevantSlots() []uint32 {
	var slots []uint32
	for _, cb := range g.frameCmds {
		info, ok := g.cmds[cb]
		if !ok {
			continue
		}
		slots = append(slots, info.beginSlot, info.endSlot)
		slots = append(slots, info.renderPassSlots[:len(info.renderPassSlots)&^1]...)
	}
	return slots
}

// readback fetches all query results, retrying while the device reports
// VK_NOT_READY and some slot of the running frame is still unavailable.
// Must be called with g.mu held.
func (g *GPUTime) readback(get vk.GetQueryPoolResultsFunc) (queryResults, error) {
	data := make(queryResults, 2*slot.Count)
	relevant := g.relevantSlots()

	op := func() error {
		res := get(g.device, g.queryPool, 0, slot.Count, data, queryStride, readbackFlags)
		switch res {
		case vk.Success:
			return nil
		case vk.NotReady:
			pending := lo.CountBy(relevant, func(s uint32) bool { return !data.available(s) })
			if pending == 0 {
				return nil
			}
			return fmt.Errorf("%w: %d of %d timestamps pending", ErrResultsNotReady, pending, len(relevant))
		default:
			return backoff.Permanent(&DeviceError{Op: "vkGetQueryPoolResults", Result: res})
		}
	}

	var b backoff.BackOff = &backoff.StopBackOff{}
	if g.cfg.RetryBudget > 0 {
		b = backoff.WithMaxRetries(backoff.NewConstantBackOff(g.cfg.RetryInterval), uint64(g.cfg.RetryBudget))
	}
	notify := func(err error, wait time.Duration) {
		g.log.Debug("query results not ready, retrying",
			zap.Uint64("frame", g.frameIndex),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	if err := backoff.RetryNotifyWithTimer(op, b, notify, g.retryTimer); err != nil {
		return nil, err
	}
	return data, nil
}

// elapsedMs converts a begin/end tick pair to milliseconds.
func (g *GPUTime) elapsedMs(data queryResults, begin, end uint32) float64 {
	return float64(data.timestamp(end)-data.timestamp(begin)) * float64(g.timestampPeriod) / 1e6
}

// updateFrameMetrics reads back the running frame's timestamps and adds one
// sample to the metrics window. Nothing is recorded on failure.
// Must be called with g.mu held.
func (g *GPUTime) updateFrameMetrics(get vk.GetQueryPoolResultsFunc) error {
	data, err := g.readback(get)
	if err != nil {
		g.invalidateFrame("query readback failed", zap.Error(err))
		return fmt.Errorf("update frame metrics: %w", err)
	}

	cmdTimes := make([]float64, 0, len(g.frameCmds))
	var renderPassTimes []float64
	renderPassCounts := make([]uint32, 0, len(g.frameCmds))

	for _, cb := range g.frameCmds {
		info, ok := g.cmds[cb]
		if !ok {
			continue
		}
		if !data.available(info.beginSlot) || !data.available(info.endSlot) {
			return fmt.Errorf("update frame metrics: %s begin slot %d, end slot %d: %w",
				cb, info.beginSlot, info.endSlot, ErrResultUnavailable)
		}
		cmdTimes = append(cmdTimes, g.elapsedMs(data, info.beginSlot, info.endSlot))

		pairs := len(info.renderPassSlots) / 2
		for j := range pairs {
			begin, end := info.renderPassSlots[2*j], info.renderPassSlots[2*j+1]
			if !data.available(begin) || !data.available(end) {
				return fmt.Errorf("update frame metrics: %s render pass %d slots %d/%d: %w",
					cb, j, begin, end, ErrResultUnavailable)
			}
			renderPassTimes = append(renderPassTimes, g.elapsedMs(data, begin, end))
		}
		renderPassCounts = append(renderPassCounts, uint32(pairs))
	}

	g.metrics.AddFrameData(lo.Sum(cmdTimes), cmdTimes, renderPassTimes, renderPassCounts)
	return nil
}
