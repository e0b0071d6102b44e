// Package simdevice is a software Vulkan device that executes recorded
// timestamp writes on a virtual GPU clock.
//
// It provides every entry point the GPU timing hooks are handed, so the
// instrumentation can be driven end to end without a driver. Submitted command
// buffers execute immediately and in submission order: recorded work advances
// the clock and each timestamp write captures the clock value.
package simdevice

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/born-ml/gputime/internal/vk"
)

// op is one recorded command: either work of a given length or a timestamp write.
type op struct {
	work  time.Duration
	pool  vk.QueryPool
	query uint32
	write bool
}

type query struct {
	ticks     uint64
	available bool
}

// Option configures a Device.
type Option func(*Device)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(d *Device) {
		if log != nil {
			d.log = log
		}
	}
}

// WithTimestampPeriod sets the nanoseconds per timestamp tick. The default is 1.
func WithTimestampPeriod(ns float32) Option {
	return func(d *Device) {
		if ns > 0 {
			d.period = ns
		}
	}
}

// WithNotReadyReads makes the first n result readbacks after every submission
// report VK_NOT_READY with no result available.
func WithNotReadyReads(n int) Option {
	return func(d *Device) {
		d.notReadyReads = n
	}
}

// Device is a software device with a single queue.
type Device struct {
	log    *zap.Logger
	period float32

	handle vk.Device
	queue  vk.Queue

	mu            sync.Mutex
	clock         time.Duration // virtual GPU time
	pools         map[vk.QueryPool][]query
	recording     map[vk.CommandBuffer][]op
	notReadyReads int
	notReadyLeft  int

	nextHandle *atomic.Uint64
	submits    *atomic.Int64
	reads      *atomic.Int64
}

// New creates a device.
func New(opts ...Option) *Device {
	d := &Device{
		log:        zap.NewNop(),
		period:     1,
		pools:      make(map[vk.QueryPool][]query),
		recording:  make(map[vk.CommandBuffer][]op),
		nextHandle: atomic.NewUint64(0x1000),
		submits:    atomic.NewInt64(0),
		reads:      atomic.NewInt64(0),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.handle = vk.Device(d.newHandle())
	d.queue = vk.Queue(d.newHandle())
	return d
}

func (d *Device) newHandle() uintptr {
	return uintptr(d.nextHandle.Inc())
}

// Handle returns the device handle.
func (d *Device) Handle() vk.Device { return d.handle }

// Queue returns the device's only queue.
func (d *Device) Queue() vk.Queue { return d.queue }

// TimestampPeriod returns the nanoseconds per timestamp tick.
func (d *Device) TimestampPeriod() float32 { return d.period }

// Submits returns the number of QueueSubmit calls.
func (d *Device) Submits() int64 { return d.submits.Load() }

// Reads returns the number of GetQueryPoolResults calls.
func (d *Device) Reads() int64 { return d.reads.Load() }

// Clock returns the virtual GPU time.
func (d *Device) Clock() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clock
}

// CreateCommandPool returns a new command pool handle.
func (d *Device) CreateCommandPool() vk.CommandPool {
	return vk.CommandPool(d.newHandle())
}

// AllocateCommandBuffers returns CommandBufferCount new handles.
func (d *Device) AllocateCommandBuffers(info vk.CommandBufferAllocateInfo) []vk.CommandBuffer {
	d.mu.Lock()
	defer d.mu.Unlock()

	cbs := make([]vk.CommandBuffer, info.CommandBufferCount)
	for i := range cbs {
		cbs[i] = vk.CommandBuffer(d.newHandle())
		d.recording[cbs[i]] = nil
	}
	return cbs
}

// FreeCommandBuffers forgets the given buffers.
func (d *Device) FreeCommandBuffers(cbs []vk.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, cb := range cbs {
		delete(d.recording, cb)
	}
}

// BeginCommandBuffer discards anything previously recorded into cb.
func (d *Device) BeginCommandBuffer(cb vk.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.recording[cb]; !ok {
		return fmt.Errorf("simdevice: unknown command buffer %s", cb)
	}
	d.recording[cb] = d.recording[cb][:0]
	return nil
}

// CmdWork records GPU work of length dur into cb.
func (d *Device) CmdWork(cb vk.CommandBuffer, dur time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recording[cb] = append(d.recording[cb], op{work: dur})
}

// CmdWriteTimestamp records a timestamp write. It matches vk.CmdWriteTimestampFunc.
func (d *Device) CmdWriteTimestamp(cb vk.CommandBuffer, _ vk.PipelineStageFlags, pool vk.QueryPool, q uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recording[cb] = append(d.recording[cb], op{pool: pool, query: q, write: true})
}

// CreateQueryPool matches vk.CreateQueryPoolFunc.
func (d *Device) CreateQueryPool(device vk.Device, info *vk.QueryPoolCreateInfo) (vk.QueryPool, vk.Result) {
	if device != d.handle || info == nil || info.QueryType != vk.QueryTypeTimestamp {
		return vk.NullHandle, vk.ErrorInitializationFailed
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	pool := vk.QueryPool(d.newHandle())
	d.pools[pool] = make([]query, info.QueryCount)
	d.log.Debug("query pool created", zap.Stringer("pool", pool), zap.Uint32("queries", info.QueryCount))
	return pool, vk.Success
}

// DestroyQueryPool matches vk.DestroyQueryPoolFunc.
func (d *Device) DestroyQueryPool(_ vk.Device, pool vk.QueryPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pools, pool)
}

// ResetQueryPool matches vk.ResetQueryPoolFunc.
func (d *Device) ResetQueryPool(_ vk.Device, pool vk.QueryPool, first, count uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	queries := d.pools[pool]
	for i := first; i < first+count && int(i) < len(queries); i++ {
		queries[i] = query{}
	}
}

// QueueSubmit executes the submitted buffers in order. Timestamp writes into
// destroyed pools are dropped.
func (d *Device) QueueSubmit(submits []vk.SubmitInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submits.Inc()

	for _, s := range submits {
		for _, cb := range s.CommandBuffers {
			ops, ok := d.recording[cb]
			if !ok {
				return fmt.Errorf("simdevice: submit of unknown command buffer %s", cb)
			}
			for _, o := range ops {
				if !o.write {
					d.clock += o.work
					continue
				}
				if queries := d.pools[o.pool]; int(o.query) < len(queries) {
					queries[o.query] = query{ticks: uint64(float64(d.clock) / float64(d.period)), available: true}
				}
			}
		}
	}
	d.notReadyLeft = d.notReadyReads
	return nil
}

// DeviceWaitIdle matches vk.DeviceWaitIdleFunc. Work completes at submission.
func (d *Device) DeviceWaitIdle(device vk.Device) vk.Result {
	if device != d.handle {
		return vk.ErrorDeviceLost
	}
	return vk.Success
}

// QueueWaitIdle matches vk.QueueWaitIdleFunc.
func (d *Device) QueueWaitIdle(queue vk.Queue) vk.Result {
	if queue != d.queue {
		return vk.ErrorDeviceLost
	}
	return vk.Success
}

// GetQueryPoolResults matches vk.GetQueryPoolResultsFunc. data receives a
// (ticks, availability) pair per query when vk.QueryResultWithAvailability is
// set, otherwise ticks only.
func (d *Device) GetQueryPoolResults(_ vk.Device, pool vk.QueryPool, first, count uint32,
	data []uint64, _ uint64, flags vk.QueryResultFlags,
) vk.Result {
	d.reads.Inc()
	d.mu.Lock()
	defer d.mu.Unlock()

	queries, ok := d.pools[pool]
	if !ok {
		return vk.ErrorDeviceLost
	}
	words := uint32(1)
	if flags&vk.QueryResultWithAvailability != 0 {
		words = 2
	}
	if uint64(len(data)) < uint64(count)*uint64(words) || int(first+count) > len(queries) {
		return vk.ErrorOutOfHostMemory
	}

	if d.notReadyLeft > 0 {
		d.notReadyLeft--
		clear(data[:count*words])
		return vk.NotReady
	}

	result := vk.Success
	for i := range count {
		q := queries[first+i]
		data[i*words] = q.ticks
		if words == 2 {
			data[i*words+1] = 0
			if q.available {
				data[i*words+1] = 1
			}
		}
		if !q.available {
			result = vk.NotReady
		}
	}
	return result
}
