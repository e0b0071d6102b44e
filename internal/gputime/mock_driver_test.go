package gputime

import (
	"time"

	"github.com/born-ml/gputime/internal/vk"
)

const (
	testDevice vk.Device      = 0xd1
	testQueue  vk.Queue       = 0x91
	testPool   vk.CommandPool = 0xc1
	testQuery  vk.QueryPool   = 0xa1

	ticksPerMs = 1_000_000 // timestamp period of 1ns
)

// mockDriver is an in-memory query pool. Timestamp writes record the current
// value of now; tests advance now between hooks.
type mockDriver struct {
	now        uint64
	timestamps map[uint32]uint64
	written    map[uint32]vk.PipelineStageFlags

	notReadyReads int       // readbacks reporting VK_NOT_READY with nothing available
	readResult    vk.Result // forced result for every readback, if non-zero
	waitResult    vk.Result

	created, destroyed int
	resets             int
	reads              int
	waits              int
	queueWaits         []vk.Queue
}

func newMockDriver() *mockDriver {
	return &mockDriver{
		timestamps: make(map[uint32]uint64),
		written:    make(map[uint32]vk.PipelineStageFlags),
	}
}

func (m *mockDriver) advance(ms uint64) { m.now += ms * ticksPerMs }

func (m *mockDriver) createQueryPool(_ vk.Device, info *vk.QueryPoolCreateInfo) (vk.QueryPool, vk.Result) {
	if info.QueryType != vk.QueryTypeTimestamp {
		return vk.NullHandle, vk.ErrorInitializationFailed
	}
	m.created++
	return testQuery, vk.Success
}

func (m *mockDriver) destroyQueryPool(vk.Device, vk.QueryPool) { m.destroyed++ }

func (m *mockDriver) resetQueryPool(_ vk.Device, _ vk.QueryPool, first, count uint32) {
	m.resets++
	for s := first; s < first+count; s++ {
		delete(m.timestamps, s)
		delete(m.written, s)
	}
}

func (m *mockDriver) writeTimestamp(_ vk.CommandBuffer, stage vk.PipelineStageFlags, _ vk.QueryPool, query uint32) {
	m.timestamps[query] = m.now
	m.written[query] = stage
}

func (m *mockDriver) deviceWaitIdle(vk.Device) vk.Result {
	m.waits++
	return m.waitResult
}

func (m *mockDriver) queueWaitIdle(q vk.Queue) vk.Result {
	m.queueWaits = append(m.queueWaits, q)
	return vk.Success
}

func (m *mockDriver) getQueryPoolResults(_ vk.Device, _ vk.QueryPool, first, count uint32,
	data []uint64, _ uint64, _ vk.QueryResultFlags,
) vk.Result {
	m.reads++
	if m.readResult != vk.Success {
		return m.readResult
	}
	if m.notReadyReads > 0 {
		m.notReadyReads--
		clear(data)
		return vk.NotReady
	}
	for s := first; s < first+count; s++ {
		ts, ok := m.timestamps[s]
		data[2*s] = ts
		data[2*s+1] = 0
		if ok {
			data[2*s+1] = 1
		}
	}
	return vk.Success
}

func (m *mockDriver) submitHooks() SubmitHooks {
	return SubmitHooks{
		DeviceWaitIdle:      m.deviceWaitIdle,
		ResetQueryPool:      m.resetQueryPool,
		GetQueryPoolResults: m.getQueryPoolResults,
	}
}

// immediateTimer fires as soon as it is started.
type immediateTimer struct {
	c      chan time.Time
	starts int
}

func (t *immediateTimer) Start(time.Duration) {
	t.starts++
	t.c = make(chan time.Time, 1)
	t.c <- time.Now()
}

func (t *immediateTimer) Stop() {}

func (t *immediateTimer) C() <-chan time.Time { return t.c }
