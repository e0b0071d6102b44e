package metrics

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatistics(t *testing.T) {
	tests := []struct {
		name   string
		series []float64
		want   Stats
	}{
		{
			name:   "odd length",
			series: []float64{10, 20, 30},
			want:   Stats{Average: 20, Median: 20, Min: 10, Max: 30, StdDev: 10},
		},
		{
			name:   "even length",
			series: []float64{10, 20},
			want:   Stats{Average: 15, Median: 15, Min: 10, Max: 20, StdDev: math.Sqrt(50)},
		},
		{
			name:   "single sample",
			series: []float64{7.5},
			want:   Stats{Average: 7.5, Median: 7.5, Min: 7.5, Max: 7.5, StdDev: 0},
		},
		{
			name:   "unsorted input",
			series: []float64{30, 10, 40, 20},
			want:   Stats{Average: 25, Median: 25, Min: 10, Max: 40, StdDev: math.Sqrt(500.0 / 3)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Statistics(tt.series)
			assert.InDelta(t, tt.want.Average, got.Average, 1e-9)
			assert.InDelta(t, tt.want.Median, got.Median, 1e-9)
			assert.InDelta(t, tt.want.Min, got.Min, 1e-9)
			assert.InDelta(t, tt.want.Max, got.Max, 1e-9)
			assert.InDelta(t, tt.want.StdDev, got.StdDev, 1e-9)
		})
	}
}

func TestStatisticsEmpty(t *testing.T) {
	got := Statistics(nil)
	assert.Equal(t, EmptyStats, got)
	assert.Equal(t, 0.0, got.Average)
	assert.Equal(t, math.MaxFloat64, got.Min)
	assert.Equal(t, -math.MaxFloat64, got.Max)
}

func TestStatisticsDoesNotReorderInput(t *testing.T) {
	series := []float64{3, 1, 2}
	Statistics(series)
	assert.Equal(t, []float64{3, 1, 2}, series)
}

func TestAddFrameDataEvictsOldest(t *testing.T) {
	m := NewFrameMetrics(0)
	require.Equal(t, DefaultLimit, m.Limit())

	for i := 0; i <= DefaultLimit; i++ {
		v := float64(i + 1)
		m.AddFrameData(v, []float64{v}, []float64{v * 2}, []uint32{1})
	}

	assert.Equal(t, DefaultLimit, m.FrameCount())

	frame := m.FrameTimeStats()
	assert.Equal(t, 2.0, frame.Min, "first sample evicted")
	assert.Equal(t, float64(DefaultLimit+1), frame.Max)

	cmd := m.CmdTimeStats(0)
	assert.Equal(t, 2.0, cmd.Min)
	assert.Equal(t, float64(DefaultLimit+1), cmd.Max)

	pass := m.RenderPassTimeStats(0)
	assert.Equal(t, 4.0, pass.Min)
}

func TestAddFrameDataSmallLimit(t *testing.T) {
	m := NewFrameMetrics(3)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		m.AddFrameData(v, []float64{v}, nil, []uint32{0})
	}
	stats := m.FrameTimeStats()
	assert.Equal(t, 3, m.FrameCount())
	assert.Equal(t, 3.0, stats.Min)
	assert.Equal(t, 5.0, stats.Max)
	assert.Equal(t, 4.0, stats.Average)
}

func TestAddFrameDataShapeChangeDiscardsHistory(t *testing.T) {
	m := NewFrameMetrics(10)
	m.AddFrameData(10, []float64{10}, nil, []uint32{0})
	m.AddFrameData(12, []float64{12}, nil, []uint32{0})
	require.Equal(t, 2, m.FrameCount())

	// A second command buffer appears: the old window no longer lines up.
	m.AddFrameData(30, []float64{10, 20}, nil, []uint32{0, 0})
	assert.Equal(t, 1, m.FrameCount())
	assert.Equal(t, 2, m.CmdCount())
	assert.Equal(t, 30.0, m.FrameTimeStats().Average)
	assert.Equal(t, 20.0, m.CmdTimeStats(1).Average)

	// Same number of command buffers but a render pass appears.
	m.AddFrameData(31, []float64{10, 21}, []float64{5}, []uint32{0, 1})
	assert.Equal(t, 1, m.FrameCount())
	assert.Equal(t, 1, m.RenderPassTotal())
}

func TestSeriesStayAligned(t *testing.T) {
	m := NewFrameMetrics(4)
	for i := 0; i < 9; i++ {
		v := float64(i)
		m.AddFrameData(v*3, []float64{v, v * 2}, []float64{v, v, v}, []uint32{2, 1})
		for c := range m.cmdTimes {
			require.Len(t, m.cmdTimes[c], m.FrameCount())
		}
		for r := range m.renderPassTimes {
			require.Len(t, m.renderPassTimes[r], m.FrameCount())
		}
	}
}

func TestRenderPassCount(t *testing.T) {
	m := NewFrameMetrics(10)
	assert.Equal(t, InvalidCount, m.RenderPassCount(0))

	m.AddFrameData(3, []float64{1, 2}, []float64{0.5, 0.5, 0.5}, []uint32{1, 2})
	assert.Equal(t, uint32(1), m.RenderPassCount(0))
	assert.Equal(t, uint32(2), m.RenderPassCount(1))
	assert.Equal(t, InvalidCount, m.RenderPassCount(2))
	assert.Equal(t, InvalidCount, m.RenderPassCount(-1))
}

func TestOutOfRangeStats(t *testing.T) {
	m := NewFrameMetrics(10)
	m.AddFrameData(1, []float64{1}, nil, []uint32{0})
	assert.Equal(t, EmptyStats, m.CmdTimeStats(1))
	assert.Equal(t, EmptyStats, m.CmdTimeStats(-1))
	assert.Equal(t, EmptyStats, m.RenderPassTimeStats(0))
}

func TestReset(t *testing.T) {
	m := NewFrameMetrics(10)
	m.AddFrameData(1, []float64{1}, []float64{1}, []uint32{1})
	m.Reset()
	assert.Equal(t, 0, m.FrameCount())
	assert.Equal(t, 0, m.CmdCount())
	assert.Equal(t, InvalidCount, m.RenderPassCount(0))
}

func TestString(t *testing.T) {
	m := NewFrameMetrics(10)
	m.AddFrameData(30, []float64{10, 20}, []float64{4, 6, 8}, []uint32{1, 2})

	s := m.String()
	lines := strings.Split(s, "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "Frames sampled: 1", lines[0])
	assert.Equal(t, "Frame: mean 30.000 ms, median 30.000 ms", lines[1])
	assert.Equal(t, "  CommandBuffer 0: mean 10.000 ms, median 10.000 ms", lines[2])
	assert.Equal(t, "    RenderPass 0: mean 4.000 ms, median 4.000 ms", lines[3])
	assert.Equal(t, "  CommandBuffer 1: mean 20.000 ms, median 20.000 ms", lines[4])
	assert.Equal(t, "    RenderPass 1: mean 6.000 ms, median 6.000 ms", lines[5])
	assert.Equal(t, "    RenderPass 2: mean 8.000 ms, median 8.000 ms", lines[6])
}

func TestCSV(t *testing.T) {
	m := NewFrameMetrics(10)
	m.AddFrameData(30, []float64{10, 20}, []float64{4}, []uint32{1, 0})
	m.AddFrameData(32, []float64{12, 20}, []float64{6}, []uint32{1, 0})

	want := strings.Join([]string{
		"Type,Id,Mean [ms],Median [ms]",
		"Frame,2,31.0000,31.0000",
		"CommandBuffer,0,11.0000,11.0000",
		"CommandBuffer,1,20.0000,20.0000",
		"RenderPass,0,5.0000,5.0000",
		"",
	}, "\n")
	assert.Equal(t, want, m.CSV())
}
