// Package exporter publishes GPU timing statistics as Prometheus metrics.
package exporter

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/born-ml/gputime/internal/metrics"
)

// Source is the statistics surface read on every scrape.
// *gputime.GPUTime satisfies it.
type Source interface {
	GetFrameTimeStats() metrics.Stats
	GetFrameCmdTimeStats(index int) metrics.Stats
	GetFrameRenderPassTimeStats(index int) metrics.Stats
	FrameCount() int
	CmdCount() int
	RenderPassTotal() int
	FrameIndex() uint64
	SlotsInUse() int
}

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "gputime"

// Collector implements prometheus.Collector over a Source.
// Duration series are only emitted once at least one frame was sampled.
type Collector struct {
	src Source

	frameTimeDesc      *prometheus.Desc
	cmdTimeDesc        *prometheus.Desc
	renderPassTimeDesc *prometheus.Desc
	framesSampledDesc  *prometheus.Desc
	framesTotalDesc    *prometheus.Desc
	slotsInUseDesc     *prometheus.Desc
}

// NewCollector creates a collector. An empty namespace selects DefaultNamespace.
func NewCollector(src Source, namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Collector{
		src: src,
		frameTimeDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "frame_time_ms"),
			"GPU time per frame over the statistics window, in milliseconds.",
			[]string{"stat"}, nil,
		),
		cmdTimeDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "command_buffer_time_ms"),
			"GPU time of the command buffer at a submission position, in milliseconds.",
			[]string{"index", "stat"}, nil,
		),
		renderPassTimeDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "render_pass_time_ms"),
			"GPU time of the render pass at a frame position, in milliseconds.",
			[]string{"index", "stat"}, nil,
		),
		framesSampledDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "frames_sampled"),
			"Frames in the statistics window.",
			nil, nil,
		),
		framesTotalDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "frames_total"),
			"Frame boundaries seen since device creation.",
			nil, nil,
		),
		slotsInUseDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "slots_in_use"),
			"Timestamp query slots currently claimed.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.frameTimeDesc
	ch <- c.cmdTimeDesc
	ch <- c.renderPassTimeDesc
	ch <- c.framesSampledDesc
	ch <- c.framesTotalDesc
	ch <- c.slotsInUseDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	frames := c.src.FrameCount()
	ch <- prometheus.MustNewConstMetric(c.framesSampledDesc, prometheus.GaugeValue, float64(frames))
	ch <- prometheus.MustNewConstMetric(c.framesTotalDesc, prometheus.CounterValue, float64(c.src.FrameIndex()))
	ch <- prometheus.MustNewConstMetric(c.slotsInUseDesc, prometheus.GaugeValue, float64(c.src.SlotsInUse()))

	if frames == 0 {
		return
	}
	collectStats(ch, c.frameTimeDesc, c.src.GetFrameTimeStats())
	for i := range c.src.CmdCount() {
		collectStats(ch, c.cmdTimeDesc, c.src.GetFrameCmdTimeStats(i), strconv.Itoa(i))
	}
	for i := range c.src.RenderPassTotal() {
		collectStats(ch, c.renderPassTimeDesc, c.src.GetFrameRenderPassTimeStats(i), strconv.Itoa(i))
	}
}

func collectStats(ch chan<- prometheus.Metric, desc *prometheus.Desc, s metrics.Stats, labels ...string) {
	for _, v := range []struct {
		stat  string
		value float64
	}{
		{"mean", s.Average},
		{"median", s.Median},
		{"min", s.Min},
		{"max", s.Max},
		{"stddev", s.StdDev},
	} {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, v.value, append(labels, v.stat)...)
	}
}
