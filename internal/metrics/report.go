package metrics

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
)

// CSVHeader is the header row written by CSV.
var CSVHeader = []string{"Type", "Id", "Mean [ms]", "Median [ms]"}

// Object type names used in the first CSV column.
const (
	ObjectFrame         = "Frame"
	ObjectCommandBuffer = "CommandBuffer"
	ObjectRenderPass    = "RenderPass"
)

// String returns a multi-line summary: the frame mean and median, then every
// command buffer with its render passes nested underneath.
func (m *FrameMetrics) String() string {
	var sb strings.Builder

	frame := m.FrameTimeStats()
	fmt.Fprintf(&sb, "Frames sampled: %d\n", m.FrameCount())
	fmt.Fprintf(&sb, "Frame: mean %.3f ms, median %.3f ms\n", frame.Average, frame.Median)

	rp := 0
	for i := 0; i < m.CmdCount(); i++ {
		cmd := m.CmdTimeStats(i)
		fmt.Fprintf(&sb, "  CommandBuffer %d: mean %.3f ms, median %.3f ms\n", i, cmd.Average, cmd.Median)

		n := m.RenderPassCount(i)
		if n == InvalidCount {
			continue
		}
		for j := uint32(0); j < n && rp < m.RenderPassTotal(); j++ {
			pass := m.RenderPassTimeStats(rp)
			fmt.Fprintf(&sb, "    RenderPass %d: mean %.3f ms, median %.3f ms\n", rp, pass.Average, pass.Median)
			rp++
		}
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// CSV renders the window as rows of CSVHeader. The single Frame row carries
// the number of sampled frames in its Id column.
func (m *FrameMetrics) CSV() string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	_ = w.Write(CSVHeader)

	frame := m.FrameTimeStats()
	_ = w.Write(csvRow(ObjectFrame, m.FrameCount(), frame))

	for i := 0; i < m.CmdCount(); i++ {
		_ = w.Write(csvRow(ObjectCommandBuffer, i, m.CmdTimeStats(i)))
	}
	for i := 0; i < m.RenderPassTotal(); i++ {
		_ = w.Write(csvRow(ObjectRenderPass, i, m.RenderPassTimeStats(i)))
	}

	w.Flush()
	return buf.String()
}

func csvRow(object string, id int, s Stats) []string {
	return []string{
		object,
		strconv.Itoa(id),
		strconv.FormatFloat(s.Average, 'f', 4, 64),
		strconv.FormatFloat(s.Median, 'f', 4, 64),
	}
}
