package simdevice

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/gputime/internal/config"
	"github.com/born-ml/gputime/internal/gputime"
	"github.com/born-ml/gputime/internal/parallel"
	"github.com/born-ml/gputime/internal/vk"
)

// CommandBuffer describes the GPU work recorded into one command buffer per
// frame. Work is spent outside render passes, split evenly around them.
type CommandBuffer struct {
	Work         time.Duration   `yaml:"work"`
	RenderPasses []time.Duration `yaml:"render_passes"`
}

// Workload is a synthetic application: every frame records and submits the
// same command buffers, the last of which carries the frame delimiter.
type Workload struct {
	Frames         int             `yaml:"frames"`
	CommandBuffers []CommandBuffer `yaml:"command_buffers"`
	// Jitter is the maximum random deviation added to every duration.
	Jitter time.Duration `yaml:"jitter"`
	Seed   uint64        `yaml:"seed"`
	// WarmupSubmits are submissions made before the first frame whose buffers
	// are dropped with ClearFrameCache.
	WarmupSubmits int `yaml:"warmup_submits"`
}

// DefaultWorkload returns a three-buffer workload with a few render passes.
func DefaultWorkload() Workload {
	return Workload{
		Frames: 120,
		CommandBuffers: []CommandBuffer{
			{Work: 500 * time.Microsecond},
			{Work: 1 * time.Millisecond, RenderPasses: []time.Duration{4 * time.Millisecond, 2 * time.Millisecond}},
			{Work: 300 * time.Microsecond, RenderPasses: []time.Duration{1500 * time.Microsecond}},
		},
		Jitter: 200 * time.Microsecond,
		Seed:   1,
	}
}

// Validate reports the first invalid field.
func (w Workload) Validate() error {
	if w.Frames <= 0 {
		return fmt.Errorf("simdevice: frames must be > 0, got %d", w.Frames)
	}
	if len(w.CommandBuffers) == 0 {
		return errors.New("simdevice: workload has no command buffers")
	}
	if w.Jitter < 0 || w.WarmupSubmits < 0 {
		return errors.New("simdevice: jitter and warmup_submits must be >= 0")
	}
	return nil
}

// LoadWorkload reads a YAML workload. Durations are Go duration strings
// such as "1500us". Keys absent from the file keep DefaultWorkload values.
func LoadWorkload(path string) (Workload, error) {
	w := DefaultWorkload()

	data, err := os.ReadFile(path)
	if err != nil {
		return w, fmt.Errorf("simdevice: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &w); err != nil {
		return w, fmt.Errorf("simdevice: parse %s: %w", path, err)
	}
	return w, w.Validate()
}

// Report summarises a Run.
type Report struct {
	Frames        int    // Frames submitted.
	Boundaries    uint64 // Frame boundaries the instrumentation closed.
	DroppedFrames int    // Frames closed without adding a sample.
}

// Runner drives a gputime.GPUTime against a Device through a full device
// lifetime.
type Runner struct {
	Log      *zap.Logger
	Parallel parallel.Config
	// FrameDelimiter labels the last buffer of every frame. Defaults to
	// config.FrameDelimiter.
	FrameDelimiter string
	// OnFrame is called after every frame boundary, if set.
	OnFrame func(frame uint64)
}

// Run creates the device, records and submits w.Frames frames, and tears
// everything down. Recording of a frame's buffers is spread over goroutines
// per r.Parallel. Frames closed without a sample are counted as dropped; any
// hook failure outside a frame boundary aborts the run.
func (r Runner) Run(gt *gputime.GPUTime, dev *Device, w Workload) (report Report, err error) {
	if err := w.Validate(); err != nil {
		return report, err
	}
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}
	delimiter := r.FrameDelimiter
	if delimiter == "" {
		delimiter = config.FrameDelimiter
	}

	if err := gt.OnCreateDevice(dev.Handle(), dev.TimestampPeriod(), dev.CreateQueryPool, dev.ResetQueryPool); err != nil {
		return report, fmt.Errorf("simdevice: create device: %w", err)
	}
	defer func() {
		err = multierr.Append(err, gt.OnDestroyDevice(dev.Handle(), dev.QueueWaitIdle, dev.DestroyQueryPool))
	}()
	if err := gt.OnGetDeviceQueue(dev.Queue()); err != nil {
		return report, err
	}

	cmdPool := dev.CreateCommandPool()
	info := vk.CommandBufferAllocateInfo{
		CommandPool:        cmdPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(len(w.CommandBuffers)),
	}
	cbs := dev.AllocateCommandBuffers(info)
	if err := gt.OnAllocateCommandBuffers(info, cbs); err != nil {
		return report, fmt.Errorf("simdevice: allocate: %w", err)
	}
	defer func() {
		err = multierr.Append(err, gt.OnDestroyCommandPool(cmdPool))
		dev.FreeCommandBuffers(cbs)
	}()

	rng := rand.New(rand.NewPCG(w.Seed, w.Seed^0x9e3779b97f4a7c15))
	jitter := func(d time.Duration) time.Duration {
		if w.Jitter == 0 {
			return d
		}
		return max(0, d+time.Duration(rng.Int64N(2*int64(w.Jitter)+1))-w.Jitter)
	}

	hooks := gputime.SubmitHooks{
		DeviceWaitIdle:      dev.DeviceWaitIdle,
		ResetQueryPool:      dev.ResetQueryPool,
		GetQueryPoolResults: dev.GetQueryPoolResults,
	}
	submit := func(submits []vk.SubmitInfo) (gputime.SubmitResult, error) {
		if err := dev.QueueSubmit(submits); err != nil {
			return gputime.SubmitResult{}, err
		}
		return gt.OnQueueSubmit(submits, hooks)
	}

	for range w.WarmupSubmits {
		durations := plan(w, jitter)
		if err := r.recordFrame(gt, dev, cbs, durations, ""); err != nil {
			return report, err
		}
		if _, err := submit([]vk.SubmitInfo{{CommandBuffers: cbs}}); err != nil {
			return report, fmt.Errorf("simdevice: warmup submit: %w", err)
		}
	}
	if w.WarmupSubmits > 0 {
		gt.ClearFrameCache()
	}

	for frame := range w.Frames {
		durations := plan(w, jitter)
		if err := r.recordFrame(gt, dev, cbs, durations, delimiter); err != nil {
			return report, err
		}
		res, err := submit([]vk.SubmitInfo{{CommandBuffers: cbs}})
		report.Frames++
		if res.ContainsFrameBoundary {
			report.Boundaries = res.FrameIndex
		}
		switch {
		case err != nil && !res.ContainsFrameBoundary:
			return report, fmt.Errorf("simdevice: submit frame %d: %w", frame, err)
		case res.ContainsFrameBoundary && !res.Sampled:
			report.DroppedFrames++
			log.Warn("frame dropped", zap.Int("frame", frame), zap.Error(err))
		}
		if res.ContainsFrameBoundary && r.OnFrame != nil {
			r.OnFrame(res.FrameIndex)
		}
	}

	log.Info("workload finished",
		zap.Int("frames", report.Frames),
		zap.Int("dropped", report.DroppedFrames),
		zap.Duration("gpu_time", dev.Clock()))
	return report, nil
}

// bufferPlan is the jittered durations of one command buffer for one frame.
type bufferPlan struct {
	work         time.Duration
	renderPasses []time.Duration
}

func plan(w Workload, jitter func(time.Duration) time.Duration) []bufferPlan {
	out := make([]bufferPlan, len(w.CommandBuffers))
	for i, cb := range w.CommandBuffers {
		out[i].work = jitter(cb.Work)
		out[i].renderPasses = make([]time.Duration, len(cb.RenderPasses))
		for j, rp := range cb.RenderPasses {
			out[i].renderPasses[j] = jitter(rp)
		}
	}
	return out
}

func (r Runner) recordFrame(gt *gputime.GPUTime, dev *Device, cbs []vk.CommandBuffer,
	durations []bufferPlan, delimiter string,
) error {
	last := len(cbs) - 1
	return parallel.For(len(cbs), func(i int) error {
		cb, p := cbs[i], durations[i]
		if err := dev.BeginCommandBuffer(cb); err != nil {
			return err
		}
		if err := gt.OnBeginCommandBuffer(cb, vk.CommandBufferUsageOneTimeSubmit, dev.CmdWriteTimestamp); err != nil {
			return err
		}

		gap := p.work / time.Duration(len(p.renderPasses)+1)
		for _, rp := range p.renderPasses {
			dev.CmdWork(cb, gap)
			if err := gt.OnCmdBeginRenderPass(cb, &vk.RenderPassBeginInfo{}, 0, dev.CmdWriteTimestamp); err != nil {
				return err
			}
			dev.CmdWork(cb, rp)
			if err := gt.OnCmdEndRenderPass(cb, dev.CmdWriteTimestamp); err != nil {
				return err
			}
		}
		dev.CmdWork(cb, p.work-gap*time.Duration(len(p.renderPasses)))

		if i == last && delimiter != "" {
			if err := gt.OnCmdInsertDebugUtilsLabelEXT(cb, &vk.DebugUtilsLabel{LabelName: delimiter}); err != nil {
				return err
			}
		}
		return gt.OnEndCommandBuffer(cb, dev.CmdWriteTimestamp)
	}, r.Parallel)
}
