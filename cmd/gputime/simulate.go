package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/born-ml/gputime/internal/exporter"
	"github.com/born-ml/gputime/internal/gputime"
	"github.com/born-ml/gputime/internal/metrics"
	"github.com/born-ml/gputime/internal/parallel"
	"github.com/born-ml/gputime/internal/simdevice"
)

type simulateOptions struct {
	workloadPath    string
	frames          int
	notReadyReads   int
	timestampPeriod float32
	workers         int
	table           bool
	csvPath         string
	metricsAddr     string
}

func newSimulateCommand(global *globalOptions) *cobra.Command {
	opts := &simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a synthetic workload through the instrumentation",
		Long: `simulate records and submits the frames of a workload on a software device,
reconciles their timestamps and prints the resulting statistics.

With --metrics-addr the statistics are served on /metrics while the workload
runs and until the command is interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSimulate(cmd.Context(), cmd.OutOrStdout(), global, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.workloadPath, "workload", "", "workload file (YAML); defaults to a built-in workload")
	f.IntVar(&opts.frames, "frames", 0, "override the workload frame count")
	f.IntVar(&opts.notReadyReads, "not-ready-reads", 0, "readbacks per submission that report VK_NOT_READY")
	f.Float32Var(&opts.timestampPeriod, "timestamp-period", 1, "nanoseconds per device timestamp tick")
	f.IntVar(&opts.workers, "workers", parallel.DefaultConfig().NumWorkers, "goroutines recording command buffers")
	f.BoolVar(&opts.table, "table", false, "print statistics as a table")
	f.StringVar(&opts.csvPath, "csv", "", "write statistics CSV to this file")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

func runSimulate(ctx context.Context, out io.Writer, global *globalOptions, opts *simulateOptions) (err error) {
	w := simdevice.DefaultWorkload()
	if opts.workloadPath != "" {
		if w, err = simdevice.LoadWorkload(opts.workloadPath); err != nil {
			return err
		}
	}
	if opts.frames > 0 {
		w.Frames = opts.frames
	}

	log := global.log
	gt := gputime.New(gputime.WithLogger(log.Named("gputime")), gputime.WithConfig(global.cfg))
	dev := simdevice.New(
		simdevice.WithLogger(log.Named("simdevice")),
		simdevice.WithTimestampPeriod(opts.timestampPeriod),
		simdevice.WithNotReadyReads(opts.notReadyReads),
	)

	if opts.metricsAddr != "" {
		stop, serr := serveMetrics(opts.metricsAddr, gt, log)
		if serr != nil {
			return serr
		}
		defer func() {
			err = multierr.Append(err, stop())
		}()
	}

	runner := simdevice.Runner{
		Log:            log.Named("runner"),
		Parallel:       parallel.Config{Enabled: opts.workers > 1, NumWorkers: opts.workers},
		FrameDelimiter: global.cfg.FrameDelimiter,
		OnFrame: func(frame uint64) {
			log.Debug("frame", zap.Uint64("frame", frame), zap.Float64("avg_ms", gt.GetFrameTimeStats().Average))
		},
	}
	report, err := runner.Run(gt, dev, w)
	if err != nil {
		return err
	}

	if opts.table {
		renderStats(out, gt)
	} else {
		fmt.Fprintln(out, gt.GetStatsString())
	}
	fmt.Fprintf(out, "Submitted %d frames, %d dropped.\n", report.Frames, report.DroppedFrames)

	if opts.csvPath != "" {
		if err := os.WriteFile(opts.csvPath, []byte(gt.GetStatsCSVString()), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", opts.csvPath, err)
		}
	}

	if opts.metricsAddr != "" {
		global.log.Info("workload finished, serving metrics until interrupted")
		<-ctx.Done()
	}
	return nil
}

// serveMetrics starts an HTTP server exposing gt on /metrics. The returned
// function shuts it down.
func serveMetrics(addr string, gt *gputime.GPUTime, log *zap.Logger) (func() error, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(exporter.NewCollector(gt, exporter.DefaultNamespace)); err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.Stringer("addr", ln.Addr()))

	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}, nil
}

// renderStats prints one row per frame, command buffer and render pass series.
func renderStats(out io.Writer, gt *gputime.GPUTime) {
	fmt.Fprintf(out, "%d frames sampled\n", gt.FrameCount())
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Type", "Id", "Mean [ms]", "Median [ms]", "Min [ms]", "Max [ms]", "StdDev [ms]"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	if gt.FrameCount() > 0 {
		table.Append(statsRow(metrics.ObjectFrame, gt.FrameCount(), gt.GetFrameTimeStats()))
		for i := range gt.CmdCount() {
			table.Append(statsRow(metrics.ObjectCommandBuffer, i, gt.GetFrameCmdTimeStats(i)))
		}
		for i := range gt.RenderPassTotal() {
			table.Append(statsRow(metrics.ObjectRenderPass, i, gt.GetFrameRenderPassTimeStats(i)))
		}
	}
	table.Render()
}

func statsRow(object string, id int, s metrics.Stats) []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }
	return []string{object, strconv.Itoa(id), f(s.Average), f(s.Median), f(s.Min), f(s.Max), f(s.StdDev)}
}
