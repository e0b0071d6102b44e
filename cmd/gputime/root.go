package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/born-ml/gputime/internal/config"
)

// globalOptions are shared by every subcommand and resolved before it runs.
type globalOptions struct {
	configPath string
	logLevel   string

	cfg config.Config
	log *zap.Logger
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "gputime",
		Short: "GPU timestamp instrumentation tools",
		Long: `gputime drives the GPU timing instrumentation against a simulated device
and inspects the statistics CSV files it produces.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.resolve()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.log != nil {
				_ = opts.log.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "instrumentation config file (YAML)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	cmd.AddCommand(
		newSimulateCommand(opts),
		newInspectCommand(),
		newVersionCommand(),
	)
	return cmd
}

func (o *globalOptions) resolve() error {
	log, err := newLogger(o.logLevel)
	if err != nil {
		return err
	}
	o.log = log

	o.cfg = config.Default()
	if o.configPath != "" {
		if o.cfg, err = config.Load(o.configPath); err != nil {
			return err
		}
	}
	return nil
}

// newLogger returns a development logger at debug level and a production
// logger otherwise.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}

	zc := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gputime %s\n", version)
		},
	}
}
