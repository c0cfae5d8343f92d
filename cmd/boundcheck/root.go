package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lhaig/boundcheck/internal/config"
	"github.com/lhaig/boundcheck/internal/logging"
	"github.com/lhaig/boundcheck/internal/telemetry"
)

// errFindings is returned when violations or errors were reported. The report itself
// has been printed already.
var errFindings = errors.New("findings reported")

var (
	cfgFile     string
	logLevel    string
	solverPath  string
	maxDepth    int
	useWorker   bool
	workerPath  string
	metricsAddr string
	noColor     bool

	cfg    config.Config
	logger *zap.Logger

	shutdownTelemetry func(context.Context) error
	stopMetrics       context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:               "boundcheck",
	Short:             "boundcheck - bounded model checking for contract-annotated classes",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Execute runs the command line and releases logging and telemetry afterwards, also
// when the command failed
func Execute() error {
	err := rootCmd.Execute()
	if terr := teardown(context.Background()); err == nil {
		err = terr
	}
	return err
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "configuration file (default: nearest "+config.FileName+")")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.StringVar(&solverPath, "z3", "", "path of the z3 executable")
	flags.IntVar(&maxDepth, "depth", 0, "longest sequence of public calls to check")
	flags.BoolVar(&useWorker, "worker", false, "verify in a separate worker process")
	flags.StringVar(&workerPath, "worker-path", "", "path of the boundcheck-worker executable")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	flags.BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(lintCmd)
	rootCmd.AddCommand(watchCmd)
}

func setup(cmd *cobra.Command, _ []string) error {
	color.NoColor = noColor || !isTerminal(os.Stdout)

	var err error
	cfg, err = loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err = logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}

	tcfg := telemetry.DefaultConfig("boundcheck")
	tcfg.MetricExporter = cfg.Telemetry.MetricExporter
	tcfg.TraceExporter = cfg.Telemetry.TraceExporter
	if cfg.Telemetry.MetricsAddr != "" && tcfg.MetricExporter == "none" {
		tcfg.MetricExporter = "prometheus"
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	shutdownTelemetry, err = telemetry.Init(ctx, tcfg)
	if err != nil {
		return err
	}

	if addr := cfg.Telemetry.MetricsAddr; addr != "" {
		var mctx context.Context
		mctx, stopMetrics = context.WithCancel(ctx)
		go func() {
			if err := telemetry.ServeMetrics(mctx, addr, telemetry.MetricsHandler()); err != nil {
				logger.Warn("metrics server stopped", zap.String("addr", addr), zap.Error(err))
			}
		}()
	}
	return nil
}

func teardown(ctx context.Context) error {
	if stopMetrics != nil {
		stopMetrics()
	}
	var err error
	if shutdownTelemetry != nil {
		err = shutdownTelemetry(ctx)
	}
	if logger != nil {
		_ = logger.Sync()
	}
	return err
}

// loadConfig reads the configuration file and applies the flags given on the command line
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path := cfgFile
	if path == "" {
		found, err := config.Find(".")
		if err != nil {
			return config.Config{}, err
		}
		path = found
	}

	c := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		c = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		c.Log.Level = logLevel
	}
	if flags.Changed("z3") {
		c.Solver.Path = solverPath
	}
	if flags.Changed("depth") {
		c.Verify.MaxDepth = maxDepth
	}
	if flags.Changed("worker") {
		c.Worker.Enabled = useWorker
	}
	if flags.Changed("worker-path") {
		c.Worker.Path = workerPath
	}
	if flags.Changed("metrics-addr") {
		c.Telemetry.MetricsAddr = metricsAddr
	}
	if err := c.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("flags: %w", err)
	}
	return c, nil
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
