// Command boundcheck-worker verifies class models sent by a boundcheck host over a
// pair of shared-memory channels. The host starts it; it is not meant to be run by
// hand.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lhaig/boundcheck/internal/logging"
	"github.com/lhaig/boundcheck/internal/smt"
	"github.com/lhaig/boundcheck/internal/telemetry"
	"github.com/lhaig/boundcheck/internal/verify"
	"github.com/lhaig/boundcheck/internal/worker"
)

var (
	requestPath   string
	responsePath  string
	capacity      int
	solverPath    string
	solverTimeout time.Duration
	pollInterval  time.Duration
	logLevel      string
	metricsAddr   string
	bounds        = verify.DefaultConfig()
)

var rootCmd = &cobra.Command{
	Use:           "boundcheck-worker",
	Short:         "Out-of-process verifier for boundcheck",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx)
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&requestPath, "requests", "", "request channel file, created by the host")
	flags.StringVar(&responsePath, "responses", "", "response channel file, created by the worker")
	flags.IntVar(&capacity, "capacity", 1<<20, "data size of each channel")
	flags.StringVar(&solverPath, "z3", "", "path of the z3 executable")
	flags.DurationVar(&solverTimeout, "solver-timeout", 30*time.Second, "time limit of one solver run")
	flags.DurationVar(&pollInterval, "poll-interval", 5*time.Millisecond, "request channel polling interval")
	flags.IntVar(&bounds.MaxDepth, "max-depth", bounds.MaxDepth, "longest sequence of public calls checked")
	flags.IntVar(&bounds.MaxCallDepth, "max-call-depth", bounds.MaxCallDepth, "how deeply internal calls are inlined")
	flags.IntVar(&bounds.MaxLoopUnroll, "max-loop-unroll", bounds.MaxLoopUnroll, "loop iterations explored")
	flags.IntVar(&bounds.MaxReferenceDepth, "max-reference-depth", bounds.MaxReferenceDepth, "depth of materialized reference arguments")
	flags.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	_ = rootCmd.MarkFlagRequired("requests")
	_ = rootCmd.MarkFlagRequired("responses")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "boundcheck-worker:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	logger, err := logging.New(logLevel, false)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger = logging.Named(logger, "worker", "worker").With(zap.Int("pid", os.Getpid()))

	solver, err := smt.NewZ3Backend(solverPath, solverTimeout)
	if err != nil {
		return err
	}

	if metricsAddr != "" {
		tcfg := telemetry.DefaultConfig("boundcheck-worker")
		tcfg.MetricExporter = "prometheus"
		shutdown, err := telemetry.Init(ctx, tcfg)
		if err != nil {
			return err
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	in, out, err := worker.Open(requestPath, responsePath, capacity)
	if err != nil {
		return err
	}
	defer in.Close()
	defer out.Close()

	verifier := verify.New(solver, bounds, logger.Named("verify"))
	srv := worker.NewServer(in, out, verifier, pollInterval, logger)
	logger.Debug("channels open", zap.String("requests", requestPath), zap.String("responses", responsePath))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// a shutdown request ends Serve with nil, which must also stop the metrics server
		defer cancel()
		return srv.Serve(gctx)
	})
	if metricsAddr != "" {
		g.Go(func() error {
			return telemetry.ServeMetrics(gctx, metricsAddr, telemetry.MetricsHandler())
		})
	}

	err = g.Wait()
	logger.Info("worker stopped", zap.Error(err))
	return err
}
