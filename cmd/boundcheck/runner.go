package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/lhaig/boundcheck/internal/compiler"
	"github.com/lhaig/boundcheck/internal/config"
	"github.com/lhaig/boundcheck/internal/host"
	"github.com/lhaig/boundcheck/internal/interp"
	"github.com/lhaig/boundcheck/internal/manager"
	"github.com/lhaig/boundcheck/internal/model"
	"github.com/lhaig/boundcheck/internal/smt"
	"github.com/lhaig/boundcheck/internal/verify"
)

// runner owns the model manager and the backend verifying for it
type runner struct {
	mgr     *manager.Manager
	mode    manager.Mode
	cfg     config.Config
	logger  *zap.Logger
	release func() error
}

func newRunner(ctx context.Context, cfg config.Config, logger *zap.Logger) (*runner, error) {
	backend, release, err := newBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	opts, err := cfg.Manager.Options(logger.Named("manager"))
	if err != nil {
		_ = release()
		return nil, err
	}
	return &runner{
		mgr:     manager.New(backend, opts),
		mode:    opts.Mode,
		cfg:     cfg,
		logger:  logger,
		release: release,
	}, nil
}

// newBackend verifies in process unless the configuration enables the worker
func newBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (manager.Backend, func() error, error) {
	if !cfg.Worker.Enabled {
		solver, err := smt.NewZ3Backend(cfg.Solver.Path, cfg.Solver.Timeout)
		if err != nil {
			return nil, nil, err
		}
		v := verify.New(solver, cfg.Verify.Bounds(), logger.Named("verify"))
		return manager.NewInProcessBackend(v), func() error { return nil }, nil
	}

	dir, err := os.MkdirTemp("", "boundcheck-*")
	if err != nil {
		return nil, nil, fmt.Errorf("channel directory: %w", err)
	}
	client := host.NewClient(cfg.Worker.HostOptions(dir, workerArgs(cfg), logger.Named("host")))
	release := func() error {
		err := client.Close()
		return errors.Join(err, os.RemoveAll(dir))
	}
	if err := client.Start(ctx); err != nil {
		_ = release()
		return nil, nil, err
	}
	return client, release, nil
}

// workerArgs forwards the verifier settings to the worker process
func workerArgs(cfg config.Config) []string {
	args := []string{
		"--max-depth", strconv.Itoa(cfg.Verify.MaxDepth),
		"--max-call-depth", strconv.Itoa(cfg.Verify.MaxCallDepth),
		"--max-loop-unroll", strconv.Itoa(cfg.Verify.MaxLoopUnroll),
		"--max-reference-depth", strconv.Itoa(cfg.Verify.MaxReferenceDepth),
		"--solver-timeout", cfg.Solver.Timeout.String(),
		"--log-level", cfg.Log.Level,
	}
	if cfg.Solver.Path != "" {
		args = append(args, "--z3", cfg.Solver.Path)
	}
	return args
}

func (r *runner) Close() error {
	r.mgr.Close()
	return r.release()
}

// outcome is the verification state of one class for reporting
type outcome struct {
	class  *model.ClassModel
	result *verify.Result
}

// verifyProject hands every class to the manager and waits for its verification.
// In manual mode the classes are scheduled with a scan. Classes whose verification did
// not finish in time are reported as not started.
func (r *runner) verifyProject(ctx context.Context, proj *compiler.Project) ([]outcome, error) {
	for _, f := range proj.Files {
		fp := r.mgr.Fingerprint(f.Source)
		for _, c := range f.Classes {
			if _, err := r.mgr.GetClassModel(ctx, c, fp); err != nil {
				return nil, err
			}
		}
	}
	if r.mode == manager.Manual {
		if _, err := r.mgr.Scan(ctx); err != nil {
			return nil, err
		}
	}

	var out []outcome
	for _, f := range proj.Files {
		fp := r.mgr.Fingerprint(f.Source)
		for _, c := range f.Classes {
			view, err := r.mgr.GetVerifiedModel(ctx, c, fp, r.cfg.Manager.VerifyTimeout)
			switch {
			case errors.Is(err, manager.ErrTimeout):
				r.logger.Warn("verification did not finish", zap.String("class", c.Name), zap.Error(err))
			case err != nil:
				return nil, err
			}

			var res *verify.Result
			if !view.Eligible() {
				res = &verify.Result{ClassName: c.Name, State: verify.Skipped}
			} else if res, err = r.mgr.Result(ctx, c.Name); err != nil {
				return nil, err
			}
			out = append(out, outcome{class: c, result: res})
		}
	}
	return out, nil
}

// removeMissing drops cached classes that are no longer part of the project
func (r *runner) removeMissing(ctx context.Context, proj *compiler.Project) error {
	n, err := r.mgr.RemoveMissingClasses(ctx, proj.ClassNames())
	if n > 0 {
		r.logger.Debug("removed classes", zap.Int("count", n))
	}
	return err
}

func reports(outcomes []outcome) []*verify.ClassReport {
	var classes []*model.ClassModel
	var results []*verify.Result
	for _, o := range outcomes {
		classes = append(classes, o.class)
		if o.result != nil {
			results = append(results, o.result)
		}
	}
	return verify.BuildReport(classes, results)
}

// hasFindings reports whether any class is not fully verified for a reason other than
// being unsupported
func hasFindings(reports []*verify.ClassReport) bool {
	for _, r := range reports {
		if r.State != verify.Skipped && !r.AllVerified() {
			return true
		}
	}
	return false
}

// printReplays executes every counterexample and states whether it reproduces
func printReplays(w io.Writer, outcomes []outcome) {
	for _, o := range outcomes {
		if o.result == nil {
			continue
		}
		for _, v := range o.result.Violations {
			where := fmt.Sprintf("%s:%s %s", o.class.Name, v.Location.ID(), v.Kind)
			f, err := interp.Replay(o.class, v, interp.DefaultLimits)
			switch {
			case errors.Is(err, interp.ErrNotReplayable):
				fmt.Fprintf(w, "%s: %s\n", where, skippedStyle.Sprint("not replayable"))
			case err != nil:
				fmt.Fprintf(w, "%s: %s %v\n", where, errorStyle.Sprint("replay failed:"), err)
			case f == nil:
				fmt.Fprintf(w, "%s: %s\n", where, warningStyle.Sprint("not reproduced by execution"))
			default:
				fmt.Fprintf(w, "%s: %s %s\n", where, verifiedStyle.Sprint("reproduced:"), f.Message)
			}
		}
	}
}
