package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lhaig/boundcheck/internal/compiler"
)

var debounce time.Duration

const watchLong = `Watch verifies the given sources, then verifies changed classes again whenever a
source file is written. Send SIGHUP to verify every class again.`

var watchCmd = &cobra.Command{
	Use:   "watch [paths...]",
	Short: "Verify classes again whenever their sources change",
	Long:  watchLong,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		r, err := newRunner(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer r.Close()

		registry, err := compiler.NewSourceRegistry(args...)
		if err != nil {
			return err
		}
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		defer watcher.Close()
		for _, dir := range registry.Watched() {
			if err := watchTree(watcher, dir); err != nil {
				return err
			}
		}

		rebuild := func() {
			if err := runWatchCycle(ctx, r, args); err != nil && !errors.Is(err, errFindings) {
				logger.Error("verification cycle failed", zap.Error(err))
			}
		}
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)

		rebuild()
		return watchLoop(ctx, watcher, hup, func(force bool) {
			if force {
				logger.Info("verifying every class again")
				r.mgr.ForceRerun()
			}
			rebuild()
		})
	},
}

func init() {
	watchCmd.Flags().DurationVar(&debounce, "debounce", 300*time.Millisecond, "wait this long after the last change")
}

// runWatchCycle recompiles the sources, evicts deleted classes and reports
func runWatchCycle(ctx context.Context, r *runner, paths []string) error {
	proj, err := compileProject(paths)
	if err != nil {
		return err
	}
	if err := r.removeMissing(ctx, proj); err != nil {
		return err
	}
	fmt.Printf("\n%s\n", headerStyle.Sprintf("[%s]", time.Now().Format(time.TimeOnly)))
	return runVerify(ctx, r, proj)
}

// watchTree adds dir and every directory below it. fsnotify does not watch
// recursively.
func watchTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// watchLoop calls rebuild once no source changed for the debounce period. A value on
// rerun forces every class to be verified again.
func watchLoop(ctx context.Context, w *fsnotify.Watcher, rerun <-chan os.Signal, rebuild func(force bool)) error {
	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watchTree(w, event.Name); err != nil {
						logger.Warn("cannot watch new directory", zap.String("dir", event.Name), zap.Error(err))
					}
					continue
				}
			}
			if filepath.Ext(event.Name) != compiler.SourceExt || event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			logger.Debug("source changed", zap.String("file", event.Name), zap.String("op", event.Op.String()))
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
			} else {
				timer.Reset(debounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			rebuild(false)

		case <-rerun:
			rebuild(true)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", zap.Error(err))
		}
	}
}
